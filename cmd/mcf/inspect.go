package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/thornfield-ai/splitloader/internal/mcfstore"
)

func inspectCmd() *cli.Command {
	var path string
	var dumpTensor string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print a .mcf file's tensor index and split metadata",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"in"},
				Usage:       "Path to the .mcf file",
				Required:    true,
				Destination: &path,
			},
			&cli.StringFlag{
				Name:        "dump-tensor",
				Usage:       "Materialize one tensor's data as float32 and print its element count and shape",
				Destination: &dumpTensor,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := mcfstore.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("inspect: open: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			if idx, count, ok := f.SplitIndex(); ok {
				fmt.Printf("split: %d of %d\n", idx, count)
			} else {
				fmt.Println("split: none (single-file model)")
			}

			for _, name := range f.TensorNames() {
				info, err := f.Tensor(name)
				if err != nil {
					fmt.Printf("  %s: error: %v\n", name, err)
					continue
				}
				fmt.Printf("  %s: dtype=%d shape=%v size=%d\n", name, info.DType, info.Shape, info.DataSize)
			}

			if dumpTensor != "" {
				vals, info, err := f.ReadTensorF32(dumpTensor)
				if err != nil {
					return cli.Exit(fmt.Sprintf("inspect: dump-tensor: %v", err), 1)
				}
				fmt.Printf("\ntensor %s: %d elements, shape=%v\n", dumpTensor, len(vals), info.Shape)
			}
			_ = ctx
			return nil
		},
	}
}
