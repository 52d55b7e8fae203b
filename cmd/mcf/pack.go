package main

import (
	"fmt"
	"strconv"
	"strings"

	"context"

	"github.com/urfave/cli/v3"

	"github.com/thornfield-ai/splitloader/pkg/mcf"
)

// packCmd builds a minimal MCF fixture file from a list of tensor
// specifications, in place of the teacher's Safetensors-to-MCF conversion
// pipeline: model construction from an external training-framework format
// is upstream of this loader, but test/demo fixtures in the same on-disk
// shape are still useful, so this keeps the command name and flag style and
// retargets it at pkg/mcf's fixture writer.
func packCmd() *cli.Command {
	var (
		output      string
		tensorSpecs []string
		splitIndex  int64
		splitTotal  int64
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Write a minimal .mcf fixture file from explicit tensor specs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"out"},
				Usage:       "Output .mcf path",
				Required:    true,
				Destination: &output,
			},
			&cli.StringSliceFlag{
				Name:        "tensor",
				Usage:       `Tensor spec "name=dim1xdim2x..." (float32, zero-filled); repeatable`,
				Destination: &tensorSpecs,
			},
			&cli.Int64Flag{
				Name:        "split-index",
				Usage:       "This file's split index (0-based)",
				Destination: &splitIndex,
			},
			&cli.Int64Flag{
				Name:        "split-total",
				Usage:       "Total split count (1 disables the split KV pair)",
				Value:       1,
				Destination: &splitTotal,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if len(tensorSpecs) == 0 {
				return cli.Exit("pack: at least one --tensor spec is required", 1)
			}

			tensors := make([]mcf.FixtureTensor, 0, len(tensorSpecs))
			for _, spec := range tensorSpecs {
				t, err := parseTensorSpec(spec)
				if err != nil {
					return cli.Exit(fmt.Sprintf("pack: %v", err), 1)
				}
				tensors = append(tensors, t)
			}

			if err := mcf.WriteFixture(output, int(splitIndex), int(splitTotal), tensors); err != nil {
				return cli.Exit(fmt.Sprintf("pack: write fixture: %v", err), 1)
			}
			_ = ctx
			return nil
		},
	}
}

// parseTensorSpec parses "name=dim1xdim2x..." into a zero-filled
// FixtureTensor of dtype f32.
func parseTensorSpec(spec string) (mcf.FixtureTensor, error) {
	name, dimsPart, ok := strings.Cut(spec, "=")
	if !ok || name == "" || dimsPart == "" {
		return mcf.FixtureTensor{}, fmt.Errorf("invalid tensor spec %q, want name=dim1xdim2x...", spec)
	}

	dimStrs := strings.Split(dimsPart, "x")
	shape := make([]uint64, 0, len(dimStrs))
	n := uint64(1)
	for _, ds := range dimStrs {
		d, err := strconv.ParseUint(ds, 10, 64)
		if err != nil || d == 0 {
			return mcf.FixtureTensor{}, fmt.Errorf("invalid dimension %q in %q", ds, spec)
		}
		shape = append(shape, d)
		n *= d
	}

	return mcf.FixtureTensor{
		Name:  name,
		DType: mcf.DTypeF32,
		Shape: shape,
		Data:  make([]byte, n*4),
	}, nil
}
