package main

import (
	"context"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/thornfield-ai/splitloader/internal/loader"
	"github.com/thornfield-ai/splitloader/internal/loadinput"
	"github.com/thornfield-ai/splitloader/internal/logger"
	"github.com/thornfield-ai/splitloader/internal/mcfstore"
	"github.com/thornfield-ai/splitloader/internal/registry"
	"github.com/thornfield-ai/splitloader/internal/statusapi"
)

func serveCmd() *cli.Command {
	var (
		modelPath string
		addr      string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Open a split model from disk and serve its load status over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to the base .mcf split file (or set default_model in config.yaml)",
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8089",
				Destination: &addr,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, LoadConfig(), &modelPath, &addr)
			if modelPath == "" {
				return cli.Exit("serve: --model is required (or set default_model in config.yaml)", 1)
			}

			ld, err := loader.Open(ctx, &loadinput.PathInput{Path: modelPath}, mcfstore.Parse, registry.New(), log)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			srv := statusapi.NewServer(ld, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)

			log.Info("serving split-load status", "addr", addr)
			return e.Start(addr)
		},
	}
}
