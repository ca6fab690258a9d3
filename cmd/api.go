package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/settleline/internal/api"
	"github.com/settleline/internal/config"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Settleline API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.StringFlag{
				Name:  "blob-dir",
				Usage: "Directory for uploaded artifacts",
				Value: "./data/artifacts",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			ctx := context.Background()
			app, err := buildApp(ctx, cfg, c.String("blob-dir"))
			if err != nil {
				return err
			}
			defer app.pool.Close()

			if err := app.jobs.Start(ctx); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}
			defer app.jobs.Stop(ctx)

			fmt.Printf("Starting Settleline API server on port %d...\n", cfg.Server.Port)
			server := api.NewServer(cfg.Server.Port, app.serverDeps())
			return server.Start()
		},
	}
}
