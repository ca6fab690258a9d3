package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/settleline/internal/config"
)

// WorkerCommand runs the background job workers without the HTTP surface.
// Useful for scaling analysis/OCR throughput independently of the API.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run background analysis and OCR workers",
		Flags: []cli.Flag{
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

			ctx := context.Background()
			app, err := buildApp(ctx, cfg, c.String("blob-dir"))
			if err != nil {
				return err
			}
			defer app.pool.Close()

			if err := app.jobs.Start(ctx); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}
			fmt.Println("Settleline workers running, press Ctrl+C to stop")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt)
			<-quit

			return app.jobs.Stop(ctx)
		},
	}
}
