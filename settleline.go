package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/settleline/cmd"
	"github.com/settleline/internal/logging"
)

const (
	version = "0.1.0"
)

func main() {
	logging.Setup(os.Getenv("SETTLELINE_LOG_LEVEL"))

	app := &cli.App{
		Name:    "settleline",
		Usage:   "AI-assisted two-party dispute mediation service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.WorkerCommand(),
			cmd.ConfigCommand(),
			cmd.TokenCommand(),
			cmd.KnowledgeCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
