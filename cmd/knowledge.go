package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/settleline/internal/config"
	"github.com/settleline/internal/database"
	"github.com/settleline/internal/knowledge"
)

// KnowledgeCommand manages the precedent/knowledge base consumed by analysis.
func KnowledgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "knowledge",
		Usage: "Manage the knowledge base",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a knowledge snippet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "content",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "tags",
						Usage: "Comma-separated tags",
					},
				},
				Action: runKnowledgeAdd,
			},
		},
	}
}

func runKnowledgeAdd(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	var tags []string
	for _, t := range strings.Split(c.String("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, strings.ToLower(t))
		}
	}

	store := knowledge.NewPostgresStore(db)
	if err := store.Add(context.Background(), c.String("title"), c.String("content"), tags); err != nil {
		return err
	}
	fmt.Println("Snippet added")
	return nil
}
