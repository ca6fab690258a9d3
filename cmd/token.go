package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/settleline/internal/api/auth"
	"github.com/settleline/internal/config"
)

// TokenCommand mints an access token for a party or admin. Intended for
// operators and local testing; production deployments issue tokens from
// their own identity provider sharing the same signing secret.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "Email the token identifies",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "admin",
				Usage: "Grant admin privileges",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server jwt_secret is not configured")
			}

			token, err := auth.NewTokenService(cfg.Server.JWTSecret).IssueToken(c.String("email"), c.Bool("admin"))
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}
