package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lynx-chain/compwatch/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the watch API",
		Long: `Signs a bearer token with the configured api.jwt_secret. The token
authorizes the mutating watch API endpoints (create and delete).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			token, err := service.IssueToken(cfg.API.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
