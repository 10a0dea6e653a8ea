package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	transport "live-quiz-service/internal/transport/http"
)

// NewTokenCmd issues a signed identity token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		id  domain.Identity
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwtSecret (or JWT_SECRET) is required")
			}
			if id.UserID == "" {
				return errors.New("--user is required")
			}
			token, err := transport.NewIdentityProvider(cfg.Auth.JWTSecret).IssueToken(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&id.Name, "name", "", "display name")
	cmd.Flags().StringVar(&id.Image, "image", "", "avatar URL")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
