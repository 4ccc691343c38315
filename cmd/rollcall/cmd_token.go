package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Sign an API access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleAdmin, auth.RoleTeacher, auth.RoleStudent, auth.RoleService:
			default:
				return fmt.Errorf("token: unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.AccessTTL
			}
			tok, err := auth.Issue(args[0], role, cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", auth.RoleTeacher, "admin, teacher, student or service")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default ACCESS_TTL)")
	return cmd
}
