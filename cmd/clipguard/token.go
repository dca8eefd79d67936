package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		name    string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for an actor or approver",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET must be set")
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			for _, r := range roles {
				if r != auth.RoleActor && r != auth.RoleApprover {
					return fmt.Errorf("unknown role %q (want %s or %s)", r, auth.RoleActor, auth.RoleApprover)
				}
			}

			manager := auth.NewManager(auth.Config{JWTSecret: secret, TokenExpiration: ttl})
			token, err := manager.GenerateToken(auth.Principal{Subject: subject, Name: name, Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Actor id or approver name")
	cmd.Flags().StringVar(&name, "name", "", "Display label")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleActor}, "Role(s): actor, approver")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
