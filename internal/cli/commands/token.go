package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/windmill-io/windmill/internal/web/auth"
)

func newTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with server.auth.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.close()

			secret := a.cfg.Server.Auth.Secret
			if secret == "" {
				return fmt.Errorf("server.auth.secret is not set")
			}
			if ttl == 0 {
				ttl = a.cfg.Server.Auth.TTL
			}
			for _, s := range scopes {
				if s != auth.ScopeRead && s != auth.ScopeValidate {
					return fmt.Errorf("unknown scope %q (want %s or %s)", s, auth.ScopeRead, auth.ScopeValidate)
				}
			}

			tokens, err := auth.NewTokenService(secret, ttl)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateToken(subject, scopes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "windmill-cli", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.auth.ttl)")
	return cmd
}
