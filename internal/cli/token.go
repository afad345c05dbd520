package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/server/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		user, org, secret string
		ttl               time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token for the management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			if secret == "" {
				return errors.New("--secret is required")
			}
			tok, err := auth.GenerateToken(auth.Identity{UserID: user, Organisation: org}, []byte(secret), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id placed in the token")
	cmd.Flags().StringVarP(&org, "org", "o", "", "organisation placed in the token")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "HMAC secret shared with the server")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token validity")
	return cmd
}
