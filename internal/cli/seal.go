package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/certkeeper/internal/cryptox"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/spf13/cobra"
)

// newSealCmd encrypts a recipient list the same way the server stores it, so
// exported lists can be shared without exposing personal data.
func newSealCmd() *cobra.Command {
	var in, out, password string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a JSON recipient list with a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var rs []models.Recipient
			if err := json.Unmarshal(raw, &rs); err != nil {
				return fmt.Errorf("recipients: %w", err)
			}
			if rs, err = models.NormalizeRecipients(rs, true); err != nil {
				return err
			}

			pw, err := getPassword(cmd.ErrOrStderr(), password)
			if err != nil {
				return err
			}
			if len(pw) < services.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", services.MinPasswordLength)
			}

			p, err := cryptox.Encrypt(rs, pw)
			if err != nil {
				return err
			}
			return writeJSON(cmd, out, p)
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "JSON array of recipients")
	cmd.Flags().StringVarP(&out, "out", "O", "", "output file (stdout when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newOpenCmd() *cobra.Command {
	var in, out, password string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Decrypt a payload produced by seal",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var p cryptox.EncryptedPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("payload: %w", err)
			}

			pw, err := getPassword(cmd.ErrOrStderr(), password)
			if err != nil {
				return err
			}

			var rs []models.Recipient
			if err := cryptox.Decrypt(&p, pw, &rs); err != nil {
				return err
			}
			return writeJSON(cmd, out, rs)
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "encrypted payload")
	cmd.Flags().StringVarP(&out, "out", "O", "", "output file (stdout when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
