package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/netx"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var file, target string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "PUT a template image to a presigned upload URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(file)))

			client := &http.Client{Timeout: defaultHTTPTimeout}
			if err := netx.UploadToPresignedURL(cmd.Context(), client, target, ct, data); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", filepath.Base(file), len(data))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "template image")
	cmd.Flags().StringVar(&target, "url", "", "presigned URL returned by /api/templates/upload-url")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "verify <uuid>",
		Short: "Check a certificate verification id against the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := strings.TrimRight(server, "/") + "/api/verify/" + url.PathEscape(args[0])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: defaultHTTPTimeout}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var res services.VerificationResult
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(body, &res); err != nil || res.Step == "" {
				return fmt.Errorf("unexpected response: %s", resp.Status)
			}

			w := cmd.OutOrStdout()
			if !res.Success {
				fmt.Fprintf(w, "INVALID at %s: %s\n", res.Step, res.Message)
				return fmt.Errorf("certificate %s is not valid", args[0])
			}
			d := res.Data
			fmt.Fprintf(w, "VALID\n  event:        %s (%s)\n  organisation: %s\n  issuer:       %s\n  generated:    %s\n",
				d.EventName, d.EventDate.Format(time.DateOnly), d.Organisation, d.IssuerName,
				d.CertificateGeneratedDate.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "certkeeper server base URL")
	return cmd
}
