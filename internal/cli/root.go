// Package cli implements certkeeper-cli, an operator tool for minting API
// tokens, previewing templates locally, sealing recipient lists, uploading
// template images and checking certificates.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultHTTPTimeout = 30 * time.Second

// NewRootCmd assembles the command tree. out receives command output.
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "certkeeper-cli",
		Short:         "Operator tools for the certkeeper certificate service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(newTokenCmd())
	root.AddCommand(newSampleCmd())
	root.AddCommand(newSealCmd())
	root.AddCommand(newOpenCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

// Execute runs the CLI against os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
