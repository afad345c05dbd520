package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/spf13/cobra"
)

type sampleOptions struct {
	template, fieldsPath, out, fontsDir string
	name, org, rank, baseURL            string
}

func newSampleCmd() *cobra.Command {
	var o sampleOptions

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Render one certificate locally from a template image and a field layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.template == "" || o.fieldsPath == "" {
				return errors.New("--template and --fields are required")
			}
			n, err := renderSample(o)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", o.out, n)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.template, "template", "t", "", "template image (PNG or JPEG)")
	f.StringVarP(&o.fieldsPath, "fields", "f", "", "JSON file with the field layout")
	f.StringVarP(&o.out, "out", "O", "sample.png", "output PNG")
	f.StringVar(&o.fontsDir, "fonts", "", "directory of additional font files")
	f.StringVar(&o.name, "name", "Jane Doe", "recipient name")
	f.StringVar(&o.org, "org", "Sample Organisation", "organisation name")
	f.StringVar(&o.rank, "rank", "", "recipient rank")
	f.StringVar(&o.baseURL, "base-url", "http://localhost:3000", "base of the certificate link")
	return cmd
}

func renderSample(o sampleOptions) (int, error) {
	raw, err := os.ReadFile(o.fieldsPath)
	if err != nil {
		return 0, err
	}
	set, res := fields.Parse(raw)
	if !res.IsValid {
		return 0, fmt.Errorf("invalid fields: %s", strings.Join(res.Errors, "; "))
	}

	img, err := os.ReadFile(o.template)
	if err != nil {
		return 0, err
	}
	tpl, err := compositor.Load(img)
	if err != nil {
		return 0, err
	}

	fonts, err := compositor.NewFontBook()
	if err != nil {
		return 0, err
	}
	if o.fontsDir != "" {
		if _, err := fonts.LoadDir(o.fontsDir); err != nil {
			return 0, err
		}
	}

	texts := map[fields.Name]string{
		fields.RecipientName:    o.name,
		fields.OrganisationName: o.org,
		fields.CertificateLink:  services.CertificateLink(o.baseURL, o.name),
	}
	if o.rank != "" {
		texts[fields.Rank] = o.rank
	}

	png, err := compositor.New(fonts).RenderFields(tpl, set, texts)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(o.out, png, 0o644); err != nil {
		return 0, err
	}
	return len(png), nil
}
