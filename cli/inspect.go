package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
	"github.com/georgepadayatti/pdfsign/signing"
)

func (a *app) pagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pages FILE",
		Short: "Show the page count, page sizes and version of a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := openPDF(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s", doc.Version)
			if eff := doc.EffectiveVersion(); eff != doc.Version {
				fmt.Fprintf(out, " (catalog %s)", eff)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Pages: %d\n", doc.PageCount())
			fmt.Fprintf(out, "Signed: %t\n", doc.IsSigned())
			for i, page := range doc.Pages {
				size := page.Size()
				fmt.Fprintf(out, "  %d: %g x %g", i+1, size.Width(), size.Height())
				if page.Rotate != 0 {
					fmt.Fprintf(out, " (rotated %d)", page.Rotate)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (a *app) keystoreCommand() *cobra.Command {
	var (
		keyType  string
		password string
	)

	cmd := &cobra.Command{
		Use:   "keystore FILE",
		Short: "List the aliases of a key store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kt, err := keys.ParseKeyType(keyType)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("store-password") {
				if password, err = readPassword("Key store password: "); err != nil {
					return err
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read key store: %w", err)
			}
			defer clear(data)

			ks, err := keys.Load(data, kt, password)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Type: %s\n", ks.Type)
			if cn, ok := ks.CommonName(); ok {
				fmt.Fprintf(out, "Common name: %s\n", cn)
			}
			aliases := ks.Aliases()
			fmt.Fprintf(out, "Aliases: %d\n", len(aliases))
			for _, alias := range aliases {
				kind := "certificate"
				if ks.IsKeyEntry(alias) {
					kind = "key"
				}
				fmt.Fprintf(out, "  %s (%s)\n", alias, kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyType, "key-type", string(keys.KeyTypeDefault), "Key store type: "+choices(signing.Registry().KeyTypes()))
	cmd.Flags().StringVar(&password, "store-password", "", "Key store password")
	return cmd
}

// openPDF parses the PDF file at path.
func openPDF(path string) (*reader.PdfFileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	defer f.Close()

	doc, err := reader.OpenReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return doc, nil
}
