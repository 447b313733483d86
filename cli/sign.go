package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/georgepadayatti/pdfsign/sign/signers"
	"github.com/georgepadayatti/pdfsign/signing"
	"github.com/georgepadayatti/pdfsign/stamp"
)

// signFlags are the sign command's flags beyond the request parameters.
type signFlags struct {
	root string
}

// signCommand names its flags after the request parameters, so the changed
// flags map directly onto signing.ParseRequest.
func (a *app) signCommand() *cobra.Command {
	var opts signFlags

	cmd := &cobra.Command{
		Use:   "sign --source FILE --private-key KEYSTORE [options]",
		Short: "Sign a PDF document held in the configured store",
		Long: `Sign a PDF document with a detached signature.

Handles are paths relative to the storage root (fs backend) or object keys
(s3 backend). The store password is prompted for when not given; the key
password defaults to the store password.`,
		Example: `  pdfsign sign --source docs/contract.pdf --private-key keys/signer.p12
  pdfsign sign --source in.pdf --private-key key.pem --visibility visible --position topright --page -1
  pdfsign sign --source in.pdf --private-key key.p12 --create-new --destination-folder signed --destination-name contract`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSign(cmd, &opts)
		},
	}

	reg := signing.Registry()
	f := cmd.Flags()
	f.StringVar(&opts.root, "root", "", "Storage root for the fs backend (overrides the configuration)")

	f.String(signing.ParamSource, "", "Handle of the document to sign")
	f.String(signing.ParamPrivateKey, "", "Handle of the key store")
	f.String(signing.ParamStorePassword, "", "Key store password")
	f.String(signing.ParamKeyPassword, "", "Private key password (defaults to the store password)")
	f.String(signing.ParamKeyType, "default", "Key store type: "+choices(reg.KeyTypes()))
	f.String(signing.ParamAlias, "", "Key alias (defaults to the first key)")
	f.String(signing.ParamVisibility, "hidden", "Signature visibility: "+choices(reg.Visibilities()))
	f.String(signing.ParamPosition, "", "Widget position: "+choices(reg.Positions()))
	f.Float64(signing.ParamLocationX, 0, "Widget x coordinate for the manual position")
	f.Float64(signing.ParamLocationY, 0, "Widget y coordinate for the manual position")
	f.Float64(signing.ParamWidth, signing.DefaultWidth, "Widget width in points")
	f.Float64(signing.ParamHeight, signing.DefaultHeight, "Widget height in points")
	f.Int(signing.ParamPage, 0, "Page of the widget, 1-based; negative counts from the last page")
	f.String(signing.ParamReason, "", "Reason for signing")
	f.String(signing.ParamLocation, "", "Location of signing")
	f.Bool(signing.ParamNewRevision, true, "Append an incremental update instead of rewriting the file")
	f.Bool(signing.ParamInPlace, false, "Overwrite the source document")
	f.Bool(signing.ParamCreateNew, false, "Create a new document instead of copying the source")
	f.String(signing.ParamDestinationFolder, "", "Destination folder (defaults to the source's folder)")
	f.String(signing.ParamDestinationName, "", "Destination name (defaults to the source's name)")
	f.String(signing.ParamSignedBy, "", "Signer name recorded in metadata (defaults to the certificate name)")

	_ = cmd.MarkFlagRequired(signing.ParamSource)
	_ = cmd.MarkFlagRequired(signing.ParamPrivateKey)
	return cmd
}

// signParams collects the changed flags and fills configured defaults.
func (a *app) signParams(cmd *cobra.Command) (map[string]string, error) {
	f := cmd.Flags()
	params := map[string]string{}
	for _, name := range []string{
		signing.ParamSource, signing.ParamPrivateKey, signing.ParamStorePassword, signing.ParamKeyPassword,
		signing.ParamKeyType, signing.ParamAlias, signing.ParamVisibility, signing.ParamPosition,
		signing.ParamLocationX, signing.ParamLocationY, signing.ParamWidth, signing.ParamHeight,
		signing.ParamPage, signing.ParamReason, signing.ParamLocation, signing.ParamNewRevision,
		signing.ParamInPlace, signing.ParamCreateNew, signing.ParamDestinationFolder,
		signing.ParamDestinationName, signing.ParamSignedBy,
	} {
		if f.Changed(name) {
			params[name] = f.Lookup(name).Value.String()
		}
	}

	defaults := a.cfg.Signing
	if _, ok := params[signing.ParamWidth]; !ok {
		params[signing.ParamWidth] = strconv.FormatFloat(defaults.Width, 'f', -1, 64)
	}
	if _, ok := params[signing.ParamHeight]; !ok {
		params[signing.ParamHeight] = strconv.FormatFloat(defaults.Height, 'f', -1, 64)
	}
	if _, ok := params[signing.ParamPosition]; !ok {
		params[signing.ParamPosition] = defaults.Position
	}

	if _, ok := params[signing.ParamStorePassword]; !ok {
		pw, err := readPassword("Key store password: ")
		if err != nil {
			return nil, err
		}
		params[signing.ParamStorePassword] = pw
	}
	if _, ok := params[signing.ParamKeyPassword]; !ok {
		params[signing.ParamKeyPassword] = params[signing.ParamStorePassword]
	}
	return params, nil
}

func (a *app) runSign(cmd *cobra.Command, opts *signFlags) error {
	ctx := cmd.Context()

	params, err := a.signParams(cmd)
	if err != nil {
		return err
	}
	req, err := signing.ParseRequest(params)
	if err != nil {
		return err
	}

	hash, err := signers.ParseDigestAlgorithm(a.cfg.Signing.DigestAlgorithm)
	if err != nil {
		return err
	}
	backend, err := a.backend(ctx, opts.root)
	if err != nil {
		return err
	}
	sink, err := a.metadataSink()
	if err != nil {
		return err
	}

	style := stamp.DefaultStampStyle()
	style.FontSize = a.cfg.Signing.FontSize

	svc := signing.NewService(backend, signing.Options{
		SignatureSize: a.cfg.Signing.SignatureSize,
		Hash:          hash,
		WorkDir:       a.cfg.Signing.WorkDir,
		Style:         style,
		Application:   a.cfg.Signing.Application,
		Version:       Version,
	})
	svc.Metadata = sink
	svc.Metrics = a.metrics

	result, err := svc.Sign(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	colorSuccess.Fprintf(out, "Signed %s\n", req.Source)
	fmt.Fprintf(out, "  Destination: %s (%s)\n", result.Handle, result.Destination)
	fmt.Fprintf(out, "  Field: %s\n", result.FieldName)
	fmt.Fprintf(out, "  Signed by: %s\n", result.SignedBy)
	if result.Visible {
		r := result.Rect.Normalize()
		fmt.Fprintf(out, "  Widget: page %d at [%g %g %g %g]\n", result.Page, r.LLX, r.LLY, r.URX, r.URY)
	}
	fmt.Fprintf(out, "  Size: %d bytes\n", result.Size)
	return nil
}

// choices lists enum values for flag help.
func choices[T ~string](values []T) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
