package cli

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/sign/validation"
)

// VerifyOptions contains options for the verify command.
type VerifyOptions struct {
	TrustRootsFiles []string
	AllowExpired    bool
	JSON            bool
	Verbose         bool
}

func (a *app) verifyCommand() *cobra.Command {
	var opts VerifyOptions

	cmd := &cobra.Command{
		Use:   "verify [options] FILE",
		Short: "Verify the digital signature(s) of a PDF file",
		Example: `  pdfsign verify document.pdf
  pdfsign verify --json document.pdf
  pdfsign verify --trust-roots trusted-cas.pem document.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd, args[0], &opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.TrustRootsFiles, "trust-roots", nil, "File containing trusted root certificates (PEM or DER); repeatable")
	f.BoolVar(&opts.AllowExpired, "allow-expired", false, "Accept signer certificates outside their validity period")
	f.BoolVar(&opts.JSON, "json", false, "Output results in JSON format")
	f.BoolVar(&opts.Verbose, "verbose", false, "Show certificate details")
	return cmd
}

// VerifyOutput is the complete verification output including document info and signatures.
type VerifyOutput struct {
	Document   *DocumentInfo   `json:"document"`
	Signatures []*VerifyResult `json:"signatures"`
}

// DocumentInfo describes the verified file.
type DocumentInfo struct {
	Version string `json:"version"`
	Pages   int    `json:"pages"`
	Size    int64  `json:"size"`
}

// VerifyResult is a JSON-serializable verification result for a single signature.
type VerifyResult struct {
	SignatureIndex int              `json:"signature_index"`
	FieldName      string           `json:"field_name,omitempty"`
	Status         string           `json:"status"`
	IntegrityValid bool             `json:"integrity_valid"`
	TrustValid     bool             `json:"trust_valid"`
	Coverage       string           `json:"coverage"`
	RevisionEnd    int64            `json:"revision_end"`
	SignerName     string           `json:"signer_name,omitempty"`
	SigningTime    string           `json:"signing_time,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Location       string           `json:"location,omitempty"`
	SubFilter      string           `json:"sub_filter,omitempty"`
	Errors         []string         `json:"errors,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Certificate    *CertificateInfo `json:"certificate,omitempty"`
}

// CertificateInfo contains certificate information for JSON output.
type CertificateInfo struct {
	Subject   string `json:"subject"`
	Issuer    string `json:"issuer"`
	Serial    string `json:"serial"`
	NotBefore string `json:"not_before"`
	NotAfter  string `json:"not_after"`
	IsExpired bool   `json:"is_expired"`
}

func (a *app) runVerify(cmd *cobra.Command, path string, opts *VerifyOptions) error {
	output, err := a.verifyPDF(path, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		outputText(out, output, opts.Verbose)
	}

	for _, result := range output.Signatures {
		if result.Status == validation.StatusInvalid.String() {
			return errReported
		}
	}
	return nil
}

// verifyPDF performs the actual PDF verification.
func (a *app) verifyPDF(path string, opts *VerifyOptions) (*VerifyOutput, error) {
	pdfReader, err := openPDF(path)
	if err != nil {
		return nil, err
	}

	settings := validation.DefaultValidatorSettings()
	settings.AllowExpiredCerts = opts.AllowExpired || a.cfg.Validation.AllowExpired

	rootFiles := append(append([]string(nil), a.cfg.Validation.TrustAnchors...), opts.TrustRootsFiles...)
	if len(rootFiles) > 0 {
		pool := x509.NewCertPool()
		for _, file := range rootFiles {
			raw, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("failed to load trusted roots: %w", err)
			}
			certs, err := keys.LoadCertsFromPemDerData(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to load trusted roots from %s: %w", file, err)
			}
			for _, c := range certs {
				pool.AddCert(c)
			}
		}
		settings.TrustRoots = pool
	}

	validationResults, err := validation.NewSignatureValidator(settings).ValidateSignatures(pdfReader)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	output := &VerifyOutput{
		Document: &DocumentInfo{
			Version: pdfReader.EffectiveVersion(),
			Pages:   pdfReader.PageCount(),
			Size:    pdfReader.Len(),
		},
	}
	for i, vr := range validationResults {
		result := &VerifyResult{
			SignatureIndex: i + 1,
			FieldName:      vr.FieldName,
			Status:         vr.Status.String(),
			IntegrityValid: vr.IntegrityStatus == validation.StatusValid,
			TrustValid:     vr.TrustStatus == validation.StatusValid,
			Coverage:       vr.CoverageStatus.String(),
			RevisionEnd:    vr.RevisionEnd,
			SignerName:     vr.Name,
			SubFilter:      vr.SubFilter,
			Reason:         vr.Reason,
			Location:       vr.Location,
			Warnings:       vr.Warnings,
		}
		if !vr.SigningTime.IsZero() {
			result.SigningTime = vr.SigningTime.Format(time.RFC3339)
		}
		if c := vr.SignerCertificate; c != nil {
			result.Certificate = &CertificateInfo{
				Subject:   c.Subject.String(),
				Issuer:    c.Issuer.String(),
				Serial:    c.SerialNumber.String(),
				NotBefore: c.NotBefore.Format(time.RFC3339),
				NotAfter:  c.NotAfter.Format(time.RFC3339),
				IsExpired: time.Now().After(c.NotAfter),
			}
		}
		for _, e := range vr.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
		output.Signatures = append(output.Signatures, result)
	}
	return output, nil
}

// outputText outputs the results in human-readable text format.
func outputText(w io.Writer, output *VerifyOutput, verbose bool) {
	colorHeader.Fprintf(w, "PDF Verification Results\n")
	fmt.Fprintf(w, "========================\n\n")

	if verbose {
		fmt.Fprintf(w, "Document: PDF %s, %d page(s), %d bytes\n\n",
			output.Document.Version, output.Document.Pages, output.Document.Size)
	}
	fmt.Fprintf(w, "Found %d signature(s)\n\n", len(output.Signatures))

	for _, result := range output.Signatures {
		fmt.Fprintf(w, "Signature #%d\n", result.SignatureIndex)
		fmt.Fprintf(w, "------------\n")

		statusColor(result.Status).Fprintf(w, "  Status: %s %s\n", getStatusIcon(result.Status), result.Status)
		if result.FieldName != "" {
			fmt.Fprintf(w, "  Field: %s\n", result.FieldName)
		}
		fmt.Fprintf(w, "  Integrity: %s\n", boolToStatus(result.IntegrityValid))
		fmt.Fprintf(w, "  Trust: %s\n", boolToStatus(result.TrustValid))
		fmt.Fprintf(w, "  Coverage: %s (%d bytes)\n", result.Coverage, result.RevisionEnd)
		if result.SignerName != "" {
			fmt.Fprintf(w, "  Signer: %s\n", result.SignerName)
		}
		if result.SigningTime != "" {
			fmt.Fprintf(w, "  Signing Time: %s\n", result.SigningTime)
		}
		if result.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", result.Reason)
		}
		if result.Location != "" {
			fmt.Fprintf(w, "  Location: %s\n", result.Location)
		}

		if verbose && result.Certificate != nil {
			fmt.Fprintf(w, "\n  Certificate Details:\n")
			fmt.Fprintf(w, "    Subject: %s\n", result.Certificate.Subject)
			fmt.Fprintf(w, "    Issuer: %s\n", result.Certificate.Issuer)
			fmt.Fprintf(w, "    Serial: %s\n", result.Certificate.Serial)
			fmt.Fprintf(w, "    Valid: %s to %s\n", result.Certificate.NotBefore, result.Certificate.NotAfter)
			if result.Certificate.IsExpired {
				colorWarning.Fprintf(w, "    WARNING: Certificate is expired!\n")
			}
		}

		if len(result.Errors) > 0 {
			fmt.Fprintf(w, "\n  Errors:\n")
			for _, e := range result.Errors {
				colorError.Fprintf(w, "    - %s\n", e)
			}
		}
		if len(result.Warnings) > 0 {
			fmt.Fprintf(w, "\n  Warnings:\n")
			for _, warning := range result.Warnings {
				colorWarning.Fprintf(w, "    - %s\n", warning)
			}
		}
		fmt.Fprintln(w)
	}
}
