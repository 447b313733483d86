// Package validation checks the signatures embedded in a PDF document.
package validation

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/pdfsign/pdf/reader"
	"github.com/georgepadayatti/pdfsign/sign/cms"
)

// Common validation errors
var (
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrExpiredCertificate   = errors.New("certificate expired")
	ErrUntrustedCertificate = errors.New("untrusted certificate")
	ErrNoSignatures         = errors.New("no signatures found")
)

// ValidationStatus represents the signature validation result.
type ValidationStatus int

const (
	StatusUnknown ValidationStatus = iota
	StatusValid
	StatusInvalid
	StatusWarning
)

// String returns the string representation of the status.
func (s ValidationStatus) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	case StatusWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// CoverageStatus indicates what the signature covers.
type CoverageStatus int

const (
	CoverageUnknown    CoverageStatus = iota
	CoverageContiguous                // Signature covers everything up to a later revision
	CoverageEntireFile                // Signature covers the entire file
	CoveragePartial                   // Signature covers only part of the file
)

// String returns the string representation of the coverage.
func (c CoverageStatus) String() string {
	switch c {
	case CoverageContiguous:
		return "REVISION"
	case CoverageEntireFile:
		return "ENTIRE_FILE"
	case CoveragePartial:
		return "PARTIAL"
	default:
		return "UNKNOWN"
	}
}

// SignatureValidationResult contains the result of signature validation.
type SignatureValidationResult struct {
	FieldName string

	Status          ValidationStatus
	IntegrityStatus ValidationStatus
	TrustStatus     ValidationStatus
	CoverageStatus  CoverageStatus

	SignerCertificate *x509.Certificate
	CertificateChain  []*x509.Certificate

	// SigningTime comes from the CMS signingTime attribute, falling back to /M.
	SigningTime time.Time

	// RevisionEnd is the document length the signature was made over.
	RevisionEnd int64

	Errors   []error
	Warnings []string

	SubFilter string
	Reason    string
	Location  string
	Name      string
}

// ValidatorSettings contains settings for signature validation.
type ValidatorSettings struct {
	// TrustRoots are the trusted root certificates. When nil the chain is not
	// checked and trust stays at WARNING.
	TrustRoots *x509.CertPool

	// ValidationTime is the time certificates are checked at. Zero means now.
	ValidationTime time.Time

	// AllowExpiredCerts accepts certificates outside their validity period.
	AllowExpiredCerts bool
}

// DefaultValidatorSettings returns settings without trust roots.
func DefaultValidatorSettings() *ValidatorSettings {
	return &ValidatorSettings{}
}

// SignatureValidator validates PDF signatures.
type SignatureValidator struct {
	Settings *ValidatorSettings
}

// NewSignatureValidator creates a new signature validator.
func NewSignatureValidator(settings *ValidatorSettings) *SignatureValidator {
	if settings == nil {
		settings = DefaultValidatorSettings()
	}
	return &SignatureValidator{Settings: settings}
}

// ValidateSignatures validates all signatures in a PDF.
func (v *SignatureValidator) ValidateSignatures(pdfReader *reader.PdfFileReader) ([]*SignatureValidationResult, error) {
	signatures, err := pdfReader.EmbeddedSignatures()
	if err != nil {
		return nil, err
	}

	if len(signatures) == 0 {
		return nil, ErrNoSignatures
	}

	results := make([]*SignatureValidationResult, 0, len(signatures))
	for _, sig := range signatures {
		results = append(results, v.ValidateSignature(sig))
	}

	return results, nil
}

// ValidateSignature validates a single signature.
func (v *SignatureValidator) ValidateSignature(sig *reader.EmbeddedSignature) *SignatureValidationResult {
	result := &SignatureValidationResult{
		FieldName:       sig.FieldName,
		Status:          StatusUnknown,
		IntegrityStatus: StatusUnknown,
		TrustStatus:     StatusUnknown,
		SubFilter:       sig.SubFilter(),
		Reason:          sig.Reason(),
		Location:        sig.Location(),
		Name:            sig.SignerName(),
		RevisionEnd:     sig.CoveredRevisionEnd(),
	}

	signedData, err := sig.SignedData()
	if err != nil {
		result.Status = StatusInvalid
		result.IntegrityStatus = StatusInvalid
		result.Errors = append(result.Errors, err)
		return result
	}
	cmsData := sig.Contents

	if err := cms.VerifyCMSSignature(cmsData, signedData); err != nil {
		result.Status = StatusInvalid
		result.IntegrityStatus = StatusInvalid
		result.Errors = append(result.Errors, fmt.Errorf("%w: %w", ErrInvalidSignature, err))
		return result
	}
	result.IntegrityStatus = StatusValid

	if signer, err := cms.GetSignerCertificate(cmsData); err == nil {
		result.SignerCertificate = signer
		if result.Name == "" {
			result.Name = signer.Subject.CommonName
		}
	} else {
		result.Errors = append(result.Errors, fmt.Errorf("failed to get signer certificate: %w", err))
	}
	if certs, err := cms.GetSignerCertificates(cmsData); err == nil {
		for _, c := range certs {
			if result.SignerCertificate == nil || !c.Equal(result.SignerCertificate) {
				result.CertificateChain = append(result.CertificateChain, c)
			}
		}
	}

	if t, err := cms.GetSigningTime(cmsData); err == nil {
		result.SigningTime = t
	} else if t, ok := sig.SigningTime(); ok {
		result.SigningTime = t
	}

	result.TrustStatus = v.verifyCertificateTrust(result)
	result.CoverageStatus = checkCoverage(sig)
	if result.CoverageStatus != CoverageEntireFile {
		result.Warnings = append(result.Warnings, "document was updated after this signature")
	}

	switch {
	case result.TrustStatus == StatusValid:
		result.Status = StatusValid
	case result.TrustStatus == StatusInvalid:
		result.Status = StatusInvalid
	default:
		result.Status = StatusWarning
	}

	return result
}

func (v *SignatureValidator) verifyCertificateTrust(result *SignatureValidationResult) ValidationStatus {
	cert := result.SignerCertificate
	if cert == nil {
		return StatusUnknown
	}

	at := v.Settings.ValidationTime
	if at.IsZero() {
		at = time.Now()
	}

	if at.After(cert.NotAfter) || at.Before(cert.NotBefore) {
		if !v.Settings.AllowExpiredCerts {
			result.Errors = append(result.Errors, fmt.Errorf("%w: valid %s to %s",
				ErrExpiredCertificate, cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339)))
			return StatusInvalid
		}
		result.Warnings = append(result.Warnings, "signer certificate is outside its validity period")
	}

	if v.Settings.TrustRoots == nil {
		result.Warnings = append(result.Warnings, "no trust roots configured")
		return StatusWarning
	}

	intermediates := x509.NewCertPool()
	for _, c := range result.CertificateChain {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         v.Settings.TrustRoots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if v.Settings.AllowExpiredCerts {
		opts.CurrentTime = cert.NotBefore.Add(time.Second)
	}
	if _, err := cert.Verify(opts); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%v: %v", ErrUntrustedCertificate, err))
		return StatusWarning
	}
	return StatusValid
}

func checkCoverage(sig *reader.EmbeddedSignature) CoverageStatus {
	if sig.CoversWholeFile() {
		return CoverageEntireFile
	}
	if sig.ByteRange[0] == 0 {
		return CoverageContiguous
	}
	return CoveragePartial
}
