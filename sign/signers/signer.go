// Package signers reserves signature space in a new PDF revision, computes
// the digest over the signed byte ranges and produces the detached CMS value
// that fills the reservation.
package signers

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/pdfsign/sign/cms"
)

// Common errors
var (
	ErrSigning            = errors.New("signing failed")
	ErrSignatureTooLarge  = errors.New("signature does not fit the reserved space")
	ErrInvalidByteRange   = errors.New("invalid byte range")
	ErrUnsupportedDigest  = errors.New("unsupported digest algorithm")
	ErrSessionState       = errors.New("signature session is in the wrong state")
	ErrPageOutOfRange     = errors.New("signature page out of range")
	ErrMissingCertificate = errors.New("certificate chain is empty")
)

// SimpleSigner produces detached CMS signatures with a local key.
type SimpleSigner struct {
	PrivateKey crypto.Signer
	// CertChain is ordered leaf first.
	CertChain   []*x509.Certificate
	Hash        crypto.Hash
	SigningTime time.Time
}

// NewSimpleSigner creates a signer using SHA-256 and the current time.
func NewSimpleSigner(key crypto.Signer, chain []*x509.Certificate) *SimpleSigner {
	return &SimpleSigner{
		PrivateKey:  key,
		CertChain:   chain,
		Hash:        crypto.SHA256,
		SigningTime: time.Now(),
	}
}

// SignDigest wraps a document digest in a detached CMS SignedData.
func (s *SimpleSigner) SignDigest(digest []byte) ([]byte, error) {
	if len(s.CertChain) == 0 || s.CertChain[0] == nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, ErrMissingCertificate)
	}
	if s.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no private key", ErrSigning)
	}
	leaf := s.CertChain[0]

	alg, err := cms.AlgorithmForKey(leaf.PublicKey, s.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	builder := cms.NewCMSBuilder(leaf, s.PrivateKey, alg)
	builder.SetCertificateChain(s.CertChain[1:])
	if !s.SigningTime.IsZero() {
		builder.SetSigningTime(s.SigningTime)
	}

	sig, err := builder.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return sig, nil
}

// EstimatedSize returns a rough upper bound for the CMS object size.
func (s *SimpleSigner) EstimatedSize() int {
	size := 2048
	for _, cert := range s.CertChain {
		if cert != nil {
			size += len(cert.Raw)
		}
	}
	return size
}

// Sign produces a detached CMS signature over a precomputed digest using the
// current time as signing time.
func Sign(digest []byte, key crypto.Signer, chain []*x509.Certificate, alg crypto.Hash) ([]byte, error) {
	s := NewSimpleSigner(key, chain)
	s.Hash = alg
	return s.SignDigest(digest)
}
