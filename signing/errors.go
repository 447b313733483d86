package signing

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
	"github.com/georgepadayatti/pdfsign/sign/signers"
	"github.com/georgepadayatti/pdfsign/store"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid signing request")
	ErrPanic          = errors.New("unexpected failure")

	errTransition = errors.New("no transition out of a terminal state")
)

// ErrorKind tags a failed operation for callers.
type ErrorKind string

const (
	KindKeyStore                ErrorKind = "KeyStoreError"
	KindAliasNotFound           ErrorKind = "AliasNotFoundError"
	KindNotAPrivateKey          ErrorKind = "NotAPrivateKeyError"
	KindKeyAccess               ErrorKind = "KeyAccessError"
	KindMissingCertificateChain ErrorKind = "MissingCertificateChainError"
	KindPdfParse                ErrorKind = "PdfParseError"
	KindSignatureTooLarge       ErrorKind = "SignatureTooLargeError"
	KindSigning                 ErrorKind = "SigningError"
	KindNotFound                ErrorKind = "NotFoundError"
	KindNotContent              ErrorKind = "NotContentError"
	KindFileNotFound            ErrorKind = "FileNotFoundError"
	KindInvalidRequest          ErrorKind = "InvalidRequestError"
	KindCanceled                ErrorKind = "CanceledError"
	KindInternal                ErrorKind = "InternalError"
)

// kindTable is checked in order; more specific sentinels come first.
var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidRequest, KindInvalidRequest},
	{keys.ErrAliasNotFound, KindAliasNotFound},
	{keys.ErrNotAPrivateKey, KindNotAPrivateKey},
	{keys.ErrKeyAccess, KindKeyAccess},
	{keys.ErrMissingCertificateChain, KindMissingCertificateChain},
	{keys.ErrKeyStore, KindKeyStore},
	{reader.ErrEncrypted, KindPdfParse},
	{reader.ErrPdfParse, KindPdfParse},
	{reader.ErrInvalidPDF, KindPdfParse},
	{signers.ErrSignatureTooLarge, KindSignatureTooLarge},
	{signers.ErrSigning, KindSigning},
	{store.ErrNotContent, KindNotContent},
	{store.ErrNotFound, KindNotFound},
	{store.ErrFileNotFound, KindFileNotFound},
	{store.ErrExists, KindFileNotFound},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// Kind classifies err. Errors outside the taxonomy are KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) && serr.Kind != "" {
		return serr.Kind
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Error is the single failure a signing operation reports.
type Error struct {
	// State is the state the operation was moving to when it failed.
	State State
	Kind  ErrorKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s while entering %s: %v", e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(state State, err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return &Error{State: state, Kind: Kind(err), Err: err}
}
