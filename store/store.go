// Package store defines the collaborators the signing service reads from and
// writes to: content, credentials and destinations.
package store

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Common errors
var (
	ErrNotFound     = errors.New("node not found")
	ErrNotContent   = errors.New("node is not a content node")
	ErrFileNotFound = errors.New("destination folder not found")
	ErrInvalidName  = errors.New("invalid node name")
	ErrExists       = errors.New("node already exists")
)

// MimeTypePDF is the content type written for signed documents.
const MimeTypePDF = "application/pdf"

// ExtensionPDF is appended to destination names that lack it.
const ExtensionPDF = ".pdf"

// Handle identifies a node in a store. Its shape is store specific: a slash
// separated path for the filesystem store, an object key for S3.
type Handle string

// String returns the handle as a string.
func (h Handle) String() string {
	return string(h)
}

// Name returns the last element of the handle.
func (h Handle) Name() string {
	s := strings.TrimRight(string(h), "/")
	if s == "" {
		return ""
	}
	return path.Base(s)
}

// NodeType is the kind of a stored node.
type NodeType int

const (
	NodeUnknown NodeType = iota
	NodeContent
	NodeFolder
)

// String returns the string representation of the node type.
func (t NodeType) String() string {
	switch t {
	case NodeContent:
		return "content"
	case NodeFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// ContentStore reads and writes document bytes.
type ContentStore interface {
	Read(ctx context.Context, h Handle) (io.ReadCloser, error)
	Write(ctx context.Context, h Handle, data []byte, mimeType string) error
	Exists(ctx context.Context, h Handle) (bool, error)
	TypeOf(ctx context.Context, h Handle) (NodeType, error)
}

// CredentialSource reads key store bytes.
type CredentialSource interface {
	ReadCredential(ctx context.Context, h Handle) ([]byte, error)
}

// DestinationResolver creates the node a signed document is written to.
type DestinationResolver interface {
	// Copy duplicates src into folder under name.
	Copy(ctx context.Context, src, folder Handle, name string) (Handle, error)
	// Create makes an empty content node in folder.
	Create(ctx context.Context, folder Handle, name string) (Handle, error)
	// Remove deletes a node created by Copy or Create.
	Remove(ctx context.Context, h Handle) error
}

// Backend is a store implementing every collaborator.
type Backend interface {
	ContentStore
	CredentialSource
	DestinationResolver
}

// ReadAll reads the whole content of h.
func ReadAll(ctx context.Context, s ContentStore, h Handle) ([]byte, error) {
	rc, err := s.Read(ctx, h)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ValidateName rejects names that would escape their folder.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	return nil
}

// WithPDFExtension appends .pdf unless name already ends with it.
func WithPDFExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ExtensionPDF) {
		return name
	}
	return name + ExtensionPDF
}
