package signing

import (
	"context"
	"fmt"
	"path"

	"github.com/georgepadayatti/pdfsign/internal/logger"
	"github.com/georgepadayatti/pdfsign/store"
)

// DestinationMode is how the signed document reaches the store.
type DestinationMode int

const (
	// DestinationInPlace overwrites the source.
	DestinationInPlace DestinationMode = iota
	// DestinationCreate creates a new node in the destination folder.
	DestinationCreate
	// DestinationCopy copies the source into the destination folder and
	// overwrites the copy.
	DestinationCopy
)

// String returns the mode name.
func (m DestinationMode) String() string {
	switch m {
	case DestinationInPlace:
		return "inplace"
	case DestinationCreate:
		return "create"
	default:
		return "copy"
	}
}

// Destination is the write target decided when an operation starts.
type Destination struct {
	Mode   DestinationMode
	Source store.Handle
	Folder store.Handle
	Name   string
}

// ResolveDestination applies the destination policy: in place wins over
// create-new, which wins over copy. Without a destination folder the source's
// folder is used.
func ResolveDestination(req Request) Destination {
	d := Destination{Source: req.Source}
	if req.InPlace {
		d.Mode = DestinationInPlace
		d.Folder = parentFolder(req.Source)
		d.Name = req.Source.Name()
		return d
	}

	if req.CreateNew {
		d.Mode = DestinationCreate
	} else {
		d.Mode = DestinationCopy
	}
	d.Folder = req.DestinationFolder
	if d.Folder == "" {
		d.Folder = parentFolder(req.Source)
	}
	d.Name = ResolveFilename(req)
	return d
}

// ResolveFilename is the destination name with the PDF extension ensured, or
// the source's name.
func ResolveFilename(req Request) string {
	if req.DestinationName != "" {
		return store.WithPDFExtension(req.DestinationName)
	}
	return req.Source.Name()
}

func parentFolder(h store.Handle) store.Handle {
	dir := path.Dir(string(h))
	if dir == "." || dir == "/" {
		return ""
	}
	return store.Handle(dir)
}

// check verifies the folder before any work is done.
func (d Destination) check(ctx context.Context, content store.ContentStore) error {
	if d.Mode == DestinationInPlace {
		return nil
	}
	t, err := content.TypeOf(ctx, d.Folder)
	if err != nil || t != store.NodeFolder {
		return fmt.Errorf("%w: %s", store.ErrFileNotFound, d.Folder)
	}
	return nil
}

// commit writes data to the destination. A node created for the write is
// removed again when the write fails.
func (d Destination) commit(ctx context.Context, content store.ContentStore, resolver store.DestinationResolver, data []byte) (store.Handle, error) {
	var (
		target store.Handle
		err    error
	)
	switch d.Mode {
	case DestinationInPlace:
		return d.Source, content.Write(ctx, d.Source, data, store.MimeTypePDF)
	case DestinationCreate:
		target, err = resolver.Create(ctx, d.Folder, d.Name)
	default:
		target, err = resolver.Copy(ctx, d.Source, d.Folder, d.Name)
	}
	if err != nil {
		return "", err
	}

	if err := content.Write(ctx, target, data, store.MimeTypePDF); err != nil {
		if rerr := resolver.Remove(context.WithoutCancel(ctx), target); rerr != nil {
			logger.FromContext(ctx).Error("Failed to remove destination after write failure",
				"destination", target, "error", rerr)
		}
		return "", err
	}
	return target, nil
}
