// Package fsstore implements the store collaborators over a local directory.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/georgepadayatti/pdfsign/store"
)

// Store serves handles as slash separated paths below Root.
type Store struct {
	Root string
	// FileMode is applied to files created by Write, Create and Copy.
	FileMode os.FileMode
}

var _ store.Backend = (*Store)(nil)

// New creates a store rooted at dir, which must exist.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrFileNotFound, dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", store.ErrFileNotFound, dir)
	}
	return &Store{Root: abs, FileMode: 0o644}, nil
}

// path maps h below Root. Cleaning against "/" keeps ".." from leaving it.
func (s *Store) path(h store.Handle) string {
	clean := path.Clean("/" + strings.TrimPrefix(string(h), "/"))
	return filepath.Join(s.Root, filepath.FromSlash(clean))
}

func (s *Store) handle(p string) store.Handle {
	rel, err := filepath.Rel(s.Root, p)
	if err != nil {
		return store.Handle(filepath.ToSlash(p))
	}
	return store.Handle(filepath.ToSlash(rel))
}

// Read opens the file behind h.
func (s *Store) Read(ctx context.Context, h store.Handle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireContent(h); err != nil {
		return nil, err
	}
	return os.Open(s.path(h))
}

// Write replaces the content of h.
func (s *Store) Write(ctx context.Context, h store.Handle, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(h)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", store.ErrNotContent, h)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".pdfsign-*")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", store.ErrFileNotFound, path.Dir(string(h)))
		}
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(s.FileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Exists reports whether h names a file or directory.
func (s *Store) Exists(ctx context.Context, h store.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(h))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// TypeOf reports whether h is a file or a directory.
func (s *Store) TypeOf(ctx context.Context, h store.Handle) (store.NodeType, error) {
	if err := ctx.Err(); err != nil {
		return store.NodeUnknown, err
	}
	info, err := os.Stat(s.path(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.NodeUnknown, fmt.Errorf("%w: %s", store.ErrNotFound, h)
		}
		return store.NodeUnknown, err
	}
	if info.IsDir() {
		return store.NodeFolder, nil
	}
	return store.NodeContent, nil
}

// ReadCredential reads a key store file.
func (s *Store) ReadCredential(ctx context.Context, h store.Handle) ([]byte, error) {
	return store.ReadAll(ctx, s, h)
}

// Copy duplicates src into folder under name.
func (s *Store) Copy(ctx context.Context, src, folder store.Handle, name string) (store.Handle, error) {
	data, err := store.ReadAll(ctx, s, src)
	if err != nil {
		return "", err
	}
	dst, err := s.Create(ctx, folder, name)
	if err != nil {
		return "", err
	}
	if err := s.Write(ctx, dst, data, store.MimeTypePDF); err != nil {
		_ = s.Remove(ctx, dst)
		return "", err
	}
	return dst, nil
}

// Create makes an empty file in folder. An existing file is an error.
func (s *Store) Create(ctx context.Context, folder store.Handle, name string) (store.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := store.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %q", err, name)
	}
	if t, err := s.TypeOf(ctx, folder); err != nil || t != store.NodeFolder {
		return "", fmt.Errorf("%w: %s", store.ErrFileNotFound, folder)
	}
	p := filepath.Join(s.path(folder), name)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.FileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", store.ErrExists, s.handle(p))
		}
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return s.handle(p), nil
}

// Remove deletes the file behind h.
func (s *Store) Remove(ctx context.Context, h store.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.requireContent(h); err != nil {
		return err
	}
	return os.Remove(s.path(h))
}

func (s *Store) requireContent(h store.Handle) error {
	t, err := s.TypeOf(context.Background(), h)
	if err != nil {
		return err
	}
	if t != store.NodeContent {
		return fmt.Errorf("%w: %s", store.ErrNotContent, h)
	}
	return nil
}
