package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore writes files into a directory served under /uploads.
type LocalStore struct {
	Dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

// Save writes f to a temp file, syncs it and renames it into place,
// so a reader never sees a partial file. The reference is the file name.
func (s *LocalStore) Save(_ context.Context, f File) (string, error) {
	name := f.Kind.Field + "-" + uuid.NewString() + f.Extension

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(f.Data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		cleanup()
		return "", fmt.Errorf("rename upload: %w", err)
	}
	return name, nil
}

// Open returns the stored file for ref.
func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes the stored file for ref. Missing files are ignored.
func (s *LocalStore) Remove(_ context.Context, ref string) error {
	err := os.Remove(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// path confines ref to the upload directory.
func (s *LocalStore) path(ref string) string {
	return filepath.Join(s.Dir, filepath.Base(ref))
}
