// Package staging holds downloaded attachments between download and upload.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var errInvalidKey = errors.New("invalid staging key")

// InvalidKeyError is returned for keys that would escape the staging area.
func InvalidKeyError(key string) error {
	return fmt.Errorf("%w, %q", errInvalidKey, key)
}

// Stager stores attachment content under a key for the duration of one transfer.
type Stager interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// DirStager stages content as files in a local directory.
type DirStager struct {
	dir string
}

// NewDirStager creates the directory if needed. An empty dir uses a fresh temp directory.
func NewDirStager(dir string) (*DirStager, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "crm-transfer-")
		if err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		return &DirStager{dir: tmp}, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging directory '%s': %w", dir, err)
	}

	return &DirStager{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *DirStager) Dir() string {
	return s.dir
}

func (s *DirStager) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create staged file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, fmt.Errorf("failed to stage '%s': %w", key, err)
	}

	return n, nil
}

func (s *DirStager) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}

	return f, nil
}

// Remove deletes the staged file. Removing a missing key is not an error.
func (s *DirStager) Remove(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}

	return nil
}

func (s *DirStager) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) ||
		strings.ContainsRune(clean, filepath.Separator) {
		return "", InvalidKeyError(key)
	}
	return filepath.Join(s.dir, clean), nil
}
