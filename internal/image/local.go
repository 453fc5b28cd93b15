package image

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps images as files in a single directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(_ context.Context, data []byte, ext string) (string, error) {
	ref := newRef(ext)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		return "", fmt.Errorf("rename image: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) Get(_ context.Context, ref string) ([]byte, string, error) {
	if !validRef(ref) {
		return nil, "", ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	return data, ContentTypeFor(ref), nil
}

// Delete removes the image. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("invalid image ref %q", ref)
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
