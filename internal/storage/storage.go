package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadBytes caps a single gallery upload.
const MaxUploadBytes = 10 << 20

var (
	ErrTooLarge        = errors.New("file exceeds upload size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Store saves uploaded gallery images on local disk under a flat directory
// with generated names; the original filename never touches the filesystem.
type Store struct {
	basePath string
}

// NewStore ensures the base directory exists.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, errors.New("storage: base path required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", basePath, err)
	}
	return &Store{basePath: basePath}, nil
}

// Save writes the upload and returns the stored filename.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.basePath, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if n > MaxUploadBytes {
		os.Remove(path)
		return "", ErrTooLarge
	}
	return name, nil
}

// Open returns a reader for a stored file.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// BasePath returns the directory files are stored under.
func (s *Store) BasePath() string {
	return s.basePath
}

// resolve rejects names that escape the base directory.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("storage: invalid file name %q", name)
	}
	return filepath.Join(s.basePath, name), nil
}
