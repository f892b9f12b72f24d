// Package storage provides file storage for uploaded claim and referral
// documents. It defines the FileStore interface, a local-disk implementation
// used by the API server and worker, and an in-memory implementation suitable
// for testing.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed upload size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// FileStore defines the contract for uploaded-document storage backends.
// Save returns the storage path under which the content can be re-opened.
type FileStore interface {
	Save(ctx context.Context, fileName string, content io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// DiskStore stores files under a base directory. Saved files are prefixed
// with a UUID so repeated uploads of the same file name never collide.
type DiskStore struct {
	baseDir string
}

// NewDiskStore creates the base directory if needed and returns a DiskStore.
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", baseDir, err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

func (s *DiskStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	if fileName == "" {
		return "", ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	// Keep only the base name so path segments in the upload cannot escape
	// the storage directory.
	safe := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	path := filepath.Join(s.baseDir, uuid.New().String()+"_"+safe)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

func (s *DiskStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// MemStore is a thread-safe, in-memory FileStore for testing.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore returns a ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	if fileName == "" {
		return "", ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	path := "mem://" + uuid.New().String() + "_" + fileName
	s.mu.Lock()
	s.files[path] = data
	s.mu.Unlock()
	return path, nil
}

func (s *MemStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[path]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, path)
	return nil
}
