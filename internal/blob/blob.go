// Package blob stores original and result images behind opaque refs.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	Put(data []byte, mimeType string) (string, error)
	Get(ref string) ([]byte, error)
	Delete(ref string) error
}

// Filesystem keeps blobs as uuid-named files under a single directory.
type Filesystem struct {
	dir string
}

func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{dir: dir}, nil
}

func (f *Filesystem) Put(data []byte, mimeType string) (string, error) {
	ref := uuid.NewString() + extensionFor(mimeType)
	if err := os.WriteFile(filepath.Join(f.dir, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (f *Filesystem) Get(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.Base(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (f *Filesystem) Delete(ref string) error {
	err := os.Remove(filepath.Join(f.dir, filepath.Base(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// Memory is an in-memory Store for tests.
type Memory struct {
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(data []byte, mimeType string) (string, error) {
	ref := fmt.Sprintf("%s%s", uuid.NewString(), extensionFor(mimeType))
	m.blobs[ref] = data
	return ref, nil
}

func (m *Memory) Get(ref string) ([]byte, error) {
	data, ok := m.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *Memory) Delete(ref string) error {
	if _, ok := m.blobs[ref]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, ref)
	return nil
}
