package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// FileAdapter keeps one JSON file per cart slot. Files are replaced atomically so a crash
// mid-write leaves the previous cart intact.
type FileAdapter struct {
	dir string
}

func NewFileAdapter(dir string) (*FileAdapter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	return &FileAdapter{dir: dir}, nil
}

func (f *FileAdapter) path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+".json")
}

func (f *FileAdapter) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", name, err)
	}
	return data, nil
}

func (f *FileAdapter) Save(_ context.Context, name string, data []byte) error {
	if err := atomic.WriteFile(f.path(name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write slot %s: %w", name, err)
	}
	return nil
}
