package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores transform outputs as flat files in one directory.
type Local struct {
	basePath string
}

// NewLocal creates basePath if needed.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// Dir is the directory served under /outputs/.
func (l *Local) Dir() string { return l.basePath }

// Save writes data under name atomically and returns the file path.
func (l *Local) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid output name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(l.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}

	path := filepath.Join(l.basePath, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename output: %w", err)
	}
	return path, nil
}
