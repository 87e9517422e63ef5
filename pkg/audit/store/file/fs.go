package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem is the minimal surface the store needs from its storage
// target. Read must return an error satisfying errors.Is(err,
// fs.ErrNotExist) for a missing file. Write must replace the file
// atomically, so a crashed append never leaves a truncated target.
//
// Remote targets (object stores, network shares) implement this by
// staging locally and uploading the complete file.
type Filesystem interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// LocalFS writes to the local filesystem. Writes go through a temp file
// in the target directory followed by a rename.
type LocalFS struct{}

var _ Filesystem = LocalFS{}

func (LocalFS) Read(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (LocalFS) Write(_ context.Context, name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
