// Package artifact persists tables as CSV flat files and answers whether an
// artifact is already on disk.
package artifact

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/pitwall/internal/domain/model"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// CSVStore writes tables as comma-separated UTF-8 files with a header row.
// A file is either absent or complete: content goes to a temporary file in
// the target directory which is then renamed over the target.
type CSVStore struct{}

// NewCSVStore returns a CSVStore.
func NewCSVStore() *CSVStore { return &CSVStore{} }

// Save writes table to path, replacing any existing file.
func (s *CSVStore) Save(ctx context.Context, path string, table model.Table) error {
	if path == "" {
		return ErrEmptyPath
	}
	if table.Empty() {
		return fmt.Errorf("%s: %w", path, ErrEmptyTable)
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("%s row %d: %w (%d != %d)", path, i, ErrRaggedRow, len(row), len(table.Columns))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(table.Columns); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(table.Rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}

// Remove deletes the artifact at path. A missing file is not an error.
func (s *CSVStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a regular file is present at path.
func (s *CSVStore) Exists(path string) (bool, error) {
	return Exists(path)
}

// Exists reports whether a regular file is present at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
