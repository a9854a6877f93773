package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bff-gateway/internal/config"
)

// Stager keeps uploaded bytes on local disk for the duration of one upload.
// Files are named {uuid}{ext} so concurrent uploads never collide.
type Stager struct {
	dir    string
	logger *slog.Logger
}

// NewStager creates a Stager rooted at storage.temp_dir, creating it if
// needed.
func NewStager(cfg *config.Config, logger *slog.Logger) (*Stager, error) {
	dir := cfg.Storage.TempDir
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Stager{
		dir:    dir,
		logger: logger.With("component", "stager"),
	}, nil
}

// Save writes r in full to a new staged file and returns its path. A partial
// file is removed before the error is returned.
func (s *Stager) Save(r io.Reader, filename string) (string, error) {
	path := filepath.Join(s.dir, uuid.NewString()+stagedExt(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", &StorageError{Op: "create", Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		s.Remove(path)
		return "", &StorageError{Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		s.Remove(path)
		return "", &StorageError{Op: "close", Err: err}
	}
	return path, nil
}

// Remove deletes a staged file. Failures are logged, never returned.
func (s *Stager) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing staged file", "path", path, "err", err)
	}
}

// stagedExt returns the extension of the file's base name, or "" when it has
// none. A leading dot alone (".env") is not an extension.
func stagedExt(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(base)
	if ext == base || ext == "." {
		return ""
	}
	return ext
}
