// Package assets stores uploaded files (post thumbnails, avatars) on local disk.
// Every stored file gets a fresh name so uploads never overwrite each other, and the
// directory doubles as the document root served under /uploads.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/apperror"
)

// Upload is a file received from a client.
type Upload struct {
	Filename string    // name as sent by the client; only its base is used
	Size     int64     // declared size in bytes
	Content  io.Reader // file body
}

// Constraints bound a single upload.
type Constraints struct {
	MaxBytes        int64
	TooLargeMessage string
}

// LocalStore writes assets into a single directory.
type LocalStore struct {
	dir      string
	logger   logrus.FieldLogger
	newToken func() string
}

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string, logger logrus.FieldLogger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.NewStorageError("failed to prepare upload directory", err)
	}
	return &LocalStore{
		dir:      dir,
		logger:   logger.WithField("component", "assets"),
		newToken: uuid.NewString,
	}, nil
}

// Dir returns the directory assets are written to.
func (s *LocalStore) Dir() string { return s.dir }

// UniqueName derives `<basename><token>.<extension>` from the client's filename.
// The basename is everything before the first dot and the extension is everything after
// the last dot, so "avatar.2.jpg" becomes "avatar<token>.jpg". A name without a dot keeps
// no extension.
func UniqueName(filename, token string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	parts := strings.Split(base, ".")
	if len(parts) == 1 {
		return parts[0] + token
	}
	return parts[0] + token + "." + parts[len(parts)-1]
}

// Store validates the upload against c and writes it under a fresh unique name.
// Exactly MaxBytes is accepted; one byte more is PayloadTooLarge.
func (s *LocalStore) Store(ctx context.Context, upload *Upload, c Constraints) (string, error) {
	if upload == nil || upload.Content == nil {
		return "", apperror.NewValidationError("No file provided.", nil)
	}
	if upload.Size > c.MaxBytes {
		return "", apperror.NewPayloadTooLargeError(c.TooLargeMessage, nil)
	}
	if err := ctx.Err(); err != nil {
		return "", apperror.NewStorageError("Upload was interrupted.", err)
	}

	name := UniqueName(upload.Filename, s.newToken())
	path := filepath.Join(s.dir, name)

	// O_EXCL so a (practically impossible) name collision fails instead of overwriting.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperror.NewStorageError("Could not save file.", fmt.Errorf("create %s: %w", path, err))
	}

	// Read one byte past the limit so a body larger than its declared size is still caught.
	written, copyErr := io.Copy(f, io.LimitReader(upload.Content, c.MaxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && written > c.MaxBytes {
		s.discard(path)
		return "", apperror.NewPayloadTooLargeError(c.TooLargeMessage, nil)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		s.discard(path)
		return "", apperror.NewStorageError("Could not save file.", fmt.Errorf("write %s: %w", path, err))
	}

	s.logger.WithFields(logrus.Fields{"asset": name, "bytes": written}).Debug("Stored asset")
	return name, nil
}

// Remove deletes the named asset. A missing file is not an error.
func (s *LocalStore) Remove(_ context.Context, name string) error {
	if name == "" {
		return nil
	}
	// Stored names never contain separators; anything else is not ours to delete.
	if filepath.Base(name) != name || name == "." || name == ".." {
		return apperror.NewStorageError("Invalid asset name.", fmt.Errorf("refusing to remove %q", name))
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperror.NewStorageError("Could not remove file.", err)
	}
	return nil
}

// Info describes one stored asset.
type Info struct {
	Name    string
	ModTime time.Time
}

// List returns every regular file in the asset directory.
func (s *LocalStore) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperror.NewStorageError("Could not list assets.", err)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, Info{Name: e.Name(), ModTime: fi.ModTime()})
	}
	return out, nil
}

func (s *LocalStore) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("path", path).Warn("Failed to discard partial upload")
	}
}
