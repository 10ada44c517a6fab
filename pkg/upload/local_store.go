package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vlinder/social-grant/pkg/application"
)

// DefaultDir is where uploads land when no directory is configured
const DefaultDir = "uploads"

// LocalStore writes documents to a directory served under /uploads
type LocalStore struct {
	dir    string
	limits Limits
	now    func() time.Time
}

func NewLocalStore(dir string, limits Limits) (*LocalStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, limits: limits.normalize(), now: time.Now}, nil
}

// Dir returns the directory files are written to
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Save(ctx context.Context, file FileInput) (application.Document, error) {
	if err := s.limits.Check(file); err != nil {
		return application.Document{}, err
	}

	now := s.now()
	name := generateName(file, now)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return application.Document{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	written, err := io.Copy(f, &limitedReader{r: file.Content, max: s.limits.MaxBytes})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return application.Document{}, err
		}
		return application.Document{}, fmt.Errorf("failed to write upload file: %w", err)
	}

	slog.Debug("Upload stored", "path", path, "size", written)
	return application.Document{
		FileName:     name,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Size:         written,
		Path:         path,
		UploadedAt:   now,
	}, nil
}

// Delete removes a stored file; a file that is already gone is not an error
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete upload %s: %w", path, err)
	}
	return nil
}
