package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vlinder/social-grant/pkg/application"
)

// DefaultMaxBytes caps a single upload at 5 MiB
const DefaultMaxBytes int64 = 5 << 20

// DefaultAllowedTypes are the address proof formats accepted from citizens
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

var (
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")
	ErrUnsupportedType = errors.New("only JPEG, PNG and PDF files are allowed")
)

// FileInput is an uploaded file as received from a multipart form
type FileInput struct {
	FieldName    string
	OriginalName string
	MimeType     string
	Size         int64
	Content      io.Reader
}

// Store persists uploaded documents
type Store interface {
	Save(ctx context.Context, file FileInput) (application.Document, error)
	Delete(ctx context.Context, path string) error
}

// Limits restricts what a Store accepts
type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultLimits returns the 5 MiB jpeg/png/pdf limits
func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, AllowedTypes: DefaultAllowedTypes}
}

func (l Limits) normalize() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if len(l.AllowedTypes) == 0 {
		l.AllowedTypes = DefaultAllowedTypes
	}
	return l
}

// Check rejects a file by declared size or MIME type before anything is written
func (l Limits) Check(file FileInput) error {
	l = l.normalize()
	if file.Size > l.MaxBytes {
		return ErrFileTooLarge
	}
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(file.MimeType, ";", 2)[0]))
	if !lo.Contains(l.AllowedTypes, mime) {
		return ErrUnsupportedType
	}
	return nil
}

// generateName builds <field>-<unix ms>-<uuid><ext>
func generateName(file FileInput, now time.Time) string {
	field := file.FieldName
	if field == "" {
		field = "file"
	}
	ext := strings.ToLower(filepath.Ext(file.OriginalName))
	return fmt.Sprintf("%s-%d-%s%s", field, now.UnixMilli(), uuid.NewString(), ext)
}

// limitedReader returns ErrFileTooLarge once more than max bytes have been read
type limitedReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}
