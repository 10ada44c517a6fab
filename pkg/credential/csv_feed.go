package credential

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CSVFeed appends credential rows to a CSV file shared with the credential issuer
type CSVFeed struct {
	path  string
	grant GrantInfo
	now   func() time.Time

	mu sync.Mutex
}

// CSVOption configures a CSVFeed
type CSVOption func(*CSVFeed)

// WithGrantInfo overrides the static grant columns
func WithGrantInfo(info GrantInfo) CSVOption {
	return func(f *CSVFeed) {
		f.grant = info
	}
}

// WithClock sets the clock used for issuance and validity dates
func WithClock(now func() time.Time) CSVOption {
	return func(f *CSVFeed) {
		f.now = now
	}
}

// NewCSVFeed creates a feed writing to path
func NewCSVFeed(path string, opts ...CSVOption) *CSVFeed {
	f := &CSVFeed{
		path:  path,
		grant: DefaultGrantInfo(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the file the feed writes to
func (f *CSVFeed) Path() string {
	return f.path
}

func (f *CSVFeed) Exists(ctx context.Context, nationalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, err := f.find(nationalID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (f *CSVFeed) Get(ctx context.Context, nationalID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.find(nationalID)
}

// Append writes a row for the citizen unless one already exists
func (f *CSVFeed) Append(ctx context.Context, nationalID, fullName string) (AppendResult, error) {
	if nationalID == "" {
		return AppendResult{}, fmt.Errorf("national id is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.find(nationalID)
	if err != nil {
		return AppendResult{}, err
	}
	if existing != nil {
		slog.Info("Credential row already present, skipping append", "nationalId", nationalID)
		return AppendResult{Success: true, Message: "Credential already exists", AlreadyExists: true}, nil
	}

	issuance, start, end := validityDates(f.now())
	row := []string{
		nationalID,
		fullName,
		f.grant.GrantName,
		f.grant.GrantAmount,
		f.grant.GrantType,
		f.grant.GrantDescription,
		f.grant.IssuerName,
		start,
		end,
		issuance,
	}

	if err := f.appendRow(row); err != nil {
		return AppendResult{}, fmt.Errorf("failed to update credential data: %w", err)
	}

	slog.Info("Credential row appended", "nationalId", nationalID, "file", f.path)
	return AppendResult{
		Success: true,
		Message: "Credential data added successfully",
		Data: &AppendData{
			IndividualID:      nationalID,
			BeneficiaryName:   fullName,
			IssuanceDate:      issuance,
			ValidityStartDate: start,
			ValidityEndDate:   end,
		},
	}, nil
}

// find scans the file for the first row of nationalID; callers hold mu
func (f *CSVFeed) find(nationalID string) (*Record, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open credential feed: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read credential feed: %w", err)
		}
		if first {
			first = false
			if len(fields) > 0 && fields[0] == Header[0] {
				continue
			}
		}
		if len(fields) == 0 || fields[0] != nationalID {
			continue
		}
		return toRecord(fields), nil
	}
}

func (f *CSVFeed) appendRow(row []string) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if info.Size() > 0 {
		// rows written by other tools may omit the trailing newline
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, info.Size()-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	_, err = file.Write(buf.Bytes())
	return err
}

func toRecord(fields []string) *Record {
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	return &Record{
		IndividualID:      get(0),
		BeneficiaryName:   get(1),
		GrantName:         get(2),
		GrantAmount:       get(3),
		GrantType:         get(4),
		GrantDescription:  get(5),
		IssuerName:        get(6),
		ValidityStartDate: get(7),
		ValidityEndDate:   get(8),
		IssuanceDate:      get(9),
	}
}
