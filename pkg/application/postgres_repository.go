package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation           = "23505"
	applicationPrimaryKey     = "application_pkey"
	activeNationalIDIndexName = "application_active_national_id_idx"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresApplicationRepository implements ApplicationRepository using PostgreSQL
type PostgresApplicationRepository struct {
	db DBTX
}

// NewPostgresApplicationRepository creates a new PostgreSQL application repository
func NewPostgresApplicationRepository(db DBTX) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: db}
}

const applicationColumns = `application_id, national_id, full_name, date_of_birth, gender, mobile_number, email,
	address, address_proof, grant_amount, status, status_history, purchases, submitted_at, last_updated_at`

func (r *PostgresApplicationRepository) Create(ctx context.Context, app *Application) error {
	args, err := applicationArgs(app)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `INSERT INTO application (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`, args...)
	if err != nil {
		return r.mapWriteError(ctx, app, err)
	}

	slog.Debug("Application inserted", "applicationId", app.ApplicationID)
	return nil
}

func (r *PostgresApplicationRepository) Update(ctx context.Context, app *Application) error {
	args, err := applicationArgs(app)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `UPDATE application SET
			national_id = $2, full_name = $3, date_of_birth = $4, gender = $5, mobile_number = $6, email = $7,
			address = $8, address_proof = $9, grant_amount = $10, status = $11, status_history = $12,
			purchases = $13, submitted_at = $14, last_updated_at = $15
		WHERE application_id = $1`, args...)
	if err != nil {
		return r.mapWriteError(ctx, app, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresApplicationRepository) FindByApplicationID(ctx context.Context, applicationID string) (*Application, error) {
	row := r.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM application WHERE application_id = $1`, applicationID)
	return scanApplication(row)
}

func (r *PostgresApplicationRepository) FindActiveByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	row := r.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM application
		WHERE national_id = $1 AND status IN ('Pending', 'Under Review')
		ORDER BY submitted_at DESC LIMIT 1`, nationalID)
	return scanApplication(row)
}

func (r *PostgresApplicationRepository) FindLatestByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	row := r.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM application
		WHERE national_id = $1
		ORDER BY submitted_at DESC, application_id DESC LIMIT 1`, nationalID)
	return scanApplication(row)
}

func (r *PostgresApplicationRepository) FindByNationalID(ctx context.Context, nationalID string) ([]Application, error) {
	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM application
		WHERE national_id = $1
		ORDER BY submitted_at DESC, application_id DESC`, nationalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	return collectApplications(rows)
}

func (r *PostgresApplicationRepository) List(ctx context.Context, filter Filter) ([]Application, int64, error) {
	filter = filter.Normalize()

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM application WHERE ($1 = '' OR status = $1)`,
		string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+applicationColumns+` FROM application
		WHERE ($1 = '' OR status = $1)
		ORDER BY submitted_at DESC, application_id DESC
		LIMIT $2 OFFSET $3`, string(filter.Status), filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	apps, err := collectApplications(rows)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// mapWriteError turns unique violations into domain errors
func (r *PostgresApplicationRepository) mapWriteError(ctx context.Context, app *Application, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("failed to write application: %w", err)
	}

	switch pgErr.ConstraintName {
	case applicationPrimaryKey:
		return errDuplicateApplicationID
	case activeNationalIDIndexName:
		dup := &DuplicateApplicationError{NationalID: app.NationalID}
		if existing, findErr := r.FindActiveByNationalID(ctx, app.NationalID); findErr == nil {
			dup.ExistingApplicationID = existing.ApplicationID
		}
		return dup
	}
	return fmt.Errorf("failed to write application: %w", err)
}

func applicationArgs(app *Application) ([]interface{}, error) {
	address, err := json.Marshal(app.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}
	proof, err := json.Marshal(app.AddressProof)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address proof: %w", err)
	}
	history, err := json.Marshal(nonNilHistory(app.StatusHistory))
	if err != nil {
		return nil, fmt.Errorf("failed to encode status history: %w", err)
	}
	purchases, err := json.Marshal(nonNilPurchases(app.Purchases))
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchases: %w", err)
	}

	return []interface{}{
		app.ApplicationID, app.NationalID, app.FullName, app.DateOfBirth, string(app.Gender),
		app.MobileNumber, app.Email, address, proof, app.GrantAmount, string(app.Status),
		history, purchases, app.SubmittedAt, app.LastUpdatedAt,
	}, nil
}

func scanApplication(row pgx.Row) (*Application, error) {
	var (
		app                                  Application
		gender, status                       string
		address, proof, history, purchases []byte
	)
	err := row.Scan(&app.ApplicationID, &app.NationalID, &app.FullName, &app.DateOfBirth, &gender,
		&app.MobileNumber, &app.Email, &address, &proof, &app.GrantAmount, &status,
		&history, &purchases, &app.SubmittedAt, &app.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.Gender = Gender(gender)
	app.Status = Status(status)
	if err := json.Unmarshal(address, &app.Address); err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	if err := json.Unmarshal(proof, &app.AddressProof); err != nil {
		return nil, fmt.Errorf("failed to decode address proof: %w", err)
	}
	if err := json.Unmarshal(history, &app.StatusHistory); err != nil {
		return nil, fmt.Errorf("failed to decode status history: %w", err)
	}
	if err := json.Unmarshal(purchases, &app.Purchases); err != nil {
		return nil, fmt.Errorf("failed to decode purchases: %w", err)
	}
	app.SubmittedAt = app.SubmittedAt.UTC()
	app.LastUpdatedAt = app.LastUpdatedAt.UTC()
	return &app, nil
}

func collectApplications(rows pgx.Rows) ([]Application, error) {
	defer rows.Close()

	apps := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

func nonNilHistory(h []StatusHistoryEntry) []StatusHistoryEntry {
	if h == nil {
		return []StatusHistoryEntry{}
	}
	return h
}

func nonNilPurchases(p []Purchase) []Purchase {
	if p == nil {
		return []Purchase{}
	}
	return p
}
