package application

import (
	"context"
)

// ApplicationRepository persists applications.
// Create must reject a second active application for the same national id and a
// reused application id; both surface as *DuplicateApplicationError or errDuplicateApplicationID.
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	Update(ctx context.Context, app *Application) error
	FindByApplicationID(ctx context.Context, applicationID string) (*Application, error)
	FindActiveByNationalID(ctx context.Context, nationalID string) (*Application, error)
	// FindLatestByNationalID returns the most recently submitted application
	FindLatestByNationalID(ctx context.Context, nationalID string) (*Application, error)
	// FindByNationalID returns all applications, newest first
	FindByNationalID(ctx context.Context, nationalID string) ([]Application, error)
	// List returns one page, newest first, and the total matching the filter
	List(ctx context.Context, filter Filter) ([]Application, int64, error)
}

// Sequence hands out the numeric part of application ids
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}
