package application

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// InMemoryApplicationRepository implements ApplicationRepository using an in-memory map
type InMemoryApplicationRepository struct {
	mu           sync.RWMutex
	applications map[string]*Application
}

// NewInMemoryApplicationRepository creates a new in-memory application repository
func NewInMemoryApplicationRepository() *InMemoryApplicationRepository {
	return &InMemoryApplicationRepository{
		applications: make(map[string]*Application),
	}
}

func (r *InMemoryApplicationRepository) Create(ctx context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.applications[app.ApplicationID]; exists {
		return errDuplicateApplicationID
	}
	if app.Status.IsActive() {
		if active := r.findActiveLocked(app.NationalID); active != nil {
			return &DuplicateApplicationError{NationalID: app.NationalID, ExistingApplicationID: active.ApplicationID}
		}
	}

	r.applications[app.ApplicationID] = clone(app)
	return nil
}

func (r *InMemoryApplicationRepository) Update(ctx context.Context, app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.applications[app.ApplicationID]; !exists {
		return ErrNotFound
	}
	if app.Status.IsActive() {
		if active := r.findActiveLocked(app.NationalID); active != nil && active.ApplicationID != app.ApplicationID {
			return &DuplicateApplicationError{NationalID: app.NationalID, ExistingApplicationID: active.ApplicationID}
		}
	}
	r.applications[app.ApplicationID] = clone(app)
	return nil
}

func (r *InMemoryApplicationRepository) FindByApplicationID(ctx context.Context, applicationID string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.applications[applicationID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(app), nil
}

func (r *InMemoryApplicationRepository) FindActiveByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := r.findActiveLocked(nationalID)
	if active == nil {
		return nil, ErrNotFound
	}
	return clone(active), nil
}

func (r *InMemoryApplicationRepository) FindLatestByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	apps, err := r.FindByNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, ErrNotFound
	}
	return &apps[0], nil
}

func (r *InMemoryApplicationRepository) FindByNationalID(ctx context.Context, nationalID string) ([]Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(lo.Values(r.applications), func(app *Application, _ int) bool {
		return app.NationalID == nationalID
	})
	return sortNewestFirst(matches), nil
}

func (r *InMemoryApplicationRepository) List(ctx context.Context, filter Filter) ([]Application, int64, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(lo.Values(r.applications), func(app *Application, _ int) bool {
		return filter.Status == "" || app.Status == filter.Status
	})
	sorted := sortNewestFirst(matches)
	total := int64(len(sorted))

	start := filter.Offset()
	if start >= len(sorted) {
		return []Application{}, total, nil
	}
	end := start + filter.Limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end], total, nil
}

func (r *InMemoryApplicationRepository) findActiveLocked(nationalID string) *Application {
	active, ok := lo.Find(lo.Values(r.applications), func(app *Application) bool {
		return app.NationalID == nationalID && app.Status.IsActive()
	})
	if !ok {
		return nil
	}
	return active
}

func sortNewestFirst(apps []*Application) []Application {
	out := lo.Map(apps, func(app *Application, _ int) Application {
		return *clone(app)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ApplicationID > out[j].ApplicationID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func clone(app *Application) *Application {
	out := *app
	out.StatusHistory = append([]StatusHistoryEntry(nil), app.StatusHistory...)
	out.Purchases = append([]Purchase{}, app.Purchases...)
	return &out
}
