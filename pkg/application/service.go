package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinzhu/copier"

	"github.com/vlinder/social-grant/pkg/credential"
	grantErrors "github.com/vlinder/social-grant/pkg/errors"
	"github.com/vlinder/social-grant/pkg/notice"
	"github.com/vlinder/social-grant/pkg/outbox"
)

// maxIDAttempts bounds retries when a sequence value collides with an existing id
const maxIDAttempts = 3

// Metrics receives lifecycle counters
type Metrics interface {
	ApplicationSubmitted()
	StatusUpdated(status string)
	PurchaseConfirmed()
	ObserveSideEffectFailure(kind string)
}

// SubmitResult reports the stored application and the outcome of its side effects
type SubmitResult struct {
	Application     *Application
	CredentialReady bool
	EmailSent       bool
	Credential      *credential.Record
}

type PurchaseResult struct {
	ApplicationID         string `json:"applicationId"`
	TransactionID         string `json:"transactionId"`
	Email                 string `json:"email"`
	NewBalance            string `json:"newBalance"`
	ConfirmationEmailSent bool   `json:"confirmationEmailSent"`
}

// ApplicationService coordinates the lifecycle with storage and side effects
type ApplicationService struct {
	repo     ApplicationRepository
	seq      Sequence
	feed     credential.Feed
	notifier notice.Notifier
	outbox   outbox.Outbox
	events   EventPublisher
	metrics  Metrics
	now      func() time.Time
}

type Option func(*ApplicationService)

func WithCredentialFeed(feed credential.Feed) Option {
	return func(s *ApplicationService) {
		s.feed = feed
	}
}

func WithNotifier(notifier notice.Notifier) Option {
	return func(s *ApplicationService) {
		s.notifier = notifier
	}
}

func WithSequence(seq Sequence) Option {
	return func(s *ApplicationService) {
		s.seq = seq
	}
}

// WithOutbox enables retries of failed credential writes and emails
func WithOutbox(ob outbox.Outbox) Option {
	return func(s *ApplicationService) {
		s.outbox = ob
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *ApplicationService) {
		s.events = p
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *ApplicationService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ApplicationService) {
		s.now = now
	}
}

// NewApplicationService creates a service; without WithSequence ids come from an in-memory counter
func NewApplicationService(repo ApplicationRepository, opts ...Option) *ApplicationService {
	s := &ApplicationService{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seq == nil {
		s.seq = NewInMemorySequence()
	}
	return s
}

// Submit validates and stores a new application, then issues the credential
// row and sends the approval email. Side effect failures never fail the call.
func (s *ApplicationService) Submit(ctx context.Context, input SubmitInput, doc Document) (SubmitResult, error) {
	now := s.now()
	app, err := NewApplication(input, doc, now)
	if err != nil {
		return SubmitResult{}, err
	}

	existing, err := s.repo.FindActiveByNationalID(ctx, app.NationalID)
	switch {
	case err == nil:
		return SubmitResult{}, &DuplicateApplicationError{NationalID: app.NationalID, ExistingApplicationID: existing.ApplicationID}
	case !errors.Is(err, ErrNotFound):
		return SubmitResult{}, fmt.Errorf("failed to check active applications: %w", err)
	}

	if err := s.create(ctx, app); err != nil {
		return SubmitResult{}, err
	}
	slog.Info("Application submitted", "applicationId", app.ApplicationID, "nationalId", app.NationalID)
	if s.metrics != nil {
		s.metrics.ApplicationSubmitted()
	}
	s.publish(ctx, newEvent(EventSubmitted, app, app.SubmittedAt, nil))

	result := SubmitResult{Application: app}
	result.CredentialReady, result.Credential = s.issueCredential(ctx, app)
	result.EmailSent = s.sendApproval(ctx, approvalTask{
		Email:         app.Email,
		FullName:      app.FullName,
		ApplicationID: app.ApplicationID,
		NationalID:    app.NationalID,
	}, result.Credential)

	return result, nil
}

func (s *ApplicationService) create(ctx context.Context, app *Application) error {
	for attempt := 1; ; attempt++ {
		seq, err := s.seq.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to allocate application id: %w", err)
		}
		app.ApplicationID = FormatApplicationID(app.SubmittedAt.Year(), seq)

		err = s.repo.Create(ctx, app)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errDuplicateApplicationID) || attempt >= maxIDAttempts {
			app.ApplicationID = ""
			return err
		}
		slog.Warn("Application id collision, allocating another", "applicationId", app.ApplicationID, "attempt", attempt)
	}
}

// UpdateStatus applies a reviewer decision
func (s *ApplicationService) UpdateStatus(ctx context.Context, applicationID string, status Status, remarks, changedBy string) (*Application, error) {
	if !status.IsReviewStatus() {
		return nil, &InvalidStatusError{Status: string(status)}
	}

	app, err := s.repo.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := app.ApplyStatus(status, remarks, changedBy, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}

	slog.Info("Application status updated", "applicationId", app.ApplicationID, "status", status, "changedBy", app.StatusHistory[len(app.StatusHistory)-1].ChangedBy)
	if s.metrics != nil {
		s.metrics.StatusUpdated(string(status))
	}
	s.publish(ctx, newEvent(EventStatusChanged, app, app.LastUpdatedAt, map[string]interface{}{"remarks": remarks}))
	return app, nil
}

// ConfirmPurchase deducts a merchant confirmed purchase from the citizen's latest application
func (s *ApplicationService) ConfirmPurchase(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	input.GrantID = strings.TrimSpace(input.GrantID)
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	input.ProductName = strings.TrimSpace(input.ProductName)
	if input.GrantID == "" || input.TransactionID == "" || input.ProductName == "" ||
		input.AmountDeducted <= 0 || input.RemainingBalance == nil {
		return PurchaseResult{}, grantErrors.New(grantErrors.ErrCodeMissingRequiredFields, "Missing required fields")
	}

	app, err := s.repo.FindLatestByNationalID(ctx, input.GrantID)
	if err != nil {
		return PurchaseResult{}, err
	}

	now := s.now()
	newBalance, err := app.ApplyPurchase(input, now)
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := s.repo.Update(ctx, app); err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to record purchase: %w", err)
	}

	slog.Info("Purchase confirmed", "applicationId", app.ApplicationID, "transactionId", input.TransactionID, "newBalance", newBalance)
	if s.metrics != nil {
		s.metrics.PurchaseConfirmed()
	}
	s.publish(ctx, newEvent(EventPurchaseConfirmed, app, app.LastUpdatedAt, map[string]interface{}{
		"transactionId":  input.TransactionID,
		"productName":    input.ProductName,
		"amountDeducted": input.AmountDeducted,
		"newBalance":     newBalance,
	}))

	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	sent := s.sendPurchaseConfirmation(ctx, purchaseTask{
		Email:            app.Email,
		FullName:         app.FullName,
		TransactionID:    input.TransactionID,
		ProductName:      input.ProductName,
		AmountDeducted:   input.AmountDeducted,
		RemainingBalance: notice.DisplayAmount(input.RemainingBalance),
		Currency:         currency,
		PurchaseDate:     now,
	})

	return PurchaseResult{
		ApplicationID:         app.ApplicationID,
		TransactionID:         input.TransactionID,
		Email:                 app.Email,
		NewBalance:            newBalance,
		ConfirmationEmailSent: sent,
	}, nil
}

func (s *ApplicationService) Get(ctx context.Context, applicationID string) (*Application, error) {
	return s.repo.FindByApplicationID(ctx, applicationID)
}

// ListByNationalID returns the citizen's applications, newest first
func (s *ApplicationService) ListByNationalID(ctx context.Context, nationalID string) ([]Summary, error) {
	apps, err := s.repo.FindByNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(apps))
	if err := copier.Copy(&summaries, &apps); err != nil {
		return nil, fmt.Errorf("failed to build summaries: %w", err)
	}
	return summaries, nil
}

// List returns a page of reviewer summaries
func (s *ApplicationService) List(ctx context.Context, filter Filter) (Page, error) {
	filter = filter.Normalize()

	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	items := make([]AdminSummary, 0, len(apps))
	if err := copier.Copy(&items, &apps); err != nil {
		return Page{}, fmt.Errorf("failed to build summaries: %w", err)
	}
	return Page{
		Items:       items,
		Count:       len(items),
		Total:       total,
		TotalPages:  int((total + int64(filter.Limit) - 1) / int64(filter.Limit)),
		CurrentPage: filter.Page,
	}, nil
}

// NewStatusUpdateResult projects an application onto the status update response
func NewStatusUpdateResult(app *Application) (StatusUpdateResult, error) {
	var result StatusUpdateResult
	if err := copier.Copy(&result, app); err != nil {
		return StatusUpdateResult{}, fmt.Errorf("failed to build status update result: %w", err)
	}
	return result, nil
}

func (s *ApplicationService) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish application event", "type", event.Type, "applicationId", event.ApplicationID, "err", err)
	}
}
