package notice

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vlinder/social-grant/pkg/credential"
	"github.com/vlinder/social-grant/pkg/notification"
)

const (
	ApprovalSubject = "Your Social Grant Application Has Been Approved"
	PurchaseSubject = "✅ Purchase Confirmation - Your Transaction is Complete"
	TestSubject     = "Test Email - Invia Social Grants"

	DefaultWalletURL = "https://mosip-dev.klefki.io/inji"

	notAvailable = "N/A"
)

var ErrRecipientRequired = errors.New("recipient email is required")

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// Notifier sends the grant's transactional emails
type Notifier interface {
	SendApproval(ctx context.Context, approval ApprovalContext) error
	SendPurchaseConfirmation(ctx context.Context, purchase PurchaseContext) error
	SendTest(ctx context.Context, email string) error
}

type ApprovalContext struct {
	Email         string
	FullName      string
	ApplicationID string
	NationalID    string
	// Credential is the feed row, nil when the feed had no entry
	Credential *credential.Record
}

type PurchaseContext struct {
	Email            string
	FullName         string
	TransactionID    string
	ProductName      string
	AmountDeducted   float64
	RemainingBalance string
	Currency         string
	PurchaseDate     time.Time
}

// Service renders notices through a NotificationManager. Email delivery
// errors are returned; the event system, when registered, is best-effort.
type Service struct {
	manager   *notification.NotificationManager
	walletURL string
	transport string
	location  *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithWalletURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.walletURL = url
		}
	}
}

// WithTransportName sets the transport name shown in test emails
func WithTransportName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.transport = name
		}
	}
}

// WithLocation sets the time zone purchase dates are printed in
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.location = loc
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService registers the grant templates on manager for the email and event systems
func NewService(manager *notification.NotificationManager, opts ...Option) (*Service, error) {
	if manager == nil {
		return nil, fmt.Errorf("notification manager is required")
	}
	s := &Service{
		manager:   manager,
		walletURL: DefaultWalletURL,
		transport: "Nexus Email Service",
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	templates := map[notification.NoticeType]notification.NoticeTemplate{
		notification.GrantApprovedNotice: {
			Subject: ApprovalSubject,
			Text:    loadTemplate("templates/email/grant_approved.txt"),
			Html:    loadTemplate("templates/email/grant_approved.html"),
		},
		notification.PurchaseConfirmedNotice: {
			Subject: PurchaseSubject,
			Text:    loadTemplate("templates/email/purchase_confirmed.txt"),
			Html:    loadTemplate("templates/email/purchase_confirmed.html"),
		},
		notification.TestEmailNotice: {
			Subject: TestSubject,
			Text:    loadTemplate("templates/email/test_email.txt"),
			Html:    loadTemplate("templates/email/test_email.html"),
		},
	}
	for noticeType, tpl := range templates {
		for _, system := range []notification.NotificationSystem{notification.EmailSystem, notification.EventSystem} {
			if err := manager.RegisterNotification(noticeType, system, tpl); err != nil {
				slog.Error("failed to register notification", "type", noticeType, "system", system, "error", err)
				return nil, err
			}
		}
	}

	return s, nil
}

func (s *Service) SendApproval(ctx context.Context, approval ApprovalContext) error {
	data := map[string]interface{}{
		"fullName":      approval.FullName,
		"applicationId": approval.ApplicationID,
		"nationalId":    approval.NationalID,
		"grantName":     credential.DefaultGrantInfo().GrantName,
		"grantAmount":   credential.DefaultGrantInfo().GrantAmount,
		"validFrom":     notAvailable,
		"validUntil":    notAvailable,
		"walletUrl":     s.walletURL,
		"year":          s.now().Year(),
	}
	if c := approval.Credential; c != nil {
		data["grantName"] = orDefault(c.GrantName, credential.DefaultGrantInfo().GrantName)
		data["grantAmount"] = orDefault(c.GrantAmount, credential.DefaultGrantInfo().GrantAmount)
		data["validFrom"] = orDefault(c.ValidityStartDate, notAvailable)
		data["validUntil"] = orDefault(c.ValidityEndDate, notAvailable)
	}

	slog.Info("Preparing to send approval email", "to", approval.Email, "applicationId", approval.ApplicationID)
	return s.send(ctx, notification.GrantApprovedNotice, approval.Email, data)
}

func (s *Service) SendPurchaseConfirmation(ctx context.Context, purchase PurchaseContext) error {
	currency := purchase.Currency
	if currency == "" {
		currency = "INV "
	}
	purchaseDate := purchase.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = s.now()
	}

	data := map[string]interface{}{
		"fullName":         purchase.FullName,
		"transactionId":    purchase.TransactionID,
		"productName":      purchase.ProductName,
		"amountDeducted":   currency + GroupDigits(purchase.AmountDeducted),
		"remainingBalance": currency + purchase.RemainingBalance,
		"purchaseDate":     formatPurchaseDate(purchaseDate, s.location),
		"year":             s.now().Year(),
	}

	slog.Info("Preparing to send purchase confirmation email", "to", purchase.Email, "transactionId", purchase.TransactionID)
	return s.send(ctx, notification.PurchaseConfirmedNotice, purchase.Email, data)
}

func (s *Service) SendTest(ctx context.Context, email string) error {
	data := map[string]interface{}{
		"transport": s.transport,
		"reference": uuid.NewString(),
	}
	slog.Info("Sending test email", "to", email)
	return s.send(ctx, notification.TestEmailNotice, email, data)
}

func (s *Service) send(ctx context.Context, noticeType notification.NoticeType, to string, data map[string]interface{}) error {
	if to == "" {
		return ErrRecipientRequired
	}
	nd := notification.NotificationData{To: to, Data: data}

	err := s.manager.SendTo(ctx, noticeType, notification.EmailSystem, nd)
	if err != nil {
		slog.Error("Error sending email", "type", noticeType, "to", to, "err", err)
	}

	if s.manager.HasNotifier(notification.EventSystem) {
		if evErr := s.manager.SendTo(ctx, noticeType, notification.EventSystem, nd); evErr != nil {
			slog.Warn("Failed to publish notice event", "type", noticeType, "err", evErr)
		}
	}
	return err
}
