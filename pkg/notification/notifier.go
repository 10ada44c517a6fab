package notification

import (
	"context"
)

// NotificationSystem represents a delivery channel (e.g. email, event stream).
type NotificationSystem string

// NoticeType represents a kind of notice (e.g. "grant_approved").
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"
	EventSystem NotificationSystem = "event"

	GrantApprovedNotice     NoticeType = "grant_approved"
	PurchaseConfirmedNotice NoticeType = "purchase_confirmed"
	TestEmailNotice         NoticeType = "test_email"
)

// NoticeTemplate holds the subject and the text/html bodies of a notice.
// Text and Html are Go templates executed against NotificationData.Data.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type NotificationData struct {
	To   string                 // Recipient address
	Data map[string]interface{} // Template values
}

// Notifier delivers a rendered notice over one channel
type Notifier interface {
	Send(ctx context.Context, noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
