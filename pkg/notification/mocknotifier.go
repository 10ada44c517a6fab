package notification

import (
	"context"
	"sync"
)

// SentNotice is one call recorded by MockNotifier
type SentNotice struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

type MockNotifier struct {
	mu   sync.Mutex
	Err  error
	sent []SentNotice
}

func (m *MockNotifier) Send(ctx context.Context, noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentNotice{Type: noticeType, Data: notification, Template: template})
	return nil
}

func (m *MockNotifier) Sent() []SentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentNotice(nil), m.sent...)
}
