package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// NotificationManager manages notifiers and notification templates.
type NotificationManager struct {
	mu                   sync.RWMutex
	notifiers            map[NotificationSystem]Notifier
	notificationRegistry map[NoticeType]map[NotificationSystem]NoticeTemplate
}

// NewNotificationManager creates and returns a new NotificationManager.
func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		notifiers:            make(map[NotificationSystem]Notifier),
		notificationRegistry: make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a specific system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.notifiers[system] = notifier
}

// HasNotifier reports whether a notifier is registered for the system
func (nm *NotificationManager) HasNotifier(system NotificationSystem) bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	_, ok := nm.notifiers[system]
	return ok
}

// RegisterNotification adds a template for a notice type on one system.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	if noticeType == "" || system == "" {
		return fmt.Errorf("invalid input: notice type and system cannot be empty")
	}
	if template.Subject == "" {
		return fmt.Errorf("invalid template: subject cannot be empty")
	}
	if template.Text == "" && template.Html == "" {
		return fmt.Errorf("invalid template: text or html body is required")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, exists := nm.notificationRegistry[noticeType]; !exists {
		nm.notificationRegistry[noticeType] = make(map[NotificationSystem]NoticeTemplate)
	}
	nm.notificationRegistry[noticeType][system] = template
	return nil
}

// SendTo delivers a notice over a single system.
func (nm *NotificationManager) SendTo(ctx context.Context, noticeType NoticeType, system NotificationSystem, notification NotificationData) error {
	nm.mu.RLock()
	template, hasTemplate := nm.notificationRegistry[noticeType][system]
	notifier, hasNotifier := nm.notifiers[system]
	nm.mu.RUnlock()

	if !hasTemplate {
		return fmt.Errorf("no template registered for system: %s under notice type: %s", system, noticeType)
	}
	if !hasNotifier {
		return fmt.Errorf("no notifier registered for system: %s", system)
	}

	return notifier.Send(ctx, noticeType, notification, template)
}

// Send delivers a notice over every system that has both a template and a notifier.
func (nm *NotificationManager) Send(ctx context.Context, noticeType NoticeType, notification NotificationData) error {
	nm.mu.RLock()
	systemTemplates, exists := nm.notificationRegistry[noticeType]
	systems := make([]NotificationSystem, 0, len(systemTemplates))
	for system := range systemTemplates {
		if _, ok := nm.notifiers[system]; ok {
			systems = append(systems, system)
		}
	}
	nm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no templates registered for notice type: %s", noticeType)
	}
	if len(systems) == 0 {
		return fmt.Errorf("no notifier registered for notice type: %s", noticeType)
	}

	var errs []error
	for _, system := range systems {
		if err := nm.SendTo(ctx, noticeType, system, notification); err != nil {
			slog.Error("Notification delivery failed", "system", system, "type", noticeType, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", system, err))
		}
	}
	return errors.Join(errs...)
}
