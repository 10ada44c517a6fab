package notification

import (
	"fmt"
	"log/slog"
	"net/http"
)

// NotificationManagerOption is a function that configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP registers an SMTP email notifier
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithNexus registers the Nexus mail API as the email notifier
func WithNexus(config NexusConfig, httpClient *http.Client) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nexus := NewNexusNotifier(config, httpClient)
		if !nexus.Configured() {
			slog.Warn("Nexus email service is not configured; emails will fail until NEXUS_ENABLED and NEXUS_TOKEN are set")
		}
		nm.RegisterNotifier(EmailSystem, nexus)
		return nil
	}
}

// WithEvents registers a Kafka event notifier
func WithEvents(producer Producer, topic string) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		if producer == nil || topic == "" {
			return fmt.Errorf("event notifier requires a producer and a topic")
		}
		nm.RegisterNotifier(EventSystem, NewEventNotifier(producer, topic))
		return nil
	}
}

// WithTemplate registers one notice template
func WithTemplate(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(noticeType, system, template)
	}
}

// NewNotificationManagerWithOptions creates a new notification manager with the provided options
func NewNotificationManagerWithOptions(opts ...NotificationManagerOption) (*NotificationManager, error) {
	notificationManager := NewNotificationManager()

	for _, opt := range opts {
		if err := opt(notificationManager); err != nil {
			return nil, err
		}
	}

	return notificationManager, nil
}
