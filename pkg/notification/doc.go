// Package notification delivers templated notices over pluggable channels.
//
// A NotificationManager keeps one Notifier per NotificationSystem and one
// NoticeTemplate per (NoticeType, NotificationSystem) pair. Templates are
// rendered with text/template for the plain body and html/template for the
// HTML body.
//
// Email can go through the Nexus mail API (NexusNotifier) or plain SMTP
// (EmailNotifier). EventNotifier publishes a JSON record of each notice to
// a Kafka topic.
//
//	nm, err := notification.NewNotificationManagerWithOptions(
//	    notification.WithNexus(notification.NexusConfig{Enabled: true, Token: token}, nil),
//	    notification.WithTemplate(notification.TestEmailNotice, notification.EmailSystem, notification.NoticeTemplate{
//	        Subject: "Test",
//	        Text:    "Hello {{.name}}",
//	    }),
//	)
//	err = nm.SendTo(ctx, notification.TestEmailNotice, notification.EmailSystem, notification.NotificationData{
//	    To:   "someone@example.com",
//	    Data: map[string]interface{}{"name": "Asha"},
//	})
//
// MockNotifier records calls for tests.
package notification
