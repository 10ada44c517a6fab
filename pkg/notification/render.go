package notification

import (
	"bytes"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
)

// Message is a notice rendered for one recipient
type Message struct {
	To      string
	Subject string
	Text    string
	Html    string
}

// Render executes the template bodies against the notification data
func Render(notification NotificationData, tpl NoticeTemplate) (Message, error) {
	msg := Message{To: notification.To, Subject: tpl.Subject}

	if tpl.Text != "" {
		t, err := texttemplate.New("text").Option("missingkey=zero").Parse(tpl.Text)
		if err != nil {
			slog.Error("Failed to parse text template", "err", err)
			return Message{}, err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, notification.Data); err != nil {
			slog.Error("Failed to execute text template", "err", err)
			return Message{}, err
		}
		msg.Text = buf.String()
	}

	if tpl.Html != "" {
		t, err := htmltemplate.New("html").Parse(tpl.Html)
		if err != nil {
			slog.Error("Failed to parse HTML template", "err", err)
			return Message{}, err
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, notification.Data); err != nil {
			slog.Error("Failed to execute HTML template", "err", err)
			return Message{}, err
		}
		msg.Html = buf.String()
	}

	return msg, nil
}
