package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterNotifier(t *testing.T) {
	nm := NewNotificationManager()
	mockNotifier := &MockNotifier{}

	nm.RegisterNotifier(EmailSystem, mockNotifier)
	assert.True(t, nm.HasNotifier(EmailSystem))
	assert.False(t, nm.HasNotifier(EventSystem))

	newMockNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, newMockNotifier)
	assert.Same(t, newMockNotifier, nm.notifiers[EmailSystem])
}

func TestRegisterNotification(t *testing.T) {
	nm := NewNotificationManager()

	tests := []struct {
		name        string
		notifType   NoticeType
		system      NotificationSystem
		template    NoticeTemplate
		shouldError bool
	}{
		{
			name:      "text and html",
			notifType: TestEmailNotice,
			system:    EmailSystem,
			template:  NoticeTemplate{Subject: "Test", Text: "hello", Html: "<p>hello</p>"},
		},
		{
			name:      "text only",
			notifType: TestEmailNotice,
			system:    EmailSystem,
			template:  NoticeTemplate{Subject: "Test", Text: "hello"},
		},
		{
			name:      "html only",
			notifType: TestEmailNotice,
			system:    EmailSystem,
			template:  NoticeTemplate{Subject: "Test", Html: "<p>hello</p>"},
		},
		{
			name:        "empty notice type",
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Test", Text: "hello"},
			shouldError: true,
		},
		{
			name:        "empty system",
			notifType:   TestEmailNotice,
			template:    NoticeTemplate{Subject: "Test", Text: "hello"},
			shouldError: true,
		},
		{
			name:        "empty subject",
			notifType:   TestEmailNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Text: "hello"},
			shouldError: true,
		},
		{
			name:        "no body",
			notifType:   TestEmailNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Test"},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := nm.RegisterNotification(tt.notifType, tt.system, tt.template)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.template, nm.notificationRegistry[tt.notifType][tt.system])
		})
	}
}

func TestSend(t *testing.T) {
	nm := NewNotificationManager()
	email := &MockNotifier{}
	events := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, email)
	nm.RegisterNotifier(EventSystem, events)

	emailTemplate := NoticeTemplate{Subject: "Approved", Text: "Hi {{.fullName}}"}
	eventTemplate := NoticeTemplate{Subject: "Approved", Text: "{{.applicationId}}"}
	require.NoError(t, nm.RegisterNotification(GrantApprovedNotice, EmailSystem, emailTemplate))
	require.NoError(t, nm.RegisterNotification(GrantApprovedNotice, EventSystem, eventTemplate))

	data := NotificationData{To: "asha@example.com", Data: map[string]interface{}{"fullName": "Asha"}}
	require.NoError(t, nm.Send(context.Background(), GrantApprovedNotice, data))

	require.Len(t, email.Sent(), 1)
	assert.Equal(t, SentNotice{Type: GrantApprovedNotice, Data: data, Template: emailTemplate}, email.Sent()[0])
	require.Len(t, events.Sent(), 1)
	assert.Equal(t, eventTemplate, events.Sent()[0].Template)
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()
	data := NotificationData{To: "asha@example.com"}

	t.Run("unknown notice type", func(t *testing.T) {
		nm := NewNotificationManager()
		assert.Error(t, nm.Send(ctx, GrantApprovedNotice, data))
	})

	t.Run("template without notifier", func(t *testing.T) {
		nm := NewNotificationManager()
		require.NoError(t, nm.RegisterNotification(GrantApprovedNotice, EmailSystem, NoticeTemplate{Subject: "s", Text: "t"}))
		assert.Error(t, nm.Send(ctx, GrantApprovedNotice, data))
		assert.Error(t, nm.SendTo(ctx, GrantApprovedNotice, EmailSystem, data))
	})

	t.Run("notifier without template", func(t *testing.T) {
		nm := NewNotificationManager()
		nm.RegisterNotifier(EmailSystem, &MockNotifier{})
		assert.Error(t, nm.SendTo(ctx, PurchaseConfirmedNotice, EmailSystem, data))
	})

	t.Run("one channel fails", func(t *testing.T) {
		nm := NewNotificationManager()
		boom := errors.New("smtp down")
		ok := &MockNotifier{}
		nm.RegisterNotifier(EmailSystem, &MockNotifier{Err: boom})
		nm.RegisterNotifier(EventSystem, ok)
		tpl := NoticeTemplate{Subject: "s", Text: "t"}
		require.NoError(t, nm.RegisterNotification(GrantApprovedNotice, EmailSystem, tpl))
		require.NoError(t, nm.RegisterNotification(GrantApprovedNotice, EventSystem, tpl))

		err := nm.Send(ctx, GrantApprovedNotice, data)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, ok.Sent(), 1)
	})
}

func TestRender(t *testing.T) {
	msg, err := Render(
		NotificationData{To: "a@example.com", Data: map[string]interface{}{"name": "<Asha>"}},
		NoticeTemplate{Subject: "Hi", Text: "Hello {{.name}}", Html: "<p>{{.name}}</p>"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello <Asha>", msg.Text)
	assert.Equal(t, "<p>&lt;Asha&gt;</p>", msg.Html)

	_, err = Render(NotificationData{}, NoticeTemplate{Subject: "Hi", Text: "{{.broken"})
	assert.Error(t, err)
}

func TestWithEventsRequiresProducer(t *testing.T) {
	_, err := NewNotificationManagerWithOptions(WithEvents(nil, "notices"))
	assert.Error(t, err)
}
