package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultNexusURL    = "https://api-nexus.vlinder.io/v1/mail/now"
	DefaultNexusDomain = "mail.vlinder.io"
	DefaultSender      = "Invia Social Grants <noreply@vlinder.io>"
)

// ErrNexusNotConfigured is returned when sending without NEXUS_ENABLED or a token
var ErrNexusNotConfigured = errors.New("nexus email service is not configured")

type NexusConfig struct {
	Enabled    bool
	URL        string
	Token      string
	DomainName string
	From       string
	Timeout    time.Duration
	RetryMax   int
}

// NexusNotifier sends email through the Nexus mail API
type NexusNotifier struct {
	config NexusConfig
	client *retryablehttp.Client
}

type nexusRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html"`
	Text    string   `json:"text"`
	TxnID   string   `json:"txn_id"`
	Domain  string   `json:"domain"`
}

// NewNexusNotifier creates a Nexus notifier; a nil httpClient uses a client with the configured timeout
func NewNexusNotifier(config NexusConfig, httpClient *http.Client) *NexusNotifier {
	if config.URL == "" {
		config.URL = DefaultNexusURL
	}
	if config.DomainName == "" {
		config.DomainName = DefaultNexusDomain
	}
	if config.From == "" {
		config.From = DefaultSender
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryMax < 0 {
		config.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = slog.Default()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	client.HTTPClient.Timeout = config.Timeout

	return &NexusNotifier{config: config, client: client}
}

// Configured reports whether the notifier may send
func (n *NexusNotifier) Configured() bool {
	return n.config.Enabled && n.config.Token != ""
}

func (n *NexusNotifier) Send(ctx context.Context, noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	if !n.Configured() {
		return ErrNexusNotConfigured
	}
	if notification.To == "" {
		return fmt.Errorf("email notification requires 'To' address")
	}

	msg, err := Render(notification, template)
	if err != nil {
		return err
	}

	payload := nexusRequest{
		From:    n.config.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.Html,
		Text:    msg.Text,
		TxnID:   uuid.NewString(),
		Domain:  n.config.DomainName,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode nexus request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create nexus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.config.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("nexus email failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := gjson.GetBytes(respBody, "message").String()
		if message == "" {
			message = string(bytes.TrimSpace(respBody))
		}
		return fmt.Errorf("nexus email failed with status %d: %s", resp.StatusCode, message)
	}

	slog.Info("Email sent via Nexus", "type", noticeType, "to", msg.To, "txn_id", payload.TxnID)
	return nil
}
