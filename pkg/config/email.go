package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vlinder/social-grant/pkg/notification"
)

// NexusConfig configures the Nexus mail API transport
type NexusConfig struct {
	Enabled    bool          `env:"NEXUS_ENABLED" env-default:"false"`
	URL        string        `env:"NEXUS_URL" env-default:"https://api-nexus.vlinder.io/v1/mail/now"`
	Token      string        `env:"NEXUS_TOKEN"`
	DomainName string        `env:"NEXUS_DOMAIN_NAME" env-default:"mail.vlinder.io"`
	Timeout    time.Duration `env:"NEXUS_TIMEOUT" env-default:"30s"`
	RetryMax   int           `env:"NEXUS_RETRY_MAX" env-default:"2"`
}

// EmailConfig holds the sender identity and the SMTP settings
type EmailConfig struct {
	Transport   string `env:"MAIL_TRANSPORT" env-default:"nexus"`
	SenderEmail string `env:"SENDER_EMAIL" env-default:"noreply@vlinder.io"`
	SenderName  string `env:"SENDER_NAME" env-default:"Invia Social Grants"`
	WalletURL   string `env:"WALLET_URL"`
	TimeZone    string `env:"NOTICE_TIME_ZONE" env-default:"Local"`

	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// From formats the sender as "Name <address>"
func (e EmailConfig) From() string {
	if e.SenderName == "" {
		return e.SenderEmail
	}
	return fmt.Sprintf("%s <%s>", e.SenderName, e.SenderEmail)
}

// Location resolves NOTICE_TIME_ZONE, falling back to the local zone
func (e EmailConfig) Location() *time.Location {
	if e.TimeZone == "" || strings.EqualFold(e.TimeZone, "Local") {
		return time.Local
	}
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From(),
		TLS:      e.TLS,
	}
}

func (n NexusConfig) ToNexusConfig(email EmailConfig) notification.NexusConfig {
	return notification.NexusConfig{
		Enabled:    n.Enabled,
		URL:        n.URL,
		Token:      n.Token,
		DomainName: n.DomainName,
		From:       email.From(),
		Timeout:    n.Timeout,
		RetryMax:   n.RetryMax,
	}
}

func (n NexusConfig) validate() ValidationErrors {
	return CollectErrors(
		WhenSet(n.URL, func() *ValidationError { return RequireValidURL("NEXUS_URL", n.URL) }),
	)
}

func (e EmailConfig) validate(nexus NexusConfig) ValidationErrors {
	errs := CollectErrors(
		RequireOneOf("MAIL_TRANSPORT", e.Transport, []string{MailTransportNexus, MailTransportSMTP}),
		RequireValidEmail("SENDER_EMAIL", e.SenderEmail),
	)
	if e.Transport == MailTransportNexus && nexus.Enabled {
		errs = append(errs, CollectErrors(RequireNonEmpty("NEXUS_TOKEN", nexus.Token))...)
	}
	if e.Transport == MailTransportSMTP {
		errs = append(errs, CollectErrors(RequireNonEmpty("EMAIL_HOST", e.Host))...)
	}
	return errs
}

// KafkaConfig enables event publishing when Brokers is set
type KafkaConfig struct {
	Brokers      string `env:"KAFKA_BROKERS"`
	ClientID     string `env:"KAFKA_CLIENT_ID" env-default:"social-grant"`
	EventsTopic  string `env:"KAFKA_APPLICATION_TOPIC" env-default:"social-grant.applications"`
	NoticesTopic string `env:"KAFKA_NOTICE_TOPIC" env-default:"social-grant.notices"`
}

func (k KafkaConfig) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}
