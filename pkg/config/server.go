package config

import (
	"time"

	"github.com/vlinder/social-grant/pkg/ratelimit"
	"github.com/vlinder/social-grant/pkg/upload"
)

// StorageConfig selects where address proof documents are written; S3 is used when Bucket is set
type StorageConfig struct {
	UploadDir      string `env:"UPLOAD_DIR" env-default:"uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES" env-default:"5242880"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Prefix       string `env:"S3_PREFIX" env-default:"address-proofs/"`
}

func (s StorageConfig) UseS3() bool {
	return s.S3Bucket != ""
}

func (s StorageConfig) Limits() upload.Limits {
	limits := upload.DefaultLimits()
	if s.UploadMaxBytes > 0 {
		limits.MaxBytes = s.UploadMaxBytes
	}
	return limits
}

func (s StorageConfig) validate() ValidationErrors {
	errs := CollectErrors(
		WhenSet(s.S3Endpoint, func() *ValidationError { return RequireValidURL("S3_ENDPOINT", s.S3Endpoint) }),
	)
	if s.UploadMaxBytes <= 0 {
		errs = append(errs, ValidationError{Field: "UPLOAD_MAX_BYTES", Message: "must be positive"})
	}
	if !s.UseS3() {
		errs = append(errs, CollectErrors(RequireNonEmpty("UPLOAD_DIR", s.UploadDir))...)
	}
	return errs
}

// CredentialFeedConfig points at the CSV file the credential issuer reads
type CredentialFeedConfig struct {
	CSVPath string `env:"CREDENTIAL_CSV_PATH" env-default:"data/social_grant_credentials.csv"`
}

// RateLimitConfig limits are expressed per minute
type RateLimitConfig struct {
	Enabled           bool          `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	GlobalPerMinute   int           `env:"RATE_LIMIT_GLOBAL_PER_MINUTE" env-default:"1000"`
	PerIPPerMinute    int           `env:"RATE_LIMIT_PER_IP_PER_MINUTE" env-default:"100"`
	AdminPerMinute    int           `env:"RATE_LIMIT_ADMIN_PER_MINUTE" env-default:"200"`
	SubmitPerMinute   int           `env:"RATE_LIMIT_SUBMIT_PER_MINUTE" env-default:"10"`
	PurchasePerMinute int           `env:"RATE_LIMIT_PURCHASE_PER_MINUTE" env-default:"30"`
	UserInfoPerMinute int           `env:"RATE_LIMIT_USERINFO_PER_MINUTE" env-default:"20"`
	BucketTTL         time.Duration `env:"RATE_LIMIT_BUCKET_TTL" env-default:"1h"`
	IncludeHeaders    bool          `env:"RATE_LIMIT_INCLUDE_HEADERS" env-default:"true"`
}

// ToRateLimitConfig returns nil when rate limiting is disabled.
// A zero per-minute value turns that limit off.
func (c RateLimitConfig) ToRateLimitConfig() *ratelimit.Config {
	if !c.Enabled {
		return nil
	}

	cfg := ratelimit.DefaultConfig()
	cfg.BucketTTL = c.BucketTTL
	cfg.IncludeHeaders = c.IncludeHeaders

	global := ratelimit.PerMinute(c.GlobalPerMinute)
	cfg.GlobalEnabled = c.GlobalPerMinute > 0
	cfg.GlobalCapacity, cfg.GlobalRefillRate = global.Capacity, global.RefillRate

	perIP := ratelimit.PerMinute(c.PerIPPerMinute)
	cfg.PerIPEnabled = c.PerIPPerMinute > 0
	cfg.PerIPCapacity, cfg.PerIPRefillRate = perIP.Capacity, perIP.RefillRate

	admin := ratelimit.PerMinute(c.AdminPerMinute)
	cfg.PerUserEnabled = c.AdminPerMinute > 0
	cfg.PerUserCapacity, cfg.PerUserRefillRate = admin.Capacity, admin.RefillRate

	endpoints := map[string]int{
		"POST /api/applications":                  c.SubmitPerMinute,
		"POST /api/applications/purchase/confirm": c.PurchasePerMinute,
		"POST /fetchUserInfo":                     c.UserInfoPerMinute,
	}
	for key, perMinute := range endpoints {
		if perMinute > 0 {
			cfg.EndpointLimits[key] = ratelimit.PerMinute(perMinute)
		}
	}
	return cfg
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:3005,http://localhost:5173,https://mosip-dev.klefki.io,https://e-governance.klefki.io"`
	MaxAge         int      `env:"CORS_MAX_AGE" env-default:"300"`
}

// AdminAuthConfig protects the review endpoints with HS256 bearer tokens when Enabled
type AdminAuthConfig struct {
	Enabled bool   `env:"ADMIN_AUTH_ENABLED" env-default:"false"`
	Secret  string `env:"ADMIN_JWT_SECRET"`
}

func (a AdminAuthConfig) validate() ValidationErrors {
	if !a.Enabled {
		return nil
	}
	return CollectErrors(RequireNonEmpty("ADMIN_JWT_SECRET", a.Secret))
}

type OutboxConfig struct {
	Schedule    string        `env:"OUTBOX_SCHEDULE" env-default:"@every 1m"`
	MaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" env-default:"5"`
	Backoff     time.Duration `env:"OUTBOX_BACKOFF" env-default:"1m"`
}

func (o OutboxConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireNonEmpty("OUTBOX_SCHEDULE", o.Schedule),
		RequirePositive("OUTBOX_MAX_ATTEMPTS", o.MaxAttempts),
		RequirePositiveDuration("OUTBOX_BACKOFF", o.Backoff),
	)
}

type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" env-default:"true"`
	Path    string `env:"METRICS_PATH" env-default:"/metrics"`
}
