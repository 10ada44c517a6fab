package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
)

// Application store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Mail transports
const (
	MailTransportNexus = "nexus"
	MailTransportSMTP  = "smtp"
)

// Config is the complete social grant service configuration, read from the environment
type Config struct {
	AppConfig app.AppConfig

	// Store picks the application repository and its sequence
	Store string `env:"APPLICATION_STORE" env-default:"mongo"`

	Database       DatabaseConfig
	Mongo          MongoConfig
	Redis          RedisConfig
	Esignet        EsignetConfig
	Nexus          NexusConfig
	Email          EmailConfig
	Kafka          KafkaConfig
	Storage        StorageConfig
	CredentialFeed CredentialFeedConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	AdminAuth      AdminAuthConfig
	Outbox         OutboxConfig
	Metrics        MetricsConfig

	TestEmailEndpointEnabled bool `env:"TEST_EMAIL_ENDPOINT_ENABLED" env-default:"false"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	LoadEnvFile()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads .env from the executable's directory, falling back to the working directory.
// A missing file is not an error.
func LoadEnvFile() {
	envFile := ""
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
	}
	if _, err := os.Stat(envFile); envFile == "" || os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// Validate checks the settings the selected backends depend on
func (c *Config) Validate() error {
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequireOneOf("APPLICATION_STORE", c.Store, []string{StoreMemory, StorePostgres, StoreMongo}),
			)
		},
		func() ValidationErrors {
			if c.Store != StoreMongo {
				return nil
			}
			return CollectErrors(RequireNonEmpty("MONGODB_URI", c.Mongo.URI))
		},
		c.Esignet.validate,
		c.Nexus.validate,
		func() ValidationErrors { return c.Email.validate(c.Nexus) },
		c.Storage.validate,
		c.AdminAuth.validate,
		c.Outbox.validate,
	)
}
