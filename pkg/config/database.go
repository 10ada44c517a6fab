package config

import "fmt"

// DatabaseConfig holds the PostgreSQL connection used by the postgres store and the outbox
type DatabaseConfig struct {
	Host     string `env:"GRANT_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"GRANT_PG_PORT" env-default:"5432"`
	Database string `env:"GRANT_PG_DATABASE" env-default:"grant_db"`
	User     string `env:"GRANT_PG_USER" env-default:"grant"`
	Password string `env:"GRANT_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"GRANT_PG_SCHEMA" env-default:"public"`
}

func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

type MongoConfig struct {
	URI      string `env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" env-default:"social-grant-app"`
}

// RedisConfig enables the Redis application sequence when URL is set
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
	Key string `env:"REDIS_SEQUENCE_KEY" env-default:"social-grant:application:seq"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}
