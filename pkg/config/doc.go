// Package config reads the social grant service configuration from the environment.
//
// Settings are plain structs tagged for cleanenv and grouped by concern. Load reads an
// optional .env file with godotenv before the environment is parsed:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Sections convert to the types the service packages expect:
//
//	esignetCfg := cfg.Esignet.ToEsignetConfig()
//	smtpCfg := cfg.Email.ToSMTPConfig()
//	nexusCfg := cfg.Nexus.ToNexusConfig(cfg.Email)
//	limits := cfg.RateLimit.ToRateLimitConfig() // nil when disabled
//	dbURL := cfg.Database.ToDatabaseURL()
package config
