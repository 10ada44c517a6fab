package config

import (
	"strings"
	"time"

	"github.com/vlinder/social-grant/pkg/esignet"
)

// EsignetConfig holds the relying party settings for the eSignet provider
type EsignetConfig struct {
	ServiceURL  string        `env:"ESIGNET_SERVICE_URL" env-default:"https://mosip-dev.klefki.io/v1/esignet"`
	AudURL      string        `env:"ESIGNET_AUD_URL"`
	PARAudURL   string        `env:"ESIGNET_PAR_AUD_URL"`
	PAREndpoint string        `env:"ESIGNET_PAR_ENDPOINT"`
	JWKSURL     string        `env:"ESIGNET_JWKS_URL"`
	HTTPTimeout time.Duration `env:"ESIGNET_HTTP_TIMEOUT" env-default:"30s"`

	// PEM encoded RSA key, inline or in a file
	ClientPrivateKey     string `env:"CLIENT_PRIVATE_KEY"`
	ClientPrivateKeyFile string `env:"CLIENT_PRIVATE_KEY_FILE"`
	ClientKeyID          string `env:"CLIENT_KEY_ID"`

	UserInfoResponseType    string `env:"USERINFO_RESPONSE_TYPE" env-default:"jwe"`
	UserInfoPrivateKey      string `env:"JWE_USERINFO_PRIVATE_KEY"`
	UserInfoVerifySignature bool   `env:"USERINFO_VERIFY_SIGNATURE" env-default:"false"`

	Scope               string `env:"SCOPE_USER_PROFILE"`
	ResponseType        string `env:"RESPONSE_TYPE"`
	RedirectURI         string `env:"REDIRECT_URI_USER_PROFILE"`
	FallbackRedirectURI string `env:"REDIRECT_URI"`
	Display             string `env:"DISPLAY"`
	Prompt              string `env:"PROMPT"`
	ACRValues           string `env:"ACRS"`
	ClaimsLocales       string `env:"CLAIMS_LOCALES"`
	UILocales           string `env:"DEFAULT_UI_LOCALES"`
	GrantType           string `env:"GRANT_TYPE"`
	Claims              string `env:"CLAIMS_USER_PROFILE"`
}

// ToEsignetConfig fills the audiences and the PAR endpoint from the service URL when they are unset
func (e EsignetConfig) ToEsignetConfig() esignet.Config {
	base := strings.TrimRight(strings.TrimSpace(e.ServiceURL), "/")

	cfg := esignet.Config{
		ServiceURL:           base,
		TokenAudience:        e.AudURL,
		PARAudience:          e.PARAudURL,
		PAREndpoint:          e.PAREndpoint,
		UserInfoResponseType: e.UserInfoResponseType,
		Details: esignet.ClientDetails{
			Scope:         e.Scope,
			ResponseType:  e.ResponseType,
			RedirectURI:   e.RedirectURI,
			Display:       e.Display,
			Prompt:        e.Prompt,
			ACRValues:     e.ACRValues,
			ClaimsLocales: e.ClaimsLocales,
			UILocales:     e.UILocales,
			GrantType:     e.GrantType,
			Claims:        e.Claims,
		},
	}
	if cfg.TokenAudience == "" {
		cfg.TokenAudience = base + "/oauth/v2/token"
	}
	if cfg.PAREndpoint == "" {
		cfg.PAREndpoint = base + "/oauth/v2/par"
	}
	if cfg.PARAudience == "" {
		cfg.PARAudience = cfg.PAREndpoint
	}
	if cfg.Details.RedirectURI == "" {
		cfg.Details.RedirectURI = e.FallbackRedirectURI
	}
	return cfg
}

// VerifyUserInfo reports whether userinfo signatures are checked against the provider keys
func (e EsignetConfig) VerifyUserInfo() bool {
	return e.UserInfoVerifySignature && e.JWKSURL != ""
}

func (e EsignetConfig) validate() ValidationErrors {
	errs := CollectErrors(
		RequireValidURL("ESIGNET_SERVICE_URL", e.ServiceURL),
		RequirePositiveDuration("ESIGNET_HTTP_TIMEOUT", e.HTTPTimeout),
		RequireOneOf("USERINFO_RESPONSE_TYPE", e.UserInfoResponseType, []string{"jwe", "jwt"}),
		WhenSet(e.AudURL, func() *ValidationError { return RequireValidURL("ESIGNET_AUD_URL", e.AudURL) }),
		WhenSet(e.PARAudURL, func() *ValidationError { return RequireValidURL("ESIGNET_PAR_AUD_URL", e.PARAudURL) }),
		WhenSet(e.PAREndpoint, func() *ValidationError { return RequireValidURL("ESIGNET_PAR_ENDPOINT", e.PAREndpoint) }),
		WhenSet(e.JWKSURL, func() *ValidationError { return RequireValidURL("ESIGNET_JWKS_URL", e.JWKSURL) }),
	)
	if e.ClientPrivateKey == "" && e.ClientPrivateKeyFile == "" {
		errs = append(errs, ValidationError{Field: "CLIENT_PRIVATE_KEY", Message: "CLIENT_PRIVATE_KEY or CLIENT_PRIVATE_KEY_FILE is required"})
	}
	if e.UserInfoVerifySignature && e.JWKSURL == "" {
		errs = append(errs, ValidationError{Field: "ESIGNET_JWKS_URL", Message: "is required when USERINFO_VERIFY_SIGNATURE is true"})
	}
	return errs
}
