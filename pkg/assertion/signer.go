package assertion

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ClientAssertionType is sent alongside every client_assertion form field
	ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a client assertion stays valid
	DefaultLifetime = 10 * time.Minute
)

// ClientAssertion is a signed, short-lived token proving client identity to the identity provider
type ClientAssertion struct {
	Issuer    string
	Subject   string
	Audience  string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Token     string
}

// KeyImportError is returned when the configured signing key cannot be loaded
type KeyImportError struct {
	Reason string
	Err    error
}

func (e *KeyImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to import client signing key: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to import client signing key: %s", e.Reason)
}

func (e *KeyImportError) Unwrap() error { return e.Err }

// SigningError is returned when the assertion cannot be signed
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign client assertion: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// Signer builds RS256 client assertions
type Signer struct {
	privateKey *rsa.PrivateKey
	keyID      string
	lifetime   time.Duration
	now        func() time.Time
	newID      func() string
}

// Option configures a Signer
type Option func(*Signer)

// WithKeyID sets the kid header on every assertion
func WithKeyID(kid string) Option {
	return func(s *Signer) {
		s.keyID = kid
	}
}

// WithLifetime overrides the default 10 minute validity window
func WithLifetime(d time.Duration) Option {
	return func(s *Signer) {
		s.lifetime = d
	}
}

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithIDGenerator replaces the jti generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Signer) {
		s.newID = fn
	}
}

// NewSigner creates a signer around an already parsed key
func NewSigner(privateKey *rsa.PrivateKey, opts ...Option) (*Signer, error) {
	if privateKey == nil {
		return nil, &KeyImportError{Reason: "no private key configured"}
	}
	s := &Signer{
		privateKey: privateKey,
		lifetime:   DefaultLifetime,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSignerFromPEM parses a PKCS#8 or PKCS#1 PEM key and creates a signer
func NewSignerFromPEM(pemData string, opts ...Option) (*Signer, error) {
	key, err := DecodePrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, opts...)
}

// NewSignerFromFile reads the PEM key from disk
func NewSignerFromFile(path string, opts ...Option) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &KeyImportError{Reason: fmt.Sprintf("cannot read %s", path), Err: err}
	}
	return NewSignerFromPEM(string(data), opts...)
}

// Sign produces an assertion with iss = sub = clientID bound to audience
func (s *Signer) Sign(clientID, audience string) (ClientAssertion, error) {
	if clientID == "" {
		return ClientAssertion{}, fmt.Errorf("client id is required")
	}
	if audience == "" {
		return ClientAssertion{}, fmt.Errorf("audience is required")
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.lifetime)
	jti := s.newID()

	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        jti,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		slog.Error("Failed to sign client assertion", "client_id", clientID, "err", err)
		return ClientAssertion{}, &SigningError{Err: err}
	}

	return ClientAssertion{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  audience,
		ID:        jti,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Token:     signed,
	}, nil
}

// DecodePrivateKeyFromPEM decodes an RSA private key in PKCS#8 (PRIVATE KEY) or
// PKCS#1 (RSA PRIVATE KEY) form. Escaped newlines from env files are accepted.
func DecodePrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	pemData = strings.TrimSpace(strings.ReplaceAll(pemData, `\n`, "\n"))
	if pemData == "" {
		return nil, &KeyImportError{Reason: "empty PEM data"}
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, &KeyImportError{Reason: "failed to decode PEM block"}
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, &KeyImportError{Reason: "invalid PKCS#1 private key", Err: err}
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, &KeyImportError{Reason: "invalid PKCS#8 private key", Err: err}
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, &KeyImportError{Reason: fmt.Sprintf("expected RSA key, got %T", parsed)}
		}
		return key, nil
	default:
		return nil, &KeyImportError{Reason: fmt.Sprintf("unsupported PEM block type %q", block.Type)}
	}
}
