package userinfo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ResponseTypeJWE marks userinfo responses delivered as encrypted envelopes
	ResponseTypeJWE = "jwe"
	// ResponseTypeJWT marks userinfo responses delivered as signed tokens
	ResponseTypeJWT = "jwt"

	// DefaultKeyAlgorithm is assumed when the configured JWK carries no alg
	DefaultKeyAlgorithm = string(jose.RSA_OAEP_256)
)

// Claims is the decoded userinfo claim set
type Claims map[string]interface{}

// DecodeError wraps any failure to turn a userinfo response into claims
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to decode userinfo response: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("failed to decode userinfo response: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// SignatureVerifier checks a compact JWS and returns its payload.
// *oidc.RemoteKeySet and oidc.StaticKeySet both satisfy it.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, jwt string) ([]byte, error)
}

// Decoder turns eSignet userinfo responses into claims
type Decoder struct {
	encodedKey string
	verifier   SignatureVerifier
}

// Option configures a Decoder
type Option func(*Decoder)

// WithDecryptionKey sets the base64 encoded JWK or JWKS used for JWE responses
func WithDecryptionKey(encoded string) Option {
	return func(d *Decoder) {
		d.encodedKey = strings.TrimSpace(encoded)
	}
}

// WithSignatureVerifier enables signature verification of the userinfo token
func WithSignatureVerifier(v SignatureVerifier) Option {
	return func(d *Decoder) {
		d.verifier = v
	}
}

// NewDecoder creates a userinfo decoder
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decrypts (when hinted and shaped as a JWE) and decodes the userinfo response
func (d *Decoder) Decode(ctx context.Context, raw string, responseTypeHint string) (Claims, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return nil, &DecodeError{Reason: "empty response"}
	}

	token := raw
	if strings.EqualFold(responseTypeHint, ResponseTypeJWE) && len(strings.Split(raw, ".")) == 5 {
		plaintext, err := d.decrypt(raw)
		if err != nil {
			return nil, err
		}
		token = strings.TrimSpace(string(plaintext))
	}

	if d.verifier != nil {
		payload, err := d.verifier.VerifySignature(ctx, token)
		if err != nil {
			return nil, &DecodeError{Reason: "signature verification failed", Cause: err}
		}
		claims := Claims{}
		if err := json.Unmarshal(payload, &claims); err != nil {
			return nil, &DecodeError{Reason: "invalid claims payload", Cause: err}
		}
		return claims, nil
	}

	return decodeUnverified(token)
}

func (d *Decoder) decrypt(raw string) ([]byte, error) {
	jwk, err := d.loadKey()
	if err != nil {
		return nil, err
	}

	object, err := jose.ParseEncrypted(raw)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed JWE", Cause: err}
	}
	if object.Header.Algorithm != "" && object.Header.Algorithm != jwk.Algorithm {
		return nil, &DecodeError{Reason: fmt.Sprintf("JWE alg %s does not match key alg %s", object.Header.Algorithm, jwk.Algorithm)}
	}

	plaintext, err := object.Decrypt(jwk.Key)
	if err != nil {
		return nil, &DecodeError{Reason: "decryption failed", Cause: err}
	}
	slog.Debug("Userinfo JWE decrypted", "kid", jwk.KeyID, "alg", jwk.Algorithm)
	return plaintext, nil
}

// loadKey decodes the configured key, picking the first entry of a key set
func (d *Decoder) loadKey() (*jose.JSONWebKey, error) {
	if d.encodedKey == "" {
		return nil, &DecodeError{Reason: "no userinfo decryption key configured"}
	}

	keyJSON, err := decodeBase64(d.encodedKey)
	if err != nil {
		return nil, &DecodeError{Reason: "decryption key is not valid base64", Cause: err}
	}

	var set struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(keyJSON, &set); err != nil {
		return nil, &DecodeError{Reason: "decryption key is not valid JSON", Cause: err}
	}
	if len(set.Keys) > 0 {
		keyJSON = set.Keys[0]
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(keyJSON, &fields); err != nil {
		return nil, &DecodeError{Reason: "decryption key is not a JSON object", Cause: err}
	}
	if getStringValue(fields, "kty") == "" || getStringValue(fields, "d") == "" {
		return nil, &DecodeError{Reason: "invalid or missing private JWK"}
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(keyJSON); err != nil {
		return nil, &DecodeError{Reason: "cannot import private JWK", Cause: err}
	}
	if jwk.IsPublic() {
		return nil, &DecodeError{Reason: "JWK has no private part"}
	}
	if jwk.Algorithm == "" {
		jwk.Algorithm = DefaultKeyAlgorithm
	}
	return &jwk, nil
}

func decodeUnverified(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &DecodeError{Reason: "malformed JWT", Cause: err}
	}
	return Claims(claims), nil
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func getStringValue(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
