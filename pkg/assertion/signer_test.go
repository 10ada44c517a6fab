package assertion

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func pkcs8PEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestSignProducesExpectedClaims(t *testing.T) {
	key := generateKey(t)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	signer, err := NewSignerFromPEM(pkcs8PEM(t, key),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "jti-1" }),
	)
	require.NoError(t, err)

	ca, err := signer.Sign("grant-portal", "https://esignet.example/v1/esignet/oauth/v2/token")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(ca.Token, claims)
	require.NoError(t, err)

	assert.Equal(t, "RS256", parsed.Header["alg"])
	assert.Equal(t, "JWT", parsed.Header["typ"])
	assert.Equal(t, "grant-portal", claims["iss"])
	assert.Equal(t, "grant-portal", claims["sub"])
	assert.Equal(t, "jti-1", claims["jti"])

	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Equal(t, jwt.ClaimStrings{"https://esignet.example/v1/esignet/oauth/v2/token"}, aud)

	iat, err := claims.GetIssuedAt()
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, exp.Sub(iat.Time))
	assert.Equal(t, fixed, ca.IssuedAt)
}

func TestSignatureVerifiesWithPublicKey(t *testing.T) {
	key := generateKey(t)
	signer, err := NewSigner(key, WithKeyID("client-key-1"))
	require.NoError(t, err)

	ca, err := signer.Sign("grant-portal", "aud")
	require.NoError(t, err)

	parsed, err := jwt.Parse(ca.Token, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithAudience("aud"), jwt.WithIssuer("grant-portal"))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "client-key-1", parsed.Header["kid"])
}

func TestEachAssertionGetsFreshJTI(t *testing.T) {
	signer, err := NewSigner(generateKey(t))
	require.NoError(t, err)

	first, err := signer.Sign("c", "a")
	require.NoError(t, err)
	second, err := signer.Sign("c", "a")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestSignRequiresInputs(t *testing.T) {
	signer, err := NewSigner(generateKey(t))
	require.NoError(t, err)

	_, err = signer.Sign("", "aud")
	assert.Error(t, err)
	_, err = signer.Sign("client", "")
	assert.Error(t, err)
}

func TestDecodePrivateKeyFromPEM(t *testing.T) {
	key := generateKey(t)
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	require.NoError(t, err)
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: ecDER}))

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "pkcs8", input: pkcs8PEM(t, key)},
		{name: "pkcs1", input: pkcs1},
		{name: "escaped newlines", input: strings.ReplaceAll(pkcs8PEM(t, key), "\n", `\n`)},
		{name: "empty", input: "  ", wantErr: true},
		{name: "garbage", input: "not a key", wantErr: true},
		{name: "wrong block", input: "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n", wantErr: true},
		{name: "ec key", input: ecPEM, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePrivateKeyFromPEM(tt.input)
			if tt.wantErr {
				var keyErr *KeyImportError
				assert.True(t, errors.As(err, &keyErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, key.N, got.N)
		})
	}
}

func TestNewSignerFromFile(t *testing.T) {
	key := generateKey(t)
	path := filepath.Join(t.TempDir(), "client.pem")
	require.NoError(t, os.WriteFile(path, []byte(pkcs8PEM(t, key)), 0o600))

	signer, err := NewSignerFromFile(path)
	require.NoError(t, err)
	_, err = signer.Sign("c", "a")
	assert.NoError(t, err)

	_, err = NewSignerFromFile(filepath.Join(t.TempDir(), "missing.pem"))
	var keyErr *KeyImportError
	assert.True(t, errors.As(err, &keyErr))
}
