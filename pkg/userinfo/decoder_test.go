package userinfo

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	signKey    *rsa.PrivateKey
	encKey     *rsa.PrivateKey
	innerToken string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	signKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	encKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":           "8267411571",
		"individual_id": "8267411571",
		"name":          "Asha Rao",
		"email":         "asha@example.com",
		"gender":        "Female",
	})
	signed, err := token.SignedString(signKey)
	require.NoError(t, err)

	return fixture{signKey: signKey, encKey: encKey, innerToken: signed}
}

func (f fixture) encrypt(t *testing.T, alg jose.KeyAlgorithm) string {
	t.Helper()
	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: alg, Key: &f.encKey.PublicKey}, nil)
	require.NoError(t, err)
	object, err := encrypter.Encrypt([]byte(f.innerToken))
	require.NoError(t, err)
	compact, err := object.CompactSerialize()
	require.NoError(t, err)
	return compact
}

func (f fixture) encodedJWK(t *testing.T, alg string, asSet bool) string {
	t.Helper()
	jwk := jose.JSONWebKey{Key: f.encKey, KeyID: "userinfo-enc", Algorithm: alg, Use: "enc"}
	raw, err := jwk.MarshalJSON()
	require.NoError(t, err)
	if asSet {
		raw, err = json.Marshal(map[string][]json.RawMessage{"keys": {raw}})
		require.NoError(t, err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodePlainJWTMatchesPayloadSegment(t *testing.T) {
	f := newFixture(t)
	decoder := NewDecoder()

	claims, err := decoder.Decode(context.Background(), f.innerToken, ResponseTypeJWT)
	require.NoError(t, err)

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(f.innerToken, ".")[1])
	require.NoError(t, err)
	var direct map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &direct))

	assert.Equal(t, Claims(direct), claims)
}

func TestDecodeJWE(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		key  string
	}{
		{name: "single jwk", key: f.encodedJWK(t, "RSA-OAEP-256", false)},
		{name: "jwk set uses first key", key: f.encodedJWK(t, "RSA-OAEP-256", true)},
		{name: "missing alg defaults to RSA-OAEP-256", key: f.encodedJWK(t, "", false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewDecoder(WithDecryptionKey(tt.key))
			claims, err := decoder.Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP_256), "JWE")
			require.NoError(t, err)
			assert.Equal(t, "8267411571", claims["individual_id"])
			assert.Equal(t, "Asha Rao", claims["name"])
		})
	}
}

func TestDecodeJWEWithoutKeyFails(t *testing.T) {
	f := newFixture(t)
	_, err := NewDecoder().Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP_256), ResponseTypeJWE)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "no userinfo decryption key configured")
}

func TestDecodeJWEWithPublicOnlyKeyFails(t *testing.T) {
	f := newFixture(t)
	public := jose.JSONWebKey{Key: &f.encKey.PublicKey, Algorithm: "RSA-OAEP-256"}
	raw, err := public.MarshalJSON()
	require.NoError(t, err)

	decoder := NewDecoder(WithDecryptionKey(base64.StdEncoding.EncodeToString(raw)))
	_, err = decoder.Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP_256), ResponseTypeJWE)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "invalid or missing private JWK")
}

func TestDecodeJWEAlgorithmMismatch(t *testing.T) {
	f := newFixture(t)
	decoder := NewDecoder(WithDecryptionKey(f.encodedJWK(t, "", false)))

	_, err := decoder.Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP), ResponseTypeJWE)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "does not match key alg")
}

func TestDecodeErrorsIncludeCause(t *testing.T) {
	tests := []struct {
		name    string
		decoder *Decoder
		raw     string
		hint    string
	}{
		{name: "garbage jwt", decoder: NewDecoder(), raw: "abc.def", hint: ResponseTypeJWT},
		{name: "empty", decoder: NewDecoder(), raw: "", hint: ResponseTypeJWT},
		{name: "bad base64 key", decoder: NewDecoder(WithDecryptionKey("%%%")), raw: "a.b.c.d.e", hint: ResponseTypeJWE},
		{name: "bad json key", decoder: NewDecoder(WithDecryptionKey(base64.StdEncoding.EncodeToString([]byte("nope")))), raw: "a.b.c.d.e", hint: ResponseTypeJWE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decoder.Decode(context.Background(), tt.raw, tt.hint)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.NotEmpty(t, decodeErr.Error())
		})
	}
}

func TestFiveSegmentsWithoutHintIsTreatedAsJWT(t *testing.T) {
	f := newFixture(t)
	decoder := NewDecoder(WithDecryptionKey(f.encodedJWK(t, "RSA-OAEP-256", false)))

	_, err := decoder.Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP_256), ResponseTypeJWT)
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestDecodeWithSignatureVerifier(t *testing.T) {
	f := newFixture(t)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&f.signKey.PublicKey}}
	decoder := NewDecoder(
		WithDecryptionKey(f.encodedJWK(t, "RSA-OAEP-256", false)),
		WithSignatureVerifier(keySet),
	)

	claims, err := decoder.Decode(context.Background(), f.encrypt(t, jose.RSA_OAEP_256), ResponseTypeJWE)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", claims["email"])

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	strict := NewDecoder(WithSignatureVerifier(&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&other.PublicKey}}))
	_, err = strict.Decode(context.Background(), f.innerToken, ResponseTypeJWT)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), "signature verification failed")
}
