package esignet

import (
	"crypto/rand"
	"math/big"
)

// DefaultUserProfileClaims requests the identity attributes the grant portal needs
const DefaultUserProfileClaims = `{"userinfo":{"individual_id":{"essential":true},"name":{"essential":true},"email":{"essential":true},"phone_number":{"essential":true},"birthdate":{"essential":true},"gender":{"essential":true},"address":{"essential":false},"picture":{"essential":false}}}`

// ClientDetails holds the static authorization request parameters for the relying party
type ClientDetails struct {
	Scope         string
	ResponseType  string
	RedirectURI   string
	Display       string
	Prompt        string
	ACRValues     string
	ClaimsLocales string
	UILocales     string
	GrantType     string
	Claims        string
}

// DefaultClientDetails mirrors the portal's registered client settings
func DefaultClientDetails() ClientDetails {
	return ClientDetails{
		Scope:         "openid profile email phone address",
		ResponseType:  "code",
		RedirectURI:   "https://e-governance.klefki.io/apply-for-social-grant",
		Display:       "page",
		Prompt:        "consent",
		ClaimsLocales: "en",
		UILocales:     "en",
		GrantType:     "authorization_code",
		Claims:        DefaultUserProfileClaims,
	}
}

func (d ClientDetails) withDefaults() ClientDetails {
	def := DefaultClientDetails()
	if d.Scope == "" {
		d.Scope = def.Scope
	}
	if d.ResponseType == "" {
		d.ResponseType = def.ResponseType
	}
	if d.RedirectURI == "" {
		d.RedirectURI = def.RedirectURI
	}
	if d.Display == "" {
		d.Display = def.Display
	}
	if d.Prompt == "" {
		d.Prompt = def.Prompt
	}
	if d.ClaimsLocales == "" {
		d.ClaimsLocales = def.ClaimsLocales
	}
	if d.GrantType == "" {
		d.GrantType = def.GrantType
	}
	if d.Claims == "" {
		d.Claims = def.Claims
	}
	return d
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomString returns n characters drawn from [a-z0-9] using crypto/rand
func randomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(randomAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = randomAlphabet[idx.Int64()]
	}
	return string(out), nil
}
