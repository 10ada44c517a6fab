package esignet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/vlinder/social-grant/pkg/assertion"
	"github.com/vlinder/social-grant/pkg/userinfo"
)

const (
	tokenEndpointPath    = "/oauth/v2/token"
	userInfoEndpointPath = "/oidc/userinfo"

	nonceLength = 32
	stateLength = 16
)

// AssertionSigner mints client assertions for a given audience
type AssertionSigner interface {
	Sign(clientID, audience string) (assertion.ClientAssertion, error)
}

// UserInfoDecoder turns a raw userinfo body into claims
type UserInfoDecoder interface {
	Decode(ctx context.Context, raw string, responseTypeHint string) (userinfo.Claims, error)
}

// Observer receives the outcome of every upstream call
type Observer interface {
	ObserveUpstream(endpoint string, outcome string, elapsed time.Duration)
}

// UpstreamError is returned when eSignet answers with a non-success status
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ErrorCode extracts the provider error code from either the OAuth shape
// ({"error":"..."}) or the eSignet shape ({"errors":[{"errorCode":"..."}]})
func (e *UpstreamError) ErrorCode() string {
	if !gjson.Valid(e.Body) {
		return ""
	}
	result := gjson.GetMany(e.Body, "error", "errors.0.errorCode")
	for _, r := range result {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// Config locates the eSignet endpoints
type Config struct {
	ServiceURL           string
	TokenAudience        string
	PARAudience          string
	PAREndpoint          string
	UserInfoResponseType string
	Details              ClientDetails
}

// TokenRequest carries the authorization code exchange parameters
type TokenRequest struct {
	Code        string `json:"code"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	GrantType   string `json:"grant_type"`
}

// TokenResponse is the parsed token endpoint body
type TokenResponse map[string]interface{}

// AccessToken returns the access_token field
func (t TokenResponse) AccessToken() string { return getStringValue(t, "access_token") }

// TokenType returns the token_type field
func (t TokenResponse) TokenType() string { return getStringValue(t, "token_type") }

// IDToken returns the id_token field
func (t TokenResponse) IDToken() string { return getStringValue(t, "id_token") }

// ExpiresIn returns expires_in in seconds, 0 when absent
func (t TokenResponse) ExpiresIn() int64 {
	if v, ok := t["expires_in"].(float64); ok {
		return int64(v)
	}
	return 0
}

// Client drives the PAR, token and userinfo calls against eSignet
type Client struct {
	config     Config
	signer     AssertionSigner
	decoder    UserInfoDecoder
	httpClient *http.Client
	observer   Observer
	newNonce   func() (string, error)
	newState   func() (string, error)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client for eSignet calls
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithObserver records upstream call outcomes
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithNonceGenerator overrides the per-request nonce and state generators
func WithNonceGenerator(nonce, state func() (string, error)) Option {
	return func(c *Client) {
		c.newNonce = nonce
		c.newState = state
	}
}

// NewClient creates a new eSignet client
func NewClient(config Config, signer AssertionSigner, decoder UserInfoDecoder, opts ...Option) *Client {
	config.ServiceURL = strings.TrimRight(strings.TrimSpace(config.ServiceURL), "/")
	config.Details = config.Details.withDefaults()
	if config.UserInfoResponseType == "" {
		config.UserInfoResponseType = userinfo.ResponseTypeJWE
	}

	c := &Client{
		config:     config,
		signer:     signer,
		decoder:    decoder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newNonce:   func() (string, error) { return randomString(nonceLength) },
		newState:   func() (string, error) { return randomString(stateLength) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Details returns the effective client details
func (c *Client) Details() ClientDetails {
	return c.config.Details
}

// RequestPushedAuthorization pushes the authorization request and returns the provider body verbatim.
// Nonce and state are generated per call unless state is supplied.
func (c *Client) RequestPushedAuthorization(ctx context.Context, clientID, uiLocales, state string) (json.RawMessage, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	clientAssertion, err := c.signer.Sign(clientID, c.config.PARAudience)
	if err != nil {
		return nil, err
	}

	nonce, err := c.newNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	if state == "" {
		if state, err = c.newState(); err != nil {
			return nil, fmt.Errorf("failed to generate state: %w", err)
		}
	}
	if uiLocales == "" {
		uiLocales = c.config.Details.UILocales
	}

	d := c.config.Details
	data := url.Values{}
	data.Set("nonce", nonce)
	data.Set("state", state)
	data.Set("client_id", clientID)
	data.Set("redirect_uri", d.RedirectURI)
	data.Set("scope", d.Scope)
	data.Set("response_type", d.ResponseType)
	data.Set("acr_values", d.ACRValues)
	data.Set("claims", d.Claims)
	data.Set("claims_locales", d.ClaimsLocales)
	data.Set("display", d.Display)
	data.Set("prompt", d.Prompt)
	data.Set("ui_locales", uiLocales)
	data.Set("client_assertion_type", assertion.ClientAssertionType)
	data.Set("client_assertion", clientAssertion.Token)

	body, err := c.postForm(ctx, "par", c.config.PAREndpoint, data)
	if err != nil {
		return nil, err
	}

	slog.Info("Pushed authorization request accepted", "client_id", clientID, "state", state)
	return json.RawMessage(body), nil
}

// ExchangeToken trades an authorization code for tokens
func (c *Client) ExchangeToken(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	if req.Code == "" || req.ClientID == "" {
		return nil, fmt.Errorf("code and client_id are required")
	}
	if req.GrantType == "" {
		req.GrantType = c.config.Details.GrantType
	}
	if req.RedirectURI == "" {
		req.RedirectURI = c.config.Details.RedirectURI
	}

	clientAssertion, err := c.signer.Sign(req.ClientID, c.config.TokenAudience)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("code", req.Code)
	data.Set("client_id", req.ClientID)
	data.Set("redirect_uri", req.RedirectURI)
	data.Set("grant_type", req.GrantType)
	data.Set("client_assertion_type", assertion.ClientAssertionType)
	data.Set("client_assertion", clientAssertion.Token)

	body, err := c.postForm(ctx, "token", c.config.ServiceURL+tokenEndpointPath, data)
	if err != nil {
		return nil, err
	}

	var tokenResponse TokenResponse
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	slog.Info("Token exchange successful", "client_id", req.ClientID, "token_type", tokenResponse.TokenType())
	return tokenResponse, nil
}

// FetchUserInfo calls the userinfo endpoint with the bearer token and decodes the response
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (userinfo.Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	endpoint := c.config.ServiceURL + userInfoEndpointPath
	bearerCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(bearerCtx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.observe("userinfo", "error", started)
		return nil, fmt.Errorf("failed to make user info request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("userinfo", "error", started)
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe("userinfo", "rejected", started)
		return nil, &UpstreamError{Endpoint: "userinfo", StatusCode: resp.StatusCode, Body: string(body)}
	}
	c.observe("userinfo", "ok", started)

	claims, err := c.decoder.Decode(ctx, string(body), c.config.UserInfoResponseType)
	if err != nil {
		slog.Error("Failed to decode user info", "err", err)
		return nil, err
	}

	slog.Info("User info retrieved", "sub", getStringValue(claims, "sub"))
	return claims, nil
}

func (c *Client) postForm(ctx context.Context, name, endpoint string, data url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(name, "error", started)
		return nil, fmt.Errorf("failed to make %s request: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(name, "error", started)
		return nil, fmt.Errorf("failed to read %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(name, "rejected", started)
		slog.Warn("eSignet rejected request", "endpoint", name, "status", resp.StatusCode)
		return nil, &UpstreamError{Endpoint: name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.observe(name, "ok", started)
	return body, nil
}

func (c *Client) observe(endpoint, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(endpoint, outcome, time.Since(started))
	}
}

func getStringValue(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
