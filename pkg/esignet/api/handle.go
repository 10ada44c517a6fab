package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	grantErrors "github.com/vlinder/social-grant/pkg/errors"
	"github.com/vlinder/social-grant/pkg/esignet"
	"github.com/vlinder/social-grant/pkg/userinfo"
)

// OIDCClient is the subset of the eSignet client used by the HTTP layer
type OIDCClient interface {
	RequestPushedAuthorization(ctx context.Context, clientID, uiLocales, state string) (json.RawMessage, error)
	ExchangeToken(ctx context.Context, req esignet.TokenRequest) (esignet.TokenResponse, error)
	FetchUserInfo(ctx context.Context, accessToken string) (userinfo.Claims, error)
}

// Handle serves the eSignet facing endpoints
type Handle struct {
	client OIDCClient
}

// NewHandle creates a new eSignet handler
func NewHandle(client OIDCClient) *Handle {
	return &Handle{client: client}
}

// FetchUserInfoRequest is the body of POST /fetchUserInfo
type FetchUserInfoRequest struct {
	Code        string `json:"code"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	GrantType   string `json:"grant_type"`
}

// PARRequest is the body of POST /api/esignet/par
type PARRequest struct {
	ClientID  string `json:"client_id"`
	UILocales string `json:"ui_locales,omitempty"`
	State     string `json:"state,omitempty"`
}

// ErrorResponse is the failure envelope shared by all grant endpoints
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
	UpstreamCode  string `json:"upstreamCode,omitempty"`
	UpstreamError string `json:"upstreamError,omitempty"`
}

// FetchUserInfo exchanges the authorization code and returns the decoded userinfo claims
func (h *Handle) FetchUserInfo(w http.ResponseWriter, r *http.Request) {
	var req FetchUserInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode fetchUserInfo body", "err", err)
		renderError(w, r, "Failed to fetch user info", err)
		return
	}

	tokens, err := h.client.ExchangeToken(r.Context(), esignet.TokenRequest{
		Code:        req.Code,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		GrantType:   req.GrantType,
	})
	if err != nil {
		slog.Error("Token exchange failed", "client_id", req.ClientID, "err", err)
		renderError(w, r, "Failed to fetch user info", err)
		return
	}

	claims, err := h.client.FetchUserInfo(r.Context(), tokens.AccessToken())
	if err != nil {
		slog.Error("User info fetch failed", "client_id", req.ClientID, "err", err)
		renderError(w, r, "Failed to fetch user info", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, claims)
}

// PushAuthorization forwards a pushed authorization request and relays the provider response
func (h *Handle) PushAuthorization(w http.ResponseWriter, r *http.Request) {
	var req PARRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, "Invalid request body", grantErrors.Wrap(err, grantErrors.ErrCodeInvalidInput, "Invalid request body"))
		return
	}
	if req.ClientID == "" {
		renderError(w, r, "client_id is required", grantErrors.New(grantErrors.ErrCodeInvalidInput, "client_id is required"))
		return
	}

	body, err := h.client.RequestPushedAuthorization(r.Context(), req.ClientID, req.UILocales, req.State)
	if err != nil {
		slog.Error("Pushed authorization request failed", "client_id", req.ClientID, "err", err)
		renderError(w, r, "Pushed authorization request failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// RegisterRoutes mounts the eSignet routes on the root router
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Post("/fetchUserInfo", h.FetchUserInfo)
	r.Post("/api/esignet/par", h.PushAuthorization)
}

// renderError writes the failure envelope with the status of the coded error
func renderError(w http.ResponseWriter, r *http.Request, message string, err error) {
	coded := esignet.ToCoded(err)
	response := ErrorResponse{Message: message, Code: string(coded.Code)}
	if coded.Err != nil {
		response.Error = coded.Err.Error()
	}
	if upstreamCode, ok := coded.Details["upstreamCode"].(string); ok {
		response.UpstreamCode = upstreamCode
	}
	if coded.Code == grantErrors.ErrCodeUpstream {
		response.UpstreamError = upstreamBody(err)
	}

	render.Status(r, coded.HTTPStatusCode())
	render.JSON(w, r, response)
}

func upstreamBody(err error) string {
	var upstream *esignet.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Body
	}
	return ""
}
