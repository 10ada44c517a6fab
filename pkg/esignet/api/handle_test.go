package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlinder/social-grant/pkg/assertion"
	"github.com/vlinder/social-grant/pkg/esignet"
	"github.com/vlinder/social-grant/pkg/userinfo"
)

type stubClient struct {
	parBody      json.RawMessage
	parErr       error
	tokens       esignet.TokenResponse
	tokenErr     error
	claims       userinfo.Claims
	userinfoErr  error
	gotToken     string
	gotTokenReq  esignet.TokenRequest
	gotParClient string
}

func (s *stubClient) RequestPushedAuthorization(_ context.Context, clientID, _, _ string) (json.RawMessage, error) {
	s.gotParClient = clientID
	return s.parBody, s.parErr
}

func (s *stubClient) ExchangeToken(_ context.Context, req esignet.TokenRequest) (esignet.TokenResponse, error) {
	s.gotTokenReq = req
	return s.tokens, s.tokenErr
}

func (s *stubClient) FetchUserInfo(_ context.Context, accessToken string) (userinfo.Claims, error) {
	s.gotToken = accessToken
	return s.claims, s.userinfoErr
}

func serve(h *Handle, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFetchUserInfoReturnsClaims(t *testing.T) {
	stub := &stubClient{
		tokens: esignet.TokenResponse{"access_token": "at-1", "token_type": "Bearer"},
		claims: userinfo.Claims{"individual_id": "8267411571", "name": "Asha Rao"},
	}
	rec := serve(NewHandle(stub), http.MethodPost, "/fetchUserInfo",
		`{"code":"c-1","client_id":"grant-portal","redirect_uri":"https://portal/cb","grant_type":"authorization_code"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"individual_id":"8267411571","name":"Asha Rao"}`, rec.Body.String())
	assert.Equal(t, "at-1", stub.gotToken)
	assert.Equal(t, "c-1", stub.gotTokenReq.Code)
	assert.Equal(t, "https://portal/cb", stub.gotTokenReq.RedirectURI)
}

func TestFetchUserInfoFailures(t *testing.T) {
	tests := []struct {
		name         string
		stub         *stubClient
		body         string
		wantCode     string
		wantUpstream string
	}{
		{
			name: "token exchange rejected",
			stub: &stubClient{tokenErr: &esignet.UpstreamError{Endpoint: "token", StatusCode: 400, Body: `{"error":"invalid_grant"}`}},
			body: `{"code":"c","client_id":"x"}`, wantCode: "UPSTREAM_ERROR", wantUpstream: "invalid_grant",
		},
		{
			name: "userinfo decode failure",
			stub: &stubClient{tokens: esignet.TokenResponse{"access_token": "at"}, userinfoErr: &userinfo.DecodeError{Reason: "malformed JWT"}},
			body: `{"code":"c","client_id":"x"}`, wantCode: "DECODE_ERROR",
		},
		{
			name: "invalid body",
			stub: &stubClient{},
			body: `{`, wantCode: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHandle(tt.stub), http.MethodPost, "/fetchUserInfo", tt.body)
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "Failed to fetch user info", resp.Message)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantUpstream, resp.UpstreamCode)
		})
	}
}

func TestPushAuthorizationRelaysBody(t *testing.T) {
	stub := &stubClient{parBody: json.RawMessage(`{"request_uri":"urn:x","expires_in":90}`)}
	rec := serve(NewHandle(stub), http.MethodPost, "/api/esignet/par", `{"client_id":"grant-portal"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"request_uri":"urn:x","expires_in":90}`, rec.Body.String())
	assert.Equal(t, "grant-portal", stub.gotParClient)
}

func TestPushAuthorizationErrors(t *testing.T) {
	rec := serve(NewHandle(&stubClient{}), http.MethodPost, "/api/esignet/par", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INVALID_INPUT"`)

	rec = serve(NewHandle(&stubClient{}), http.MethodPost, "/api/esignet/par", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	keyErr := &assertion.KeyImportError{Reason: "no PEM block"}
	rec = serve(NewHandle(&stubClient{parErr: keyErr}), http.MethodPost, "/api/esignet/par", `{"client_id":"c"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"KEY_IMPORT_ERROR"`)

	rec = serve(NewHandle(&stubClient{parErr: errors.New("boom")}), http.MethodPost, "/api/esignet/par", `{"client_id":"c"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}
