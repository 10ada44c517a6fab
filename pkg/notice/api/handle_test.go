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
)

type stubSender struct {
	to  string
	err error
}

func (s *stubSender) SendTest(ctx context.Context, email string) error {
	s.to = email
	return s.err
}

func doTestEmail(t *testing.T, sender TestSender, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := chi.NewRouter()
	NewHandle(sender).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/test-email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestSendTestEmail(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		sendErr     error
		wantStatus  int
		wantMessage string
	}{
		{"sent", `{"email":"ops@example.com"}`, nil, http.StatusOK, "Test email sent"},
		{"missing email", `{}`, nil, http.StatusBadRequest, "Email is required"},
		{"empty body", ``, nil, http.StatusBadRequest, "Email is required"},
		{"transport failure", `{"email":"ops@example.com"}`, errors.New("nexus email service is not configured"), http.StatusInternalServerError, "nexus email service is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &stubSender{err: tt.sendErr}
			rr, resp := doTestEmail(t, sender, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantMessage, resp["message"])
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp["success"])
		})
	}
}

func TestSendTestEmailEchoesRecipient(t *testing.T) {
	sender := &stubSender{}
	_, resp := doTestEmail(t, sender, `{"email":"  ops@example.com "}`)
	assert.Equal(t, "ops@example.com", sender.to)
	assert.Equal(t, map[string]interface{}{"to": "ops@example.com"}, resp["data"])
}
