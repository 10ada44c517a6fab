package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// TestSender sends a diagnostic email
type TestSender interface {
	SendTest(ctx context.Context, email string) error
}

type Handle struct {
	sender TestSender
}

func NewHandle(sender TestSender) *Handle {
	return &Handle{sender: sender}
}

type TestEmailRequest struct {
	Email string `json:"email"`
}

type TestEmailData struct {
	To string `json:"to"`
}

// SendTestEmail handles POST /api/test-email
func (h *Handle) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req TestEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Invalid test email body", "err", err)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]interface{}{"success": false, "message": "Email is required"})
		return
	}

	if err := h.sender.SendTest(r.Context(), email); err != nil {
		slog.Error("Test email failed", "to", email, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": "Test email sent",
		"data":    TestEmailData{To: email},
	})
}

func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Post("/api/test-email", h.SendTestEmail)
}
