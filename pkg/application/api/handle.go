package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/vlinder/social-grant/pkg/application"
	grantErrors "github.com/vlinder/social-grant/pkg/errors"
	"github.com/vlinder/social-grant/pkg/upload"
)

const addressProofField = "addressProof"

// multipartOverhead leaves room for the text fields next to the file
const multipartOverhead int64 = 1 << 20

// Service is the part of *application.ApplicationService the HTTP layer needs
type Service interface {
	Submit(ctx context.Context, input application.SubmitInput, doc application.Document) (application.SubmitResult, error)
	Get(ctx context.Context, applicationID string) (*application.Application, error)
	ListByNationalID(ctx context.Context, nationalID string) ([]application.Summary, error)
	List(ctx context.Context, filter application.Filter) (application.Page, error)
	UpdateStatus(ctx context.Context, applicationID string, status application.Status, remarks, changedBy string) (*application.Application, error)
	ConfirmPurchase(ctx context.Context, input application.PurchaseInput) (application.PurchaseResult, error)
}

type Handle struct {
	service   Service
	store     upload.Store
	adminAuth *jwtauth.JWTAuth
	maxUpload int64
}

type Option func(*Handle)

// WithAdminAuth requires an HS256 bearer token on the reviewer routes
func WithAdminAuth(auth *jwtauth.JWTAuth) Option {
	return func(h *Handle) {
		h.adminAuth = auth
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handle) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func NewHandle(service Service, store upload.Store, opts ...Option) *Handle {
	h := &Handle{
		service:   service,
		store:     store,
		maxUpload: upload.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type SubmitData struct {
	ApplicationID   string             `json:"applicationId"`
	Status          application.Status `json:"status"`
	SubmittedAt     time.Time          `json:"submittedAt"`
	CredentialReady bool               `json:"credentialReady"`
	EmailSent       bool               `json:"emailSent"`
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Data    []application.Summary `json:"data"`
}

type PageResponse struct {
	Success bool `json:"success"`
	application.Page
}

type ErrorResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	ApplicationID string   `json:"applicationId,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type UpdateStatusRequest struct {
	Status    string `json:"status"`
	Remarks   string `json:"remarks"`
	ChangedBy string `json:"changedBy"`
}

// SubmitApplication handles POST /api/applications (multipart/form-data)
func (h *Handle) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: upload.ErrFileTooLarge.Error()})
			return
		}
		slog.Warn("Failed to parse submission form", "err", err)
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: "Address proof document is required"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(addressProofField)
	if err != nil {
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: "Address proof document is required"})
		return
	}
	defer file.Close()

	doc, err := h.store.Save(r.Context(), upload.FileInput{
		FieldName:    addressProofField,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		Content:      file,
	})
	if err != nil {
		if errors.Is(err, upload.ErrFileTooLarge) || errors.Is(err, upload.ErrUnsupportedType) {
			renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
			return
		}
		slog.Error("Failed to store address proof", "err", err)
		renderFailure(w, r, http.StatusInternalServerError, ErrorResponse{Message: "Failed to submit application", Error: err.Error()})
		return
	}

	result, err := h.service.Submit(r.Context(), submitInput(r), doc)
	if err != nil {
		if delErr := h.store.Delete(r.Context(), doc.Path); delErr != nil {
			slog.Warn("Failed to remove rejected upload", "path", doc.Path, "err", delErr)
		}
		h.renderSubmitError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, Response{
		Success: true,
		Message: "Application submitted successfully",
		Data: SubmitData{
			ApplicationID:   result.Application.ApplicationID,
			Status:          result.Application.Status,
			SubmittedAt:     result.Application.SubmittedAt,
			CredentialReady: result.CredentialReady,
			EmailSent:       result.EmailSent,
		},
	})
}

func submitInput(r *http.Request) application.SubmitInput {
	return application.SubmitInput{
		NationalID:      r.FormValue("nationalId"),
		FullName:        r.FormValue("fullName"),
		DateOfBirth:     r.FormValue("dateOfBirth"),
		Gender:          r.FormValue("gender"),
		MobileNumber:    r.FormValue("mobileNumber"),
		Email:           r.FormValue("email"),
		HouseBuilding:   r.FormValue("houseBuilding"),
		StreetRoadLane:  r.FormValue("streetRoadLane"),
		AreaLocality:    r.FormValue("areaLocality"),
		VillageTownCity: r.FormValue("villageTownCity"),
		District:        r.FormValue("district"),
		State:           r.FormValue("state"),
		Pincode:         r.FormValue("pincode"),
	}
}

func (h *Handle) renderSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *application.DuplicateApplicationError
	var validation *application.ValidationError
	switch {
	case errors.As(err, &dup):
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{
			Message:       "You already have a pending application",
			ApplicationID: dup.ExistingApplicationID,
		})
	case errors.As(err, &validation):
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: "Validation Error", Errors: validation.Messages})
	default:
		slog.Error("Submit application failed", "err", err)
		renderFailure(w, r, http.StatusInternalServerError, ErrorResponse{Message: "Failed to submit application", Error: err.Error()})
	}
}

// GetApplication handles GET /api/applications/{applicationId}
func (h *Handle) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Get(r.Context(), chi.URLParam(r, "applicationId"))
	if err != nil {
		renderCoded(w, r, err, "Failed to fetch application")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, Response{Success: true, Data: app})
}

// ListByNationalID handles GET /api/applications/user/{nationalId}
func (h *Handle) ListByNationalID(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListByNationalID(r.Context(), chi.URLParam(r, "nationalId"))
	if err != nil {
		renderCoded(w, r, err, "Failed to fetch applications")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListResponse{Success: true, Count: len(summaries), Data: summaries})
}

// ListApplications handles GET /api/applications?status=&page=&limit=
func (h *Handle) ListApplications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := application.Filter{Status: application.Status(query.Get("status"))}
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.Limit, _ = strconv.Atoi(query.Get("limit"))

	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		renderCoded(w, r, err, "Failed to fetch applications")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, PageResponse{Success: true, Page: page})
}

// UpdateStatus handles PATCH /api/applications/{applicationId}/status
func (h *Handle) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: "Invalid request body", Error: err.Error()})
		return
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = adminSubject(r)
	}

	app, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "applicationId"), application.Status(req.Status), req.Remarks, changedBy)
	if err != nil {
		renderCoded(w, r, err, "Failed to update status")
		return
	}

	result, err := application.NewStatusUpdateResult(app)
	if err != nil {
		renderCoded(w, r, err, "Failed to update status")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, Response{Success: true, Message: "Application status updated", Data: result})
}

// ConfirmPurchase handles POST /api/applications/purchase/confirm
func (h *Handle) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	var req application.PurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Failed to decode purchase confirmation", "err", err)
		renderFailure(w, r, http.StatusBadRequest, ErrorResponse{Message: "Missing required fields"})
		return
	}

	result, err := h.service.ConfirmPurchase(r.Context(), req)
	if err != nil {
		renderCoded(w, r, err, "Failed to confirm purchase")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, Response{Success: true, Message: "Purchase confirmed and confirmation email sent", Data: result})
}

// RegisterRoutes mounts the application routes. Reviewer routes sit behind the
// admin token check when WithAdminAuth was given.
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Route("/api/applications", func(r chi.Router) {
		r.Post("/", h.SubmitApplication)
		r.Post("/purchase/confirm", h.ConfirmPurchase)
		r.Get("/user/{nationalId}", h.ListByNationalID)
		r.Get("/{applicationId}", h.GetApplication)

		r.Group(func(r chi.Router) {
			if h.adminAuth != nil {
				r.Use(jwtauth.Verifier(h.adminAuth))
				r.Use(jwtauth.Authenticator(h.adminAuth))
			}
			r.Get("/", h.ListApplications)
			r.Patch("/{applicationId}/status", h.UpdateStatus)
		})
	})
}

// adminSubject names the reviewer from the verified token, if any
func adminSubject(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func renderFailure(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// renderCoded maps lifecycle errors to their status; anything unexpected becomes a 500 with fallback
func renderCoded(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	coded := application.ToCoded(err)
	status := coded.HTTPStatusCode()

	resp := ErrorResponse{Message: coded.Message}
	switch coded.Code {
	case grantErrors.ErrCodeDuplicateTransaction:
		resp.ApplicationID, _ = coded.Details["applicationId"].(string)
		resp.TransactionID, _ = coded.Details["transactionId"].(string)
	case grantErrors.ErrCodeValidationFailed:
		resp.Errors, _ = coded.Details["errors"].([]string)
	}
	if status == http.StatusInternalServerError {
		slog.Error(fallback, "err", err)
		resp.Message = fallback
		resp.Error = err.Error()
	}
	renderFailure(w, r, status, resp)
}
