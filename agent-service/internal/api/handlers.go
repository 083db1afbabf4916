/**
 * @description
 * HTTP handlers for the agent-service. Handlers decode requests, read the
 * principal placed in the context by the session middleware, delegate to the
 * app layer and translate its errors into status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/shopspring/decimal"
)

// ApplicationService is the app-layer surface the handlers need.
type ApplicationService interface {
	Submit(ctx context.Context, applicant domain.Principal, sub domain.Submission) (*domain.AgentApplication, error)
	ListMine(ctx context.Context, applicantID string) ([]domain.AgentApplication, error)
	List(ctx context.Context, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error)
	Get(ctx context.Context, id string) (*domain.AgentApplication, error)
	Approve(ctx context.Context, reviewer domain.Principal, id string, rate decimal.Decimal) (*domain.AgentApplication, error)
	Reject(ctx context.Context, reviewer domain.Principal, id, reason string) (*domain.AgentApplication, error)
	ReferralLink(ctx context.Context, applicantID, productID string) (string, error)
}

// AgentHandlers holds the dependencies of the HTTP handlers.
type AgentHandlers struct {
	service ApplicationService
	logger  *slog.Logger
}

// NewAgentHandlers creates the handler set.
func NewAgentHandlers(service ApplicationService, logger *slog.Logger) *AgentHandlers {
	return &AgentHandlers{service: service, logger: logger}
}

type approveRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

type referralLinkResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// SubmitApplicationHandler handles POST /applications.
func (h *AgentHandlers) SubmitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.FromContext(r.Context())

	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.service.Submit(r.Context(), principal, sub)
	if err != nil {
		h.writeServiceError(w, r, "submit application", err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListMyApplicationsHandler handles GET /applications/mine.
func (h *AgentHandlers) ListMyApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.FromContext(r.Context())

	apps, err := h.service.ListMine(r.Context(), principal.ID)
	if err != nil {
		h.writeServiceError(w, r, "list own applications", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(apps))
}

// ListApplicationsHandler handles GET /applications for admins.
func (h *AgentHandlers) ListApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "Invalid status filter",
			Fields: map[string]string{"status": "must be pending, approved or rejected"},
		})
		return
	}

	apps, err := h.service.List(r.Context(), status, strings.TrimSpace(r.URL.Query().Get("query")))
	if err != nil {
		h.writeServiceError(w, r, "list applications", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(apps))
}

// ApproveApplicationHandler handles POST /applications/{id}/approve.
func (h *AgentHandlers) ApproveApplicationHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := session.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CommissionRate == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "Validation failed",
			Fields: map[string]string{"commission_rate": "is required"},
		})
		return
	}

	approved, err := h.service.Approve(r.Context(), reviewer, id, *req.CommissionRate)
	if err != nil {
		h.writeServiceError(w, r, "approve application", err)
		return
	}
	writeJSON(w, http.StatusOK, approved)
}

// RejectApplicationHandler handles POST /applications/{id}/reject.
func (h *AgentHandlers) RejectApplicationHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := session.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rejected, err := h.service.Reject(r.Context(), reviewer, id, req.RejectionReason)
	if err != nil {
		h.writeServiceError(w, r, "reject application", err)
		return
	}
	writeJSON(w, http.StatusOK, rejected)
}

// ReferralLinkHandler handles GET /products/{id}/referral-link.
func (h *AgentHandlers) ReferralLinkHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.FromContext(r.Context())

	link, err := h.service.ReferralLink(r.Context(), principal.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "issue referral link", err)
		return
	}
	writeJSON(w, http.StatusOK, referralLinkResponse{URL: link})
}

// GetApplicationHandler handles GET /applications/{id} for admins and
// GET /internal/applications/{id} for other services.
func (h *AgentHandlers) GetApplicationHandler(w http.ResponseWriter, r *http.Request) {
	application, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get application", err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

func (h *AgentHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		verr  *domain.ValidationError
		cerr  *domain.ConflictError
		rlErr *domain.RateLimitError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Validation failed", Fields: verr.Fields})
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Message)
	case errors.As(err, &rlErr):
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, rlErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Application not found")
	default:
		h.logger.Error("agent request failed", "op", op, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func nonNil(apps []domain.AgentApplication) []domain.AgentApplication {
	if apps == nil {
		return []domain.AgentApplication{}
	}
	return apps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
