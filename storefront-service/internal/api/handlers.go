/**
 * @description
 * HTTP handlers for the storefront's agent program views. Handlers resolve the
 * principal's workspace, call into the app layer, and render the result in the
 * layout the access gate chose.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/multimart/marketplace/storefront-service/internal/app"
	"github.com/shopspring/decimal"
)

// Handler holds the app-layer collaborators the views use.
type Handler struct {
	workspaces *app.Workspaces
	issuer     *app.ReferralIssuer
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(workspaces *app.Workspaces, issuer *app.ReferralIssuer, logger *slog.Logger) *Handler {
	return &Handler{workspaces: workspaces, issuer: issuer, logger: logger}
}

type approveRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

type applicationsView struct {
	Applications []domain.AgentApplication `json:"applications"`
	Submit       app.FlowState             `json:"submit"`
}

type dashboardView struct {
	Agent           string                    `json:"agent"`
	Applications    []domain.AgentApplication `json:"applications"`
	TotalSales      decimal.Decimal           `json:"total_sales"`
	TotalCommission decimal.Decimal           `json:"total_commission"`
}

type consoleView struct {
	Filter       app.Filter                       `json:"filter"`
	Applications []domain.AgentApplication        `json:"applications"`
	Summary      map[domain.ApplicationStatus]int `json:"summary"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, map[string]string{
		"redirect_url": r.URL.Query().Get("redirect_url"),
	})
}

func (h *Handler) handleAdminHome(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	render(w, r, http.StatusOK, map[string]any{
		"admin":   p.DisplayName,
		"summary": h.workspaces.Console(p.ID).Summary(),
	})
}

func (h *Handler) handleListMyApplications(w http.ResponseWriter, r *http.Request) {
	creds := session.CredentialsFromContext(r.Context())
	desk := h.workspaces.Desk(creds.Principal.ID)

	items, err := desk.Refresh(r.Context(), creds)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, applicationsView{Applications: items, Submit: desk.State()})
}

func (h *Handler) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	creds := session.CredentialsFromContext(r.Context())
	created, err := h.workspaces.Desk(creds.Principal.ID).Submit(r.Context(), creds, sub)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusCreated, created)
}

func (h *Handler) handleAgentDashboard(w http.ResponseWriter, r *http.Request) {
	creds := session.CredentialsFromContext(r.Context())
	items, err := h.workspaces.Desk(creds.Principal.ID).Refresh(r.Context(), creds)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	view := dashboardView{Agent: creds.Principal.DisplayName, Applications: items}
	for _, item := range items {
		if item.Status != domain.StatusApproved {
			continue
		}
		view.TotalSales = view.TotalSales.Add(item.TotalSales)
		view.TotalCommission = view.TotalCommission.Add(item.TotalCommission)
	}
	render(w, r, http.StatusOK, view)
}

func (h *Handler) handleReferralLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	creds := session.CredentialsFromContext(r.Context())
	desk := h.workspaces.Desk(creds.Principal.ID)

	application, ok := desk.Find(id)
	if !ok {
		if _, err := desk.Refresh(r.Context(), creds); err != nil {
			h.writeAppError(w, r, err)
			return
		}
		application, ok = desk.Find(id)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Application not found")
		return
	}

	link, err := h.issuer.IssueLink(r.Context(), creds, application)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, link)
}

func (h *Handler) handleConsole(w http.ResponseWriter, r *http.Request) {
	status, err := domain.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		verr := &domain.ValidationError{}
		verr.Add("status", "must be one of pending, approved, rejected")
		h.writeAppError(w, r, verr)
		return
	}
	filter := app.Filter{Status: status, Query: strings.TrimSpace(r.URL.Query().Get("query"))}

	creds := session.CredentialsFromContext(r.Context())
	console := h.workspaces.Console(creds.Principal.ID)
	items, err := console.Load(r.Context(), creds, filter)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, consoleView{Filter: filter, Applications: items, Summary: console.Summary()})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CommissionRate == nil {
		verr := &domain.ValidationError{}
		verr.Add("commission_rate", "is required")
		h.writeAppError(w, r, verr)
		return
	}

	creds := session.CredentialsFromContext(r.Context())
	updated, err := h.workspaces.Console(creds.Principal.ID).Approve(r.Context(), creds, chi.URLParam(r, "id"), *req.CommissionRate)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, updated)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	creds := session.CredentialsFromContext(r.Context())
	updated, err := h.workspaces.Console(creds.Principal.ID).Reject(r.Context(), creds, chi.URLParam(r, "id"), req.RejectionReason)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, updated)
}

func (h *Handler) handleLeaveConsole(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	h.workspaces.LeaveConsole(p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, map[string]any{"customers": []any{}})
}

// writeAppError maps app-layer errors onto status codes.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		cerr *domain.ConflictError
		aerr *domain.AuthorizationError
		terr *domain.TransportError
		rerr *domain.RateLimitError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "Validation failed",
			"fields": verr.Fields,
		})
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Error())
	case errors.As(err, &rerr):
		w.Header().Set("Retry-After", strconv.Itoa(rerr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many applications submitted; try again later")
	case errors.Is(err, domain.ErrInFlight):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "A request for this item is already in progress")
	case errors.Is(err, domain.ErrUnmounted):
		writeError(w, http.StatusConflict, "The view was closed before the request completed")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &aerr):
		h.logger.Info("backend refused session; redirecting", "path", r.URL.Path, "reason", aerr.Reason)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.As(err, &terr):
		h.logger.Error("agent service call failed", "op", terr.Op, "status", terr.StatusCode, "error", terr.Err)
		writeError(w, http.StatusBadGateway, "Agent service unavailable")
	default:
		h.logger.Error("unexpected storefront error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
