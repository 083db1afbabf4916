/**
 * @description
 * This file provides a client for the agent-service REST API: submitting and
 * listing agent applications, admin decisions, and referral-link issuance.
 *
 * Responses are classified into the domain error taxonomy so callers never
 * inspect status codes:
 * - 400/422 -> *domain.ValidationError
 * - 409     -> *domain.ConflictError
 * - 401/403 -> *domain.AuthorizationError
 * - 404     -> domain.ErrNotFound (wrapped)
 * - 429     -> *domain.RateLimitError (Retry-After preserved)
 * - other   -> *domain.TransportError
 */
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
	"github.com/shopspring/decimal"
)

// Client provides methods to interact with the agent service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new agent service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type approveRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
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

// SubmitApplication creates a new pending application for the caller.
func (c *Client) SubmitApplication(ctx context.Context, creds session.Credentials, sub domain.Submission) (*domain.AgentApplication, error) {
	var created domain.AgentApplication
	if err := c.do(ctx, creds, "submit application", http.MethodPost, "/applications", sub, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListMyApplications returns every application owned by the caller.
func (c *Client) ListMyApplications(ctx context.Context, creds session.Credentials) ([]domain.AgentApplication, error) {
	var apps []domain.AgentApplication
	if err := c.do(ctx, creds, "list own applications", http.MethodGet, "/applications/mine", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// ListApplications is the admin listing, optionally pre-filtered server-side.
func (c *Client) ListApplications(ctx context.Context, creds session.Credentials, status domain.ApplicationStatus, query string) ([]domain.AgentApplication, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}
	if q := strings.TrimSpace(query); q != "" {
		params.Set("query", q)
	}
	path := "/applications"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var apps []domain.AgentApplication
	if err := c.do(ctx, creds, "list applications", http.MethodGet, path, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// GetApplication is the admin lookup of a single application.
func (c *Client) GetApplication(ctx context.Context, creds session.Credentials, id string) (*domain.AgentApplication, error) {
	var application domain.AgentApplication
	if err := c.do(ctx, creds, "get application", http.MethodGet, "/applications/"+url.PathEscape(id), nil, &application); err != nil {
		return nil, err
	}
	return &application, nil
}

// ApproveApplication approves a pending application; the backend allocates the agent code.
func (c *Client) ApproveApplication(ctx context.Context, creds session.Credentials, id string, rate decimal.Decimal) (*domain.AgentApplication, error) {
	var updated domain.AgentApplication
	path := "/applications/" + url.PathEscape(id) + "/approve"
	if err := c.do(ctx, creds, "approve application", http.MethodPost, path, approveRequest{CommissionRate: rate}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RejectApplication rejects a pending application with a reason.
func (c *Client) RejectApplication(ctx context.Context, creds session.Credentials, id, reason string) (*domain.AgentApplication, error) {
	var updated domain.AgentApplication
	path := "/applications/" + url.PathEscape(id) + "/reject"
	if err := c.do(ctx, creds, "reject application", http.MethodPost, path, rejectRequest{RejectionReason: reason}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ReferralLink asks the backend for the caller's referral link to a product.
// The URL is returned exactly as issued; host canonicalisation is the caller's job.
func (c *Client) ReferralLink(ctx context.Context, creds session.Credentials, productID string) (string, error) {
	var resp referralLinkResponse
	path := "/products/" + url.PathEscape(productID) + "/referral-link"
	if err := c.do(ctx, creds, "issue referral link", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.URL) == "" {
		return "", &domain.TransportError{Op: "issue referral link", Err: errors.New("empty url in response")}
	}
	return resp.URL, nil
}

func (c *Client) do(ctx context.Context, creds session.Credentials, op, method, path string, in, out any) error {
	if c.baseURL == "" {
		return &domain.TransportError{Op: op, Err: errors.New("agent service base URL is not configured")}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	creds.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, resp.StatusCode, resp.Header, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

func classify(op string, status int, header http.Header, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)
	message := strings.TrimSpace(body.Error)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		verr := &domain.ValidationError{}
		for field, msg := range body.Fields {
			verr.Add(field, msg)
		}
		if len(verr.Fields) == 0 {
			verr.Add("request", message)
		}
		return verr
	case http.StatusConflict:
		return &domain.ConflictError{Message: message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.AuthorizationError{Reason: message}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		retryAfter, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After")))
		if err != nil || retryAfter < 1 {
			retryAfter = 1
		}
		return &domain.RateLimitError{RetryAfterSeconds: retryAfter}
	default:
		return &domain.TransportError{Op: op, StatusCode: status, Err: errors.New(message)}
	}
}
