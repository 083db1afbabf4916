/**
 * @description
 * The applicant's side of the agent program: submitting an application and
 * viewing one's own applications. An ApplicationDesk belongs to a single
 * principal and owns its list; nothing else mutates it.
 */
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/multimart/marketplace/internal/domain"
	"github.com/multimart/marketplace/internal/session"
)

// ApplicationsAPI is the part of the agent service the desk talks to.
type ApplicationsAPI interface {
	SubmitApplication(ctx context.Context, creds session.Credentials, sub domain.Submission) (*domain.AgentApplication, error)
	ListMyApplications(ctx context.Context, creds session.Credentials) ([]domain.AgentApplication, error)
}

// ApplicationDesk drives the submit form and the own-applications list.
type ApplicationDesk struct {
	api    ApplicationsAPI
	logger *slog.Logger
	flow   Flow

	mu         sync.Mutex
	items      []domain.AgentApplication
	refreshSeq uint64
	writeSeq   uint64
	writes     []deskWrite
}

// deskWrite is an application this desk created, numbered so a refresh can
// tell whether it started before or after the write.
type deskWrite struct {
	seq uint64
	app domain.AgentApplication
}

// NewApplicationDesk creates a desk with an empty list.
func NewApplicationDesk(api ApplicationsAPI, logger *slog.Logger) *ApplicationDesk {
	return &ApplicationDesk{api: api, logger: logger}
}

// Submit validates the form and, only if it passes, creates the application.
// On success the created record is inserted into the list. It stays there
// until a Refresh that started after the submit returns the server's view.
func (d *ApplicationDesk) Submit(ctx context.Context, creds session.Credentials, sub domain.Submission) (*domain.AgentApplication, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	ticket, err := d.flow.Begin()
	if err != nil {
		return nil, err
	}

	created, err := d.api.SubmitApplication(ctx, creds, sub)
	if !d.flow.Finish(ticket, err) {
		d.logger.Debug("discarding submit result for closed desk", "applicant_id", creds.Principal.ID)
		return nil, domain.ErrUnmounted
	}
	if err != nil {
		d.logger.Warn("agent application submit failed", "applicant_id", creds.Principal.ID, "product_id", sub.ProductID, "error", err)
		return nil, err
	}

	d.mu.Lock()
	d.writeSeq++
	d.writes = append(d.writes, deskWrite{seq: d.writeSeq, app: *created})
	d.items = upsertFront(d.items, *created)
	d.mu.Unlock()

	d.logger.Info("agent application submitted", "application_id", created.ID, "applicant_id", creds.Principal.ID, "product_id", created.ProductID)
	return created, nil
}

// Refresh re-fetches the caller's applications. A refresh that is overtaken by
// a later one, or that finishes after Close, is dropped. Applications
// submitted while the request was out are kept even if the response predates
// them.
func (d *ApplicationDesk) Refresh(ctx context.Context, creds session.Credentials) ([]domain.AgentApplication, error) {
	if d.flow.Closed() {
		return nil, domain.ErrUnmounted
	}

	d.mu.Lock()
	d.refreshSeq++
	seq := d.refreshSeq
	mark := d.writeSeq
	d.mu.Unlock()

	apps, err := d.api.ListMyApplications(ctx, creds)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flow.Closed() || seq != d.refreshSeq {
		return nil, domain.ErrUnmounted
	}
	items := append([]domain.AgentApplication(nil), apps...)
	kept := d.writes[:0]
	for _, w := range d.writes {
		if w.seq <= mark {
			continue
		}
		kept = append(kept, w)
		if !containsApplication(items, w.app.ID) {
			items = upsertFront(items, w.app)
		}
	}
	d.writes = kept
	d.items = items
	return cloneApplications(d.items), nil
}

// Applications returns a copy of the current list.
func (d *ApplicationDesk) Applications() []domain.AgentApplication {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneApplications(d.items)
}

// Find returns one application from the current list.
func (d *ApplicationDesk) Find(id string) (domain.AgentApplication, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.items {
		if item.ID == id {
			return item, true
		}
	}
	return domain.AgentApplication{}, false
}

// State reports the submit flow.
func (d *ApplicationDesk) State() FlowState {
	return d.flow.State()
}

// Close unmounts the desk; late results are discarded.
func (d *ApplicationDesk) Close() {
	d.flow.Close()
}

func upsertFront(items []domain.AgentApplication, app domain.AgentApplication) []domain.AgentApplication {
	out := make([]domain.AgentApplication, 0, len(items)+1)
	out = append(out, app)
	for _, item := range items {
		if item.ID != app.ID {
			out = append(out, item)
		}
	}
	return out
}

func containsApplication(items []domain.AgentApplication, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func cloneApplications(items []domain.AgentApplication) []domain.AgentApplication {
	return append([]domain.AgentApplication(nil), items...)
}
