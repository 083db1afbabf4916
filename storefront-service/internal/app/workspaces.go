package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Workspaces keeps each principal's desk and console alive between requests
// and unmounts them once idle.
type Workspaces struct {
	applications ApplicationsAPI
	review       ReviewAPI
	logger       *slog.Logger
	idleTTL      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	desks    map[string]*deskEntry
	consoles map[string]*consoleEntry
}

type deskEntry struct {
	desk     *ApplicationDesk
	lastSeen time.Time
}

type consoleEntry struct {
	console  *ReviewConsole
	lastSeen time.Time
}

// NewWorkspaces creates an empty registry.
func NewWorkspaces(applications ApplicationsAPI, review ReviewAPI, idleTTL time.Duration, logger *slog.Logger) *Workspaces {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Workspaces{
		applications: applications,
		review:       review,
		logger:       logger,
		idleTTL:      idleTTL,
		now:          time.Now,
		desks:        map[string]*deskEntry{},
		consoles:     map[string]*consoleEntry{},
	}
}

// Desk returns the principal's application desk, creating it on first use.
func (w *Workspaces) Desk(principalID string) *ApplicationDesk {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.desks[principalID]
	if !ok {
		entry = &deskEntry{desk: NewApplicationDesk(w.applications, w.logger)}
		w.desks[principalID] = entry
	}
	entry.lastSeen = w.now()
	return entry.desk
}

// Console returns the admin's review console, creating it on first use.
func (w *Workspaces) Console(principalID string) *ReviewConsole {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.consoles[principalID]
	if !ok {
		entry = &consoleEntry{console: NewReviewConsole(w.review, w.logger)}
		w.consoles[principalID] = entry
	}
	entry.lastSeen = w.now()
	return entry.console
}

// LeaveConsole unmounts the admin's console. The next Console call starts fresh.
func (w *Workspaces) LeaveConsole(principalID string) {
	w.mu.Lock()
	entry, ok := w.consoles[principalID]
	delete(w.consoles, principalID)
	w.mu.Unlock()

	if ok {
		entry.console.Close()
	}
}

// LeaveDesk unmounts the applicant's desk.
func (w *Workspaces) LeaveDesk(principalID string) {
	w.mu.Lock()
	entry, ok := w.desks[principalID]
	delete(w.desks, principalID)
	w.mu.Unlock()

	if ok {
		entry.desk.Close()
	}
}

// Evict unmounts every workspace idle for longer than the TTL and returns how many went.
func (w *Workspaces) Evict() int {
	cutoff := w.now().Add(-w.idleTTL)

	w.mu.Lock()
	var desks []*ApplicationDesk
	var consoles []*ReviewConsole
	for id, entry := range w.desks {
		if entry.lastSeen.Before(cutoff) {
			desks = append(desks, entry.desk)
			delete(w.desks, id)
		}
	}
	for id, entry := range w.consoles {
		if entry.lastSeen.Before(cutoff) {
			consoles = append(consoles, entry.console)
			delete(w.consoles, id)
		}
	}
	w.mu.Unlock()

	for _, d := range desks {
		d.Close()
	}
	for _, c := range consoles {
		c.Close()
	}
	return len(desks) + len(consoles)
}

// Run evicts idle workspaces every interval until ctx is done.
func (w *Workspaces) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Evict(); n > 0 {
				w.logger.Info("evicted idle workspaces", "count", n)
			}
		}
	}
}
