// Package cancellation tracks the cancellation token of every in-flight turn
// stream so that a separate request can interrupt it.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicate is returned when a request id already has a live token.
	ErrDuplicate = errors.New("request id already registered")

	// ErrCancelled is the cause attached to tokens cancelled through the
	// registry, as opposed to a client disconnect or server shutdown.
	ErrCancelled = errors.New("request cancelled")

	// ErrShutdown is the cause attached to tokens cancelled by CancelAll.
	ErrShutdown = errors.New("server shutting down")
)

type entry struct {
	sessionID string
	openedAt  time.Time
	cancel    context.CancelCauseFunc
}

// Registry maps request ids to cancellation tokens. A token is a context
// derived from the request's own context, so a transport disconnect and an
// explicit Cancel are observed the same way by the turn.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// NewRequestID returns a fresh request id of the form req_<unix-ms>_<uuid>.
func NewRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), uuid.NewString())
}

// Open registers a token for requestID and returns it. The token is done when
// the parent is done, when Cancel is called, or when Close releases it.
func (r *Registry) Open(parent context.Context, requestID, sessionID string) (context.Context, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}
	if parent == nil {
		parent = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[requestID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, requestID)
	}
	ctx, cancel := context.WithCancelCause(parent)
	r.entries[requestID] = &entry{
		sessionID: sessionID,
		openedAt:  time.Now(),
		cancel:    cancel,
	}
	return ctx, nil
}

// Cancel signals and removes the token for requestID. Unknown ids are a
// no-op. It reports whether a live token was found.
func (r *Registry) Cancel(requestID string) bool {
	r.mu.Lock()
	e, ok := r.entries[requestID]
	if ok {
		delete(r.entries, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.cancel(ErrCancelled)
	return true
}

// Close removes the token for requestID after normal completion and releases
// the resources of its context.
func (r *Registry) Close(requestID string) {
	r.mu.Lock()
	e, ok := r.entries[requestID]
	if ok {
		delete(r.entries, requestID)
	}
	r.mu.Unlock()

	if ok {
		e.cancel(nil)
	}
}

// CancelAll cancels every live token and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel(ErrShutdown)
	}
	return len(entries)
}

// Has reports whether requestID has a live token.
func (r *Registry) Has(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[requestID]
	return ok
}

// Active returns the number of live tokens.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SessionBusy reports whether any live token belongs to sessionID.
func (r *Registry) SessionBusy(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.sessionID == sessionID {
			return true
		}
	}
	return false
}
