// Package sessions owns the in-memory session registry: creation, engine
// binding, conversation history and idle expiry.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// DefaultOwner is the owner of sessions created without an explicit user.
const DefaultOwner = "local-user"

// Config controls session lifetime.
type Config struct {
	// Timeout is the idle time after which a session is swept.
	// Default: 30 minutes
	Timeout time.Duration

	// SweepInterval is how often expired sessions are swept.
	// Default: 60 seconds
	SweepInterval time.Duration

	// DefaultOwner owns sessions created without a user id.
	DefaultOwner string

	// DefaultWorkspace is used when a session is created without a
	// workspace root. Empty means the process working directory.
	DefaultWorkspace string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Minute,
		SweepInterval: 60 * time.Second,
		DefaultOwner:  DefaultOwner,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.DefaultOwner == "" {
		cfg.DefaultOwner = defaults.DefaultOwner
	}
	return cfg
}

// Options describes a session to create.
type Options struct {
	WorkspaceRoot string
	Model         string
	Metadata      map[string]any
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver adds a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(s *Store) {
		if obs != nil {
			s.observers = append(s.observers, obs)
		}
	}
}

// WithBusyFunc sets the predicate the sweep uses to skip sessions that have
// a request in flight.
func WithBusyFunc(busy func(sessionID string) bool) Option {
	return func(s *Store) {
		s.busy = busy
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store maps session ids to sessions. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record

	factory   engine.Factory
	cfg       Config
	logger    *slog.Logger
	observers []Observer
	busy      func(sessionID string) bool
	now       func() time.Time

	cronMu    sync.Mutex
	scheduler *cron.Cron
}

// NewStore creates a store that binds sessions through factory.
func NewStore(factory engine.Factory, cfg Config, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*record),
		factory:  factory,
		cfg:      sanitizeConfig(cfg),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sessions")
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Create binds a new engine handle and registers a session for ownerID. If
// binding fails a *BindError is returned and nothing is stored.
func (s *Store) Create(ctx context.Context, ownerID string, opts Options) (Session, error) {
	if s.factory == nil {
		return Session{}, &BindError{WorkspaceRoot: opts.WorkspaceRoot, Cause: engine.ErrNoEngine}
	}
	if ownerID == "" {
		ownerID = s.cfg.DefaultOwner
	}
	id := uuid.NewString()

	root, err := workspace.NormalizeRoot(opts.WorkspaceRoot, s.cfg.DefaultWorkspace)
	if err != nil {
		return Session{}, &BindError{WorkspaceRoot: opts.WorkspaceRoot, Cause: err}
	}
	handle, err := s.factory.NewHandle(ctx, engine.BindOptions{
		SessionID:     id,
		WorkspaceRoot: root,
		Model:         opts.Model,
	})
	if err != nil {
		return Session{}, &BindError{WorkspaceRoot: root, Cause: err}
	}

	now := s.now()
	rec := &record{
		id:           id,
		ownerID:      ownerID,
		createdAt:    now,
		lastActivity: now,
		metadata:     deepCloneMap(opts.Metadata),
		handle:       handle,
	}

	s.mu.Lock()
	s.sessions[id] = rec
	view := rec.view()
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", id, "owner", ownerID, "workspace_root", root)
	s.notify(Event{Type: EventCreated, SessionID: id, OwnerID: ownerID, Time: now})
	return view, nil
}

// Get returns the session and marks it active.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	rec.lastActivity = s.now()
	return rec.view(), true
}

// Peek returns the session without marking it active.
func (s *Store) Peek(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.view(), true
}

// Touch marks the session active and reports whether it exists.
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if ok {
		rec.lastActivity = s.now()
	}
	return ok
}

// Delete removes the session and closes its engine handle. It reports
// whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.closeHandle(rec)
	now := s.now()
	s.logger.Info("session deleted", "session_id", id)
	s.notify(Event{
		Type:      EventDeleted,
		SessionID: id,
		OwnerID:   rec.ownerID,
		Lifetime:  now.Sub(rec.createdAt),
		Time:      now,
	})
	return true
}

// Rebind replaces the session's engine handle with one bound to
// workspaceRoot. History is preserved. On failure the existing binding is
// left untouched and a *BindError is returned.
func (s *Store) Rebind(ctx context.Context, id, workspaceRoot string) error {
	if _, ok := s.Peek(id); !ok {
		return ErrNotFound
	}
	root, err := workspace.NormalizeRoot(workspaceRoot, "")
	if err != nil {
		return &BindError{SessionID: id, WorkspaceRoot: workspaceRoot, Cause: err}
	}
	if _, err := s.swapHandle(ctx, id, root, false); err != nil {
		return err
	}
	s.logger.Info("session rebound", "session_id", id, "workspace_root", root)
	return nil
}

// ClearHistory drops the session's history and binds a fresh engine to the
// same workspace root, so the model forgets the conversation too. It
// returns the number of items removed, or ErrBusy while a turn is running.
func (s *Store) ClearHistory(ctx context.Context, id string) (int, error) {
	current, ok := s.Peek(id)
	if !ok {
		return 0, ErrNotFound
	}
	if s.busy != nil && s.busy(id) {
		return 0, ErrBusy
	}
	removed, err := s.swapHandle(ctx, id, current.WorkspaceRoot, true)
	if err != nil {
		return 0, err
	}
	s.logger.Info("session history cleared", "session_id", id, "removed", removed)
	return removed, nil
}

// swapHandle binds a new engine handle to root and installs it, optionally
// dropping the history in the same critical section.
func (s *Store) swapHandle(ctx context.Context, id, root string, clearHistory bool) (int, error) {
	current, ok := s.Peek(id)
	if !ok {
		return 0, ErrNotFound
	}
	handle, err := s.factory.NewHandle(ctx, engine.BindOptions{
		SessionID:     id,
		WorkspaceRoot: root,
		Model:         current.Model,
	})
	if err != nil {
		return 0, &BindError{SessionID: id, WorkspaceRoot: root, Cause: err}
	}

	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		_ = handle.Close()
		return 0, ErrNotFound
	}
	old := rec.handle
	rec.handle = handle
	rec.lastActivity = s.now()
	removed := 0
	if clearHistory {
		removed = len(rec.history)
		rec.history = nil
	}
	owner := rec.ownerID
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("close previous engine handle", "session_id", id, "error", err)
		}
	}
	updateType := UpdateWorkspaceRoot
	if clearHistory {
		updateType = UpdateHistoryCleared
	}
	s.notify(Event{
		Type:       EventUpdated,
		SessionID:  id,
		OwnerID:    owner,
		UpdateType: updateType,
		Time:       s.now(),
	})
	return removed, nil
}

// ListByOwner returns the sessions owned by ownerID, oldest first.
func (s *Store) ListByOwner(ownerID string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, rec := range s.sessions {
		if rec.ownerID == ownerID {
			out = append(out, rec.view())
		}
	}
	sortByCreation(out)
	return out
}

// List returns every session, oldest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.view())
	}
	sortByCreation(out)
	return out
}

func sortByCreation(list []Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats summarizes the store.
type Stats struct {
	TotalSessions int
	TotalMessages int
	Owners        int
}

// Stats returns aggregate counts over the live sessions.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[string]struct{})
	stats := Stats{TotalSessions: len(s.sessions)}
	for _, rec := range s.sessions {
		stats.TotalMessages += len(rec.history)
		owners[rec.ownerID] = struct{}{}
	}
	stats.Owners = len(owners)
	return stats
}

// AppendHistory appends items to the session's history, assigning each the
// next sequence id and, when unset, the current timestamp.
func (s *Store) AppendHistory(id string, items ...models.HistoryItem) ([]models.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	appended := make([]models.HistoryItem, 0, len(items))
	for _, item := range items {
		item.ID = int64(len(rec.history) + 1)
		if item.Timestamp == 0 {
			item.Timestamp = now.UnixMilli()
		}
		item.Metadata = deepCloneMap(item.Metadata)
		rec.history = append(rec.history, item)
		appended = append(appended, item)
	}
	rec.lastActivity = now
	return cloneHistory(appended), nil
}

// History returns one page of the session's history and its total length.
// A non-positive limit selects models.DefaultHistoryLimit.
func (s *Store) History(id string, limit, offset int) ([]models.HistoryItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	rec.lastActivity = s.now()

	limit, offset = ClampPage(limit, offset)
	total := len(rec.history)
	if offset >= total {
		return []models.HistoryItem{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return cloneHistory(rec.history[offset:end]), total, nil
}

// ClampPage normalizes history pagination parameters.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	if limit > models.MaxHistoryLimit {
		limit = models.MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Start schedules the expiry sweep. Calling Start twice is a no-op.
func (s *Store) Start() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.scheduler != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := c.AddFunc(spec, func() { s.SweepExpired(s.now()) }); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	c.Start()
	s.scheduler = c
	s.logger.Info("session sweep scheduled", "interval", s.cfg.SweepInterval, "timeout", s.cfg.Timeout)
	return nil
}

// Shutdown stops the sweep and deletes every session, closing all engine
// handles. Handle close errors are aggregated.
func (s *Store) Shutdown(ctx context.Context) error {
	s.cronMu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.cronMu.Unlock()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			s.logger.Warn("session sweep did not stop before deadline")
		}
	}

	s.mu.Lock()
	records := s.sessions
	s.sessions = make(map[string]*record)
	s.mu.Unlock()

	var result *multierror.Error
	for id, rec := range records {
		if rec.handle == nil {
			continue
		}
		if err := rec.handle.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close session %s: %w", id, err))
		}
	}
	if len(records) > 0 {
		s.logger.Info("sessions released on shutdown", "count", len(records))
	}
	return result.ErrorOrNil()
}

func (s *Store) closeHandle(rec *record) {
	if rec.handle == nil {
		return
	}
	if err := rec.handle.Close(); err != nil {
		s.logger.Warn("close engine handle", "session_id", rec.id, "error", err)
	}
}

func (s *Store) notify(evt Event) {
	for _, obs := range s.observers {
		obs(evt)
	}
}
