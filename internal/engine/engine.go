// Package engine implements the offline-durable response queue: the write
// path that captures answers, the session lifecycle that gates it, and the
// background synchronizer that drains the queue against the remote API.
//
// The engine is an explicitly constructed instance with no package-level
// state, so independent sessions (and tests) can run side by side.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livedeck/responsync/internal/connectivity"
	"github.com/livedeck/responsync/internal/remote"
	"github.com/livedeck/responsync/internal/schema"
	"github.com/livedeck/responsync/internal/store"
)

// Config holds configuration for the engine.
type Config struct {
	// StorePath is the durable store location. The store is not opened
	// until a participant actually joins a session.
	StorePath string

	// SyncInterval is how often the background synchronizer considers a
	// pass. A pass only runs when the pending queue is non-empty.
	SyncInterval time.Duration

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StorePath:    filepath.Join(".responsync", "queue.db"),
		SyncInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Engine owns the durable queue for one client process.
type Engine struct {
	config  *Config
	remote  remote.Client
	monitor connectivity.Monitor

	mu       sync.Mutex
	store    store.Store    // nil until a session opens it
	durable  bool           // false when store is the in-memory fallback
	fallback *store.Memory  // captures writes the durable store rejected
	active   *schema.SessionRecord
	status   schema.SyncStatus
	restored bool // restore ran, or a session was initialized first
	started  bool

	trigger chan struct{}
	syncing atomic.Bool

	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an engine around the remote client and connectivity monitor.
//
// monitor may be nil, in which case the engine assumes it is always
// online and reconnect-triggered passes never fire (the interval timer
// still does). Nothing touches disk until InitializeForSession or
// RestoreOnStartup runs.
func New(client remote.Client, monitor connectivity.Monitor, config *Config) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("remote client cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	return &Engine{
		config:  config,
		remote:  client,
		monitor: monitor,
		status:  schema.StatusSynced,
		trigger: make(chan struct{}, 1),
	}, nil
}

// InitializeForSession makes the given session the current one, opening
// the durable store on first use.
//
// Idempotent: re-initializing the already-active session returns the
// existing handle untouched. Activating a session deactivates every other
// session record in the same transaction, so at most one active session
// exists at any time.
func (e *Engine) InitializeForSession(ctx context.Context, sessionID, participantID string) error {
	if sessionID == "" || participantID == "" {
		return fmt.Errorf("session id and participant id are required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && e.active.SessionID == sessionID && e.active.ParticipantID == participantID {
		return nil
	}

	// A session initialized directly supersedes any restore attempt.
	e.restored = true

	st := e.openStoreLocked()

	rec := &schema.SessionRecord{
		SessionID:     sessionID,
		ParticipantID: participantID,
		JoinedAt:      time.Now().UTC(),
		IsActive:      true,
	}

	if err := st.ActivateSession(ctx, rec); err != nil {
		if !e.durable {
			return fmt.Errorf("failed to activate session: %w", err)
		}

		// Durable store rejected the write; degrade for the rest of
		// the process lifetime.
		e.config.Logger.Printf("WARNING: durable store failed, continuing in memory: %v", err)
		st = e.degradeLocked()
		if err := st.ActivateSession(ctx, rec); err != nil {
			return fmt.Errorf("failed to activate session: %w", err)
		}
	}

	pending, err := st.ListUnsynced(ctx, participantID)
	if err != nil {
		e.config.Logger.Printf("WARNING: failed to load pending queue: %v", err)
	}

	e.active = rec
	e.status = schema.Initial(len(pending))
	e.startLoopsLocked()

	e.config.Logger.Printf("Session initialized: %s (participant %s, %d pending)",
		sessionID, participantID, len(pending))
	return nil
}

// RestoreOnStartup resumes a remembered session after a process restart.
//
// It runs at most once per process, and only when no session has been
// initialized yet. The first active session record the remote confirms is
// adopted; every other active record encountered, including server-invalid
// ones, is flipped inactive so it is never restored again. Records whose
// status check itself failed are left untouched and retried on a later
// restore, to avoid marking a session dead on a network blip.
func (e *Engine) RestoreOnStartup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.restored || e.active != nil {
		return nil
	}
	e.restored = true

	if e.store == nil {
		st, err := store.Open(e.config.StorePath)
		if err != nil {
			// Nothing durable to restore from; a later
			// InitializeForSession will retry the open.
			e.config.Logger.Printf("WARNING: store unavailable at restore: %v", err)
			return nil
		}
		e.store = st
		e.durable = true
	}

	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}

	var adopted *schema.SessionRecord
	for _, s := range sessions {
		if !s.IsActive {
			continue
		}

		if adopted != nil {
			// A current session is already chosen; no other record
			// may stay restorable.
			if err := e.store.DeactivateSession(ctx, s.SessionID); err != nil {
				e.config.Logger.Printf("WARNING: failed to deactivate session %s: %v", s.SessionID, err)
			}
			continue
		}

		aliveRemote, err := e.remote.SessionStatus(ctx, s.SessionID)
		if err != nil {
			// The check itself failed; leave the record for a
			// later restore rather than risking false-negative
			// data loss.
			e.config.Logger.Printf("WARNING: status check for session %s failed, leaving it: %v", s.SessionID, err)
			continue
		}

		if !aliveRemote {
			e.config.Logger.Printf("Session %s no longer active server-side, marking inactive", s.SessionID)
			if err := e.store.DeactivateSession(ctx, s.SessionID); err != nil {
				e.config.Logger.Printf("WARNING: failed to deactivate session %s: %v", s.SessionID, err)
			}
			continue
		}

		adopted = s
	}

	if adopted == nil {
		return nil
	}

	pending, err := e.store.ListUnsynced(ctx, adopted.ParticipantID)
	if err != nil {
		e.config.Logger.Printf("WARNING: failed to load pending queue: %v", err)
	}

	e.active = adopted
	e.status = schema.Initial(len(pending))
	e.startLoopsLocked()

	e.config.Logger.Printf("Session restored: %s (participant %s, %d pending)",
		adopted.SessionID, adopted.ParticipantID, len(pending))
	return nil
}

// EndSession deliberately tears down the current session: the session
// record goes inactive and every response record for its participant is
// deleted regardless of sync state. Ending a session discards remaining
// queued work; it is not a pause.
func (e *Engine) EndSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		e.config.Logger.Printf("WARNING: EndSession called with no active session")
		return nil
	}

	active := e.active

	if err := e.store.DeactivateSession(ctx, active.SessionID); err != nil {
		return fmt.Errorf("failed to deactivate session %s: %w", active.SessionID, err)
	}

	n, err := e.store.DeleteResponsesFor(ctx, active.ParticipantID)
	if err != nil {
		return fmt.Errorf("failed to discard responses for %s: %w", active.ParticipantID, err)
	}
	if e.fallback != nil {
		fn, _ := e.fallback.DeleteResponsesFor(ctx, active.ParticipantID)
		n += fn
	}

	e.active = nil
	e.status = schema.StatusSynced

	e.config.Logger.Printf("Session ended: %s (%d queued records discarded)", active.SessionID, n)
	return nil
}

// Status returns the current aggregate sync status.
func (e *Engine) Status() schema.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ActiveSession returns a copy of the current session record, or nil when
// no session is active.
func (e *Engine) ActiveSession() *schema.SessionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return nil
	}
	cp := *e.active
	return &cp
}

// Pending returns the queued, unconfirmed records for the active session
// in creation order. Empty when no session is active.
func (e *Engine) Pending(ctx context.Context) ([]*schema.ResponseRecord, error) {
	e.mu.Lock()
	st, fb, active := e.store, e.fallback, e.active
	e.mu.Unlock()

	if active == nil {
		return nil, nil
	}

	recs, err := st.ListUnsynced(ctx, active.ParticipantID)
	if err != nil {
		e.config.Logger.Printf("WARNING: failed to list pending from store: %v", err)
	}

	if fb != nil {
		fbRecs, ferr := fb.ListUnsynced(ctx, active.ParticipantID)
		if ferr == nil {
			recs = append(recs, fbRecs...)
		}
	}

	if err != nil && recs == nil {
		return nil, err
	}
	return recs, nil
}

// Close stops the background loops and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	cancel := e.loopCancel
	st := e.store
	e.store = nil
	e.active = nil
	e.started = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	if st != nil {
		return st.Close()
	}
	return nil
}

// openStoreLocked ensures a store handle exists, falling back to the
// in-memory queue when the durable store cannot be opened. Caller holds
// e.mu.
func (e *Engine) openStoreLocked() store.Store {
	if e.store != nil {
		return e.store
	}

	st, err := store.Open(e.config.StorePath)
	if err != nil {
		e.config.Logger.Printf("WARNING: store unavailable, answers will not survive a restart: %v", err)
		mem := store.NewMemory()
		e.store = mem
		e.durable = false
		return mem
	}

	e.store = st
	e.durable = true
	return st
}

// degradeLocked abandons the durable store for the in-memory fallback for
// the remainder of the process lifetime. Caller holds e.mu.
func (e *Engine) degradeLocked() store.Store {
	if e.store != nil {
		_ = e.store.Close()
	}
	mem := store.NewMemory()
	e.store = mem
	e.durable = false
	return mem
}

// fallbackLocked returns the side queue for writes the durable store
// rejected, creating it on first use. Caller holds e.mu.
func (e *Engine) fallbackLocked() *store.Memory {
	if e.fallback == nil {
		e.fallback = store.NewMemory()
	}
	return e.fallback
}

func (e *Engine) setStatus(s schema.SyncStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) online() bool {
	if e.monitor == nil {
		return true
	}
	return e.monitor.Online()
}
