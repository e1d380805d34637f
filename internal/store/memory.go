package store

import (
	"context"
	"sort"
	"sync"

	"github.com/livedeck/responsync/internal/schema"
)

// Memory is the non-durable fallback Store used when the SQLite backend
// cannot be opened, or when writes against it start failing mid-flight.
// Records survive only for the process lifetime.
type Memory struct {
	mu        sync.Mutex
	responses map[string]*schema.ResponseRecord
	sessions  map[string]*schema.SessionRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		responses: make(map[string]*schema.ResponseRecord),
		sessions:  make(map[string]*schema.SessionRecord),
	}
}

// PutResponse implements Store.PutResponse.
func (m *Memory) PutResponse(_ context.Context, rec *schema.ResponseRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.responses[rec.ID] = &cp
	return nil
}

// GetResponse implements Store.GetResponse.
func (m *Memory) GetResponse(_ context.Context, id string) (*schema.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *rec
	return &cp, nil
}

// DeleteResponse implements Store.DeleteResponse.
func (m *Memory) DeleteResponse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.responses, id)
	return nil
}

// ListUnsynced implements Store.ListUnsynced.
func (m *Memory) ListUnsynced(_ context.Context, participantID string) ([]*schema.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []*schema.ResponseRecord
	for _, rec := range m.responses {
		if rec.ParticipantID == participantID && !rec.Synced {
			cp := *rec
			recs = append(recs, &cp)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})

	return recs, nil
}

// DeleteResponsesFor implements Store.DeleteResponsesFor.
func (m *Memory) DeleteResponsesFor(_ context.Context, participantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, rec := range m.responses {
		if rec.ParticipantID == participantID {
			delete(m.responses, id)
			n++
		}
	}

	return n, nil
}

// ActivateSession implements Store.ActivateSession.
func (m *Memory) ActivateSession(_ context.Context, rec *schema.SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if id != rec.SessionID {
			s.IsActive = false
		}
	}

	cp := *rec
	cp.IsActive = true
	m.sessions[rec.SessionID] = &cp
	return nil
}

// DeactivateSession implements Store.DeactivateSession.
func (m *Memory) DeactivateSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		s.IsActive = false
	}
	return nil
}

// ListSessions implements Store.ListSessions.
func (m *Memory) ListSessions(_ context.Context) ([]*schema.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []*schema.SessionRecord
	for _, s := range m.sessions {
		cp := *s
		recs = append(recs, &cp)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].JoinedAt.After(recs[j].JoinedAt)
	})

	return recs, nil
}

// Close implements Store.Close. Dropping the maps is unnecessary; the
// store simply stops being referenced.
func (m *Memory) Close() error {
	return nil
}
