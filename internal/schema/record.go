// Package schema provides the persistent record types for the response queue.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResponseRecord is one answer submitted by a participant to one slide.
// The payload is opaque to the engine; it is stored and delivered verbatim.
// A record exists from the moment the answer is accepted until delivery is
// confirmed or the record is discarded as unrecoverable.
type ResponseRecord struct {
	// ID is generated locally at write time and doubles as the
	// idempotency key sent with every delivery attempt.
	ID string `json:"id"`

	// Foreign references to remote entities. Opaque to the engine.
	ParticipantID string `json:"participant_id"`
	SlideID       string `json:"slide_id"`

	Payload json.RawMessage `json:"payload"`

	// CreatedAt orders records for display; it is not a correctness
	// invariant.
	CreatedAt time.Time `json:"created_at"`

	// Synced is false from creation until delivery is confirmed.
	Synced bool `json:"synced"`
}

// NewResponseRecord builds an unsynced record with a fresh id and the
// current time.
func NewResponseRecord(participantID, slideID string, payload json.RawMessage) *ResponseRecord {
	return &ResponseRecord{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		SlideID:       slideID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate checks that the ResponseRecord has valid field values.
func (r *ResponseRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	if r.SlideID == "" {
		return fmt.Errorf("slide_id is required")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SessionRecord is one session-membership the local client has joined.
// At most one record is treated as the current session at any time; the
// store may retain historical records with IsActive=false.
type SessionRecord struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`

	// IsActive is flipped to false when the session ends or is found
	// stale server-side. Never resurrected once inactive.
	IsActive bool `json:"is_active"`
}

// Validate checks that the SessionRecord has valid field values.
func (s *SessionRecord) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if s.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	if s.JoinedAt.IsZero() {
		return fmt.Errorf("joined_at is required")
	}
	return nil
}
