// Package remote defines the contracts the engine consumes from the
// session API, together with the error taxonomy that drives conflict
// classification during a sync pass.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound reports that the remote system no longer knows the entity a
// delivery referenced (participant, slide, or session gone). It is the
// permanent/conflict class: records failing with it are discarded rather
// than retried.
var ErrNotFound = errors.New("remote entity not found")

// Answer is one response delivery. The record's locally generated id is
// carried as an idempotency key so the remote side can dedupe retries.
type Answer struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participant_id"`
	SlideID       string          `json:"slide_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Client is the remote session API as seen by the engine.
//
// SubmitAnswer returns nil on acceptance, an error wrapping ErrNotFound
// when the owning entity is gone, and any other error for transient
// failures (network, 5xx, timeout). Timeouts are owned by the
// implementation; the engine treats an expired call like any other
// transient failure.
type Client interface {
	SubmitAnswer(ctx context.Context, a Answer) error

	// SessionStatus reports whether the session is still active
	// server-side. An error means the check itself could not complete.
	SessionStatus(ctx context.Context, sessionID string) (bool, error)
}

// IsNotFound reports whether err is the permanent/conflict class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
