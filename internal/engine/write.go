package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/livedeck/responsync/internal/remote"
	"github.com/livedeck/responsync/internal/schema"
	"github.com/livedeck/responsync/internal/store"
)

// SaveResponse captures one answer durably, then attempts immediate
// delivery when the device is online.
//
// Local durability always precedes network I/O: the record is persisted
// (to the fallback queue when the durable store rejects it) before any
// delivery attempt. Delivery failure is a background concern, never
// surfaced to the caller; only a write that could not be captured at all
// returns an error.
//
// Writes for a participant other than the active session's are rejected
// as a logged no-op.
func (e *Engine) SaveResponse(ctx context.Context, participantID, slideID string, payload json.RawMessage) error {
	e.mu.Lock()

	if e.active == nil {
		e.mu.Unlock()
		e.config.Logger.Printf("WARNING: SaveResponse with no active session, dropping answer for slide %s", slideID)
		return nil
	}
	if e.active.ParticipantID != participantID {
		e.mu.Unlock()
		e.config.Logger.Printf("WARNING: SaveResponse for participant %s does not match active session, dropping", participantID)
		return nil
	}

	rec := schema.NewResponseRecord(participantID, slideID, payload)

	var st store.Store
	if err := e.store.PutResponse(ctx, rec); err != nil {
		if !e.durable {
			e.mu.Unlock()
			return fmt.Errorf("failed to capture answer: %w", err)
		}

		e.config.Logger.Printf("WARNING: durable write failed, queueing in memory: %v", err)
		fb := e.fallbackLocked()
		if ferr := fb.PutResponse(ctx, rec); ferr != nil {
			e.mu.Unlock()
			return fmt.Errorf("failed to capture answer: %w", ferr)
		}
		st = fb
	} else {
		st = e.store
	}
	e.mu.Unlock()

	if !e.online() {
		e.setStatus(schema.AfterWrite(1, false))
		return nil
	}

	answer := remote.Answer{
		ID:            rec.ID,
		ParticipantID: rec.ParticipantID,
		SlideID:       rec.SlideID,
		Payload:       rec.Payload,
	}

	if err := e.remote.SubmitAnswer(ctx, answer); err != nil {
		// Recoverable: the record is already durable and the next
		// synchronizer pass retries it.
		e.config.Logger.Printf("Immediate delivery of %s failed, queued for sync: %v", rec.ID, err)
		e.setStatus(schema.AfterWrite(1, true))
		return nil
	}

	// Deletion is the terminal state for a confirmed record; remove it
	// before reporting synced so no duplicate redelivery is possible.
	if err := st.DeleteResponse(ctx, rec.ID); err != nil {
		e.config.Logger.Printf("WARNING: failed to delete confirmed record %s: %v", rec.ID, err)
		e.setStatus(schema.AfterWrite(1, true))
		return nil
	}

	e.setStatus(schema.AfterWrite(0, true))
	return nil
}
