package engine

import (
	"context"
	"time"

	"github.com/livedeck/responsync/internal/remote"
	"github.com/livedeck/responsync/internal/schema"
	"github.com/livedeck/responsync/internal/store"
)

// The synchronizer is driven by one trigger channel with two producers:
// the interval timer (which only fires when the queue is non-empty) and
// connectivity regained events. A single consumer goroutine runs passes,
// and the in-flight guard in RunPass keeps a manually invoked pass from
// overlapping a scheduled one.

// startLoopsLocked launches the background goroutines once. Caller holds
// e.mu.
func (e *Engine) startLoopsLocked() {
	if e.started {
		return
	}
	e.started = true

	ctx, cancel := context.WithCancel(context.Background())
	e.loopCancel = cancel

	e.wg.Add(2)
	go e.timerLoop(ctx)
	go e.passLoop(ctx)

	if e.monitor != nil {
		e.wg.Add(1)
		go e.reconnectLoop(ctx)
	}
}

// timerLoop schedules a pass on a fixed interval while work is queued.
func (e *Engine) timerLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !e.online() {
				continue
			}
			if n := e.pendingCount(ctx); n > 0 {
				e.firePass()
			}
		}
	}
}

// reconnectLoop schedules a one-shot pass on each offline-to-online
// transition.
func (e *Engine) reconnectLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case online, ok := <-e.monitor.Events():
			if !ok {
				return
			}
			if online {
				e.config.Logger.Printf("Back online, scheduling sync pass")
				e.firePass()
			}
		}
	}
}

// passLoop is the single consumer of the trigger channel.
func (e *Engine) passLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case <-e.trigger:
			if err := e.RunPass(ctx); err != nil {
				e.config.Logger.Printf("WARNING: sync pass failed: %v", err)
			}
		}
	}
}

// firePass requests a pass. Requests arriving while one is already queued
// coalesce.
func (e *Engine) firePass() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// pendingCount reports the number of queued records for the active
// session, treating enumeration errors as zero.
func (e *Engine) pendingCount(ctx context.Context) int {
	recs, err := e.Pending(ctx)
	if err != nil {
		return 0
	}
	return len(recs)
}

// RunPass sweeps every pending record once, delivering each in turn.
//
// Outcomes per record: success deletes it; a not-found class error is a
// conflict discard, deleting it unconditionally (the owning entity is gone
// and the record can never be accepted); any other error leaves it for the
// next pass. One record's failure never aborts the rest of the pass.
//
// Non-reentrant: a pass requested while one is in flight is skipped, never
// run concurrently.
func (e *Engine) RunPass(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncing.Store(false)

	e.mu.Lock()
	active := e.active
	st := e.store
	fb := e.fallback
	e.mu.Unlock()

	if active == nil || st == nil {
		e.config.Logger.Printf("WARNING: sync pass requested with no active session")
		return nil
	}

	e.setStatus(schema.StatusSyncing)

	// Enumerate the durable queue, then whatever landed in the fallback.
	// A store failure here degrades to the in-memory view instead of
	// aborting the pass.
	type item struct {
		origin store.Store
		rec    *schema.ResponseRecord
	}
	var items []item

	recs, err := st.ListUnsynced(ctx, active.ParticipantID)
	if err != nil {
		e.config.Logger.Printf("WARNING: store enumeration failed, syncing in-memory view only: %v", err)
	}
	for _, rec := range recs {
		items = append(items, item{origin: st, rec: rec})
	}

	if fb != nil {
		fbRecs, ferr := fb.ListUnsynced(ctx, active.ParticipantID)
		if ferr == nil {
			for _, rec := range fbRecs {
				items = append(items, item{origin: fb, rec: rec})
			}
		}
	}

	var delivered, discarded, remaining int
	for _, it := range items {
		answer := remote.Answer{
			ID:            it.rec.ID,
			ParticipantID: it.rec.ParticipantID,
			SlideID:       it.rec.SlideID,
			Payload:       it.rec.Payload,
		}

		err := e.remote.SubmitAnswer(ctx, answer)
		switch {
		case err == nil:
			if derr := it.origin.DeleteResponse(ctx, it.rec.ID); derr != nil {
				e.config.Logger.Printf("WARNING: failed to delete confirmed record %s: %v", it.rec.ID, derr)
				remaining++
				continue
			}
			delivered++

		case remote.IsNotFound(err):
			// Conflict discard: intentional data loss, logged for
			// observability.
			e.config.Logger.Printf("Discarding record %s, remote entity gone: %v", it.rec.ID, err)
			if derr := it.origin.DeleteResponse(ctx, it.rec.ID); derr != nil {
				e.config.Logger.Printf("WARNING: failed to discard record %s: %v", it.rec.ID, derr)
				remaining++
				continue
			}
			discarded++

		default:
			// Transient; retried on the next pass, paced by the
			// interval rather than per-record backoff.
			e.config.Logger.Printf("Delivery of %s failed, will retry: %v", it.rec.ID, err)
			remaining++
		}
	}

	e.setStatus(schema.AfterPass(remaining))

	if len(items) > 0 {
		e.config.Logger.Printf("Sync pass complete: delivered=%d discarded=%d remaining=%d",
			delivered, discarded, remaining)
	}
	return nil
}
