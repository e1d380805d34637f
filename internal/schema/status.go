package schema

// SyncStatus is the aggregate delivery state shown to the UI layer.
//
// The machine cycles for the lifetime of a session:
//
//	synced -> pending <-> offline -> syncing -> synced | partial
//
// There is no terminal state.
type SyncStatus string

const (
	// StatusSynced means nothing is pending; everything confirmed.
	StatusSynced SyncStatus = "synced"

	// StatusPending means at least one record failed immediate delivery
	// and awaits a background pass.
	StatusPending SyncStatus = "pending"

	// StatusOffline means the device has no connectivity. Distinct from
	// pending for UI purposes only.
	StatusOffline SyncStatus = "offline"

	// StatusSyncing means a background pass is actively running.
	StatusSyncing SyncStatus = "syncing"

	// StatusPartial means the last pass completed with records left in
	// the queue.
	StatusPartial SyncStatus = "partial"
)

// Valid reports whether s is one of the defined states.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusSynced, StatusPending, StatusOffline, StatusSyncing, StatusPartial:
		return true
	}
	return false
}

// Initial returns the state a freshly initialized or restored session
// starts in: synced when the restored queue is empty, else pending.
func Initial(pendingCount int) SyncStatus {
	if pendingCount > 0 {
		return StatusPending
	}
	return StatusSynced
}

// AfterWrite returns the state following one write-path attempt.
// A confirmed immediate delivery with an empty queue is synced; a skipped
// attempt while disconnected is offline; anything else leaves work queued.
func AfterWrite(pendingCount int, online bool) SyncStatus {
	if !online {
		return StatusOffline
	}
	return Initial(pendingCount)
}

// AfterPass returns the state following a completed synchronizer pass:
// synced when the queue drained, partial when records remain.
func AfterPass(remaining int) SyncStatus {
	if remaining > 0 {
		return StatusPartial
	}
	return StatusSynced
}
