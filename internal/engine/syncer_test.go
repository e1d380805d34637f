package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livedeck/responsync/internal/remote"
	"github.com/livedeck/responsync/internal/schema"
)

// saveOffline queues answers without any delivery attempt.
func saveOffline(t *testing.T, eng *Engine, monitor *fakeMonitor, slides ...string) {
	t.Helper()

	monitor.online.Store(false)
	for _, slide := range slides {
		require.NoError(t, eng.SaveResponse(context.Background(), "p-1", slide, payload()))
	}
}

func TestPassDrainsQueue(t *testing.T) {
	client := newFakeClient()
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1", "s-2", "s-3")
	assert.Equal(t, schema.StatusOffline, eng.Status())

	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))

	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, schema.StatusSynced, eng.Status())
	assert.ElementsMatch(t, []string{"s-1", "s-2", "s-3"}, client.submittedSlides())
}

func TestPassConflictDiscard(t *testing.T) {
	client := newFakeClient()
	client.submitErrs["s-2"] = fmt.Errorf("participant gone: %w", remote.ErrNotFound)
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1", "s-2", "s-3")

	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))

	// 2 delivered, 1 conflict-discarded: the queue is empty either way.
	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs, "conflict records are discarded, not retried")
	assert.Equal(t, schema.StatusSynced, eng.Status())
}

func TestPassTransientFailureKeepsRecord(t *testing.T) {
	client := newFakeClient()
	client.submitErrs["s-2"] = context.DeadlineExceeded
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1", "s-2", "s-3")

	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))

	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1, "one record failed transiently and stays queued")
	assert.Equal(t, "s-2", recs[0].SlideID)
	assert.Equal(t, schema.StatusPartial, eng.Status())

	// The failure heals: the next pass drains it.
	client.mu.Lock()
	delete(client.submitErrs, "s-2")
	client.mu.Unlock()

	require.NoError(t, eng.RunPass(ctx))
	recs, err = eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, schema.StatusSynced, eng.Status())
}

func TestPassAtMostOneObservedSuccess(t *testing.T) {
	client := newFakeClient()
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1")

	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))
	require.NoError(t, eng.RunPass(ctx))

	assert.Len(t, client.submitted, 1, "a confirmed record is never redelivered")
}

func TestPassEnumerationFailureSyncsInMemoryView(t *testing.T) {
	client := newFakeClient()
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-durable")

	// Route a second record through the fallback queue.
	flaky := wrapStore(eng)
	flaky.putErr = fmt.Errorf("disk full")
	require.NoError(t, eng.SaveResponse(ctx, "p-1", "s-mem", payload()))
	flaky.putErr = nil

	// The durable queue cannot be enumerated; the pass still delivers
	// what the in-memory view holds instead of aborting.
	flaky.listErr = fmt.Errorf("disk I/O error")
	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))

	assert.Equal(t, []string{"s-mem"}, client.submittedSlides())
	fbRecs, err := eng.fallback.ListUnsynced(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, fbRecs, "delivered fallback record is gone")

	// Enumeration heals: the next pass picks the durable record back up.
	flaky.listErr = nil
	require.NoError(t, eng.RunPass(ctx))

	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.ElementsMatch(t, []string{"s-mem", "s-durable"}, client.submittedSlides())
	assert.Equal(t, schema.StatusSynced, eng.Status())
}

func TestPassWithoutSessionIsNoOp(t *testing.T) {
	client := newFakeClient()
	eng := newTestEngine(t, client, nil, tempStorePath(t))

	require.NoError(t, eng.RunPass(context.Background()))
	assert.Empty(t, client.submitted)
}

func TestPassNonReentrant(t *testing.T) {
	client := newFakeClient()
	eng := newTestEngine(t, client, nil, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))

	client.mu.Lock()
	client.defaultErr = context.DeadlineExceeded
	client.mu.Unlock()
	require.NoError(t, eng.SaveResponse(ctx, "p-1", "s-1", payload()))
	require.Len(t, client.submitted, 1)

	// Simulate a pass already in flight: a second request is skipped,
	// never run concurrently.
	eng.syncing.Store(true)
	require.NoError(t, eng.RunPass(ctx))
	assert.Len(t, client.submitted, 1, "skipped pass must not touch the queue")
	assert.Equal(t, schema.StatusPending, eng.Status())
	eng.syncing.Store(false)

	client.mu.Lock()
	client.defaultErr = nil
	client.mu.Unlock()

	require.NoError(t, eng.RunPass(ctx))
	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReconnectTriggersPass(t *testing.T) {
	client := newFakeClient()
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1", "s-2")

	monitor.set(true)

	require.Eventually(t, func() bool {
		recs, err := eng.Pending(ctx)
		return err == nil && len(recs) == 0 && eng.Status() == schema.StatusSynced
	}, 5*time.Second, 10*time.Millisecond, "coming back online must drain the queue")
}

func TestOfflineScenario(t *testing.T) {
	// Save 3 answers offline; go online; 2 succeed, 1 hits not-found.
	// Afterwards the queue is empty and the status is synced.
	client := newFakeClient()
	client.submitErrs["s-3"] = fmt.Errorf("slide deleted: %w", remote.ErrNotFound)
	monitor := newFakeMonitor(false)
	eng := newTestEngine(t, client, monitor, tempStorePath(t))
	ctx := context.Background()

	require.NoError(t, eng.InitializeForSession(ctx, "sess-1", "p-1"))
	saveOffline(t, eng, monitor, "s-1", "s-2", "s-3")

	recs, err := eng.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, schema.StatusOffline, eng.Status())

	monitor.online.Store(true)
	require.NoError(t, eng.RunPass(ctx))

	recs, err = eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, schema.StatusSynced, eng.Status())
}
