package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livedeck/responsync/internal/schema"
)

func TestMemoryResponses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := testResponse("r-1", "p-1")
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	second := testResponse("r-2", "p-1")

	require.NoError(t, m.PutResponse(ctx, second))
	require.NoError(t, m.PutResponse(ctx, first))
	require.NoError(t, m.PutResponse(ctx, testResponse("r-3", "p-2")))

	recs, err := m.ListUnsynced(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r-1", recs[0].ID)

	got, err := m.GetResponse(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, "r-2", got.ID)

	require.NoError(t, m.DeleteResponse(ctx, "r-1"))
	_, err = m.GetResponse(ctx, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := m.DeleteResponsesFor(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := testResponse("r-1", "p-1")
	require.NoError(t, m.PutResponse(ctx, rec))

	got, err := m.GetResponse(ctx, "r-1")
	require.NoError(t, err)
	got.Synced = true

	again, err := m.GetResponse(ctx, "r-1")
	require.NoError(t, err)
	assert.False(t, again.Synced, "mutating a returned record must not change the store")
}

func TestMemorySessions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ActivateSession(ctx, &schema.SessionRecord{
		SessionID:     "sess-1",
		ParticipantID: "p-1",
		JoinedAt:      time.Now().UTC().Add(-time.Minute),
	}))
	require.NoError(t, m.ActivateSession(ctx, &schema.SessionRecord{
		SessionID:     "sess-2",
		ParticipantID: "p-2",
		JoinedAt:      time.Now().UTC(),
	}))

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].SessionID, "most recent first")
	assert.True(t, sessions[0].IsActive)
	assert.False(t, sessions[1].IsActive, "activation deactivates others")

	require.NoError(t, m.DeactivateSession(ctx, "sess-2"))
	sessions, err = m.ListSessions(ctx)
	require.NoError(t, err)
	assert.False(t, sessions[0].IsActive)
}
