package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseRecord(t *testing.T) {
	payload := json.RawMessage(`{"choice": 2}`)
	rec := NewResponseRecord("p-1", "slide-9", payload)

	require.NoError(t, rec.Validate())
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "p-1", rec.ParticipantID)
	assert.Equal(t, "slide-9", rec.SlideID)
	assert.Equal(t, payload, rec.Payload)
	assert.False(t, rec.Synced)
	assert.WithinDuration(t, time.Now().UTC(), rec.CreatedAt, time.Minute)
}

func TestNewResponseRecordUniqueIDs(t *testing.T) {
	a := NewResponseRecord("p-1", "s-1", json.RawMessage(`1`))
	b := NewResponseRecord("p-1", "s-1", json.RawMessage(`1`))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestResponseRecordValidate(t *testing.T) {
	valid := func() *ResponseRecord {
		return &ResponseRecord{
			ID:            "r-1",
			ParticipantID: "p-1",
			SlideID:       "s-1",
			Payload:       json.RawMessage(`true`),
			CreatedAt:     time.Now(),
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*ResponseRecord)
	}{
		{"missing id", func(r *ResponseRecord) { r.ID = "" }},
		{"missing participant", func(r *ResponseRecord) { r.ParticipantID = "" }},
		{"missing slide", func(r *ResponseRecord) { r.SlideID = "" }},
		{"missing payload", func(r *ResponseRecord) { r.Payload = nil }},
		{"missing created_at", func(r *ResponseRecord) { r.CreatedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid()
			tt.mutate(rec)
			assert.Error(t, rec.Validate())
		})
	}
}

func TestSessionRecordValidate(t *testing.T) {
	rec := &SessionRecord{
		SessionID:     "sess-1",
		ParticipantID: "p-1",
		JoinedAt:      time.Now(),
		IsActive:      true,
	}
	require.NoError(t, rec.Validate())

	rec.SessionID = ""
	assert.Error(t, rec.Validate())
}
