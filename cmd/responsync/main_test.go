package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	assert.False(t, queueExists(path), "inspection must not see a queue before one is written")

	require.NoError(t, os.WriteFile(path, []byte{}, 0644))
	assert.True(t, queueExists(path))

	// The check itself never creates the file.
	missing := filepath.Join(t.TempDir(), "never-created.db")
	queueExists(missing)
	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://live.example.com", "live.example.com:443"},
		{"http://live.example.com", "live.example.com:80"},
		{"https://live.example.com:8443", "live.example.com:8443"},
		{"not a url", "1.1.1.1:443"},
		{"", "1.1.1.1:443"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, probeAddr(tt.base), "base %q", tt.base)
	}
}
