package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		start  string
		status string
		want   string
	}{
		{"starting soon", "2026-03-01T16:00:00Z", "scheduled", "tier=HOT next_check=5m0s live_window=true"},
		{"tonight", "2026-03-01T23:00:00Z", "scheduled", "tier=WARM next_check=1h0m0s live_window=false"},
		{"in three days", "2026-03-04T15:00:00Z", "scheduled", "tier=COOL next_check=6h0m0s live_window=false"},
		{"next month", "2026-04-01T15:00:00Z", "scheduled", "tier=COLD next_check=24h0m0s live_window=false"},
		{"live overrides start", "2026-02-01T15:00:00Z", "live", "tier=HOT next_check=5m0s live_window=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, classify(&buf, tt.start, tt.status, now))
			assert.Equal(t, tt.want+"\n", buf.String())
		})
	}
}

func TestClassify_Errors(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer

	assert.Error(t, classify(&buf, "tomorrow", "scheduled", now))
	assert.Error(t, classify(&buf, "2026-03-01T16:00:00Z", "postponed", now))
	assert.Empty(t, buf.String())
}
