package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshState_Active(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		state  RefreshState
		active bool
	}{
		{"no session", RefreshState{}, false},
		{"unexpired", RefreshState{TokenHash: "abc", ExpiresAt: now.Add(time.Second)}, true},
		{"expires exactly now", RefreshState{TokenHash: "abc", ExpiresAt: now}, false},
		{"expired", RefreshState{TokenHash: "abc", ExpiresAt: now.Add(-time.Second)}, false},
		{"expiry without token", RefreshState{ExpiresAt: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.active, tt.state.Active(now))
		})
	}
}
