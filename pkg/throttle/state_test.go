package throttle

import (
	"testing"
	"time"
)

func TestState_IsBlocked(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		state    *State
		expected bool
	}{
		{
			name:     "no block",
			state:    &State{},
			expected: false,
		},
		{
			name:     "blocked",
			state:    &State{BlockedUntil: now.Add(30 * time.Second)},
			expected: true,
		},
		{
			name:     "block ended",
			state:    &State{BlockedUntil: now.Add(-time.Second)},
			expected: false,
		},
		{
			name:     "ends now",
			state:    &State{BlockedUntil: now},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsBlocked(now); got != tt.expected {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	state := &State{BlockedUntil: now.Add(90 * time.Second)}
	if got := state.TimeUntilReset(now); got != 90*time.Second {
		t.Errorf("TimeUntilReset() = %v, want 90s", got)
	}

	state = &State{BlockedUntil: now.Add(-time.Minute)}
	if got := state.TimeUntilReset(now); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past block", got)
	}
}
