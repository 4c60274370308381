package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanRetry(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		want        bool
	}{
		{"first attempt spent", 1, 3, true},
		{"one attempt left", 2, 3, true},
		{"budget spent", 3, 3, false},
		{"over budget", 4, 3, false},
		{"single attempt policy", 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &MediaJob{Attempts: tt.attempts}
			assert.Equal(t, tt.want, j.CanRetry(tt.maxAttempts))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, (&MediaJob{Status: JobStatusQueued}).Terminal())
	assert.False(t, (&MediaJob{Status: JobStatusProcessing}).Terminal())
	assert.True(t, (&MediaJob{Status: JobStatusDone}).Terminal())
	assert.True(t, (&MediaJob{Status: JobStatusError}).Terminal())
}
