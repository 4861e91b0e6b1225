package worker

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	tests := []struct {
		failures int
		window   time.Duration
	}{
		{failures: 0, window: base},
		{failures: 1, window: base},
		{failures: 2, window: 2 * base},
		{failures: 3, window: 4 * base},
		{failures: 5, window: 16 * base},
		{failures: 6, window: max},
		{failures: 1000, window: max},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			got := Backoff(tt.failures, base, max)
			assert.GreaterOrEqual(t, got, tt.window/2, "failures=%d", tt.failures)
			assert.LessOrEqual(t, got, tt.window, "failures=%d", tt.failures)
		}
	}
}

func TestBackoff_InvalidBounds(t *testing.T) {
	got := Backoff(3, 0, 0)
	assert.Greater(t, got, time.Duration(0))
	assert.LessOrEqual(t, got, time.Millisecond)
}
