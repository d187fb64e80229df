package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"first attempt", 100 * time.Millisecond, 0, 100 * time.Millisecond},
		{"third attempt", 100 * time.Millisecond, 2, 400 * time.Millisecond},
		{"negative attempt", 100 * time.Millisecond, -3, 100 * time.Millisecond},
		{"zero base", 0, 5, 0},
		{"saturates", time.Hour, 200, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitter_StaysInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := ExponentialWithJitter(10*time.Millisecond, 3)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 80*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), FullJitter(0))
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, SleepWithContext(context.Background(), 0))
}
