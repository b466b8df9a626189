package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Attempts: 5, Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{9, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	t.Run("zero multiplier doubles", func(t *testing.T) {
		p := Policy{Initial: time.Millisecond}
		assert.Equal(t, 4*time.Millisecond, p.Delay(3))
	})
}

func TestPolicy_Bound(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		perAttempt time.Duration
		want       time.Duration
	}{
		{
			name:       "attempts plus waits between them",
			policy:     Policy{Attempts: 4, Initial: 10 * time.Millisecond, Max: 25 * time.Millisecond, Multiplier: 2},
			perAttempt: time.Second,
			// 10ms + 20ms + 25ms of waits, none after the last attempt.
			want: 4*time.Second + 55*time.Millisecond,
		},
		{
			name:       "zero attempts still runs once",
			policy:     Policy{Initial: time.Second},
			perAttempt: time.Second,
			want:       time.Second,
		},
		{
			name:       "no backoff",
			policy:     Policy{Attempts: 3},
			perAttempt: 2 * time.Second,
			want:       6 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Bound(tt.perAttempt))
		})
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	fast := Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var seen []int
		err := Do(ctx, fast, func(_ context.Context, attempt int) error {
			seen = append(seen, attempt)
			if attempt < 3 {
				return errFlaky
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("exhaustion wraps last error", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fast, func(context.Context, int) error {
			calls++
			return errFlaky
		})
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, errFlaky)

		var ex *ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, 3, ex.Attempts)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fast, func(context.Context, int) error {
			calls++
			return Permanent(errFlaky)
		})
		assert.Equal(t, 1, calls)
		assert.Equal(t, errFlaky, err)
		assert.NotErrorIs(t, err, ErrExhausted)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		err := Do(ctx, Policy{}, func(context.Context, int) error {
			calls++
			return errFlaky
		})
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, ErrExhausted)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		slow := Policy{Attempts: 5, Initial: time.Hour}
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := Do(cctx, slow, func(context.Context, int) error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
