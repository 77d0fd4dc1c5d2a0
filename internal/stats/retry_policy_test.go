package stats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net failure" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

func TestShouldRetryStopsAtBudget(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, time.Millisecond, time.Second)
	err := errors.New("transient")

	require.True(t, p.ShouldRetry(err, 1))
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3))
}

func TestShouldRetryNeverOnNil(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, time.Millisecond, time.Second)
	require.False(t, p.ShouldRetry(nil, 1))
}

func TestShouldRetryNeverOnContextErrors(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, time.Millisecond, time.Second)
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 1))
}

func TestShouldRetryNetworkFailures(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, time.Millisecond, time.Second)
	require.True(t, p.ShouldRetry(timeoutErr{timeout: true}, 1))

	// Connection-level failures never carry a timeout flag but are just as
	// transient as a slow response.
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	require.True(t, p.ShouldRetry(refused, 1))
	reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	require.True(t, p.ShouldRetry(reset, 1))
	require.True(t, p.ShouldRetry(fmt.Errorf("fetch: %w", refused), 1))
}

func TestBackoffGrowsAndStaysCapped(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	maxDelay := time.Second
	p := NewExponentialRetryPolicy(10, base, maxDelay)

	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Backoff(attempt)
		require.Positive(t, d, "attempt %d", attempt)
		require.LessOrEqual(t, d, maxDelay, "attempt %d", attempt)
	}
}

func TestDefaultsApplyForNonPositiveKnobs(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 0, 0)
	require.Equal(t, 3, p.MaxAttempts())
	require.Positive(t, p.Backoff(1))
}

func TestTimerDelayerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := TimerDelayer{}.Delay(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTimerDelayerZeroIsImmediate(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, TimerDelayer{}.Delay(context.Background(), 0))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
