package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestLimiter returns a limiter whose sleeps advance a fake clock and
// whose jitter is always zero.
func newTestLimiter(cfg Config) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	l := New(cfg,
		WithClock(clock.Now),
		WithRand(func() float64 { return 0.5 }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slept = append(slept, d)
			clock.Advance(d)
			return nil
		}),
	)
	return l, clock, &slept
}

func testConfig() Config {
	return Config{
		MaxConcurrent:     2,
		RequestsPerMinute: 3,
		BaseDelay:         time.Second,
		MaxDelay:          20 * time.Second,
		Jitter:            200 * time.Millisecond,
	}
}

func TestCanAdmit_ConcurrencyCeiling(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())

	require.True(t, l.CanAdmit())
	l.Admit()
	require.True(t, l.CanAdmit())
	l.Admit()
	assert.False(t, l.CanAdmit(), "third concurrent request must wait")

	l.Release(true)
	assert.True(t, l.CanAdmit())
}

func TestCanAdmit_SlidingWindow(t *testing.T) {
	l, clock, _ := newTestLimiter(testConfig())

	for i := 0; i < 3; i++ {
		l.Admit()
		l.Release(true)
		clock.Advance(10 * time.Second)
	}
	assert.False(t, l.CanAdmit(), "window holds 3 requests")

	clock.Advance(31 * time.Second) // first request leaves the window
	assert.True(t, l.CanAdmit())
}

func TestCanAdmit_HasNoSideEffects(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())
	l.Admit()
	before := l.Stats()
	for i := 0; i < 5; i++ {
		l.CanAdmit()
	}
	assert.Equal(t, before, l.Stats())
}

func TestActiveRequestsNeverNegativeOrAboveCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerMinute = 1000
	l, _, _ := newTestLimiter(cfg)

	ops := []bool{true, true, false, false, false, true, true, true, false, true, false, false}
	for _, admit := range ops {
		if admit {
			if l.CanAdmit() {
				l.Admit()
			}
		} else {
			l.Release(true)
		}
		s := l.Stats()
		assert.GreaterOrEqual(t, s.ActiveRequests, 0)
		assert.LessOrEqual(t, s.ActiveRequests, cfg.MaxConcurrent)
	}
}

func TestComputeDelay_MonotonicAndCapped(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())

	prev := l.ComputeDelay()
	assert.Equal(t, time.Second, prev)

	for n := 1; n <= 10; n++ {
		l.Release(false)
		d := l.ComputeDelay()
		assert.GreaterOrEqual(t, d, prev, "failure %d", n)
		assert.LessOrEqual(t, d, 20*time.Second, "failure %d", n)
		prev = d
	}
	assert.Equal(t, 20*time.Second, prev)
}

func TestComputeDelay_Exponent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDelay = time.Hour
	l, _, _ := newTestLimiter(cfg)

	want := []time.Duration{2, 4, 8, 16, 32, 32, 32}
	for i, w := range want {
		l.Release(false)
		assert.Equal(t, w*time.Second, l.ComputeDelay(), "after %d failures", i+1)
	}
}

func TestRelease_SuccessResetsBackoff(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())
	l.Release(false)
	l.Release(false)
	s := l.Stats()
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.InDelta(t, 2.25, s.BackoffMultiplier, 1e-9)

	l.Release(true)
	s = l.Stats()
	assert.Zero(t, s.ConsecutiveFailures)
	assert.InDelta(t, 1.0, s.BackoffMultiplier, 1e-9)
	assert.Equal(t, time.Second, l.ComputeDelay())
}

func TestBackoffMultiplierCapped(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())
	for i := 0; i < 20; i++ {
		l.Release(false)
	}
	assert.InDelta(t, 10.0, l.Stats().BackoffMultiplier, 1e-9)
}

func TestDelay_FloorAndJitter(t *testing.T) {
	l, _, slept := newTestLimiter(testConfig())

	require.NoError(t, l.Delay(context.Background(), 100*time.Millisecond))
	require.NoError(t, l.Delay(context.Background(), 0))

	require.Len(t, *slept, 2)
	assert.Equal(t, 500*time.Millisecond, (*slept)[0], "floored")
	assert.Equal(t, time.Second, (*slept)[1], "computed delay, zero jitter")
}

func TestDelay_JitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.999} {
		l := New(testConfig(), WithRand(func() float64 { return r }),
			WithSleeper(func(_ context.Context, d time.Duration) error {
				assert.GreaterOrEqual(t, d, 800*time.Millisecond)
				assert.LessOrEqual(t, d, 1200*time.Millisecond)
				return nil
			}))
		require.NoError(t, l.Delay(context.Background(), 0))
	}
}

func TestDelay_Cancelled(t *testing.T) {
	l := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Delay(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteGated_ReleasesAndPreservesError(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())
	boom := errors.New("boom")

	err := l.ExecuteGated(context.Background(), func(context.Context) error {
		assert.Equal(t, 1, l.Stats().ActiveRequests)
		return boom
	})
	assert.Same(t, boom, err)

	s := l.Stats()
	assert.Zero(t, s.ActiveRequests)
	assert.Equal(t, 1, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.RequestsInWindow)
}

func TestExecuteGated_WaitsForWindow(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerMinute = 1
	l, _, slept := newTestLimiter(cfg)

	require.NoError(t, l.ExecuteGated(context.Background(), func(context.Context) error { return nil }))
	require.NoError(t, l.ExecuteGated(context.Background(), func(context.Context) error { return nil }))

	// The second call polls until the first timestamp ages out of the window.
	assert.NotEmpty(t, *slept)
	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	assert.GreaterOrEqual(t, total, time.Minute)
}

func TestExecuteGated_CancelledWhileWaiting(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	l := New(cfg)
	l.Admit()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := l.ExecuteGated(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestAdaptToSignal(t *testing.T) {
	t.Run("captcha halves throughput and doubles delay", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		l.AdaptToSignal(Signal{CaptchaDetected: true})
		s := l.Stats()
		assert.Equal(t, 1, s.RequestsPerMinute)
		assert.Equal(t, 2*time.Second, s.BaseDelay)
	})

	t.Run("captcha delay is capped", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		for i := 0; i < 10; i++ {
			l.AdaptToSignal(Signal{CaptchaDetected: true})
		}
		s := l.Stats()
		assert.Equal(t, 20*time.Second, s.BaseDelay)
		assert.Equal(t, 1, s.RequestsPerMinute)
	})

	t.Run("ip block goes to the floor", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		l.AdaptToSignal(Signal{IPBlocked: true})
		s := l.Stats()
		assert.Equal(t, 20*time.Second, s.BaseDelay)
		assert.Equal(t, 1, s.RequestsPerMinute)
	})

	t.Run("low success rate raises delay to a smaller cap", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		rate := 0.2
		for i := 0; i < 10; i++ {
			l.AdaptToSignal(Signal{RecentSuccessRate: &rate})
		}
		assert.Equal(t, 10*time.Second, l.Stats().BaseDelay)
	})

	t.Run("never loosens", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		l.AdaptToSignal(Signal{IPBlocked: true})
		rate := 0.1
		l.AdaptToSignal(Signal{RecentSuccessRate: &rate})
		l.Release(true)
		assert.Equal(t, 20*time.Second, l.Stats().BaseDelay)
	})

	t.Run("healthy success rate is ignored", func(t *testing.T) {
		l, _, _ := newTestLimiter(testConfig())
		rate := 0.9
		l.AdaptToSignal(Signal{RecentSuccessRate: &rate})
		assert.Equal(t, time.Second, l.Stats().BaseDelay)
	})
}

func TestReset(t *testing.T) {
	l, _, _ := newTestLimiter(testConfig())
	l.Admit()
	l.Release(false)
	l.AdaptToSignal(Signal{IPBlocked: true})

	l.Reset()
	s := l.Stats()
	assert.Equal(t, Stats{
		BackoffMultiplier: 1,
		BaseDelay:         time.Second,
		RequestsPerMinute: 3,
		MaxConcurrent:     2,
	}, s)
}

func TestPreset(t *testing.T) {
	tests := []struct {
		level string
		rpm   int
		conc  int
	}{
		{"minimal", 60, 5},
		{"standard", 30, 3},
		{"strict", 15, 2},
		{"stealth", 8, 1},
		{"bogus", 30, 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Preset(tt.level, 1500*time.Millisecond)
			assert.Equal(t, tt.rpm, cfg.RequestsPerMinute)
			assert.Equal(t, tt.conc, cfg.MaxConcurrent)
			assert.Equal(t, 1500*time.Millisecond, cfg.BaseDelay)
		})
	}
}
