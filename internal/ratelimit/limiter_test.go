package ratelimit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sdko-org/logrelay/internal/metrics"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(logger, limit, window)
	l.now = clock.Now
	return l, clock
}

func TestCheck_EleventhRequestRejected(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)

	for i := 1; i <= 10; i++ {
		res := l.Check("1.2.3.4")
		if !res.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if res.Remaining != 10-i {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 10-i)
		}
		clock.Advance(time.Second)
	}

	res := l.Check("1.2.3.4")
	if res.Allowed {
		t.Fatal("11th request should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
}

func TestCheck_WindowHardReset(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)

	for i := 0; i < 12; i++ {
		l.Check("k")
	}

	// Exactly at windowStart+W the window is still active.
	clock.Advance(time.Minute)
	if res := l.Check("k"); res.Allowed {
		t.Fatal("request at window boundary should still be rejected")
	}

	clock.Advance(time.Millisecond)
	res := l.Check("k")
	if !res.Allowed || res.Remaining != 9 {
		t.Fatalf("after window got %+v, want allowed with remaining 9", res)
	}
}

func TestCheck_RejectionDoesNotIncrement(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	l.Check("k")
	l.Check("k")
	for i := 0; i < 5; i++ {
		l.Check("k")
	}

	v, ok := l.entries.Load("k")
	if !ok {
		t.Fatal("entry missing")
	}
	if v.count != 2 {
		t.Errorf("count = %d, want 2", v.count)
	}
}

func TestCheck_KeysIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Check("a").Allowed {
		t.Fatal("first request for a rejected")
	}
	if l.Check("a").Allowed {
		t.Fatal("second request for a allowed")
	}
	if !l.Check("b").Allowed {
		t.Fatal("first request for b rejected")
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)

	l.Check("old")
	clock.Advance(45 * time.Second)
	l.Check("fresh")
	clock.Advance(30 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("Sweep() removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	if _, ok := l.entries.Load("fresh"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestCheck_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCheck_KeyGaugeTracksNewKeys(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	metrics.RateLimitKeys.Set(0)

	l.Check("10.0.0.1")
	l.Check("10.0.0.1")
	l.Check("10.0.0.2")
	if got := promtestutil.ToFloat64(metrics.RateLimitKeys); got != 2 {
		t.Fatalf("gauge = %v after two new keys, want 2", got)
	}

	clock.Advance(2 * time.Minute)
	l.Check("10.0.0.1")
	if got := promtestutil.ToFloat64(metrics.RateLimitKeys); got != 2 {
		t.Errorf("gauge = %v after a window reset, want 2", got)
	}

	l.Sweep()
	if got := promtestutil.ToFloat64(metrics.RateLimitKeys); got != 1 {
		t.Errorf("gauge = %v after sweep, want 1", got)
	}
}
