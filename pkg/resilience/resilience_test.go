package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAllowAndRefill(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 2})
	l.now = func() time.Time { return now }

	if !l.Allow() || !l.Allow() {
		t.Fatal("burst tokens should be available")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("refill after 1.5s at rate 1 should allow one call")
	}
	if l.Allow() {
		t.Fatal("only one token should have been refilled")
	}
}

func TestLimiterBurstCap(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 3})
	l.now = func() time.Time { return now }

	now = now.Add(time.Hour)
	granted := 0
	for l.Allow() {
		granted++
	}
	if granted != 3 {
		t.Errorf("granted %d tokens, burst cap is 3", granted)
	}
}

func TestLimiterClampsNonPositiveRate(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 0, Burst: 1})
	l.now = func() time.Time { return now }

	if !l.Allow() {
		t.Fatal("burst token should be available")
	}
	now = now.Add(2 * time.Second)
	if !l.Allow() {
		t.Fatal("clamped rate should still refill tokens")
	}

	l = NewLimiter(LimiterOpts{Rate: -5, Burst: 1})
	l.Allow() // drain
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait should acquire a token at the clamped rate: %v", err)
	}
}

func TestLimiterCall(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	called := false
	err := l.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("first call should pass: err=%v called=%v", err, called)
	}
	err = l.Call(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("second call should be limited, got %v", err)
	}
}

func TestLimiterWaitRespectsContext(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, OpenFor: time.Minute})
	fail := func(context.Context) error { return errors.New("backend down") }
	ctx := context.Background()

	b.Call(ctx, fail)
	b.Call(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Call(ctx, fail); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker should fail fast, got %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, OpenFor: time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Call(ctx, func(context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatal("breaker should be half-open after cooldown")
	}

	if err := b.Call(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 3, OpenFor: time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Call(ctx, func(context.Context) error { return errors.New("boom") })
	}
	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatal("breaker should be half-open")
	}
	b.Call(ctx, func(context.Context) error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Errorf("failed probe should reopen, state = %v", b.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, OpenFor: time.Minute})
	ctx := context.Background()

	b.Call(ctx, func(context.Context) error { return errors.New("boom") })
	b.Call(ctx, func(context.Context) error { return nil })
	b.Call(ctx, func(context.Context) error { return errors.New("boom") })
	if b.State() != StateClosed {
		t.Errorf("interleaved success should reset the failure count, state = %v", b.State())
	}
}
