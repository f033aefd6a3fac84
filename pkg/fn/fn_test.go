package fn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultBasics(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Error("Ok result flags wrong")
	}
	v, err := ok.Unwrap()
	if v != 42 || err != nil {
		t.Errorf("Unwrap = %v, %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() || !e.IsErr() {
		t.Error("Err result flags wrong")
	}
	if got := e.UnwrapOr(7); got != 7 {
		t.Errorf("UnwrapOr = %d", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair("x", nil); r.IsErr() {
		t.Error("nil error should be Ok")
	}
	if r := FromPair("x", errors.New("bad")); r.IsOk() {
		t.Error("non-nil error should be Err")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(3), func(n int) string {
		if n == 3 {
			return "three"
		}
		return "?"
	})
	v, _ := r.Unwrap()
	if v != "three" {
		t.Errorf("MapResult = %q", v)
	}

	e := MapResult(Err[int](errors.New("boom")), func(n int) string { return "never" })
	if e.IsOk() {
		t.Error("error should propagate through MapResult")
	}
}

func TestThenShortCircuits(t *testing.T) {
	ctx := context.Background()
	double := MapStage(func(n int) int { return n * 2 })
	fail := Stage[int, int](func(context.Context, int) Result[int] {
		return Errf[int]("always fails")
	})
	var reached bool
	after := Stage[int, int](func(_ context.Context, n int) Result[int] {
		reached = true
		return Ok(n)
	})

	if r := Then(double, after)(ctx, 5); r.IsErr() {
		t.Error("composed ok stages should succeed")
	}
	reached = false
	if r := Then(fail, after)(ctx, 5); r.IsOk() {
		t.Error("failure should short-circuit")
	}
	if reached {
		t.Error("second stage ran after failure")
	}
}

func TestParMapResultOrderAndBound(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	var active, maxActive atomic.Int32

	results := ParMapResult(items, 3, func(n int) Result[int] {
		cur := active.Add(1)
		for {
			m := maxActive.Load()
			if cur <= m || maxActive.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Ok(n * n)
	})

	if len(results) != len(items) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		v, err := r.Unwrap()
		if err != nil || v != i*i {
			t.Errorf("result[%d] = %v, %v", i, v, err)
		}
	}
	if maxActive.Load() > 3 {
		t.Errorf("worker bound exceeded: %d", maxActive.Load())
	}
}

func TestParMapResultIsolatesFailures(t *testing.T) {
	results := ParMapResult([]int{1, 2, 3}, 2, func(n int) Result[int] {
		if n == 2 {
			return Errf[int]("item %d failed", n)
		}
		return Ok(n)
	})
	var okCount, errCount int
	for _, r := range results {
		if r.IsOk() {
			okCount++
		} else {
			errCount++
		}
	}
	if okCount != 2 || errCount != 1 {
		t.Errorf("ok=%d err=%d", okCount, errCount)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("attempt %d", attempts)
		}
		return Ok("done")
	})
	if r.IsErr() {
		t.Fatal("expected eventual success")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		attempts++
		return Errf[string]("nope")
	})
	if r.IsOk() || attempts != 2 {
		t.Errorf("ok=%v attempts=%d", r.IsOk(), attempts)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("fail")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMapAndFilter(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(n int) int { return n * 2 })
	if len(doubled) != 3 || doubled[2] != 6 {
		t.Errorf("Map = %v", doubled)
	}
	evens := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(evens) != 2 || evens[0] != 2 {
		t.Errorf("Filter = %v", evens)
	}
}
