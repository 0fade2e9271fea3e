package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker() (*Breaker, *clock) {
	c := &clock{t: time.Unix(0, 0)}
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 10 * time.Second, HalfOpenMaxCalls: 1}).
		WithClock(c.now)
	return b, c
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker should reject without calling, got %v called=%v", err, called)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()

	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b, c := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}

	c.advance(10 * time.Second)
	if err := b.Do(succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}

	c.advance(11 * time.Second)
	if err := b.Do(fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	c.advance(5 * time.Second)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("breaker reopened at probe time, expected ErrOpen before timeout, got %v", err)
	}
}

func TestHalfOpenLimitsConcurrentProbes(t *testing.T) {
	b, c := newTestBreaker()
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}
	c.advance(10 * time.Second)

	err := b.Do(func() error {
		// a second caller while the probe is running is rejected
		if inner := b.Do(succeed); !errors.Is(inner, ErrOpen) {
			t.Errorf("concurrent probe: got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Errorf("probe: %v", err)
	}
}

func TestLateResultFromEarlierStateIsIgnored(t *testing.T) {
	b, c := newTestBreaker()

	// acquired while closed, finishes after the breaker has gone half-open
	slowGen, err := b.acquire()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}
	c.advance(10 * time.Second)

	probeGen, err := b.acquire()
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.release(slowGen, nil)

	if _, err := b.acquire(); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe admitted while first is running: %v", err)
	}
	if b.successes != 0 || b.inFlight != 1 {
		t.Errorf("late result counted: successes=%d inFlight=%d", b.successes, b.inFlight)
	}

	b.release(probeGen, nil)
	if b.State() != StateHalfOpen {
		t.Errorf("state = %v, want half_open after one of two successes", b.State())
	}
}

func TestStateString(t *testing.T) {
	if StateHalfOpen.String() != "half_open" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
