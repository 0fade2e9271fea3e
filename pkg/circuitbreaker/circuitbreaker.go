package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 表示熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭：正常状态，允许调用
	StateOpen                  // 打开：直接拒绝调用
	StateHalfOpen              // 半开：放行少量探测调用
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

// Config 熔断器配置
type Config struct {
	// 连续失败多少次后打开
	FailureThreshold int
	// 半开状态下连续成功多少次后关闭
	SuccessThreshold int
	// 打开状态持续多久后进入半开
	OpenTimeout time.Duration
	// 半开状态下同时放行的最大调用数
	HalfOpenMaxCalls int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker stops calling a failing dependency for OpenTimeout after
// FailureThreshold consecutive failures, then lets probe calls through.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
	// 每次状态切换递增，旧代的调用结果不再计入
	generation uint64
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// WithClock replaces time.Now; used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Do runs fn unless the breaker is open, in which case it returns ErrOpen
// without calling fn.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(gen, err)
	return err
}

func (b *Breaker) acquire() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.setState(StateHalfOpen)
		b.successes = 0
		b.inFlight = 0
	}

	switch b.state {
	case StateOpen:
		return 0, ErrOpen
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			return 0, ErrOpen
		}
		b.inFlight++
	}
	return b.generation, nil
}

func (b *Breaker) release(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}

	if b.state == StateHalfOpen {
		b.inFlight--
		if err != nil {
			// 半开状态下失败，立即重新打开
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
		}
		return
	}

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) setState(s State) {
	b.state = s
	b.generation++
}

func (b *Breaker) trip() {
	b.setState(StateOpen)
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
