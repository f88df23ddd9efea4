package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

func (s State) gauge() float64 {
	switch s {
	case StateClosed:
		return 0
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	}
	return -1
}

// Settings configure a Breaker. Zero values fall back to one request, a 0.5
// failure ratio and a 30 second cool-off.
type Settings struct {
	// Target labels metrics and transition logs, e.g. "dataprovider".
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// counts is the rolling outcome window of a closed breaker.
type counts struct {
	ok, failed int
}

func (c counts) total() int { return c.ok + c.failed }

func (c counts) ratio() float64 {
	if c.total() == 0 {
		return 0
	}
	return float64(c.failed) / float64(c.total())
}

// halve keeps the window bounded while preserving its ratio.
func (c *counts) halve() {
	c.ok = (c.ok + 1) / 2
	c.failed = (c.failed + 1) / 2
}

// Breaker trips when the failure ratio over at least MinRequests outcomes
// reaches FailureRatio. While half-open a single probe is in flight at a time.
type Breaker struct {
	cfg Settings

	mu       sync.Mutex
	state    State
	window   counts
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker.
func NewBreaker(s Settings) *Breaker {
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.FailureRatio > 1 {
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	s.Target = strings.TrimSpace(s.Target)
	if s.Target == "" {
		s.Target = "default"
	}
	b := &Breaker{cfg: s}
	b.publishState()
	return b
}

// Target returns the dependency label.
func (b *Breaker) Target() string { return b.cfg.Target }

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose cool-off
// elapsed lets exactly one probe through and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveTo(ctx, StateHalfOpen)
	case StateHalfOpen:
		if b.probing {
			return false
		}
	}
	b.probing = true
	return true
}

// Report records the outcome of an allowed call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		return
	case StateHalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, StateClosed)
		} else {
			b.moveTo(ctx, StateOpen)
		}
		return
	}

	if success {
		b.window.ok++
	} else {
		b.window.failed++
	}
	if b.window.total() < b.cfg.MinRequests {
		return
	}
	if b.window.ratio() >= b.cfg.FailureRatio {
		b.moveTo(ctx, StateOpen)
		return
	}
	if b.window.total() > 2*b.cfg.MinRequests {
		b.window.halve()
	}
}

// Trip forces the breaker open, e.g. after an upstream signals maintenance.
func (b *Breaker) Trip(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(ctx, StateOpen)
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	switch next {
	case StateOpen:
		b.openedAt = b.cfg.Now()
	case StateClosed:
		b.openedAt = time.Time{}
	}
	b.window = counts{}
	if prev == next {
		return
	}
	b.state = next
	b.publishState()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Target, prev.String(), next.String()).Inc()
	}
	if next == StateOpen && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}
	evt := b.logger(ctx).Info().
		Str("target", b.cfg.Target).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.cfg.Target).Set(b.state.gauge())
	}
}

func (b *Breaker) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
