package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // trial calls allowed while half-open

	// OnStateChange, when set, is called outside the lock after each transition.
	OnStateChange func(from, to BreakerState)
}

// ProtectedNotifier bounds each send with a timeout and stops calling a
// failing provider until a cooldown has passed.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	now   func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trials   int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner: inner,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

func (n *ProtectedNotifier) SendDecision(ctx context.Context, in DecisionInput) error {
	from, to, ok := n.acquire()
	n.changed(from, to)
	if !ok {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.SendDecision(sendCtx, in)

	n.changed(n.record(err))
	return err
}

func (n *ProtectedNotifier) State() BreakerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// acquire decides whether a call may go out, moving open to half-open once
// the cooldown has elapsed.
func (n *ProtectedNotifier) acquire() (from, to BreakerState, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	from = n.state

	switch n.state {
	case StateOpen:
		if n.now().Sub(n.openedAt) < n.cfg.Cooldown {
			return from, n.state, false
		}
		n.state = StateHalfOpen
		n.trials = 1
		return from, n.state, true
	case StateHalfOpen:
		if n.trials >= n.cfg.HalfOpenMaxCalls {
			return from, n.state, false
		}
		n.trials++
		return from, n.state, true
	default:
		return from, n.state, true
	}
}

func (n *ProtectedNotifier) record(err error) (from, to BreakerState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	from = n.state
	if n.state == StateHalfOpen && n.trials > 0 {
		n.trials--
	}

	switch {
	case err == nil:
		n.failures = 0
		n.state = StateClosed
	case n.state == StateHalfOpen:
		// a failed trial reopens immediately
		n.failures++
		n.trip()
	default:
		n.failures++
		if n.failures >= n.cfg.FailureThreshold {
			n.trip()
		}
	}
	return from, n.state
}

func (n *ProtectedNotifier) trip() {
	n.state = StateOpen
	n.openedAt = n.now()
}

func (n *ProtectedNotifier) changed(from, to BreakerState) {
	if from != to && n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(from, to)
	}
}
