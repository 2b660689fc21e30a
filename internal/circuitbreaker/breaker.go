// Package circuitbreaker provides a per-key circuit breaker with
// closed → open → half-open state transitions.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: requests flow through
	StateOpen                  // Tripped: requests are rejected
	StateHalfOpen              // Probing: one request allowed to test recovery
)

// String returns the state name.
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

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scamshield",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// entry tracks per-key circuit state.
type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker is a per-key circuit breaker. It tracks failure counts per key
// and trips open when failures exceed the threshold. After openDuration,
// the circuit moves to half-open and allows one probe request.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	openDuration time.Duration
	onTransition func(key string, from, to State) // optional callback for metrics
}

// New creates a circuit breaker that opens after threshold consecutive
// failures and stays open for openDuration before probing.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &Breaker{
		entries:      make(map[string]*entry),
		threshold:    threshold,
		openDuration: openDuration,
	}
}

// OnTransition sets a callback invoked on state changes (for metrics).
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a request for the given key may proceed.
// In the open state it returns false until openDuration has elapsed,
// at which point the circuit moves to half-open and one probe is allowed.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(e.lastFailure) >= b.openDuration {
			b.transition(key, e, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// Only one probe at a time; subsequent callers wait.
		return false
	}
	return true
}

// Success records a successful request, closing the circuit.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	if e.state != StateClosed {
		b.transition(key, e, StateClosed)
	}
	e.failures = 0
}

// Failure records a failed request. In half-open state a single failure
// re-opens the circuit; in closed state the circuit opens once the
// consecutive-failure threshold is reached.
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	e.failures++
	e.lastFailure = time.Now()

	if e.state == StateHalfOpen || e.failures >= b.threshold {
		if e.state != StateOpen {
			b.transition(key, e, StateOpen)
		}
	}
}

// CurrentState returns the state for a key (for introspection).
func (b *Breaker) CurrentState(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(key).state
}

func (b *Breaker) entry(key string) *entry {
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	return e
}

// transition moves the entry to the new state (caller holds b.mu).
func (b *Breaker) transition(key string, e *entry, to State) {
	from := e.state
	e.state = to
	if to == StateClosed {
		e.failures = 0
	}
	cbStateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.onTransition != nil {
		b.onTransition(key, from, to)
	}
}
