// Package circuitbreaker guards calls to remote risk endpoints. Each endpoint
// host has its own circuit that moves closed → open → half-open.
package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls fail fast
	StateHalfOpen              // one probe call in flight
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

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tmxauth",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by endpoint, from-state, and to-state.",
}, []string{"endpoint", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker holds one circuit per endpoint. A circuit opens after threshold
// consecutive failures and allows a single probe once cooldown has passed.
type Breaker struct {
	mu           sync.Mutex
	circuits     map[string]*circuit
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	onTransition func(endpoint string, from, to State)
}

// New creates a breaker. Non-positive arguments fall back to 5 failures and
// a 30s cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// OnTransition sets a callback invoked asynchronously on state changes.
func (b *Breaker) OnTransition(fn func(endpoint string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a call to endpoint may proceed. An open circuit whose
// cooldown has elapsed moves to half-open and admits one probe.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		return true
	}

	switch c.state {
	case StateOpen:
		if b.now().Sub(c.lastFailure) >= b.cooldown {
			b.transition(c, endpoint, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.transition(c, endpoint, StateClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failed call and trips the circuit when the
// threshold is reached. A failed probe reopens immediately.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpoint]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[endpoint] = c
	}

	c.failures++
	c.lastFailure = b.now()

	switch {
	case c.state == StateHalfOpen:
		b.transition(c, endpoint, StateOpen)
	case c.state == StateClosed && c.failures >= b.threshold:
		b.transition(c, endpoint, StateOpen)
	}
}

// State returns the current state for an endpoint. Unknown endpoints are closed.
func (b *Breaker) State(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[endpoint]; ok {
		return c.state
	}
	return StateClosed
}

// Open lists the endpoints whose circuit is not closed, sorted.
func (b *Breaker) Open() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for endpoint, c := range b.circuits {
		if c.state != StateClosed {
			out = append(out, endpoint)
		}
	}
	sort.Strings(out)
	return out
}

// caller holds b.mu
func (b *Breaker) transition(c *circuit, endpoint string, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	stateTransitions.WithLabelValues(endpoint, from.String(), to.String()).Inc()
	if b.onTransition != nil {
		fn := b.onTransition
		go fn(endpoint, from, to)
	}
}
