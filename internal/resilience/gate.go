// Package resilience implements the Resilience Gate of spec.md §4.2: a
// circuit breaker guarding calls to the shared datastore, plus a
// periodic liveness prober. The gate only decides whether a call goes
// to the datastore; the in-memory fallback mirror itself is kept by
// the caller (internal/leaderboard).
//
// Parameters follow the original Java service's resilience4j
// CircuitBreakerConfig verbatim (see original_source/.../RedisHealthMonitor.java):
// window size 10, failure-rate threshold 50%, minimum 5 calls before
// the rate is evaluated, 30s cooldown, 3 half-open probes.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/victornm/quizboard/internal/event"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// StateTransition is published on the in-process event bus whenever
// the gate's state changes, so internal/metrics can log and count it
// without the gate importing the metrics package.
type StateTransition struct {
	From State
	To   State
}

func (StateTransition) Name() string { return "resilience.state_transition" }

type Config struct {
	WindowSize           int
	FailureRateThreshold float64
	MinCalls             int
	OpenDuration         time.Duration
	HalfOpenProbes       int
	ProbeInterval        time.Duration
	CallTimeout          time.Duration

	// Ping checks backend liveness for the periodic prober. Optional;
	// if nil the prober does not run (tests may omit it).
	Ping func(ctx context.Context) error

	EventBus *event.Bus
}

func DefaultConfig() Config {
	return Config{
		WindowSize:           10,
		FailureRateThreshold: 0.5,
		MinCalls:             5,
		OpenDuration:         30 * time.Second,
		HalfOpenProbes:       3,
		ProbeInterval:        10 * time.Second,
		CallTimeout:          2 * time.Second,
	}
}

// Gate is the circuit breaker and its prober; it holds no fallback
// data. Zero value is not usable; construct with New.
type Gate struct {
	c Config

	mu            sync.Mutex
	state         State
	window        []bool // true = success, ring buffer
	windowPos     int
	windowFilled  int
	openedAt      time.Time
	halfOpenOK    int
	halfOpenBad   int
	halfOpenCalls int
	proberHealthy bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(c Config) *Gate {
	if c.WindowSize <= 0 {
		c = DefaultConfig()
	}

	g := &Gate{
		c:             c,
		state:         Closed,
		window:        make([]bool, c.WindowSize),
		proberHealthy: true,
	}

	return g
}

// SetPing installs the liveness check the periodic prober calls, for
// callers that cannot supply it until after New (e.g. the Leaderboard
// Store's Redis client, which the Resilience Gate must itself exist
// to guard). Call before StartProber.
func (g *Gate) SetPing(fn func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.c.Ping = fn
}

// StartProber launches the periodic liveness prober. Call Stop to
// cancel it during shutdown.
func (g *Gate) StartProber(ctx context.Context) {
	if g.c.Ping == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)

		ticker := time.NewTicker(g.c.ProbeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.probe(ctx)
			}
		}
	}()
}

func (g *Gate) Stop() {
	if g.cancel != nil {
		g.cancel()
		<-g.done
	}
}

func (g *Gate) probe(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, g.c.CallTimeout)
	defer cancel()

	err := g.c.Ping(cctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.proberHealthy = err == nil

	// Sustained prober success while OPEN allows an early transition to
	// HALF_OPEN even before the cooldown elapses (spec.md §4.2).
	if g.state == Open && g.proberHealthy {
		g.transitionLocked(HalfOpen)
	}
}

// State returns the gate's current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allow reports whether the next call should be attempted against the
// backend (true) or should go straight to the fallback (false). For
// HALF_OPEN it also reserves one of the K probe slots.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Closed:
		return true
	case Open:
		if time.Since(g.openedAt) >= g.c.OpenDuration {
			g.transitionLocked(HalfOpen)
			return g.allowHalfOpenLocked()
		}
		return false
	case HalfOpen:
		return g.allowHalfOpenLocked()
	default:
		return false
	}
}

func (g *Gate) allowHalfOpenLocked() bool {
	if g.halfOpenCalls >= g.c.HalfOpenProbes {
		return false
	}
	g.halfOpenCalls++
	return true
}

// Report records the outcome of a backend call that Allow() permitted.
func (g *Gate) Report(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Closed:
		g.recordLocked(success)
		if g.shouldTripLocked() {
			g.transitionLocked(Open)
		}
	case HalfOpen:
		if success {
			g.halfOpenOK++
			if g.halfOpenOK >= g.c.HalfOpenProbes {
				g.transitionLocked(Closed)
			}
		} else {
			g.halfOpenBad++
			g.transitionLocked(Open)
		}
	case Open:
		// stray report after a concurrent transition; ignore
	}
}

func (g *Gate) recordLocked(success bool) {
	g.window[g.windowPos] = success
	g.windowPos = (g.windowPos + 1) % len(g.window)
	if g.windowFilled < len(g.window) {
		g.windowFilled++
	}
}

func (g *Gate) shouldTripLocked() bool {
	if g.windowFilled < g.c.MinCalls {
		return false
	}

	failures := 0
	for i := 0; i < g.windowFilled; i++ {
		if !g.window[i] {
			failures++
		}
	}

	return float64(failures)/float64(g.windowFilled) >= g.c.FailureRateThreshold
}

func (g *Gate) transitionLocked(to State) {
	from := g.state
	if from == to {
		return
	}
	g.state = to

	switch to {
	case Open:
		g.openedAt = time.Now()
		g.halfOpenCalls, g.halfOpenOK, g.halfOpenBad = 0, 0, 0
	case HalfOpen:
		g.halfOpenCalls, g.halfOpenOK, g.halfOpenBad = 0, 0, 0
	case Closed:
		for i := range g.window {
			g.window[i] = false
		}
		g.windowPos, g.windowFilled = 0, 0
	}

	if g.c.EventBus != nil {
		g.c.EventBus.Publish(context.Background(), StateTransition{From: from, To: to})
	}
}
