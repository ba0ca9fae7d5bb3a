// Package heartbeat implements the Heartbeat Monitor of spec.md §4.8:
// tracking the last time each session was heard from and sweeping away
// sessions that have gone stale, mirroring the Java
// WebSocketHeartbeatMonitor's interval/multiplier staleness rule.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/victornm/quizboard/internal/metrics"
)

const (
	DefaultInterval   = 30 * time.Second
	StaleMultiplier   = 2
	DefaultSweepEvery = 60 * time.Second
)

// Config configures a Monitor. Cleanup is called for every session
// found stale during a sweep; it must not block on I/O for long, and
// must never be called while the sweep loop holds Monitor's lock.
type Config struct {
	Interval   time.Duration
	SweepEvery time.Duration
	Cleanup    func(sessionID string)
}

type Monitor struct {
	staleAfter time.Duration
	sweepEvery time.Duration
	cleanup    func(sessionID string)

	mu   sync.Mutex
	seen map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(c Config) *Monitor {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = DefaultSweepEvery
	}

	return &Monitor{
		staleAfter: c.Interval * StaleMultiplier,
		sweepEvery: c.SweepEvery,
		cleanup:    c.Cleanup,
		seen:       make(map[string]time.Time),
	}
}

// Record marks a session as having just been heard from, either by an
// explicit HEARTBEAT frame or any other inbound message.
func (m *Monitor) Record(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[sessionID] = time.Now()
}

// Forget removes a session from tracking without invoking Cleanup,
// for use when a connection closes normally and its own teardown path
// already ran cleanup.
func (m *Monitor) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, sessionID)
}

// Start launches the periodic sweep. It returns immediately; call
// Stop to cancel the sweep during shutdown.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Monitor) sweep() {
	now := time.Now()

	var stale []string
	m.mu.Lock()
	for sessionID, last := range m.seen {
		if now.Sub(last) >= m.staleAfter {
			stale = append(stale, sessionID)
		}
	}
	for _, sessionID := range stale {
		delete(m.seen, sessionID)
	}
	m.mu.Unlock()

	// Cleanup runs outside the lock: it may call back into the Session
	// Registry and other components, and must never block a Record
	// call from another goroutine.
	for range stale {
		metrics.RecordHeartbeatCleanup()
	}

	if m.cleanup == nil {
		return
	}
	for _, sessionID := range stale {
		m.cleanup(sessionID)
	}
}
