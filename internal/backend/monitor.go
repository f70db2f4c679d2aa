package backend

import (
	"context"
	"sync"
	"time"

	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Monitor polls the backend health endpoint and exposes the result as a
// boolean connected flag. A failed probe flips the flag; the next successful
// probe (scheduled or manual) flips it back.
type Monitor struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	connected bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a health monitor polling at the given interval.
func NewMonitor(client *Client, interval time.Duration) *Monitor {
	return &Monitor{
		client:   client,
		interval: interval,
		logger:   util.GetLogger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling. It probes once immediately so callers see a real
// state instead of the zero value.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.probe(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Connected reports the result of the most recent probe.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// CheckNow runs a probe immediately (manual retry) and returns the result.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	return m.probe(ctx)
}

func (m *Monitor) probe(ctx context.Context) bool {
	ok := m.client.Health(ctx)

	m.mu.Lock()
	changed := ok != m.connected
	m.connected = ok
	m.mu.Unlock()

	if changed {
		if ok {
			m.logger.Info("Backend connection restored")
		} else {
			m.logger.Warn("Backend unreachable", zap.Duration("retry_in", m.interval))
		}
	}
	return ok
}
