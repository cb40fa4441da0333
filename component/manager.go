package component

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/health"
)

// Manager starts components in registration order and stops them in reverse
type Manager struct {
	mu         sync.Mutex
	components []*managed
	logger     *slog.Logger
}

type managed struct {
	c       LifecycleComponent
	state   State
	lastErr error
}

// NewManager creates an empty manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "manager")}
}

// Add registers a component. Components must be added before StartAll.
func (m *Manager) Add(c LifecycleComponent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, &managed{c: c, state: StateCreated})
}

// Components returns the registered components in start order
func (m *Manager) Components() []LifecycleComponent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LifecycleComponent, len(m.components))
	for i, mc := range m.components {
		out[i] = mc.c
	}
	return out
}

// StartAll initializes then starts every component. When one fails, the
// components already started are stopped in reverse order.
func (m *Manager) StartAll(ctx context.Context, stopTimeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range m.components {
		if err := mc.c.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			return errors.Wrap(err, "Manager", "StartAll", "initialize "+mc.c.Meta().Key())
		}
		mc.state = StateInitialized
	}

	for i, mc := range m.components {
		key := mc.c.Meta().Key()
		m.logger.Debug("Starting component", "name", key)

		if err := mc.c.Start(ctx); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			m.logger.Error("Component start failed", "name", key, "error", err)
			_ = m.stopLocked(m.components[:i], stopTimeout)
			return errors.Wrap(err, "Manager", "StartAll", "start "+key)
		}

		mc.state = StateStarted
		m.logger.Info("Component started", "name", key)
	}
	return nil
}

// StopAll stops every started component in reverse start order
func (m *Manager) StopAll(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(m.components, timeout)
}

func (m *Manager) stopLocked(components []*managed, timeout time.Duration) error {
	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		mc := components[i]
		if mc.state != StateStarted {
			continue
		}

		key := mc.c.Meta().Key()
		start := time.Now()
		if err := mc.c.Stop(timeout); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			m.logger.Error("Component stop failed",
				"name", key,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", key, err))
			continue
		}

		mc.state = StateStopped
		m.logger.Debug("Component stopped", "name", key, "duration_ms", time.Since(start).Milliseconds())
	}
	return stderrors.Join(errs...)
}

// States returns the lifecycle state of each component keyed by Metadata.Key
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		out[mc.c.Meta().Key()] = mc.state
	}
	return out
}

// ReportHealth copies every component's health into monitor
func (m *Manager) ReportHealth(monitor *health.Monitor) {
	for _, c := range m.Components() {
		key := c.Meta().Key()
		monitor.Update(key, c.Health().ToStatus(key))
	}
}

// WatchHealth calls ReportHealth every interval until ctx is done
func (m *Manager) WatchHealth(ctx context.Context, monitor *health.Monitor, interval time.Duration) {
	m.ReportHealth(monitor)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReportHealth(monitor)
		}
	}
}
