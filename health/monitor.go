package health

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Monitor holds the latest status of every component and serves their
// aggregate over HTTP
type Monitor struct {
	name string

	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a monitor whose aggregate is reported as systemName
func NewMonitor(systemName string) *Monitor {
	return &Monitor{name: systemName, statuses: make(map[string]Status)}
}

// Update stores status under name. The component name is forced to name and
// a zero timestamp is set to now.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy sanitizes message
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, Sanitize(message)))
}

// UpdateDegraded sanitizes message
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, Sanitize(message)))
}

// ConnectionReporter returns a callback that marks name healthy or unhealthy
// as a connection comes and goes
func (m *Monitor) ConnectionReporter(name string) func(healthy bool) {
	return func(healthy bool) {
		if healthy {
			m.UpdateHealthy(name, "connected")
		} else {
			m.UpdateUnhealthy(name, "disconnected")
		}
	}
}

func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	m.mu.Unlock()
}

// Components returns the monitored names, sorted
func (m *Monitor) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.statuses))
}

// AggregateHealth combines every component status, see Aggregate
func (m *Monitor) AggregateHealth() Status {
	m.mu.RLock()
	subs := slices.Collect(maps.Values(m.statuses))
	m.mu.RUnlock()
	return Aggregate(m.name, subs)
}

// ServeHTTP writes the aggregate as JSON: 503 when unhealthy, 200 otherwise
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := m.AggregateHealth()

	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
