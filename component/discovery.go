package component

import (
	"time"

	"github.com/c360/mqtt2influxdb/health"
)

// Component types
const (
	TypeInput     = "input"
	TypeOutput    = "output"
	TypeProcessor = "processor"
)

// Discoverable is implemented by every input, output and the bridge itself
type Discoverable interface {
	// Meta returns basic component information
	Meta() Metadata

	// Health returns current health status
	Health() HealthStatus
}

// Metadata describes what a component is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // input, processor or output
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Key returns "<type>.<name>", the name used on /health
func (m Metadata) Key() string {
	if m.Type == "" {
		return m.Name
	}
	return m.Type + "." + m.Name
}

// HealthStatus describes the current health state of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Degraded   bool          `json:"degraded,omitempty"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
	Processed  int64         `json:"processed,omitempty"`
}

// ToStatus converts the component view into a health.Status. LastError is sanitized.
func (h HealthStatus) ToStatus(name string) health.Status {
	var status health.Status
	switch {
	case h.Healthy && !h.Degraded:
		status = health.NewHealthy(name, "Component healthy")
	case h.Healthy && h.Degraded:
		status = health.NewDegraded(name, health.Sanitize(h.LastError))
	default:
		msg := health.Sanitize(h.LastError)
		if msg == "" {
			msg = "Component not running"
		}
		status = health.NewUnhealthy(name, msg)
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:            h.Uptime,
		ErrorCount:        h.ErrorCount,
		MessagesProcessed: h.Processed,
		LastActivity:      h.LastCheck,
	})
}
