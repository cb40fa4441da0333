package health

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// Level is the coarse health of a component
type Level string

const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

// Status is the health of one component, or of the whole bridge with the
// components as sub-statuses
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      Level     `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the counters a component attaches to its status
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

func NewHealthy(component, message string) Status {
	return newStatus(component, LevelHealthy, message)
}

func NewUnhealthy(component, message string) Status {
	return newStatus(component, LevelUnhealthy, message)
}

func NewDegraded(component, message string) Status {
	return newStatus(component, LevelDegraded, message)
}

func newStatus(component string, level Level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (s Status) IsHealthy() bool   { return s.Status == LevelHealthy }
func (s Status) IsDegraded() bool  { return s.Status == LevelDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// WithMetrics returns a copy of s carrying metrics
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// Aggregate reports the worst level among subs, with subs attached sorted by
// component name. No subs at all is healthy.
func Aggregate(component string, subs []Status) Status {
	worst := LevelHealthy
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			worst = LevelUnhealthy
		case sub.IsDegraded() && worst == LevelHealthy:
			worst = LevelDegraded
		}
	}

	var status Status
	switch {
	case len(subs) == 0:
		return NewHealthy(component, "No components registered")
	case worst == LevelUnhealthy:
		status = NewUnhealthy(component, "One or more components are unhealthy")
	case worst == LevelDegraded:
		status = NewDegraded(component, "One or more components are degraded")
	default:
		status = NewHealthy(component, "All components are healthy")
	}

	status.SubStatuses = slices.SortedFunc(slices.Values(subs), func(a, b Status) int {
		return strings.Compare(a.Component, b.Component)
	})
	return status
}

// Connection errors from paho, nats.go and the InfluxDB client embed broker
// URLs and sometimes tokens. Sanitize replaces them before they reach /health.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)(password|token|jwt|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)(https?|nats|tls|tcp|ssl|mqtts?|wss?)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// Sanitize strips credentials, URLs, file paths, addresses and ports from msg
func Sanitize(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}
