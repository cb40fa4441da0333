package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/mqtt2influxdb/metric"
)

// settings is everything a ClientOption can change
type settings struct {
	name     string
	username string
	password string
	token    string

	timeout        time.Duration
	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	drainTimeout   time.Duration
	messageTimeout time.Duration

	breakerThreshold  int
	breakerMaxBackoff time.Duration

	logger         *slog.Logger
	metrics        *metric.Metrics
	onHealthChange func(healthy bool)
}

func defaultSettings() settings {
	return settings{
		timeout:           5 * time.Second,
		maxReconnects:     -1,
		reconnectWait:     2 * time.Second,
		pingInterval:      30 * time.Second,
		drainTimeout:      30 * time.Second,
		messageTimeout:    30 * time.Second,
		breakerThreshold:  5,
		breakerMaxBackoff: time.Minute,
		logger:            slog.Default(),
	}
}

// ClientOption configures a Client
type ClientOption func(*settings) error

// WithName sets the connection name shown by the server
func WithName(name string) ClientOption {
	return func(s *settings) error {
		s.name = name
		return nil
	}
}

// WithCredentials authenticates with user and password
func WithCredentials(username, password string) ClientOption {
	return func(s *settings) error {
		if username == "" || password == "" {
			return fmt.Errorf("credentials need both username and password")
		}
		s.username, s.password = username, password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(s *settings) error {
		s.token = token
		return nil
	}
}

// WithTimeout bounds a single connect attempt
func WithTimeout(d time.Duration) ClientOption {
	return positive("timeout", d, func(s *settings) { s.timeout = d })
}

// WithMaxReconnects limits reconnect attempts; -1 retries forever, 0 never
func WithMaxReconnects(n int) ClientOption {
	return func(s *settings) error {
		s.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return positive("reconnect wait", d, func(s *settings) { s.reconnectWait = d })
}

// WithDrainTimeout bounds the drain in Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return positive("drain timeout", d, func(s *settings) { s.drainTimeout = d })
}

// WithMessageTimeout sets the deadline of the context passed to a MessageHandler
func WithMessageTimeout(d time.Duration) ClientOption {
	return positive("message timeout", d, func(s *settings) { s.messageTimeout = d })
}

// WithCircuitBreaker opens the circuit after threshold consecutive failures.
// The open period starts at one second and doubles up to maxBackoff.
func WithCircuitBreaker(threshold int, maxBackoff time.Duration) ClientOption {
	return func(s *settings) error {
		if threshold < 1 || maxBackoff < time.Second {
			return fmt.Errorf("circuit breaker needs threshold >= 1 and max backoff >= 1s")
		}
		s.breakerThreshold, s.breakerMaxBackoff = threshold, maxBackoff
		return nil
	}
}

// WithLogger sets the logger; slog.Default otherwise
func WithLogger(logger *slog.Logger) ClientOption {
	return func(s *settings) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection state on the transport gauges
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(s *settings) error {
		s.metrics = metrics
		return nil
	}
}

// WithHealthChangeCallback is called, on its own goroutine, whenever the
// connection comes up or goes down
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(s *settings) error {
		s.onHealthChange = fn
		return nil
	}
}

func positive(what string, d time.Duration, set func(*settings)) ClientOption {
	return func(s *settings) error {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", what, d)
		}
		set(s)
		return nil
	}
}
