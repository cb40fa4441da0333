package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
)

// Log levels and formats accepted by Validate
var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
)

// Config is the runtime configuration of the bridge. The mapping table is a
// separate YAML document referenced by MappingPath.
type Config struct {
	MappingPath     string
	ShutdownTimeout time.Duration
	// MatchCacheSize bounds the topic to entry cache, 0 disables it
	MatchCacheSize int

	MQTT     MQTTConfig
	NATS     NATSConfig
	InfluxDB InfluxDBConfig
	File     FileConfig
	Metrics  MetricsConfig
	Log      LogConfig
	Workers  WorkersConfig
}

// MQTTConfig configures the MQTT input
type MQTTConfig struct {
	// URL accepts mqtt://, mqtts://, tcp://, ssl://, ws:// and wss:// schemes.
	// A client_id query parameter overrides ClientID.
	URL            string
	ClientID       string
	Username       string
	Password       string
	QoS            int
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	CleanSession   bool
	TLS            TLSConfig
	Disabled       bool
}

// TLSConfig holds client TLS settings shared by the transports
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// Enabled reports whether any TLS material is configured
func (t TLSConfig) Enabled() bool {
	return t.CAFile != "" || t.CertFile != "" || t.InsecureSkipVerify
}

// NATSConfig configures the optional NATS input and sink
type NATSConfig struct {
	URL           string
	Subscribe     bool
	SubjectPrefix string
	// Stream, when set, makes the sink publish through JetStream with acks
	Stream   string
	Token    string
	Username string
	Password string
}

// Enabled reports whether a NATS connection is needed
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// PublishEnabled reports whether mapped records are republished on NATS
func (n NATSConfig) PublishEnabled() bool {
	return n.URL != "" && n.SubjectPrefix != ""
}

// InfluxDBConfig configures the InfluxDB v2 sink
type InfluxDBConfig struct {
	URL          string
	Bucket       string
	Org          string
	Token        string
	Timeout      time.Duration
	Disabled     bool
	SkipPing     bool
	GzipRequests bool
}

// FileConfig configures the JSON-lines record archive
type FileConfig struct {
	Path string
	// Compress wraps the file in a zstd stream
	Compress bool
}

// MetricsConfig configures the Prometheus and health endpoint
type MetricsConfig struct {
	// Port 0 disables the server
	Port int
	Path string
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string
	Format string
}

// WorkersConfig sizes the processing pool
type WorkersConfig struct {
	Count     int
	QueueSize int
	// DropWhenFull drops messages instead of blocking the broker callback
	DropWhenFull bool
}

// Default returns the configuration used when neither flags nor environment
// say otherwise
func Default() Config {
	return Config{
		ShutdownTimeout: 30 * time.Second,
		MatchCacheSize:  4096,
		MQTT: MQTTConfig{
			URL:            "mqtt://localhost",
			ClientID:       "mqtt2influxdb",
			KeepAlive:      5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			CleanSession:   true,
		},
		InfluxDB: InfluxDBConfig{
			URL:     "http://localhost:8086",
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Workers: WorkersConfig{
			Count:     4,
			QueueSize: 1024,
		},
	}
}

// Validate checks the configuration and normalises log settings to lower case
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.MappingPath == "" {
		add("mapping config path is required (--config or CONFIG)")
	}

	if !c.MQTT.Disabled {
		if _, _, err := c.MQTT.Broker(); err != nil {
			add("mqtt: %v", err)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			add("mqtt: qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
		if c.MQTT.KeepAlive <= 0 {
			add("mqtt: keep-alive must be positive")
		}
		if err := c.MQTT.TLS.validate(); err != nil {
			add("mqtt: %v", err)
		}
	}

	if !c.InfluxDB.Disabled {
		if _, err := parseURL(c.InfluxDB.URL, "http", "https"); err != nil {
			add("influxdb: %v", err)
		}
		if c.InfluxDB.Bucket == "" {
			add("influxdb: bucket is required (--influxdb-bucket or INFLUXDB_BUCKET)")
		}
		if c.InfluxDB.Org == "" {
			add("influxdb: org is required (--influxdb-org or INFLUXDB_ORG)")
		}
		if c.InfluxDB.Token == "" {
			add("influxdb: token is required (--influxdb-jwt or INFLUXDB_JWT)")
		}
	}

	if c.NATS.Enabled() {
		if _, err := parseURL(c.NATS.URL, "nats", "tls", "ws", "wss"); err != nil {
			add("nats: %v", err)
		}
		if strings.ContainsAny(c.NATS.SubjectPrefix, "*> ") {
			add("nats: subject prefix %q must not contain wildcards or spaces", c.NATS.SubjectPrefix)
		}
		if c.NATS.Stream != "" && c.NATS.SubjectPrefix == "" {
			add("nats: stream %q requires a subject prefix", c.NATS.Stream)
		}
	} else if c.NATS.Subscribe {
		add("nats: subscribe requires a NATS url")
	}

	if c.MQTT.Disabled && !c.NATS.Subscribe {
		add("no input enabled: enable MQTT or NATS subscription")
	}
	if c.InfluxDB.Disabled && c.File.Path == "" && !c.NATS.PublishEnabled() {
		add("no sink enabled: configure InfluxDB, a records file or a NATS subject prefix")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		add("metrics: invalid port %d", c.Metrics.Port)
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	if !contains(validLogLevels, c.Log.Level) {
		add("invalid log level: %s", c.Log.Level)
	}
	if !contains(validLogFormats, c.Log.Format) {
		add("invalid log format: %s", c.Log.Format)
	}

	if c.Workers.Count < 1 {
		add("workers must be at least 1, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize < 1 {
		add("worker queue size must be at least 1, got %d", c.Workers.QueueSize)
	}
	if c.MatchCacheSize < 0 {
		add("match cache size cannot be negative, got %d", c.MatchCacheSize)
	}
	if c.ShutdownTimeout <= 0 {
		add("shutdown timeout must be positive")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "check configuration")
	}
	return nil
}

// Broker returns the paho broker URL and the effective client id. mqtt and
// mqtts schemes become tcp and ssl with the default ports 1883 and 8883.
func (m MQTTConfig) Broker() (broker string, clientID string, err error) {
	u, err := parseURL(m.URL, "mqtt", "mqtts", "tcp", "ssl", "tls", "ws", "wss")
	if err != nil {
		return "", "", err
	}

	clientID = m.ClientID
	if id := u.Query().Get("client_id"); id != "" {
		clientID = id
	}
	if clientID == "" {
		return "", "", fmt.Errorf("client id is required")
	}

	scheme := u.Scheme
	port := u.Port()
	switch scheme {
	case "mqtt", "tcp":
		scheme = "tcp"
		if port == "" {
			port = "1883"
		}
	case "mqtts", "ssl", "tls":
		scheme = "ssl"
		if port == "" {
			port = "8883"
		}
	}

	host := u.Hostname()
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	out := url.URL{Scheme: scheme, Host: host, Path: u.Path}
	return out.String(), clientID, nil
}

// Secure reports whether the broker URL selects a TLS transport
func (m MQTTConfig) Secure() bool {
	u, err := url.Parse(m.URL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "mqtts", "ssl", "tls", "wss":
		return true
	}
	return false
}

func (t TLSConfig) validate() error {
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("tls client certificate requires both cert and key files")
	}
	return nil
}

// String renders the configuration with secrets redacted
func (c *Config) String() string {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "[REDACTED]"
	}
	return fmt.Sprintf(
		"Config{Mapping: %s, MQTT: %s (client %s, user %q, password %s), InfluxDB: %s (bucket %s, org %s, token %s), "+
			"NATS: %s (subscribe %t, prefix %q, stream %q), File: %s, Metrics: %d, Workers: %d/%d}",
		c.MappingPath, c.MQTT.URL, c.MQTT.ClientID, c.MQTT.Username, redact(c.MQTT.Password),
		c.InfluxDB.URL, c.InfluxDB.Bucket, c.InfluxDB.Org, redact(c.InfluxDB.Token),
		c.NATS.URL, c.NATS.Subscribe, c.NATS.SubjectPrefix, c.NATS.Stream,
		c.File.Path, c.Metrics.Port, c.Workers.Count, c.Workers.QueueSize)
}

func parseURL(raw string, schemes ...string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if !contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid port %q in %q", p, raw)
		}
	}
	return u, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
