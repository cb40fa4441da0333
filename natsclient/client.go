package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/mqtt2influxdb/errors"
)

// ConnectionStatus is the state of the NATS connection
type ConnectionStatus int32

// Connection states. StatusCircuitOpen is reported while the breaker blocks
// new attempts, whatever the connection itself is doing.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "circuit_open"}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	// ErrNotConnected is returned by operations that need a live connection
	ErrNotConnected = fmt.Errorf("not connected to NATS: %w", errors.ErrConnectionLost)
	// ErrCircuitOpen is returned while the breaker blocks new attempts
	ErrCircuitOpen = fmt.Errorf("nats: %w", errors.ErrCircuitOpen)
)

const transportLabel = "nats"

// MessageHandler receives each message delivered on a subscription.
// ctx expires after the message timeout.
type MessageHandler func(ctx context.Context, subject string, data []byte)

// Stats is a snapshot of the client state
type Stats struct {
	Status      ConnectionStatus
	Failures    int
	LastFailure time.Time
	Backoff     time.Duration
	Reconnects  int
	RTT         time.Duration
}

// Client is a NATS connection with a circuit breaker around connects and
// JetStream publishes
type Client struct {
	url     string
	cfg     settings
	logger  *slog.Logger
	breaker *breaker

	state      atomic.Int32
	reconnects atomic.Int32
	closed     atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// NewClient applies opts. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Client", "NewClient", "apply option")
		}
	}

	return &Client{
		url:     url,
		cfg:     cfg,
		logger:  cfg.logger.With("component", "natsclient"),
		breaker: newBreaker(cfg.breakerThreshold, cfg.breakerMaxBackoff),
	}, nil
}

// URL returns the server URL
func (c *Client) URL() string { return c.url }

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	if c.breaker.open() {
		return StatusCircuitOpen
	}
	return ConnectionStatus(c.state.Load())
}

// IsHealthy reports whether the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Stats returns failure counters and, when connected, the round-trip time
func (c *Client) Stats() Stats {
	bs := c.breaker.stats()
	s := Stats{
		Status:      c.Status(),
		Failures:    bs.failures,
		LastFailure: bs.lastFailure,
		Backoff:     bs.backoff,
		Reconnects:  int(c.reconnects.Load()),
	}
	if rtt, err := c.RTT(); err == nil {
		s.RTT = rtt
	}
	return s
}

func (c *Client) setState(status ConnectionStatus) {
	c.state.Store(int32(status))
	c.cfg.metrics.RecordTransportStatus(transportLabel, status == StatusConnected)
}

func (c *Client) healthChanged(healthy bool) {
	if fn := c.cfg.onHealthChange; fn != nil {
		go fn(healthy)
	}
}

// fail feeds err to the breaker and returns ErrCircuitOpen if that opened it
func (c *Client) fail(err error) error {
	opened, backoff := c.breaker.failure()
	if !opened {
		return err
	}
	c.cfg.metrics.RecordCircuitBreakerState(1)
	c.logger.Warn("Circuit breaker opened", "backoff", backoff, "error", err)
	return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
}

func (c *Client) succeed() {
	c.breaker.success()
	c.cfg.metrics.RecordCircuitBreakerState(0)
}

// Connect dials the server. A ctx that ends first abandons the attempt; a
// connection that still completes afterwards is closed.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(ErrNotConnected, "Client", "Connect", "connect closed client")
	}
	if c.breaker.open() {
		return ErrCircuitOpen
	}

	c.setState(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	abandoned := make(chan struct{})
	go func() {
		conn, err := nats.Connect(c.url, c.natsOptions()...)
		select {
		case done <- result{conn, err}:
		case <-abandoned:
			if conn != nil {
				conn.Close()
			}
		}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		close(abandoned)
		c.setState(StatusDisconnected)
		return c.fail(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connect to "+c.url))
	}
	if res.err != nil {
		c.setState(StatusDisconnected)
		return c.fail(errors.WrapTransient(res.err, "Client", "Connect", "connect to "+c.url))
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		c.logger.Warn("JetStream unavailable", "error", err)
	}

	c.mu.Lock()
	c.conn, c.js = res.conn, js
	c.mu.Unlock()

	c.setState(StatusConnected)
	c.succeed()
	c.healthChanged(true)
	c.logger.Info("Connected to NATS", "url", c.url, "server", res.conn.ConnectedServerName())
	return nil
}

// WaitForConnection blocks until the client is connected or ctx ends
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (c *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.Timeout(c.cfg.timeout),
		nats.MaxReconnects(c.cfg.maxReconnects),
		nats.ReconnectWait(c.cfg.reconnectWait),
		nats.PingInterval(c.cfg.pingInterval),
		nats.DrainTimeout(c.cfg.drainTimeout),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ClosedHandler(c.onClosed),
		nats.ErrorHandler(c.onAsyncError),
	}
	if c.cfg.name != "" {
		opts = append(opts, nats.Name(c.cfg.name))
	}
	if c.cfg.username != "" {
		opts = append(opts, nats.UserInfo(c.cfg.username, c.cfg.password))
	}
	if c.cfg.token != "" {
		opts = append(opts, nats.Token(c.cfg.token))
	}
	return opts
}

// Close unsubscribes and drains the connection. The drain is bounded by the
// drain timeout or the ctx deadline, whichever comes first. Close is
// idempotent.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	conn, subs := c.conn, c.subs
	c.conn, c.js, c.subs = nil, nil, nil
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+sub.Subject))
		}
	}

	if conn != nil {
		errs = append(errs, c.drain(ctx, conn))
		conn.Close()
	}

	c.cfg.username, c.cfg.password, c.cfg.token = "", "", ""
	c.setState(StatusDisconnected)
	return stderrors.Join(errs...)
}

func (c *Client) drain(ctx context.Context, conn *nats.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.drainTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	select {
	case err := <-done:
		if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Error("Drain failed", "error", err)
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-ctx.Done():
		c.logger.Error("Drain did not finish, closing", "error", ctx.Err())
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain connection")
	}
}

func (c *Client) liveConn() (*nats.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// RTT measures the round trip to the server
func (c *Client) RTT() (time.Duration, error) {
	conn, err := c.liveConn()
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Subscribe delivers messages on subject to handler. Each call gets a context
// derived from ctx that expires after the message timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	conn, err := c.liveConn()
	if err != nil {
		return err
	}

	timeout := c.cfg.messageTimeout
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		handler(msgCtx, msg.Subject, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Client", "Subscribe", "subscribe "+subject)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	c.logger.Debug("Subscribed", "subject", subject)
	return nil
}

// Subscriptions lists the subscribed subjects
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subjects := make([]string, 0, len(c.subs))
	for _, sub := range c.subs {
		subjects = append(subjects, sub.Subject)
	}
	return subjects
}

// Unsubscribe drops every subscription on subject
func (c *Client) Unsubscribe(subject string) error {
	c.mu.Lock()
	var matched []*nats.Subscription
	c.subs = slices.DeleteFunc(c.subs, func(sub *nats.Subscription) bool {
		if sub.Subject == subject {
			matched = append(matched, sub)
			return true
		}
		return false
	})
	c.mu.Unlock()

	var errs []error
	for _, sub := range matched {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		return errors.WrapTransient(err, "Client", "Unsubscribe", "unsubscribe "+subject)
	}
	return nil
}

// Publish sends data on a core NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := c.liveConn()
	if err != nil {
		return err
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// JetStream returns the JetStream handle of the current connection
func (c *Client) JetStream() (jetstream.JetStream, error) {
	if c.breaker.open() {
		return nil, ErrCircuitOpen
	}
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil || c.Status() != StatusConnected {
		return nil, ErrNotConnected
	}
	return js, nil
}

// EnsureStream creates the stream, or updates it to capture subjects
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return c.fail(errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+name))
	}

	c.logger.Info("JetStream stream ready", "stream", name, "subjects", subjects)
	return nil
}

// PublishToStream publishes on a stream subject and waits for the ack
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return c.fail(errors.WrapTransient(err, "Client", "PublishToStream", "publish "+subject))
	}
	c.succeed()
	return nil
}

func (c *Client) onDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setState(StatusReconnecting)
	c.logger.Warn("Disconnected from NATS", "error", err)
	c.healthChanged(false)
}

func (c *Client) onReconnect(_ *nats.Conn) {
	c.reconnects.Add(1)
	c.cfg.metrics.RecordTransportReconnect(transportLabel)
	c.setState(StatusConnected)
	c.succeed()
	c.logger.Info("Reconnected to NATS", "url", c.url)
	c.healthChanged(true)
}

func (c *Client) onClosed(_ *nats.Conn) {
	c.setState(StatusDisconnected)
	c.healthChanged(false)
}

// Slow consumer and permission errors are logged only
func (c *Client) onAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS async error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS async error", "error", err)
}
