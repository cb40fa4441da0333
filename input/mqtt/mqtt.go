package mqtt

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/c360/mqtt2influxdb/component"
	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/input"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/metric"
	"github.com/c360/mqtt2influxdb/pkg/retry"
	"github.com/c360/mqtt2influxdb/pkg/tlsutil"
)

const transportLabel = message.TransportMQTT

// ClientFactory builds the paho client. Tests replace it with a fake.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// InputDeps holds runtime dependencies for the MQTT input
type InputDeps struct {
	Name    string
	Config  config.MQTTConfig
	Topics  []string
	Handler input.Handler
	Metrics *metric.Metrics
	Logger  *slog.Logger

	// Retry controls the startup connect; retry.Persistent() when zero
	Retry retry.Config
	// NewClient defaults to paho.NewClient
	NewClient ClientFactory
}

// Input subscribes to every mapped topic on an MQTT broker
type Input struct {
	name      string
	cfg       config.MQTTConfig
	topics    []string
	handler   input.Handler
	metrics   *metric.Metrics
	logger    *slog.Logger
	retry     retry.Config
	newClient ClientFactory

	client paho.Client
	broker string

	// ctx is handed to the handler; cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	running   atomic.Bool
	connected atomic.Bool
	startedAt atomic.Int64 // unix nanoseconds

	messages   atomic.Int64
	bytes      atomic.Int64
	errorCount atomic.Int64
	reconnects atomic.Int64
	lastError  atomic.Value // string
}

// NewInput creates an MQTT input. The connection is opened by Start.
func NewInput(deps InputDeps) (*Input, error) {
	if deps.Handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Input", "NewInput", "message handler is required")
	}

	name := deps.Name
	if name == "" {
		name = "mqtt"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retryCfg := deps.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.Persistent()
	}

	newClient := deps.NewClient
	if newClient == nil {
		newClient = paho.NewClient
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Input{
		name:      name,
		cfg:       deps.Config,
		topics:    append([]string(nil), deps.Topics...),
		handler:   deps.Handler,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "input."+name),
		retry:     retryCfg,
		newClient: newClient,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Meta returns component metadata
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        i.name,
		Type:        component.TypeInput,
		Description: "MQTT subscriber for mapped topics",
		Version:     "1.0.0",
	}
}

// Health reports the connection state. A running input that lost its broker is
// degraded while paho reconnects.
func (i *Input) Health() component.HealthStatus {
	running := i.running.Load()
	connected := i.connected.Load()

	var uptime time.Duration
	if running {
		uptime = time.Since(time.Unix(0, i.startedAt.Load()))
	}

	lastErr, _ := i.lastError.Load().(string)
	if running && !connected && lastErr == "" {
		lastErr = "broker disconnected"
	}

	return component.HealthStatus{
		Healthy:    running,
		Degraded:   running && !connected,
		LastCheck:  time.Now(),
		ErrorCount: int(i.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
		Processed:  i.messages.Load(),
	}
}

// Initialize validates the broker URL and builds the paho client
func (i *Input) Initialize() error {
	if len(i.topics) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Input", "Initialize", "no topics to subscribe")
	}
	if i.cfg.QoS < 0 || i.cfg.QoS > 2 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: qos %d", errors.ErrInvalidConfig, i.cfg.QoS),
			"Input", "Initialize", "validate qos")
	}

	opts, err := i.clientOptions()
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.client = i.newClient(opts)
	i.mu.Unlock()
	return nil
}

func (i *Input) clientOptions() (*paho.ClientOptions, error) {
	broker, clientID, err := i.cfg.Broker()
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Input", "Initialize", "parse broker url")
	}
	i.broker = broker

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(i.cfg.CleanSession).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(i.onConnect).
		SetConnectionLostHandler(i.onConnectionLost).
		SetReconnectingHandler(i.onReconnecting)

	if i.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(i.cfg.KeepAlive)
	}
	if i.cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(i.cfg.ConnectTimeout)
	}
	if i.cfg.Username != "" {
		opts.SetUsername(i.cfg.Username)
		opts.SetPassword(i.cfg.Password)
	}

	if i.cfg.Secure() || i.cfg.TLS.Enabled() {
		tc, err := tlsutil.Client(i.cfg.TLS)
		if err != nil {
			return nil, errors.Wrap(err, "Input", "Initialize", "load tls config")
		}
		opts.SetTLSConfig(tc)
	}

	return opts, nil
}

// Start connects to the broker, retrying while it is unreachable.
// Subscriptions are made by the connect handler so they are restored after
// every reconnect.
func (i *Input) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Input", "Start", "check running state")
	}
	if i.client == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "Input", "Start", "input not initialized")
	}

	timeout := i.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Set before connecting; the connect handler subscribes and messages may
	// arrive before Connect returns.
	i.running.Store(true)
	i.startedAt.Store(time.Now().UnixNano())

	attempt := 0
	err := retry.Do(ctx, i.retry, func() error {
		attempt++
		token := i.client.Connect()
		if !token.WaitTimeout(timeout) {
			return fmt.Errorf("%w: no CONNACK after %v", errors.ErrConnectionTimeout, timeout)
		}
		if err := token.Error(); err != nil {
			i.logger.Warn("MQTT connect failed", "broker", i.broker, "attempt", attempt, "error", err)
			if refused(err) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		i.running.Store(false)
		i.recordError(err)
		return errors.WrapTransient(err, "Input", "Start", "connect to "+i.broker)
	}

	i.logger.Info("MQTT input started",
		"broker", i.broker,
		"topics", len(i.topics),
		"qos", i.cfg.QoS)
	return nil
}

// Stop disconnects from the broker. In-flight deliveries get up to timeout to
// finish.
func (i *Input) Stop(timeout time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running.Load() {
		return nil
	}
	i.running.Store(false)

	if i.client != nil {
		// paho treats quiesce as milliseconds
		i.client.Disconnect(uint(timeout.Milliseconds()))
	}
	i.cancel()

	i.connected.Store(false)
	i.metrics.RecordTransportStatus(transportLabel, false)

	i.logger.Info("MQTT input stopped",
		"messages", i.messages.Load(),
		"bytes", i.bytes.Load(),
		"reconnects", i.reconnects.Load())
	return nil
}

// Connected reports whether the broker connection is up
func (i *Input) Connected() bool {
	return i.connected.Load()
}

// Received returns the number of delivered messages
func (i *Input) Received() int64 {
	return i.messages.Load()
}

func (i *Input) onConnect(client paho.Client) {
	i.connected.Store(true)
	i.lastError.Store("")
	i.metrics.RecordTransportStatus(transportLabel, true)

	filters := make(map[string]byte, len(i.topics))
	for _, topic := range i.topics {
		filters[topic] = byte(i.cfg.QoS)
	}

	token := client.SubscribeMultiple(filters, i.onMessage)
	go i.awaitSubscription(token)
}

// awaitSubscription runs outside the connect handler; paho cannot deliver the
// SUBACK while that handler blocks.
func (i *Input) awaitSubscription(token paho.Token) {
	timeout := i.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if !token.WaitTimeout(timeout) {
		err := fmt.Errorf("%w: no SUBACK after %v", errors.ErrSubscriptionFailed, timeout)
		i.recordError(err)
		i.logger.Error("MQTT subscribe timed out", "topics", i.topics, "error", err)
		return
	}
	if err := token.Error(); err != nil {
		i.recordError(err)
		i.logger.Error("MQTT subscribe failed", "topics", i.topics, "error", err)
		return
	}
	i.logger.Debug("Subscribed", "topics", i.topics, "qos", i.cfg.QoS)
}

func (i *Input) onConnectionLost(_ paho.Client, err error) {
	i.connected.Store(false)
	i.metrics.RecordTransportStatus(transportLabel, false)
	i.recordError(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err))
	i.logger.Warn("MQTT connection lost", "broker", i.broker, "error", err)
}

func (i *Input) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	i.reconnects.Add(1)
	i.metrics.RecordTransportReconnect(transportLabel)
	i.logger.Info("MQTT reconnecting", "broker", i.broker, "attempt", i.reconnects.Load())
}

func (i *Input) onMessage(_ paho.Client, m paho.Message) {
	if !i.running.Load() {
		return
	}

	payload := m.Payload()
	i.messages.Add(1)
	i.bytes.Add(int64(len(payload)))
	i.metrics.RecordReceived(transportLabel)

	i.handler(i.ctx, message.New(message.TransportMQTT, m.Topic(), payload))
}

func (i *Input) recordError(err error) {
	i.errorCount.Add(1)
	i.lastError.Store(err.Error())
}

// refused reports a CONNACK that another attempt will not change
func refused(err error) bool {
	return stderrors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		stderrors.Is(err, packets.ErrorRefusedNotAuthorised) ||
		stderrors.Is(err, packets.ErrorRefusedBadProtocolVersion) ||
		stderrors.Is(err, packets.ErrorRefusedIDRejected)
}
