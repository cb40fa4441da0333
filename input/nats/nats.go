package nats

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/mqtt2influxdb/component"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/input"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/metric"
	"github.com/c360/mqtt2influxdb/natsclient"
)

const transportLabel = message.TransportNATS

// Subscriber is the part of natsclient.Client the input needs
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler natsclient.MessageHandler) error
	Unsubscribe(subject string) error
}

// InputDeps holds runtime dependencies for the NATS input
type InputDeps struct {
	Name    string
	Client  Subscriber
	Topics  []string // MQTT filters, translated with SubjectsFor
	Handler input.Handler
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Input receives the mapped topics from NATS subjects
type Input struct {
	name    string
	client  Subscriber
	topics  []string
	handler input.Handler
	metrics *metric.Metrics
	logger  *slog.Logger

	// subjects in subscription order; a message is delivered only by the first
	// subject that matches it, so overlapping filters do not duplicate records
	subjects []string

	mu         sync.Mutex
	running    atomic.Bool
	startedAt  atomic.Int64
	messages   atomic.Int64
	duplicates atomic.Int64
	errorCount atomic.Int64
	lastError  atomic.Value // string
}

// NewInput creates a NATS input
func NewInput(deps InputDeps) (*Input, error) {
	if deps.Client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Input", "NewInput", "NATS client is required")
	}
	if deps.Handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Input", "NewInput", "message handler is required")
	}

	name := deps.Name
	if name == "" {
		name = "nats"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		name:    name,
		client:  deps.Client,
		topics:  append([]string(nil), deps.Topics...),
		handler: deps.Handler,
		metrics: deps.Metrics,
		logger:  logger.With("component", "input."+name),
	}, nil
}

// Meta returns component metadata
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        i.name,
		Type:        component.TypeInput,
		Description: "NATS subscriber for mapped topics",
		Version:     "1.0.0",
	}
}

// Health returns current health status
func (i *Input) Health() component.HealthStatus {
	running := i.running.Load()
	var uptime time.Duration
	if running {
		uptime = time.Since(time.Unix(0, i.startedAt.Load()))
	}
	lastErr, _ := i.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(i.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
		Processed:  i.messages.Load(),
	}
}

// Initialize translates the topic filters. Filters NATS cannot express are
// logged and skipped; at least one must remain.
func (i *Input) Initialize() error {
	seen := make(map[string]bool)
	var subjects []string

	for _, topic := range i.topics {
		subs, err := SubjectsFor(topic)
		if err != nil {
			i.logger.Warn("Topic filter not subscribed on NATS", "topic", topic, "error", err)
			continue
		}
		for _, s := range subs {
			if !seen[s] {
				seen[s] = true
				subjects = append(subjects, s)
			}
		}
	}

	if len(subjects) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Input", "Initialize", "no topic filter maps to a NATS subject")
	}

	i.mu.Lock()
	i.subjects = subjects
	i.mu.Unlock()
	return nil
}

// Subjects returns the NATS subjects the input subscribes to
func (i *Input) Subjects() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.subjects...)
}

// Start subscribes every translated subject. On failure the subjects already
// subscribed are removed again.
func (i *Input) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Input", "Start", "check running state")
	}
	if len(i.subjects) == 0 {
		return errors.WrapFatal(errors.ErrNotStarted, "Input", "Start", "input not initialized")
	}

	i.running.Store(true)
	i.startedAt.Store(time.Now().UnixNano())

	for idx, subject := range i.subjects {
		owner := idx
		err := i.client.Subscribe(ctx, subject, func(msgCtx context.Context, subj string, data []byte) {
			i.deliver(msgCtx, owner, subj, data)
		})
		if err != nil {
			i.running.Store(false)
			i.recordError(err)
			_ = i.unsubscribe(i.subjects[:idx])
			return errors.WrapTransient(err, "Input", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	i.logger.Info("NATS input started", "subjects", i.subjects)
	return nil
}

// Stop removes the subscriptions
func (i *Input) Stop(_ time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running.Load() {
		return nil
	}
	i.running.Store(false)

	err := i.unsubscribe(i.subjects)
	i.logger.Info("NATS input stopped",
		"messages", i.messages.Load(),
		"duplicates", i.duplicates.Load())
	if err != nil {
		return errors.Wrap(err, "Input", "Stop", "unsubscribe")
	}
	return nil
}

func (i *Input) unsubscribe(subjects []string) error {
	var errs []error
	for _, s := range subjects {
		if err := i.client.Unsubscribe(s); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (i *Input) deliver(ctx context.Context, owner int, subject string, data []byte) {
	if !i.running.Load() {
		return
	}
	if i.ownerOf(subject) != owner {
		i.duplicates.Add(1)
		return
	}

	i.messages.Add(1)
	i.metrics.RecordReceived(transportLabel)
	i.handler(ctx, message.New(message.TransportNATS, TopicFor(subject), data))
}

// ownerOf returns the index of the first subscribed subject matching subject.
// i.subjects is fixed while running.
func (i *Input) ownerOf(subject string) int {
	for idx, pattern := range i.subjects {
		if subjectMatches(pattern, subject) {
			return idx
		}
	}
	return -1
}

func (i *Input) recordError(err error) {
	i.errorCount.Add(1)
	i.lastError.Store(err.Error())
}
