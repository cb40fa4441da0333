package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/output"
)

// SinkName is the sink label in logs and metrics
const SinkName = "nats"

// Publisher is the part of natsclient.Client the sink needs
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
	EnsureStream(ctx context.Context, name string, subjects []string) error
}

// Config selects where records are published
type Config struct {
	// SubjectPrefix is prepended to the measurement: <prefix>.<measurement>
	SubjectPrefix string
	// Stream, when set, is created if missing and every publish waits for
	// its ack
	Stream string
}

// Sink publishes each record as a JSON RecordEnvelope
type Sink struct {
	publisher Publisher
	prefix    string
	stream    string
	logger    *slog.Logger
}

// New creates the sink. With a stream configured it makes sure the stream
// exists and covers <prefix>.>.
func New(ctx context.Context, publisher Publisher, cfg Config, logger *slog.Logger) (*Sink, error) {
	if publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "New", "NATS client is required")
	}
	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "New", "subject prefix is required")
	}
	if strings.ContainsAny(prefix, "*> \t\r\n") {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: subject prefix %q", errors.ErrInvalidConfig, prefix),
			"Sink", "New", "validate subject prefix")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{
		publisher: publisher,
		prefix:    prefix,
		stream:    cfg.Stream,
		logger:    logger.With("component", "output."+SinkName),
	}

	if s.stream != "" {
		if err := publisher.EnsureStream(ctx, s.stream, []string{prefix + ".>"}); err != nil {
			return nil, errors.Wrap(err, "Sink", "New", "ensure stream "+s.stream)
		}
	}

	s.logger.Info("NATS sink ready", "subject_prefix", prefix, "stream", s.stream)
	return s, nil
}

// Name implements output.Sink
func (s *Sink) Name() string { return SinkName }

// Subject returns the subject a measurement is published on
func (s *Sink) Subject(measurement string) string {
	return s.prefix + "." + subjectToken(measurement)
}

// Write publishes rec
func (s *Sink) Write(ctx context.Context, rec output.Record) error {
	if rec.Record == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Sink", "Write", "nil record")
	}

	env := message.NewEnvelope(rec.Record, rec.Topic, rec.Time)
	if err := env.Validate(); err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	subject := s.Subject(rec.Name)
	if s.stream != "" {
		err = s.publisher.PublishToStream(ctx, subject, data)
	} else {
		err = s.publisher.Publish(ctx, subject, data)
	}
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrWriteFailed, err),
			"Sink", "Write", "publish "+subject)
	}
	return nil
}

// Close is a no-op; the client is shared and closed by its owner
func (s *Sink) Close() error { return nil }

// subjectToken makes a measurement name safe as a single subject token
func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
