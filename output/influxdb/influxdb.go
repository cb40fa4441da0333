package influxdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/output"
)

// SinkName is the sink label in logs and metrics
const SinkName = "influxdb"

// Precision of written timestamps
const Precision = time.Millisecond

// Sink writes records to an InfluxDB v2 bucket through the blocking write API
type Sink struct {
	client influxdb2.Client
	writer interface {
		WritePoint(ctx context.Context, point ...*write.Point) error
	}
	url    string
	org    string
	bucket string
	logger *slog.Logger
}

// New creates the sink and pings the server. A failed ping is logged and the
// sink is returned anyway; writes fail until the server is reachable.
func New(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "New", "url, org and bucket are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := influxdb2.DefaultOptions().
		SetPrecision(Precision).
		SetUseGZip(cfg.GzipRequests)
	if cfg.Timeout > 0 {
		secs := uint(cfg.Timeout / time.Second)
		if secs == 0 {
			secs = 1
		}
		opts.SetHTTPRequestTimeout(secs)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	s := &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		url:    cfg.URL,
		org:    cfg.Org,
		bucket: cfg.Bucket,
		logger: logger.With("component", "output."+SinkName),
	}

	if !cfg.SkipPing {
		s.ping(ctx, cfg.Timeout)
	}

	s.logger.Info("InfluxDB sink ready", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return s, nil
}

func (s *Sink) ping(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := s.client.Ping(ctx)
	switch {
	case err != nil:
		s.logger.Error("InfluxDB ping failed", "url", s.url, "error", err)
	case !ok:
		s.logger.Error("InfluxDB ping failed", "url", s.url)
	default:
		s.logger.Debug("InfluxDB ping succeeded", "url", s.url)
	}
}

// Name implements output.Sink
func (s *Sink) Name() string { return SinkName }

// Write converts rec to a point and writes it. Tag values are strings in line
// protocol; field values keep their kind.
func (s *Sink) Write(ctx context.Context, rec output.Record) error {
	point, err := Point(rec)
	if err != nil {
		return err
	}

	if err := s.writer.WritePoint(ctx, point); err != nil {
		return classifyWriteError(err, rec.Name)
	}
	return nil
}

// Point builds the line-protocol point for rec
func Point(rec output.Record) (*write.Point, error) {
	if rec.Record == nil || !rec.HasFields() {
		return nil, errors.WrapInvalid(output.ErrNoFields, "Sink", "Point", "build point")
	}

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(rec.Name, rec.TagMap(), rec.FieldMap(), ts), nil
}

// classifyWriteError marks client errors (bad line protocol, auth) invalid and
// everything else transient
func classifyWriteError(err error, measurement string) error {
	wrapped := fmt.Errorf("%w: %v", errors.ErrWriteFailed, err)
	action := "write " + measurement

	var herr *influxhttp.Error
	if stderrors.As(err, &herr) &&
		herr.StatusCode >= http.StatusBadRequest &&
		herr.StatusCode < http.StatusInternalServerError &&
		herr.StatusCode != http.StatusTooManyRequests {
		return errors.WrapInvalid(wrapped, "Sink", "Write", action)
	}
	return errors.WrapTransient(wrapped, "Sink", "Write", action)
}

// Close releases the HTTP client
func (s *Sink) Close() error {
	s.client.Close()
	return nil
}
