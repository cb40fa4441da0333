// Package output defines the sink contract shared by the InfluxDB, NATS and
// file writers.
package output

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
)

// ErrNoFields is returned by sinks whose protocol cannot store a record
// without fields. The bridge counts it as a drop, not a write failure.
var ErrNoFields = fmt.Errorf("record has no fields: %w", errors.ErrInvalidData)

// Record is one mapped record on its way to the sinks
type Record struct {
	*mapping.Record

	// Topic the source message arrived on, in MQTT form
	Topic string
	// Time is when the message was received
	Time time.Time
}

// Sink writes records to one destination. Write is called concurrently from
// the bridge workers and must be safe for that.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
	Close() error
}
