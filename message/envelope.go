package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
	"github.com/c360/mqtt2influxdb/pkg/timestamp"
)

// RecordEnvelope is the JSON form of a mapped record written by the NATS and
// file sinks.
type RecordEnvelope struct {
	ID          string            `json:"id"`
	Measurement string            `json:"measurement"`
	Topic       string            `json:"topic,omitempty"`
	Fields      map[string]any    `json:"fields"`
	Tags        map[string]string `json:"tags,omitempty"`
	// Timestamp is Unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

// NewEnvelope snapshots rec. Field values keep their kind (bool, float64,
// string); tag values are stringified.
func NewEnvelope(rec *mapping.Record, topic string, at time.Time) RecordEnvelope {
	env := RecordEnvelope{
		ID:          uuid.NewString(),
		Measurement: rec.Name,
		Topic:       topic,
		Fields:      rec.FieldMap(),
		Timestamp:   timestamp.ToUnixMs(at),
	}
	if tags := rec.TagMap(); len(tags) > 0 {
		env.Tags = tags
	}
	return env
}

// Time returns Timestamp as a time.Time
func (e RecordEnvelope) Time() time.Time {
	return timestamp.FromUnixMs(e.Timestamp)
}

// Validate checks that the envelope carries a measurement, at least one field
// and a sane timestamp
func (e RecordEnvelope) Validate() error {
	if e.Measurement == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "RecordEnvelope", "Validate", "measurement is empty")
	}
	if len(e.Fields) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "RecordEnvelope", "Validate",
			fmt.Sprintf("record %q has no fields", e.Measurement))
	}
	if err := timestamp.Validate(e.Timestamp); err != nil {
		return errors.WrapInvalid(err, "RecordEnvelope", "Validate", "check timestamp")
	}
	return nil
}

// Marshal encodes the envelope as a single JSON object
func (e RecordEnvelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "RecordEnvelope", "Marshal", "encode envelope")
	}
	return data, nil
}

// UnmarshalJSON accepts the timestamp as milliseconds, seconds or an RFC3339
// string
func (e *RecordEnvelope) UnmarshalJSON(data []byte) error {
	type plain RecordEnvelope
	aux := struct {
		*plain
		Timestamp any `json:"timestamp"`
	}{plain: (*plain)(e)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	e.Timestamp = timestamp.Parse(aux.Timestamp)
	for k, v := range e.Fields {
		if n, ok := v.(json.Number); ok {
			f, err := n.Float64()
			if err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
			e.Fields[k] = f
		}
	}
	return nil
}

// DecodeEnvelope parses and validates one envelope
func DecodeEnvelope(data []byte) (RecordEnvelope, error) {
	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RecordEnvelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrPayloadDecode, err),
			"RecordEnvelope", "Decode", "parse envelope")
	}
	if err := env.Validate(); err != nil {
		return RecordEnvelope{}, err
	}
	return env, nil
}
