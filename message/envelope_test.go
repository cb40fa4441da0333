package message

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
)

func sampleRecord() *mapping.Record {
	rec := mapping.NewRecord("sensors")
	rec.SetField("temperature", mapping.FloatValue(21.5))
	rec.SetField("online", mapping.BoolValue(true))
	rec.SetTag("room", mapping.StringValue("kitchen"))
	rec.SetTag("floor", mapping.FloatValue(2))
	return rec
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 250_000_000, time.UTC)
	env := NewEnvelope(sampleRecord(), "sensors/kitchen", at)

	_, err := uuid.Parse(env.ID)
	require.NoError(t, err)
	assert.Equal(t, "sensors", env.Measurement)
	assert.Equal(t, "sensors/kitchen", env.Topic)
	assert.Equal(t, map[string]any{"temperature": 21.5, "online": true}, env.Fields)
	assert.Equal(t, map[string]string{"room": "kitchen", "floor": "2"}, env.Tags)
	assert.Equal(t, at.UnixMilli(), env.Timestamp)
	assert.True(t, env.Time().Equal(at))
	assert.NoError(t, env.Validate())
}

func TestNewEnvelope_NoTags(t *testing.T) {
	rec := mapping.NewRecord("m")
	rec.SetField("v", mapping.StringValue("x"))

	env := NewEnvelope(rec, "t", time.UnixMilli(1700000000000))
	assert.Nil(t, env.Tags)

	data, err := env.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"tags"`)
}

func TestEnvelope_MarshalDecode(t *testing.T) {
	env := NewEnvelope(sampleRecord(), "sensors/kitchen", time.UnixMilli(1700000000123))

	data, err := env.Marshal()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestDecodeEnvelope_TimestampForms(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		want int64
	}{
		{"milliseconds", `1700000000123`, 1700000000123},
		{"seconds", `1700000000`, 1700000000000},
		{"rfc3339", `"2023-11-14T22:13:20.123Z"`, 1700000000123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"id":"x","measurement":"m","fields":{"v":1},"timestamp":` + tt.ts + `}`)
			env, err := DecodeEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.Timestamp)
			assert.Equal(t, 1.0, env.Fields["v"])
		})
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no measurement", `{"fields":{"v":1},"timestamp":1}`},
		{"no fields", `{"measurement":"m","fields":{},"timestamp":1}`},
		{"negative timestamp", `{"measurement":"m","fields":{"v":1},"timestamp":-2000000000000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestNew(t *testing.T) {
	before := time.Now()
	msg := New(TransportMQTT, "a/b", []byte("1"))
	assert.Equal(t, "a/b", msg.Topic)
	assert.Equal(t, TransportMQTT, msg.Transport)
	assert.False(t, msg.ReceivedAt.Before(before))
}
