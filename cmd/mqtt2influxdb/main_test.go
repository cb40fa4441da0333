package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/mapping"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/output"
	"github.com/c360/mqtt2influxdb/output/file"
)

const testMapping = `
entries:
  - src_topic: sensors/+/temp
    dst_name: temperature
    type: json
    fields:
      - src_path: value
        dst_name: celsius
      - src_path: unit
        dst_variant: tag
  - src_topic: home/door
    dst_name: door
    type: single_text
`

func envMap(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeMapping(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestFlags_EnvironmentDefaults(t *testing.T) {
	cmd := newRootCmd(envMap(map[string]string{
		config.EnvMQTTURL:      "mqtt://env-broker:1884",
		config.EnvInfluxBucket: "sensors",
		config.EnvWorkers:      "8",
	}), &bytes.Buffer{})

	flags := cmd.Flags()
	assert.Equal(t, "mqtt://env-broker:1884", flags.Lookup("mqtt-url").DefValue)
	assert.Equal(t, "sensors", flags.Lookup("influxdb-bucket").DefValue)
	assert.Equal(t, "8", flags.Lookup("workers").DefValue)
	assert.Equal(t, "mqtt2influxdb", flags.Lookup("mqtt-client-id").DefValue)

	require.NoError(t, flags.Parse([]string{"--mqtt-url", "mqtts://flag-broker", "-c", "/etc/mapping.yaml"}))
	assert.Equal(t, "mqtts://flag-broker", flags.Lookup("mqtt-url").Value.String())
	assert.Equal(t, "/etc/mapping.yaml", flags.Lookup("config").Value.String())
	assert.Equal(t, "sensors", flags.Lookup("influxdb-bucket").Value.String())
}

func TestFlags_UsageNamesEnvironment(t *testing.T) {
	cmd := newRootCmd(envMap(nil), &bytes.Buffer{})
	assert.Contains(t, cmd.Flags().Lookup("influxdb-jwt").Usage, "INFLUXDB_JWT")
	assert.Contains(t, cmd.Flags().Lookup("config").Usage, "CONFIG")
}

func TestRoot_Validate(t *testing.T) {
	path := writeMapping(t, testMapping)

	var out bytes.Buffer
	cmd := newRootCmd(envMap(nil), &out)
	cmd.SetArgs([]string{"--validate", "--config", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Mapping document is valid")
	assert.Contains(t, out.String(), `"entries":2`)
	assert.Contains(t, out.String(), `"service":"mqtt2influxdb"`)
}

func TestRoot_ValidateFromEnvironment(t *testing.T) {
	path := writeMapping(t, testMapping)

	var out bytes.Buffer
	cmd := newRootCmd(envMap(map[string]string{config.EnvMappingPath: path}), &out)
	cmd.SetArgs([]string{"--validate", "--log-format", "text"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Mapping document is valid")
}

func TestRoot_ValidateRejectsBadMapping(t *testing.T) {
	path := writeMapping(t, "entries:\n  - src_topic: a/b\n    type: json\n")

	cmd := newRootCmd(envMap(nil), &bytes.Buffer{})
	cmd.SetArgs([]string{"--validate", "--config", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsFatal(err))
}

func TestRoot_ValidateRequiresPath(t *testing.T) {
	cmd := newRootCmd(envMap(nil), &bytes.Buffer{})
	cmd.SetArgs([]string{"--validate"})
	assert.Error(t, cmd.Execute())
}

func TestRoot_InvalidConfiguration(t *testing.T) {
	path := writeMapping(t, testMapping)

	cmd := newRootCmd(envMap(map[string]string{config.EnvMappingPath: path}), &bytes.Buffer{})
	cmd.SetArgs([]string{"--influxdb-org", "home"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "bucket is required")
	assert.True(t, errors.IsInvalid(err))
}

func TestRoot_BadEnvironment(t *testing.T) {
	cmd := newRootCmd(envMap(map[string]string{config.EnvWorkers: "many"}), &bytes.Buffer{})
	cmd.SetArgs([]string{"--validate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
}

func TestRoot_RejectsArguments(t *testing.T) {
	cmd := newRootCmd(envMap(nil), &bytes.Buffer{})
	cmd.SetArgs([]string{"stray"})
	assert.Error(t, cmd.Execute())
}

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl.zst")
	sink, err := file.New(file.Config{Path: path, Compress: true}, nil)
	require.NoError(t, err)

	write := func(name string, v float64) {
		rec := mapping.NewRecord(name)
		rec.SetField("value", mapping.FloatValue(v))
		require.NoError(t, sink.Write(context.Background(), output.Record{
			Record: rec,
			Topic:  "sensors/x/" + name,
			Time:   time.UnixMilli(1700000000000),
		}))
	}
	write("temperature", 21.5)
	write("humidity", 40)
	require.NoError(t, sink.Close())

	var out bytes.Buffer
	cmd := newRootCmd(envMap(nil), &out)
	cmd.SetArgs([]string{"dump", path, "-m", "temperature"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)

	var env message.RecordEnvelope
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	assert.Equal(t, "temperature", env.Measurement)
	assert.Equal(t, 21.5, env.Fields["value"])
	assert.Equal(t, int64(1700000000000), env.Timestamp)
}

func TestDump_MissingFile(t *testing.T) {
	cmd := newRootCmd(envMap(nil), &bytes.Buffer{})
	cmd.SetArgs([]string{"dump", filepath.Join(t.TempDir(), "absent.jsonl")})
	assert.Error(t, cmd.Execute())
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"mqtt2influxdb"`)
	assert.Contains(t, out, `"version":"`+Version+`"`)

	buf.Reset()
	setupLogger(&buf, "debug", "text").Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
	assert.Contains(t, buf.String(), "source=")
}

func TestBuildSinks(t *testing.T) {
	cfg := config.Default()
	cfg.InfluxDB.Disabled = true
	cfg.NATS.SubjectPrefix = "records" // ignored without a NATS connection
	cfg.File.Path = filepath.Join(t.TempDir(), "records.jsonl")

	sinks, err := buildSinks(context.Background(), &cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, file.SinkName, sinks[0].Name())
	closeSinks(sinks, nil)
}

func TestBuildSinks_InfluxDB(t *testing.T) {
	cfg := config.Default()
	cfg.InfluxDB.Org = "home"
	cfg.InfluxDB.Bucket = "sensors"
	cfg.InfluxDB.Token = "secret"
	cfg.InfluxDB.SkipPing = true

	sinks, err := buildSinks(context.Background(), &cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, "influxdb", sinks[0].Name())
	closeSinks(sinks, nil)
}

func TestBuildInputs(t *testing.T) {
	cfg := config.Default()
	cfg.NATS.Subscribe = true // needs a NATS connection, which is absent here

	handler := func(context.Context, message.Message) {}
	inputs, err := buildInputs(&cfg, []string{"sensors/#"}, handler, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "input.mqtt", inputs[0].Meta().Key())

	cfg.MQTT.Disabled = true
	inputs, err = buildInputs(&cfg, []string{"sensors/#"}, handler, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, inputs)
}
