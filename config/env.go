package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
)

// Environment variable names
const (
	EnvMappingPath     = "CONFIG"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvMatchCacheSize  = "MATCH_CACHE_SIZE"

	EnvMQTTURL      = "MQTT_URL"
	EnvMQTTClientID = "MQTT_CLIENT_ID"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
	EnvMQTTQoS      = "MQTT_QOS"
	EnvMQTTCAFile   = "MQTT_CA_FILE"
	EnvMQTTCertFile = "MQTT_CERT_FILE"
	EnvMQTTKeyFile  = "MQTT_KEY_FILE"

	EnvInfluxURL    = "INFLUXDB_URL"
	EnvInfluxBucket = "INFLUXDB_BUCKET"
	EnvInfluxOrg    = "INFLUXDB_ORG"
	EnvInfluxToken  = "INFLUXDB_JWT"

	EnvNATSURL           = "NATS_URL"
	EnvNATSSubscribe     = "NATS_SUBSCRIBE"
	EnvNATSSubjectPrefix = "NATS_SUBJECT_PREFIX"
	EnvNATSStream        = "NATS_STREAM"
	EnvNATSToken         = "NATS_TOKEN"

	EnvRecordsFile     = "RECORDS_FILE"
	EnvRecordsCompress = "RECORDS_COMPRESS"
	EnvMetricsPort     = "METRICS_PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvWorkers         = "WORKERS"
	EnvQueueSize       = "QUEUE_SIZE"
)

// maxEnvVarLen bounds any single environment value
const maxEnvVarLen = 10000

// LookupFunc has the signature of os.LookupEnv
type LookupFunc func(key string) (string, bool)

// FromEnv returns Default overlaid with the environment. The result is not
// validated; flags are usually applied on top before calling Validate.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Default()
	env := envReader{lookup: lookup}

	env.str(EnvMappingPath, &cfg.MappingPath)
	env.duration(EnvShutdownTimeout, &cfg.ShutdownTimeout)
	env.integer(EnvMatchCacheSize, &cfg.MatchCacheSize)

	env.str(EnvMQTTURL, &cfg.MQTT.URL)
	env.str(EnvMQTTClientID, &cfg.MQTT.ClientID)
	env.str(EnvMQTTUsername, &cfg.MQTT.Username)
	env.str(EnvMQTTPassword, &cfg.MQTT.Password)
	env.integer(EnvMQTTQoS, &cfg.MQTT.QoS)
	env.str(EnvMQTTCAFile, &cfg.MQTT.TLS.CAFile)
	env.str(EnvMQTTCertFile, &cfg.MQTT.TLS.CertFile)
	env.str(EnvMQTTKeyFile, &cfg.MQTT.TLS.KeyFile)

	env.str(EnvInfluxURL, &cfg.InfluxDB.URL)
	env.str(EnvInfluxBucket, &cfg.InfluxDB.Bucket)
	env.str(EnvInfluxOrg, &cfg.InfluxDB.Org)
	env.str(EnvInfluxToken, &cfg.InfluxDB.Token)

	env.str(EnvNATSURL, &cfg.NATS.URL)
	env.boolean(EnvNATSSubscribe, &cfg.NATS.Subscribe)
	env.str(EnvNATSSubjectPrefix, &cfg.NATS.SubjectPrefix)
	env.str(EnvNATSStream, &cfg.NATS.Stream)
	env.str(EnvNATSToken, &cfg.NATS.Token)

	env.str(EnvRecordsFile, &cfg.File.Path)
	env.boolean(EnvRecordsCompress, &cfg.File.Compress)
	env.integer(EnvMetricsPort, &cfg.Metrics.Port)
	env.str(EnvLogLevel, &cfg.Log.Level)
	env.str(EnvLogFormat, &cfg.Log.Format)
	env.integer(EnvWorkers, &cfg.Workers.Count)
	env.integer(EnvQueueSize, &cfg.Workers.QueueSize)

	if len(env.problems) > 0 {
		return cfg, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(env.problems, "; ")),
			"Config", "FromEnv", "read environment")
	}
	return cfg, nil
}

type envReader struct {
	lookup   LookupFunc
	problems []string
}

func (r *envReader) get(key string) (string, bool) {
	if r.lookup == nil {
		return "", false
	}
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return "", false
	}
	if err := validateEnvVar(key, value); err != nil {
		r.problems = append(r.problems, err.Error())
		return "", false
	}
	return value, true
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}
