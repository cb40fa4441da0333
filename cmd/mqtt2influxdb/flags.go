package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/c360/mqtt2influxdb/config"
)

// cliOptions holds flags that are not part of config.Config
type cliOptions struct {
	Validate bool
	Debug    bool
}

// bindFlags registers every runtime flag on fs. Defaults are read from cfg,
// which already carries the environment overlay, so a flag always wins over
// its environment variable.
func bindFlags(fs *pflag.FlagSet, cfg *config.Config, opts *cliOptions) {
	fs.StringVarP(&cfg.MappingPath, "config", "c", cfg.MappingPath,
		envHelp("Path to the mapping YAML document", config.EnvMappingPath))
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout,
		envHelp("Graceful shutdown timeout", config.EnvShutdownTimeout))
	fs.IntVar(&cfg.MatchCacheSize, "match-cache-size", cfg.MatchCacheSize,
		envHelp("Topics whose matching entry is remembered, 0 to disable", config.EnvMatchCacheSize))

	// MQTT
	fs.StringVar(&cfg.MQTT.URL, "mqtt-url", cfg.MQTT.URL,
		envHelp("MQTT broker URL (mqtt://, mqtts://, tcp://, ssl://, ws://, wss://)", config.EnvMQTTURL))
	fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", cfg.MQTT.ClientID,
		envHelp("MQTT client id", config.EnvMQTTClientID))
	fs.StringVar(&cfg.MQTT.Username, "mqtt-username", cfg.MQTT.Username,
		envHelp("MQTT username", config.EnvMQTTUsername))
	fs.StringVar(&cfg.MQTT.Password, "mqtt-password", cfg.MQTT.Password,
		envHelp("MQTT password", config.EnvMQTTPassword))
	fs.IntVar(&cfg.MQTT.QoS, "mqtt-qos", cfg.MQTT.QoS,
		envHelp("Subscription QoS: 0, 1 or 2", config.EnvMQTTQoS))
	fs.DurationVar(&cfg.MQTT.KeepAlive, "mqtt-keep-alive", cfg.MQTT.KeepAlive, "MQTT keep-alive interval")
	fs.DurationVar(&cfg.MQTT.ConnectTimeout, "mqtt-connect-timeout", cfg.MQTT.ConnectTimeout,
		"Timeout of a single MQTT connect attempt")
	fs.BoolVar(&cfg.MQTT.CleanSession, "mqtt-clean-session", cfg.MQTT.CleanSession, "Start MQTT sessions clean")
	fs.StringVar(&cfg.MQTT.TLS.CAFile, "mqtt-ca-file", cfg.MQTT.TLS.CAFile,
		envHelp("CA bundle for the MQTT broker", config.EnvMQTTCAFile))
	fs.StringVar(&cfg.MQTT.TLS.CertFile, "mqtt-cert-file", cfg.MQTT.TLS.CertFile,
		envHelp("MQTT client certificate", config.EnvMQTTCertFile))
	fs.StringVar(&cfg.MQTT.TLS.KeyFile, "mqtt-key-file", cfg.MQTT.TLS.KeyFile,
		envHelp("MQTT client key", config.EnvMQTTKeyFile))
	fs.BoolVar(&cfg.MQTT.TLS.InsecureSkipVerify, "mqtt-insecure", cfg.MQTT.TLS.InsecureSkipVerify,
		"Skip MQTT broker certificate verification")
	fs.BoolVar(&cfg.MQTT.Disabled, "no-mqtt", cfg.MQTT.Disabled, "Disable the MQTT input")

	// InfluxDB
	fs.StringVar(&cfg.InfluxDB.URL, "influxdb-url", cfg.InfluxDB.URL,
		envHelp("InfluxDB v2 URL", config.EnvInfluxURL))
	fs.StringVar(&cfg.InfluxDB.Bucket, "influxdb-bucket", cfg.InfluxDB.Bucket,
		envHelp("InfluxDB bucket", config.EnvInfluxBucket))
	fs.StringVar(&cfg.InfluxDB.Org, "influxdb-org", cfg.InfluxDB.Org,
		envHelp("InfluxDB organisation", config.EnvInfluxOrg))
	fs.StringVar(&cfg.InfluxDB.Token, "influxdb-jwt", cfg.InfluxDB.Token,
		envHelp("InfluxDB API token", config.EnvInfluxToken))
	fs.DurationVar(&cfg.InfluxDB.Timeout, "influxdb-timeout", cfg.InfluxDB.Timeout, "InfluxDB request timeout")
	fs.BoolVar(&cfg.InfluxDB.GzipRequests, "influxdb-gzip", cfg.InfluxDB.GzipRequests, "Gzip InfluxDB write requests")
	fs.BoolVar(&cfg.InfluxDB.SkipPing, "influxdb-skip-ping", cfg.InfluxDB.SkipPing, "Do not ping InfluxDB at startup")
	fs.BoolVar(&cfg.InfluxDB.Disabled, "no-influxdb", cfg.InfluxDB.Disabled, "Disable the InfluxDB sink")

	// NATS
	fs.StringVar(&cfg.NATS.URL, "nats-url", cfg.NATS.URL,
		envHelp("NATS server URL, empty disables NATS", config.EnvNATSURL))
	fs.BoolVar(&cfg.NATS.Subscribe, "nats-subscribe", cfg.NATS.Subscribe,
		envHelp("Also receive the mapped topics from NATS subjects", config.EnvNATSSubscribe))
	fs.StringVar(&cfg.NATS.SubjectPrefix, "nats-subject-prefix", cfg.NATS.SubjectPrefix,
		envHelp("Republish records on <prefix>.<measurement>", config.EnvNATSSubjectPrefix))
	fs.StringVar(&cfg.NATS.Stream, "nats-stream", cfg.NATS.Stream,
		envHelp("JetStream stream for republished records", config.EnvNATSStream))
	fs.StringVar(&cfg.NATS.Token, "nats-token", cfg.NATS.Token,
		envHelp("NATS auth token", config.EnvNATSToken))
	fs.StringVar(&cfg.NATS.Username, "nats-username", cfg.NATS.Username, "NATS username")
	fs.StringVar(&cfg.NATS.Password, "nats-password", cfg.NATS.Password, "NATS password")

	// Records file
	fs.StringVar(&cfg.File.Path, "records-file", cfg.File.Path,
		envHelp("Append records as JSON lines to this file", config.EnvRecordsFile))
	fs.BoolVar(&cfg.File.Compress, "records-compress", cfg.File.Compress,
		envHelp("zstd-compress the records file", config.EnvRecordsCompress))

	// Runtime
	fs.IntVar(&cfg.Metrics.Port, "metrics-port", cfg.Metrics.Port,
		envHelp("Metrics and health port, 0 to disable", config.EnvMetricsPort))
	fs.StringVar(&cfg.Metrics.Path, "metrics-path", cfg.Metrics.Path, "Prometheus metrics path")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level,
		envHelp("Log level: debug, info, warn, error", config.EnvLogLevel))
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format,
		envHelp("Log format: json, text", config.EnvLogFormat))
	fs.IntVar(&cfg.Workers.Count, "workers", cfg.Workers.Count,
		envHelp("Number of mapping workers", config.EnvWorkers))
	fs.IntVar(&cfg.Workers.QueueSize, "queue-size", cfg.Workers.QueueSize,
		envHelp("Messages queued ahead of the workers", config.EnvQueueSize))
	fs.BoolVar(&cfg.Workers.DropWhenFull, "drop-when-full", cfg.Workers.DropWhenFull,
		"Drop messages when the queue is full instead of applying backpressure")

	fs.BoolVar(&opts.Validate, "validate", false, "Load and validate the mapping document, then exit")
	fs.BoolVar(&opts.Debug, "debug", false, "Shorthand for --log-level=debug")
}

func envHelp(usage, env string) string {
	return fmt.Sprintf("%s (env: %s)", usage, env)
}
