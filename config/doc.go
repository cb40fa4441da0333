// Package config holds the runtime configuration of the bridge: broker and
// database endpoints, sinks, worker sizing, logging and the path of the
// mapping document.
//
// Values are layered: Default, then environment variables (FromEnv), then
// command-line flags bound by cmd/mqtt2influxdb. Validate reports every
// problem at once as an invalid-class error wrapping errors.ErrInvalidConfig.
//
//	cfg, err := config.FromEnv(os.LookupEnv)
//	if err != nil {
//	    return err
//	}
//	// flags override cfg fields here
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// The core environment names are MQTT_URL, MQTT_CLIENT_ID, INFLUXDB_URL,
// INFLUXDB_BUCKET, INFLUXDB_ORG, INFLUXDB_JWT and CONFIG. The optional parts
// read NATS_*, RECORDS_*, METRICS_PORT, LOG_*, WORKERS and QUEUE_SIZE.
package config
