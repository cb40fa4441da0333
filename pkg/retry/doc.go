// Package retry retries the startup connections to the MQTT broker, NATS and
// InfluxDB with exponential backoff.
//
//	cfg := retry.Persistent()
//	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
//	    logger.Warn("MQTT connect failed, retrying", "attempt", attempt, "wait", wait, "error", err)
//	}
//	err := retry.Do(ctx, cfg, connect)
//
// Do stops early on errors wrapped with Permanent (refused credentials, for
// example) and on errors classified invalid or fatal by the errors package.
package retry
