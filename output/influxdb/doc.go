// Package influxdb writes mapped records to InfluxDB v2 with the official
// influxdb-client-go client.
//
// Each record becomes one point: the record name is the measurement, tags are
// line-protocol strings and fields keep their bool, float or string kind.
// Points carry the receive time at millisecond precision and are written with
// the blocking write API, so Write returns the server's answer for that point.
//
// New pings the server once. A failed ping is logged, not returned, so the
// bridge can start before the database. Write errors wrap errors.ErrWriteFailed;
// 4xx answers other than 429 are classified invalid, the rest transient.
package influxdb
