// Package errors provides the error classification used across mqtt2influxdb.
//
// # Overview
//
// Every error that crosses a component boundary is classified into one of three
// classes so the caller can decide what to do without matching strings:
//
//   - Transient: broker or database unreachable, timeouts (retry)
//   - Invalid: a payload that cannot be decoded, a JSON null that cannot be
//     written, a malformed mapping entry (drop the message or field, keep going)
//   - Fatal: the mapping document cannot be loaded (stop before processing)
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// using the classification-aware helpers:
//
//	errors.WrapTransient(err, "InfluxSink", "Write", "write point")
//	errors.WrapInvalid(errors.ErrPayloadDecode, "JSONFields", "Extract", "parse json")
//	errors.WrapFatal(err, "Loader", "Load", "decode yaml")
//
// Classification survives wrapping, and errors.Is still reaches the sentinel:
//
//	err := errors.WrapInvalid(errors.ErrPayloadDecode, "SingleText", "Extract", "utf-8")
//	errors.IsInvalid(err)                    // true
//	errors.Is(err, errors.ErrPayloadDecode)  // true
//
// # Mapping outcomes
//
// The mapping engine reports two per-message failures:
//
//   - ErrPayloadDecode: the whole message is dropped and reported to the caller
//   - ErrUnsupportedValue: only the affected field is skipped
//
// A topic without a matching entry is not an error at all.
//
// # Retries
//
// Only transient errors are worth retrying. pkg/retry checks IsTransient
// before it schedules another attempt of a startup connection.
package errors
