// Package mapping turns topic-addressed payloads into typed time-series records.
//
// # Overview
//
// A Configuration is an ordered list of Entry rules. Each Entry carries an MQTT
// topic filter (SrcTopic), the measurement name of the records it produces
// (DstName) and a FieldSpec describing how to read the payload:
//
//   - SingleText stores the whole UTF-8 payload as one String value
//   - JSONFields parses the payload as JSON and extracts one value per JSONField
//
// For every message the Engine picks the first Entry whose filter matches the
// topic, applies its FieldSpec and returns a Record of ordered fields and tags.
// Messages that match no Entry are dropped without error.
//
// # Topic Filters
//
// Topics are split on "/". "+" matches exactly one segment, "#" appears only as
// the last segment and matches zero or more segments:
//
//	sensors/+/temp   matches sensors/kitchen/temp
//	sensors/#        matches sensors, sensors/a, sensors/a/b
//
// # Paths
//
// A JSONField selects its value with a dotted SrcPath ("a.b.0"). Resolution is
// lenient: a segment that names a missing key, an out-of-range or non-numeric
// index, or that is applied to a scalar is skipped, and resolution continues
// from the current value. "a.x" on {"a":{"b":1}} therefore yields {"b":1}.
//
// # Values
//
// JSON booleans become Boolean, every JSON number becomes Float, strings stay
// String, and arrays and objects become a String holding compact JSON with
// sorted keys. JSON null is unsupported: that one field is skipped and reported
// in Result.Skipped while the rest of the record is still produced.
//
// # Errors
//
// A payload that is not valid UTF-8, or not valid JSON for a JSONFields entry,
// yields an error wrapping errors.ErrPayloadDecode. Callers log it and carry on.
// Loading a malformed document yields a *ConfigError wrapping
// errors.ErrInvalidConfig, classified fatal.
//
// # Document Format
//
//	entries:
//	  - src_topic: sensors/+/temp
//	    dst_name: temperature
//	    type: json
//	    fields:
//	      - src_path: value
//	        dst_name: celsius
//	      - src_path: unit
//	        dst_variant: tag
//	  - src_topic: home/door
//	    dst_name: door
//	    type: single_text
//	    dst_variant: tag
//	    field_name: state
//
// For single_text entries the value name is field_name, falling back to the
// entry dst_name.
//
// # Concurrency
//
// An Engine is immutable once built and may be shared by any number of
// goroutines.
package mapping
