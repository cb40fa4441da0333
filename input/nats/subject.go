package nats

import (
	"fmt"
	"strings"

	"github.com/c360/mqtt2influxdb/mapping"
)

// NATS subject tokens
const (
	subjectSeparator = "."
	singleTokenWild  = "*"
	fullWild         = ">"
)

// SubjectsFor translates an MQTT topic filter into the NATS subjects that
// receive the same topics. "/" becomes ".", "+" becomes "*" and a final "#"
// becomes ">". Because "#" also matches its parent level and ">" needs at
// least one token, "a/#" yields both "a.>" and "a".
//
// Filters with segments NATS cannot express (empty segments, or segments
// holding '.', '*', '>' or whitespace) return an error.
func SubjectsFor(filter string) ([]string, error) {
	if err := mapping.ValidatePattern(filter); err != nil {
		return nil, err
	}

	segs := strings.Split(filter, mapping.TopicSeparator)
	tokens := make([]string, 0, len(segs))
	for _, seg := range segs {
		switch {
		case seg == mapping.SingleLevelWild:
			tokens = append(tokens, singleTokenWild)
		case seg == mapping.MultiLevelWild:
			tokens = append(tokens, fullWild)
		case seg == "":
			return nil, fmt.Errorf("topic filter %q: empty segment has no NATS equivalent", filter)
		case strings.ContainsAny(seg, ".*> \t\r\n"):
			return nil, fmt.Errorf("topic filter %q: segment %q is not a valid NATS token", filter, seg)
		default:
			tokens = append(tokens, seg)
		}
	}

	subjects := []string{strings.Join(tokens, subjectSeparator)}
	if last := len(tokens) - 1; tokens[last] == fullWild && last > 0 {
		subjects = append(subjects, strings.Join(tokens[:last], subjectSeparator))
	}
	return subjects, nil
}

// TopicFor turns a NATS subject back into its MQTT topic form
func TopicFor(subject string) string {
	return strings.ReplaceAll(subject, subjectSeparator, mapping.TopicSeparator)
}

// subjectMatches applies NATS wildcard rules: "*" is one token, ">" is one or
// more trailing tokens.
func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, subjectSeparator)
	st := strings.Split(subject, subjectSeparator)

	for i, p := range pt {
		if p == fullWild {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != singleTokenWild && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
