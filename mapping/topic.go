package mapping

import (
	"fmt"
	"strings"
)

// Topic wildcard tokens
const (
	TopicSeparator  = "/"
	SingleLevelWild = "+"
	MultiLevelWild  = "#"
)

// Matches reports whether topic matches the MQTT filter pattern.
//
// "+" matches exactly one segment. "#" must be the final segment and matches
// zero or more remaining segments, so "a/#" matches "a", "a/b" and "a/b/c".
// Topics starting with "$" are not matched by a leading wildcard.
func Matches(topic, pattern string) bool {
	if strings.HasPrefix(topic, "$") &&
		(strings.HasPrefix(pattern, SingleLevelWild) || strings.HasPrefix(pattern, MultiLevelWild)) {
		return false
	}

	topicSegs := strings.Split(topic, TopicSeparator)
	patternSegs := strings.Split(pattern, TopicSeparator)

	for i, p := range patternSegs {
		if p == MultiLevelWild {
			return i == len(patternSegs)-1
		}
		if i >= len(topicSegs) {
			return false
		}
		if p != SingleLevelWild && p != topicSegs[i] {
			return false
		}
	}

	return len(topicSegs) == len(patternSegs)
}

// FindEntry returns the first entry whose SrcTopic matches topic
func FindEntry(topic string, entries []Entry) (*Entry, bool) {
	for i := range entries {
		if Matches(topic, entries[i].SrcTopic) {
			return &entries[i], true
		}
	}
	return nil, false
}

// ValidatePattern checks that pattern is a well-formed MQTT topic filter
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("topic pattern is empty")
	}

	segs := strings.Split(pattern, TopicSeparator)
	for i, seg := range segs {
		switch {
		case seg == MultiLevelWild:
			if i != len(segs)-1 {
				return fmt.Errorf("topic pattern %q: %q must be the last segment", pattern, MultiLevelWild)
			}
		case seg == SingleLevelWild:
		case strings.ContainsAny(seg, SingleLevelWild+MultiLevelWild):
			return fmt.Errorf("topic pattern %q: wildcard must occupy a whole segment", pattern)
		}
	}
	return nil
}
