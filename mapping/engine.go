package mapping

import (
	"github.com/c360/mqtt2influxdb/errors"
)

// Result is a successful mapping of one message
type Result struct {
	Record *Record
	// Entry is the rule that matched
	Entry *Entry
	// Skipped lists fields dropped because their value was unsupported
	Skipped []FieldError
}

// Handle maps one message against entries.
//
// It returns (result, true, nil) when an entry matched and the payload decoded,
// (zero, false, nil) when no entry matches the topic, and (zero, true, err)
// when the matching entry could not decode the payload. A decode error never
// falls through to later entries.
func Handle(topic string, payload []byte, entries []Entry) (Result, bool, error) {
	entry, ok := FindEntry(topic, entries)
	if !ok {
		return Result{}, false, nil
	}
	return apply(entry, payload)
}

func apply(entry *Entry, payload []byte) (Result, bool, error) {
	extraction, err := entry.Spec.Extract(payload)
	if err != nil {
		return Result{Entry: entry}, true, errors.Wrap(err, "Engine", "Handle", "extract "+entry.DstName)
	}

	record := NewRecord(entry.DstName)
	for _, v := range extraction.Values {
		record.Apply(v.Name, v.Variant, v.Value)
	}

	return Result{Record: record, Entry: entry, Skipped: extraction.Skipped}, true, nil
}

// MatchCache remembers the index of the entry a concrete topic matched, -1
// for no match. *cache.LRU[string, int] satisfies it.
type MatchCache interface {
	Get(topic string) (int, bool)
	Add(topic string, index int) bool
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithMatchCache makes the engine consult c before scanning the rules
func WithMatchCache(c MatchCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// Engine holds an immutable rule table and maps messages against it.
// It is safe for concurrent use when its MatchCache is.
type Engine struct {
	entries []Entry
	topics  []string
	cache   MatchCache
}

// NewEngine builds an engine from a loaded configuration
func NewEngine(cfg *Configuration, opts ...EngineOption) *Engine {
	e := &Engine{}
	if cfg != nil {
		e.entries = append([]Entry(nil), cfg.Entries...)
		e.topics = cfg.Topics()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle maps one message; see the package-level Handle
func (e *Engine) Handle(topic string, payload []byte) (Result, bool, error) {
	if e.cache == nil || topic == "" {
		return Handle(topic, payload, e.entries)
	}

	index, ok := e.cache.Get(topic)
	if !ok {
		index = e.match(topic)
		e.cache.Add(topic, index)
	}
	if index < 0 {
		return Result{}, false, nil
	}
	return apply(&e.entries[index], payload)
}

func (e *Engine) match(topic string) int {
	for i := range e.entries {
		if Matches(topic, e.entries[i].SrcTopic) {
			return i
		}
	}
	return -1
}

// Topics returns the distinct subscription patterns in rule order
func (e *Engine) Topics() []string {
	return append([]string(nil), e.topics...)
}

// Len returns the number of rules
func (e *Engine) Len() int {
	return len(e.entries)
}
