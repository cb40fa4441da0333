package mapping

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DstVariant classifies where an extracted value lands in the output record.
type DstVariant int

const (
	// Field stores the value as a measurement field.
	Field DstVariant = iota
	// Tag stores the value as an indexed tag.
	Tag
)

// String returns the configuration spelling of the variant
func (v DstVariant) String() string {
	switch v {
	case Field:
		return "field"
	case Tag:
		return "tag"
	default:
		return fmt.Sprintf("DstVariant(%d)", int(v))
	}
}

// ParseDstVariant parses "field" or "tag", case-insensitively.
// An empty string yields Field.
func ParseDstVariant(s string) (DstVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "field":
		return Field, nil
	case "tag":
		return Tag, nil
	default:
		return Field, fmt.Errorf("unknown dst_variant %q (want field or tag)", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (v *DstVariant) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDstVariant(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (v DstVariant) MarshalYAML() (any, error) {
	return v.String(), nil
}

// Extracted is one value produced by a FieldSpec, before it is applied to a Record.
type Extracted struct {
	Name    string
	Variant DstVariant
	Value   Value
}

// FieldError reports a single field that was skipped during extraction.
type FieldError struct {
	Name    string
	SrcPath string
	Err     error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s (src_path %q): %v", e.Name, e.SrcPath, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Extraction is the output of FieldSpec.Extract.
// Skipped lists fields that produced no value; the other fields are unaffected.
type Extraction struct {
	Values  []Extracted
	Skipped []FieldError
}

// FieldSpec declares how to derive named values from a raw payload.
// The set of implementations is closed: SingleText and JSONFields.
type FieldSpec interface {
	// Extract derives values from payload. A payload that cannot be decoded
	// returns an error wrapping errors.ErrPayloadDecode.
	Extract(payload []byte) (Extraction, error)

	// Type returns the configuration type name ("single_text" or "json").
	Type() string

	fieldSpec()
}

// SingleText interprets the whole payload as UTF-8 text.
type SingleText struct {
	DstVariant DstVariant
	DstName    string
}

// Type implements FieldSpec
func (SingleText) Type() string { return TypeSingleText }

func (SingleText) fieldSpec() {}

// JSONFields interprets the payload as a JSON document and extracts fields in order.
type JSONFields struct {
	Fields []JSONField
}

// Type implements FieldSpec
func (JSONFields) Type() string { return TypeJSON }

func (JSONFields) fieldSpec() {}

// JSONField extracts one value from a JSON document by dotted path.
type JSONField struct {
	SrcPath    string
	DstVariant DstVariant
	// DstName defaults to SrcPath when empty.
	DstName string
}

// TargetName returns the record name the field is written under
func (f JSONField) TargetName() string {
	if f.DstName != "" {
		return f.DstName
	}
	return f.SrcPath
}

// Segments returns SrcPath split on "."
func (f JSONField) Segments() []string {
	return SplitPath(f.SrcPath)
}

// Configuration type names
const (
	TypeSingleText = "single_text"
	TypeJSON       = "json"
)

// Entry binds a topic pattern and an output record name to one FieldSpec.
// Entries are built once by the loader and never modified.
type Entry struct {
	SrcTopic string
	DstName  string
	Spec     FieldSpec
}

// Configuration is the ordered rule table. Order is significant: the first
// entry whose SrcTopic matches a topic wins.
type Configuration struct {
	Entries []Entry
}

// Topics returns the distinct SrcTopic patterns in configuration order.
// Transports subscribe to exactly these.
func (c *Configuration) Topics() []string {
	seen := make(map[string]bool, len(c.Entries))
	topics := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		if seen[e.SrcTopic] {
			continue
		}
		seen[e.SrcTopic] = true
		topics = append(topics, e.SrcTopic)
	}
	return topics
}
