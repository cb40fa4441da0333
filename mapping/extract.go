package mapping

import (
	"fmt"
	"unicode/utf8"

	"github.com/valyala/fastjson"

	"github.com/c360/mqtt2influxdb/errors"
)

// Parsed values are only valid until the parser goes back to the pool,
// so extraction coerces everything before returning.
var parserPool fastjson.ParserPool

// Extract returns the whole payload as one String value
func (s SingleText) Extract(payload []byte) (Extraction, error) {
	if !utf8.Valid(payload) {
		return Extraction{}, errors.WrapInvalid(errors.ErrPayloadDecode, "SingleText", "Extract", "utf-8 decode")
	}

	return Extraction{
		Values: []Extracted{{
			Name:    s.DstName,
			Variant: s.DstVariant,
			Value:   StringValue(string(payload)),
		}},
	}, nil
}

// Extract parses payload as JSON and produces one value per configured field.
// A field whose resolved value is unsupported is skipped and reported in
// Extraction.Skipped; the remaining fields are still extracted.
func (j JSONFields) Extract(payload []byte) (Extraction, error) {
	if !utf8.Valid(payload) {
		return Extraction{}, errors.WrapInvalid(errors.ErrPayloadDecode, "JSONFields", "Extract", "utf-8 decode")
	}

	// The parser is lenient about number literals (NaN, inf, 01); strict
	// validation keeps such payloads decode errors
	if err := fastjson.ValidateBytes(payload); err != nil {
		return Extraction{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrPayloadDecode, err), "JSONFields", "Extract", "json validate")
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	root, err := p.ParseBytes(payload)
	if err != nil {
		return Extraction{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrPayloadDecode, err), "JSONFields", "Extract", "json parse")
	}

	out := Extraction{Values: make([]Extracted, 0, len(j.Fields))}
	for _, f := range j.Fields {
		name := f.TargetName()
		value, err := Coerce(Resolve(root, f.Segments()))
		if err != nil {
			out.Skipped = append(out.Skipped, FieldError{Name: name, SrcPath: f.SrcPath, Err: err})
			continue
		}
		out.Values = append(out.Values, Extracted{Name: name, Variant: f.DstVariant, Value: value})
	}
	return out, nil
}
