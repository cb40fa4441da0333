package mapping

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/mqtt2influxdb/errors"
)

//go:embed schema.json
var schemaJSON []byte

var documentSchema = mustCompileSchema(schemaJSON)

func mustCompileSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("mapping: embedded schema: %v", err))
	}
	return schema
}

// Schema returns the JSON Schema the mapping document is validated against
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// ConfigError reports a malformed mapping document. It unwraps to
// errors.ErrInvalidConfig and loaders return it classified as fatal.
type ConfigError struct {
	Source   string
	Problems []string
}

func (e *ConfigError) Error() string {
	src := e.Source
	if src == "" {
		src = "mapping"
	}
	return fmt.Sprintf("%s: %s", src, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error {
	return errors.ErrInvalidConfig
}

type rawDocument struct {
	Entries []rawEntry `yaml:"entries"`
}

type rawEntry struct {
	SrcTopic   string     `yaml:"src_topic"`
	DstName    string     `yaml:"dst_name"`
	Type       string     `yaml:"type"`
	DstVariant DstVariant `yaml:"dst_variant"`
	FieldName  string     `yaml:"field_name"`
	Fields     []rawField `yaml:"fields"`
}

type rawField struct {
	SrcPath    string     `yaml:"src_path"`
	DstVariant DstVariant `yaml:"dst_variant"`
	DstName    string     `yaml:"dst_name"`
}

// LoadFile reads and parses a mapping document from path
func LoadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(
			&ConfigError{Source: path, Problems: []string{err.Error()}}, "Loader", "LoadFile", "read mapping")
	}
	return parse(data, path)
}

// Load parses a mapping document from r
func Load(r io.Reader) (*Configuration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapFatal(
			&ConfigError{Problems: []string{err.Error()}}, "Loader", "Load", "read mapping")
	}
	return parse(data, "")
}

// Parse parses a mapping document held in memory
func Parse(data []byte) (*Configuration, error) {
	return parse(data, "")
}

func parse(data []byte, source string) (*Configuration, error) {
	fail := func(problems ...string) error {
		return errors.WrapFatal(&ConfigError{Source: source, Problems: problems}, "Loader", "Parse", "validate mapping")
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fail(err.Error())
	}
	if generic == nil {
		return nil, fail("document is empty")
	}

	result, err := documentSchema.Validate(gojsonschema.NewGoLoader(generic))
	if err != nil {
		return nil, fail(err.Error())
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			problems = append(problems, re.String())
		}
		return nil, fail(problems...)
	}

	var doc rawDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fail(err.Error())
	}

	cfg := &Configuration{Entries: make([]Entry, 0, len(doc.Entries))}
	var problems []string
	for i, re := range doc.Entries {
		entry, err := re.build()
		if err != nil {
			problems = append(problems, fmt.Sprintf("entries[%d]: %v", i, err))
			continue
		}
		cfg.Entries = append(cfg.Entries, entry)
	}
	if len(problems) > 0 {
		return nil, fail(problems...)
	}

	return cfg, nil
}

func (re rawEntry) build() (Entry, error) {
	if err := ValidatePattern(re.SrcTopic); err != nil {
		return Entry{}, err
	}

	entry := Entry{SrcTopic: re.SrcTopic, DstName: re.DstName}
	switch re.Type {
	case TypeSingleText:
		name := re.FieldName
		if name == "" {
			name = re.DstName
		}
		entry.Spec = SingleText{DstVariant: re.DstVariant, DstName: name}
	case TypeJSON:
		fields := make([]JSONField, 0, len(re.Fields))
		for _, f := range re.Fields {
			fields = append(fields, JSONField{SrcPath: f.SrcPath, DstVariant: f.DstVariant, DstName: f.DstName})
		}
		entry.Spec = JSONFields{Fields: fields}
	default:
		return Entry{}, fmt.Errorf("unknown type %q", re.Type)
	}
	return entry, nil
}
