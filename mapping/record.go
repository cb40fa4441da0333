package mapping

// Pair is one named value in a Record
type Pair struct {
	Name  string
	Value Value
}

// Record is the normalized output of one matched message: a measurement name
// plus ordered fields and tags. Writing a name twice keeps the first position
// and the last value.
type Record struct {
	Name   string
	fields []Pair
	tags   []Pair
}

// NewRecord creates an empty record for measurement name
func NewRecord(name string) *Record {
	return &Record{Name: name}
}

// Apply stores value as a field or tag according to variant
func (r *Record) Apply(name string, variant DstVariant, value Value) {
	if variant == Tag {
		r.SetTag(name, value)
		return
	}
	r.SetField(name, value)
}

// SetField adds or replaces a field
func (r *Record) SetField(name string, value Value) {
	r.fields = upsert(r.fields, name, value)
}

// SetTag adds or replaces a tag
func (r *Record) SetTag(name string, value Value) {
	r.tags = upsert(r.tags, name, value)
}

func upsert(pairs []Pair, name string, value Value) []Pair {
	for i := range pairs {
		if pairs[i].Name == name {
			pairs[i].Value = value
			return pairs
		}
	}
	return append(pairs, Pair{Name: name, Value: value})
}

// Fields returns a copy of the fields in insertion order
func (r *Record) Fields() []Pair {
	return append([]Pair(nil), r.fields...)
}

// Tags returns a copy of the tags in insertion order
func (r *Record) Tags() []Pair {
	return append([]Pair(nil), r.tags...)
}

// Field looks up a field by name
func (r *Record) Field(name string) (Value, bool) {
	return lookup(r.fields, name)
}

// Tag looks up a tag by name
func (r *Record) Tag(name string) (Value, bool) {
	return lookup(r.tags, name)
}

func lookup(pairs []Pair, name string) (Value, bool) {
	for _, p := range pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// HasFields reports whether the record carries at least one field.
// Time-series databases reject points without fields.
func (r *Record) HasFields() bool {
	return len(r.fields) > 0
}

// FieldMap returns the fields as native Go values
func (r *Record) FieldMap() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, p := range r.fields {
		out[p.Name] = p.Value.Interface()
	}
	return out
}

// TagMap returns the tags stringified
func (r *Record) TagMap() map[string]string {
	out := make(map[string]string, len(r.tags))
	for _, p := range r.tags {
		out[p.Name] = p.Value.String()
	}
	return out
}
