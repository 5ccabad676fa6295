// Package schema normalizes piece schema files into an ordered list of typed fields.
package schema

// Kind is the value kind of a field or of an array item.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Well-known field formats.
const (
	FormatDate           = "date"
	FormatAsset          = "asset"
	FormatCommaSeparated = "comma-separated"
)

// DateLayout is the frontmatter representation of date-formatted values.
const DateLayout = "2006-01-02"

// Placeholder is the generic example value skipped by minimal initialization.
const Placeholder = "TBD"

// Metadata carries the format, pattern, enum and example extensions of a node.
type Metadata struct {
	Format   string   `json:"format,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Examples []any    `json:"examples,omitempty"`
}

// Item describes the elements of an array field.
type Item struct {
	Kind     Kind `json:"kind"`
	Nullable bool `json:"nullable,omitempty"`
	Metadata
}

// Field is one declared frontmatter key.
type Field struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Items    *Item  `json:"items,omitempty"`
	Nullable bool   `json:"nullable"`
	Required bool   `json:"required"`
	Metadata
}

// IsArray reports whether the field holds a list.
func (f Field) IsArray() bool { return f.Kind == KindArray && f.Items != nil }

// ValueKind returns the kind of a single value: the item kind for arrays.
func (f Field) ValueKind() Kind {
	if f.IsArray() {
		return f.Items.Kind
	}
	return f.Kind
}

// ValueFormat returns the format of a single value: the item format for arrays.
func (f Field) ValueFormat() string {
	if f.IsArray() && f.Items.Format != "" {
		return f.Items.Format
	}
	return f.Format
}

// ValueMetadata returns the constraints that apply to a single value.
func (f Field) ValueMetadata() Metadata {
	if f.IsArray() {
		return f.Items.Metadata
	}
	return f.Metadata
}

// IsAsset reports whether values of the field are attachment paths.
func (f Field) IsAsset() bool { return f.ValueFormat() == FormatAsset }

// IsDate reports whether values of the field are dates.
func (f Field) IsDate() bool { return f.ValueFormat() == FormatDate }

// Schema is the normalized, immutable definition of one piece type.
type Schema struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
	Raw    []byte  `json:"-"`

	index map[string]int
}

// New builds a Schema from already-normalized fields.
func New(title string, fields []Field) *Schema {
	s := &Schema{Title: title, Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}
