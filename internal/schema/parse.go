package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tailscale/hujson"

	"github.com/starford/luzzle/internal/apperr"
)

// Dialect identifies the source format of a schema document.
type Dialect string

const (
	// DialectJTD is the JSON Type Definition flavour: properties are required,
	// optionalProperties are not, arrays use "elements".
	DialectJTD Dialect = "jtd"
	// DialectJSONSchema is the JSON Schema flavour: a "required" list decides
	// required-ness, arrays use "items".
	DialectJSONSchema Dialect = "json-schema"
)

// object is a JSON object that remembers key order.
type object struct {
	keys   []string
	values map[string]json.RawMessage
}

func (o *object) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	o.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if _, dup := o.values[key]; !dup {
			o.keys = append(o.keys, key)
		}
		o.values[key] = raw
	}
	return nil
}

type nodeMetadata struct {
	LuzzleFormat  string   `json:"luzzleFormat"`
	LuzzlePattern string   `json:"luzzlePattern"`
	LuzzleEnum    []string `json:"luzzleEnum"`
	Examples      []any    `json:"examples"`
}

// node is the union of every node shape both dialects use.
type node struct {
	Type               string           `json:"type"`
	Title              string           `json:"title"`
	Enum               []string         `json:"enum"`
	Nullable           bool             `json:"nullable"`
	Format             string           `json:"format"`
	Pattern            string           `json:"pattern"`
	Examples           []any            `json:"examples"`
	Elements           *json.RawMessage `json:"elements"`
	Items              *json.RawMessage `json:"items"`
	Properties         *object          `json:"properties"`
	OptionalProperties *object          `json:"optionalProperties"`
	Required           []string         `json:"required"`
	Metadata           *nodeMetadata    `json:"metadata"`
}

func (n *node) metadata() Metadata {
	m := Metadata{Format: n.Format, Pattern: n.Pattern, Enum: n.Enum, Examples: n.Examples}
	if n.Metadata != nil {
		if n.Metadata.LuzzleFormat != "" {
			m.Format = n.Metadata.LuzzleFormat
		}
		if n.Metadata.LuzzlePattern != "" {
			m.Pattern = n.Metadata.LuzzlePattern
		}
		if len(n.Metadata.LuzzleEnum) > 0 {
			m.Enum = n.Metadata.LuzzleEnum
		}
		if len(n.Metadata.Examples) > 0 {
			m.Examples = n.Metadata.Examples
		}
	}
	if n.Type == "timestamp" && m.Format == "" {
		m.Format = FormatDate
	}
	return m
}

var typeKinds = map[string]Kind{
	"string":    KindString,
	"timestamp": KindString,
	"boolean":   KindBoolean,
	"integer":   KindInteger,
	"int8":      KindInteger,
	"int16":     KindInteger,
	"int32":     KindInteger,
	"uint8":     KindInteger,
	"uint16":    KindInteger,
	"uint32":    KindInteger,
	"number":    KindNumber,
	"float32":   KindNumber,
	"float64":   KindNumber,
}

// dialect reports which flavour a root node is written in.
func (n *node) dialect() Dialect {
	if n.Required != nil || n.Type == "object" {
		return DialectJSONSchema
	}
	return DialectJTD
}

// Parse decodes a schema document (JSON, comments and trailing commas allowed)
// and normalizes it. An empty title is left empty; the registry names the
// schema after its file.
func Parse(data []byte) (*Schema, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, apperr.SchemaErrorf("decode: %v", err)
	}
	var root node
	if err := json.Unmarshal(std, &root); err != nil {
		return nil, apperr.SchemaErrorf("decode: %v", err)
	}
	fields, err := parseFields(&root)
	if err != nil {
		return nil, err
	}
	s := New(root.Title, fields)
	s.Raw = data
	return s, nil
}

// DetectDialect returns the dialect a schema document is written in.
func DetectDialect(data []byte) (Dialect, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return "", apperr.SchemaErrorf("decode: %v", err)
	}
	var root node
	if err := json.Unmarshal(std, &root); err != nil {
		return "", apperr.SchemaErrorf("decode: %v", err)
	}
	return root.dialect(), nil
}

func parseFields(root *node) ([]Field, error) {
	dialect := root.dialect()
	var fields []Field
	seen := make(map[string]struct{})

	add := func(props *object, optional bool) error {
		if props == nil {
			return nil
		}
		for _, name := range props.keys {
			if _, dup := seen[name]; dup {
				return apperr.SchemaErrorf("field %q declared twice", name)
			}
			seen[name] = struct{}{}

			var n node
			if err := json.Unmarshal(props.values[name], &n); err != nil {
				return apperr.SchemaErrorf("field %q: %v", name, err)
			}
			f, err := parseField(name, &n)
			if err != nil {
				return err
			}
			required := !optional && !n.Nullable
			if dialect == DialectJSONSchema {
				required = !optional && slices.Contains(root.Required, name) && !n.Nullable
			}
			f.Required = required
			f.Nullable = !required
			fields = append(fields, f)
		}
		return nil
	}

	if err := add(root.Properties, false); err != nil {
		return nil, err
	}
	if err := add(root.OptionalProperties, true); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, apperr.SchemaErrorf("no properties declared")
	}
	return fields, nil
}

func parseField(name string, n *node) (Field, error) {
	switch {
	case n.Elements != nil || n.Items != nil:
		raw := n.Elements
		if raw == nil {
			raw = n.Items
		}
		var item node
		if err := json.Unmarshal(*raw, &item); err != nil {
			return Field{}, apperr.SchemaErrorf("field %q items: %v", name, err)
		}
		kind, err := leafKind(name, &item)
		if err != nil {
			return Field{}, err
		}
		return Field{
			Name:     name,
			Kind:     KindArray,
			Items:    &Item{Kind: kind, Nullable: item.Nullable, Metadata: item.metadata()},
			Metadata: n.metadata(),
		}, nil
	case n.Properties != nil || n.OptionalProperties != nil || n.Type == "object":
		return Field{Name: name, Kind: KindObject, Metadata: n.metadata()}, nil
	default:
		kind, err := leafKind(name, n)
		if err != nil {
			return Field{}, err
		}
		return Field{Name: name, Kind: kind, Metadata: n.metadata()}, nil
	}
}

func leafKind(name string, n *node) (Kind, error) {
	if n.Type == "" && len(n.Enum) > 0 {
		return KindString, nil
	}
	kind, ok := typeKinds[n.Type]
	if !ok {
		if n.Type == "" {
			return "", apperr.SchemaErrorf("field %q: unrecognized node shape", name)
		}
		return "", apperr.SchemaErrorf("field %q: unsupported type %q", name, n.Type)
	}
	return kind, nil
}
