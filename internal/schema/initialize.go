package schema

import (
	"time"

	"github.com/starford/luzzle/internal/apperr"
)

// now is replaced in tests.
var now = time.Now

// Initialize computes seed frontmatter for a new document: one value for every
// required field. With minimal set, fields whose only example is the
// Placeholder are left out.
func (s *Schema) Initialize(minimal bool) (map[string]any, error) {
	fm := make(map[string]any)
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		v, ok, err := seed(f, minimal)
		if err != nil {
			return nil, err
		}
		if ok {
			fm[f.Name] = v
		}
	}
	return fm, nil
}

func seed(f Field, minimal bool) (any, bool, error) {
	m := f.ValueMetadata()
	switch {
	case len(m.Enum) > 0:
		return wrap(f, m.Enum[0]), true, nil
	case m.Format == FormatDate:
		return wrap(f, now().Format(DateLayout)), true, nil
	}

	examples := f.Examples
	if len(examples) == 0 {
		examples = m.Examples
	}
	if len(examples) > 0 {
		if minimal && isPlaceholderOnly(examples) {
			return nil, false, nil
		}
		if list, ok := examples[0].([]any); ok && f.IsArray() {
			out := make([]any, len(list))
			for i, e := range list {
				out[i] = exampleValue(f.Items.Kind, e)
			}
			return out, true, nil
		}
		return wrap(f, exampleValue(f.ValueKind(), examples[0])), true, nil
	}

	if f.IsArray() {
		return []any{}, true, nil
	}
	if m.Format == FormatAsset {
		return nil, false, apperr.SchemaErrorf("field %q: required attachment has no default", f.Name)
	}
	switch f.Kind {
	case KindString:
		return "", true, nil
	case KindBoolean:
		return false, true, nil
	case KindInteger:
		return int64(0), true, nil
	case KindNumber:
		return float64(0), true, nil
	}
	return nil, false, apperr.SchemaErrorf("field %q: no default for kind %s", f.Name, f.Kind)
}

func wrap(f Field, v any) any {
	if f.IsArray() {
		return []any{v}
	}
	return v
}

func isPlaceholderOnly(examples []any) bool {
	return len(examples) == 1 && examples[0] == Placeholder
}

// exampleValue coerces a decoded JSON example to the frontmatter representation.
func exampleValue(kind Kind, v any) any {
	if n, ok := v.(float64); ok && kind == KindInteger {
		return int64(n)
	}
	return v
}
