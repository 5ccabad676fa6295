// Package codec converts field values between their frontmatter and database
// representations.
//
// Frontmatter values are string, int64, float64, bool or []any of those.
// Database values are string, int64, float64 or nil; lists and objects are
// stored as JSON text, dates as epoch milliseconds and booleans as 1/0.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/schema"
)

var truthyRe = regexp.MustCompile(`^(?i:true|yes|y|on|1)$`)

// ToDatabase converts a frontmatter value of field f to its stored form.
func ToDatabase(v any, f schema.Field) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case f.IsArray():
		list, ok := v.([]any)
		if !ok {
			list = []any{v}
		}
		out := make([]any, len(list))
		for i, e := range list {
			dv, err := scalarToDatabase(e, f.Items.Kind, f.ValueFormat())
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", f.Name, i, err)
			}
			out[i] = dv
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return string(b), nil
	case f.Kind == schema.KindObject:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return string(b), nil
	}
	dv, err := scalarToDatabase(v, f.Kind, f.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	return dv, nil
}

func scalarToDatabase(v any, kind schema.Kind, format string) (any, error) {
	if v == nil {
		return nil, nil
	}
	if format == schema.FormatDate {
		t, err := parseDate(v)
		if err != nil {
			return nil, err
		}
		return t.UnixMilli(), nil
	}
	switch kind {
	case schema.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a boolean", apperr.ErrValidation, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case schema.KindInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not an integer", apperr.ErrValidation, v)
		}
		return n, nil
	case schema.KindNumber:
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a number", apperr.ErrValidation, v)
		}
		return n, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return s, nil
}

// Project returns the database form of every single value held by a
// frontmatter value: one entry for a scalar or object, one per element for
// an array. Null elements are dropped.
func Project(v any, f schema.Field) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if !f.IsArray() {
		dv, err := ToDatabase(v, f)
		if err != nil {
			return nil, err
		}
		return []any{dv}, nil
	}
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	out := make([]any, 0, len(list))
	for i, e := range list {
		dv, err := scalarToDatabase(e, f.Items.Kind, f.ValueFormat())
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", f.Name, i, err)
		}
		if dv != nil {
			out = append(out, dv)
		}
	}
	return out, nil
}

// ToFrontmatter converts a stored value of field f back to its frontmatter form.
func ToFrontmatter(v any, f schema.Field) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case f.IsArray():
		list, err := decodeList(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out := make([]any, len(list))
		for i, e := range list {
			fv, err := scalarToFrontmatter(e, f.Items.Kind, f.ValueFormat())
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", f.Name, i, err)
			}
			out[i] = fv
		}
		return out, nil
	case f.Kind == schema.KindObject:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return obj, nil
	}
	fv, err := scalarToFrontmatter(v, f.Kind, f.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	return fv, nil
}

func scalarToFrontmatter(v any, kind schema.Kind, format string) (any, error) {
	if v == nil {
		return nil, nil
	}
	if format == schema.FormatDate {
		if ms, ok := toInt64(v); ok {
			return time.UnixMilli(ms).In(time.Local).Format(schema.DateLayout), nil
		}
		t, err := parseDate(v)
		if err != nil {
			return nil, err
		}
		return t.Format(schema.DateLayout), nil
	}
	switch kind {
	case schema.KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if n, ok := toInt64(v); ok {
			return n != 0, nil
		}
		return truthyRe.MatchString(fmt.Sprint(v)), nil
	case schema.KindInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not an integer", apperr.ErrValidation, v)
		}
		return n, nil
	case schema.KindNumber:
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a number", apperr.ErrValidation, v)
		}
		return n, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// decodeList accepts a JSON array string or a legacy comma-joined string.
func decodeList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return []any{}, nil
		}
		if strings.HasPrefix(s, "[") {
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			var list []any
			if err := dec.Decode(&list); err != nil {
				return nil, err
			}
			return list, nil
		}
		return SplitList(s), nil
	}
	return nil, fmt.Errorf("%w: cannot decode %T as a list", apperr.ErrValidation, v)
}

// SplitList splits a comma-separated string into trimmed, non-empty parts.
func SplitList(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseInput coerces a raw user-supplied value to the frontmatter form of a
// single value of f: truthy strings become true, integers are parsed, other
// strings pass through.
func ParseInput(raw any, f schema.Field) (any, error) {
	s, isString := raw.(string)
	switch f.ValueKind() {
	case schema.KindBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return truthyRe.MatchString(strings.TrimSpace(fmt.Sprint(raw))), nil
	case schema.KindInteger:
		if isString {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %q is not an integer", apperr.ErrValidation, f.Name, s)
			}
			return n, nil
		}
		if n, ok := toInt64(raw); ok {
			return n, nil
		}
		return nil, fmt.Errorf("%w: %s: %v is not an integer", apperr.ErrValidation, f.Name, raw)
	case schema.KindNumber:
		if isString {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %q is not a number", apperr.ErrValidation, f.Name, s)
			}
			return n, nil
		}
		if n, ok := toFloat64(raw); ok {
			return n, nil
		}
		return nil, fmt.Errorf("%w: %s: %v is not a number", apperr.ErrValidation, f.Name, raw)
	}
	if f.IsDate() {
		t, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return t.Format(schema.DateLayout), nil
	}
	if isString {
		return s, nil
	}
	return fmt.Sprint(raw), nil
}

func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.In(time.Local), nil
	case string:
		d, err := dateparse.ParseIn(strings.TrimSpace(t), time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a date", apperr.ErrValidation, t)
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w: %v is not a date", apperr.ErrValidation, v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint16:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
