package markdown

import (
	"fmt"
	"math"
	"regexp"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/schema"
)

var assetPathRe = regexp.MustCompile(`^\.assets(/[^/]*[^/.][^/]*){3}$`)

// Validate checks a document against its schema: required fields present and
// non-null, every value matching its kind, format, pattern and enum, and no
// undeclared keys. It returns a *apperr.ValidationError listing every
// violation, or nil.
func Validate(doc *Document, s *schema.Schema) error {
	var errs []apperr.FieldError
	report := func(field string, err error) {
		if err != nil {
			errs = append(errs, apperr.FieldError{Field: field, Message: err.Error()})
		}
	}

	var undeclared []string
	for k := range doc.Frontmatter {
		if _, ok := s.Field(k); !ok {
			undeclared = append(undeclared, k)
		}
	}
	slices.Sort(undeclared)
	for _, k := range undeclared {
		report(k, fmt.Errorf("is not declared by the %s schema", s.Title))
	}

	for _, f := range s.Fields {
		v, present := doc.Frontmatter[f.Name]
		if f.Required {
			report(f.Name, validation.Validate(v, validation.NotNil.Error("is required")))
		}
		if !present || v == nil {
			continue
		}
		if !f.IsArray() {
			report(f.Name, validateValue(v, f.Kind, f.Metadata))
			continue
		}
		list, ok := v.([]any)
		if !ok {
			report(f.Name, fmt.Errorf("must be a list"))
			continue
		}
		for i, e := range list {
			name := fmt.Sprintf("%s[%d]", f.Name, i)
			if e == nil {
				if !f.Items.Nullable {
					report(name, fmt.Errorf("cannot be null"))
				}
				continue
			}
			report(name, validateValue(e, f.Items.Kind, f.ValueMetadata()))
		}
	}

	if len(errs) > 0 {
		return &apperr.ValidationError{Errors: errs}
	}
	return nil
}

func validateValue(v any, kind schema.Kind, m schema.Metadata) error {
	if err := checkKind(v, kind); err != nil {
		return err
	}
	var (
		rules []validation.Rule
		msgs  []string
	)
	add := func(r validation.Rule, msg string) {
		rules = append(rules, r)
		msgs = append(msgs, msg)
	}
	switch m.Format {
	case schema.FormatDate:
		msg := "must be a date in YYYY-MM-DD form"
		add(validation.Date(schema.DateLayout).Error(msg), msg)
	case schema.FormatAsset:
		msg := "must be an attachment path under .assets/"
		add(validation.Match(assetPathRe).Error(msg), msg)
	}
	if m.Pattern != "" {
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return fmt.Errorf("has an invalid pattern %q", m.Pattern)
		}
		msg := fmt.Sprintf("must match %s", m.Pattern)
		add(validation.Match(re).Error(msg), msg)
	}
	if len(m.Enum) > 0 {
		allowed := make([]any, len(m.Enum))
		for i, e := range m.Enum {
			allowed[i] = e
		}
		msg := fmt.Sprintf("must be one of %v", m.Enum)
		add(validation.In(allowed...).Error(msg), msg)
	}
	if len(rules) == 0 {
		return nil
	}
	// Match, In and Date skip empty values; a present "" must still satisfy
	// the constraint.
	rules = append([]validation.Rule{validation.Required.Error(msgs[0])}, rules...)
	return validation.Validate(v, rules...)
}

func checkKind(v any, kind schema.Kind) error {
	ok := false
	switch kind {
	case schema.KindString:
		_, ok = v.(string)
	case schema.KindBoolean:
		_, ok = v.(bool)
	case schema.KindInteger:
		switch n := v.(type) {
		case int, int64:
			ok = true
		case float64:
			ok = n == math.Trunc(n)
		}
	case schema.KindNumber:
		switch v.(type) {
		case int, int64, float64:
			ok = true
		}
	case schema.KindObject:
		_, ok = v.(map[string]any)
	}
	if !ok {
		return fmt.Errorf("must be of type %s", kind)
	}
	return nil
}
