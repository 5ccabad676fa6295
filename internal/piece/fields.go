package piece

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/attachment"
	"github.com/starford/luzzle/internal/codec"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/schema"
)

// FrontmatterGenerator produces candidate frontmatter values for a piece,
// typically by asking a language model.
type FrontmatterGenerator interface {
	GenerateFrontmatter(ctx context.Context, s *schema.Schema, prompt string) (map[string]any, error)
}

func (p *Piece) field(name string) (schema.Field, error) {
	f, ok := p.schema.Field(name)
	if !ok {
		return schema.Field{}, apperr.UnknownField(p.pieceType, name)
	}
	return f, nil
}

// SetField returns a copy of doc with name set from raw. Array fields always
// append; a comma-separated field splits string input into several values.
// Attachment fields are materialized under the assets directory; when that
// fails the failure is logged and doc is returned unchanged.
func (p *Piece) SetField(ctx context.Context, doc *markdown.Document, name string, raw any) (*markdown.Document, error) {
	f, err := p.field(name)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return p.RemoveField(doc, name)
	}

	values, err := p.inputValues(ctx, doc, f, raw)
	if err != nil {
		if f.IsAsset() {
			p.logger.Warn("piece: attachment not saved",
				slog.String("path", doc.FilePath),
				slog.String("field", name),
				slog.String("error", err.Error()))
			return doc, nil
		}
		return nil, err
	}

	out := doc.Clone()
	if !f.IsArray() {
		out.Frontmatter[name] = values[0]
		return out, nil
	}
	out.Frontmatter[name] = append(asList(out.Frontmatter[name]), values...)
	return out, nil
}

// inputValues converts raw input into the frontmatter values to store.
func (p *Piece) inputValues(ctx context.Context, doc *markdown.Document, f schema.Field, raw any) ([]any, error) {
	var inputs []any
	switch t := raw.(type) {
	case []any:
		inputs = t
	case []string:
		for _, s := range t {
			inputs = append(inputs, s)
		}
	case string:
		if f.IsArray() && f.Format == schema.FormatCommaSeparated {
			inputs = codec.SplitList(t)
		} else {
			inputs = []any{t}
		}
	default:
		inputs = []any{raw}
	}
	if len(inputs) == 0 {
		return nil, &apperr.ValidationError{Errors: []apperr.FieldError{{Field: f.Name, Message: "no value given"}}}
	}
	if !f.IsArray() && len(inputs) > 1 {
		return nil, &apperr.ValidationError{Errors: []apperr.FieldError{{Field: f.Name, Message: "takes a single value"}}}
	}

	out := make([]any, 0, len(inputs))
	var saved []any
	for _, in := range inputs {
		if f.IsAsset() {
			v, err := p.assets.Save(ctx, attachment.Target{
				Type:    p.pieceType,
				Field:   f.Name,
				Slug:    doc.Slug,
				DocPath: doc.FilePath,
			}, in)
			if err != nil {
				// Files written for earlier inputs would be left unreferenced.
				p.removeAssets(doc.FilePath, f.Name, saved)
				return nil, err
			}
			if s, ok := in.(string); !ok || !attachment.IsAssetPath(s) {
				saved = append(saved, v)
			}
			out = append(out, v)
			continue
		}
		v, err := codec.ParseInput(in, f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SetFields applies SetField for every entry of values in schema order. An
// unknown name fails the whole call before anything is applied.
func (p *Piece) SetFields(ctx context.Context, doc *markdown.Document, values map[string]any) (*markdown.Document, error) {
	for name := range values {
		if _, err := p.field(name); err != nil {
			return nil, err
		}
	}
	out := doc
	for _, name := range p.schema.Names() {
		raw, ok := values[name]
		if !ok {
			continue
		}
		next, err := p.SetField(ctx, out, name, raw)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// RemoveField returns a copy of doc with name cleared. With a match value
// only equal array elements are removed, or a scalar is cleared only when it
// equals match; a scalar that does not match leaves doc unchanged. Removed
// attachment files are deleted from storage on a best-effort basis.
func (p *Piece) RemoveField(doc *markdown.Document, name string, match ...any) (*markdown.Document, error) {
	f, err := p.field(name)
	if err != nil {
		return nil, err
	}
	if !f.Nullable {
		return nil, apperr.RequiredField(p.pieceType, name)
	}
	current, present := doc.Frontmatter[name]
	if !present {
		return doc, nil
	}

	out := doc.Clone()
	var removed []any
	switch {
	case len(match) == 0:
		removed = asList(current)
		delete(out.Frontmatter, name)
	case f.IsArray():
		want := p.matchValue(f, match[0])
		var kept []any
		for _, e := range asList(current) {
			if equalValue(e, want) {
				removed = append(removed, e)
			} else {
				kept = append(kept, e)
			}
		}
		if len(removed) == 0 {
			return doc, nil
		}
		if len(kept) == 0 {
			delete(out.Frontmatter, name)
		} else {
			out.Frontmatter[name] = kept
		}
	default:
		if !equalValue(current, p.matchValue(f, match[0])) {
			return doc, nil
		}
		removed = []any{current}
		delete(out.Frontmatter, name)
	}

	if f.IsAsset() {
		p.removeAssets(doc.FilePath, name, removed)
	}
	return out, nil
}

// RemoveFields clears every named field. Validation of all names happens
// before anything is removed.
func (p *Piece) RemoveFields(doc *markdown.Document, names ...string) (*markdown.Document, error) {
	for _, name := range names {
		f, err := p.field(name)
		if err != nil {
			return nil, err
		}
		if !f.Nullable {
			return nil, apperr.RequiredField(p.pieceType, name)
		}
	}
	out := doc
	for _, name := range names {
		next, err := p.RemoveField(out, name)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// Generate asks gen for frontmatter values and applies the ones the schema
// declares. Empty values and keys outside the schema are dropped.
func (p *Piece) Generate(ctx context.Context, gen FrontmatterGenerator, doc *markdown.Document, prompt string) (*markdown.Document, error) {
	values, err := gen.GenerateFrontmatter(ctx, p.schema, prompt)
	if err != nil {
		return nil, fmt.Errorf("piece: generate: %w", err)
	}
	accepted := make(map[string]any, len(values))
	for k, v := range values {
		if _, ok := p.schema.Field(k); !ok || v == nil || v == "" {
			p.logger.Debug("piece: generated value dropped", slog.String("field", k))
			continue
		}
		accepted[k] = v
	}
	return p.SetFields(ctx, doc, accepted)
}

func (p *Piece) matchValue(f schema.Field, raw any) any {
	if f.IsAsset() {
		return raw
	}
	if v, err := codec.ParseInput(raw, f); err == nil {
		return v
	}
	return raw
}

func (p *Piece) removeAssets(docPath, field string, values []any) {
	for _, v := range values {
		s, ok := v.(string)
		if !ok || !attachment.IsAssetPath(s) {
			continue
		}
		if err := p.assets.Remove(s); err != nil {
			p.logger.Warn("piece: attachment not removed",
				slog.String("path", docPath),
				slog.String("field", field),
				slog.String("error", err.Error()))
		}
	}
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return slices.Clone(t)
	}
	return []any{v}
}

func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
