package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/luzzle/internal/apperr"
)

const booksJTD = `{
	// JTD flavour, comments allowed
	"title": "books",
	"properties": {
		"title": {"type": "string"},
		"date_read": {"type": "string", "metadata": {"luzzleFormat": "date"}},
		"status": {"enum": ["reading", "read"]},
	},
	"optionalProperties": {
		"tags": {"elements": {"type": "string"}, "nullable": true},
		"pages": {"type": "uint16"},
		"isbn": {"type": "string", "metadata": {"luzzlePattern": "^[0-9-]+$"}},
		"cover": {"type": "string", "metadata": {"luzzleFormat": "asset"}},
		"meta": {"properties": {"a": {"type": "string"}}},
	},
}`

const linksJSONSchema = `{
	"title": "links",
	"type": "object",
	"required": ["title", "url", "read"],
	"properties": {
		"title": {"type": "string", "examples": ["TBD"]},
		"url": {"type": "string", "examples": ["https://example.com"]},
		"read": {"type": "boolean"},
		"score": {"type": "integer", "examples": [7]},
		"keywords": {"type": "array", "items": {"type": "string"}, "format": "comma-separated"}
	}
}`

func TestParse_JTD(t *testing.T) {
	s, err := Parse([]byte(booksJTD))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Title != "books" {
		t.Errorf("title = %q, want books", s.Title)
	}
	want := []string{"title", "date_read", "status", "tags", "pages", "isbn", "cover", "meta"}
	if diff := cmp.Diff(want, s.Names()); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}

	title, _ := s.Field("title")
	if !title.Required || title.Nullable || title.Kind != KindString {
		t.Errorf("title = %+v", title)
	}
	dateRead, _ := s.Field("date_read")
	if !dateRead.IsDate() {
		t.Errorf("date_read should be date formatted: %+v", dateRead)
	}
	status, _ := s.Field("status")
	if diff := cmp.Diff([]string{"reading", "read"}, status.Enum); diff != "" {
		t.Errorf("status enum mismatch: %s", diff)
	}
	tags, _ := s.Field("tags")
	if !tags.IsArray() || tags.Items.Kind != KindString || tags.Required || !tags.Nullable {
		t.Errorf("tags = %+v", tags)
	}
	pages, _ := s.Field("pages")
	if pages.Kind != KindInteger {
		t.Errorf("pages kind = %s", pages.Kind)
	}
	isbn, _ := s.Field("isbn")
	if isbn.Pattern != "^[0-9-]+$" {
		t.Errorf("isbn pattern = %q", isbn.Pattern)
	}
	cover, _ := s.Field("cover")
	if !cover.IsAsset() {
		t.Error("cover should be an asset field")
	}
	meta, _ := s.Field("meta")
	if meta.Kind != KindObject {
		t.Errorf("meta kind = %s", meta.Kind)
	}
}

func TestParse_JSONSchema(t *testing.T) {
	s, err := Parse([]byte(linksJSONSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, _ := DetectDialect([]byte(linksJSONSchema))
	if d != DialectJSONSchema {
		t.Errorf("dialect = %s", d)
	}
	score, _ := s.Field("score")
	if score.Required || !score.Nullable {
		t.Errorf("score should be optional: %+v", score)
	}
	keywords, _ := s.Field("keywords")
	if !keywords.IsArray() || keywords.Format != FormatCommaSeparated {
		t.Errorf("keywords = %+v", keywords)
	}
	read, _ := s.Field("read")
	if !read.Required || read.Kind != KindBoolean {
		t.Errorf("read = %+v", read)
	}
}

func TestParse_MixedRequiredAndOptionalProperties(t *testing.T) {
	doc := `{"title":"books","required":["title"],"properties":{"title":{"type":"string"}},
		"optionalProperties":{"tags":{"elements":{"type":"string"},"nullable":true}}}`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	title, _ := s.Field("title")
	tags, _ := s.Field("tags")
	if !title.Required || tags.Required || !tags.IsArray() {
		t.Errorf("title = %+v, tags = %+v", title, tags)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unrecognized shape": `{"properties":{"x":{}}}`,
		"unsupported type":   `{"properties":{"x":{"type":"blob"}}}`,
		"nested arrays":      `{"properties":{"x":{"elements":{"elements":{"type":"string"}}}}}`,
		"no properties":      `{"title":"x"}`,
		"not json":           `{{`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if !errors.Is(err, apperr.ErrSchema) {
				t.Errorf("err = %v, want ErrSchema", err)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local) }
	t.Cleanup(func() { now = time.Now })

	s, err := Parse([]byte(booksJTD))
	if err != nil {
		t.Fatal(err)
	}
	fm, err := s.Initialize(false)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	want := map[string]any{
		"title":     "",
		"date_read": "2026-03-04",
		"status":    "reading",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestInitialize_ExamplesAndMinimal(t *testing.T) {
	s, err := Parse([]byte(linksJSONSchema))
	if err != nil {
		t.Fatal(err)
	}
	full, err := s.Initialize(false)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	want := map[string]any{"title": "TBD", "url": "https://example.com", "read": false}
	if diff := cmp.Diff(want, full); diff != "" {
		t.Errorf("full seed mismatch (-want +got):\n%s", diff)
	}

	minimal, _ := s.Initialize(true)
	if _, ok := minimal["title"]; ok {
		t.Error("minimal seed should skip placeholder-only title")
	}
	if minimal["url"] != "https://example.com" {
		t.Errorf("url = %v", minimal["url"])
	}
}

func TestInitialize_DateArrayAndAssetError(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.Local) }
	t.Cleanup(func() { now = time.Now })

	s, err := Parse([]byte(`{"properties":{"seen":{"elements":{"type":"timestamp"}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	fm, _ := s.Initialize(false)
	if diff := cmp.Diff(map[string]any{"seen": []any{"2026-01-02"}}, fm); diff != "" {
		t.Errorf("date array seed mismatch: %s", diff)
	}

	s, _ = Parse([]byte(`{"properties":{"cover":{"type":"string","metadata":{"luzzleFormat":"asset"}}}}`))
	if _, err := s.Initialize(false); !errors.Is(err, apperr.ErrSchema) {
		t.Errorf("err = %v, want ErrSchema", err)
	}
}
