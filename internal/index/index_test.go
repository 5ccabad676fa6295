package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "luzzle-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func book(path, title string, tags ...any) *models.Item {
	values := map[string][]any{"title": {title}}
	if len(tags) > 0 {
		values["tags"] = tags
	}
	fm := map[string]any{"title": title}
	if len(tags) > 0 {
		fm["tags"] = tags
	}
	return &models.Item{
		Type:        "books",
		FilePath:    path,
		Slug:        path,
		Frontmatter: fm,
		Note:        "notes about " + title,
		ContentHash: "h-" + path,
		Values:      values,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"pieces", "pieces_items", "pieces_items_values", "pieces_cache"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestOpen_DSNWithQuery(t *testing.T) {
	if got := withParams("a.db"); got != "a.db?"+dsnParams {
		t.Errorf("withParams = %q", got)
	}
	if got := withParams("file:a.db?cache=shared"); got != "file:a.db?cache=shared&"+dsnParams {
		t.Errorf("withParams = %q", got)
	}

	path := t.TempDir() + "/query.db"
	db, err := Open("file:" + path + "?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	var mode string
	if err := db.conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestInsertAndSelectItem(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	it := book("a.books.md", "Dune", "sci-fi")
	if err := db.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if it.ID == "" {
		t.Fatal("InsertItem did not assign an id")
	}

	got, err := db.SelectItem(ctx, "books", "a.books.md")
	if err != nil {
		t.Fatalf("SelectItem: %v", err)
	}
	if got.ID != it.ID || got.ContentHash != "h-a.books.md" || got.Note != "notes about Dune" {
		t.Errorf("item = %+v", got)
	}
	if got.DateUpdated != nil {
		t.Errorf("DateUpdated = %v, want nil", got.DateUpdated)
	}
	want := map[string]any{"title": "Dune", "tags": []any{"sci-fi"}}
	if diff := cmp.Diff(want, got.Frontmatter); diff != "" {
		t.Errorf("frontmatter mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectItem_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.SelectItem(context.Background(), "books", "missing.books.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertItem_UniquePerTypeAndPath(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.InsertItem(ctx, book("a.books.md", "A")); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertItem(ctx, book("a.books.md", "A again")); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestUpdateItem_ReplacesProjection(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.InsertItem(ctx, book("u.books.md", "Old", "x")); err != nil {
		t.Fatal(err)
	}
	upd := book("u.books.md", "New", "y")
	upd.ContentHash = "h2"
	if err := db.UpdateItem(ctx, upd); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, _ := db.SelectItem(ctx, "books", "u.books.md")
	if got.ContentHash != "h2" || got.DateUpdated == nil {
		t.Errorf("item = %+v", got)
	}
	items, total, err := db.SelectItems(ctx, ItemQuery{Type: "books", Field: "tags", Value: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("old projection value still matches: %d", total)
	}
	_, total, _ = db.SelectItems(ctx, ItemQuery{Type: "books", Field: "tags", Value: "y"})
	if total != 1 {
		t.Errorf("new projection total = %d, want 1", total)
	}
}

func TestUpdateItem_NotFound(t *testing.T) {
	db := testDB(t)
	err := db.UpdateItem(context.Background(), book("nope.books.md", "Nope"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteItem(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.InsertItem(ctx, book("d.books.md", "Gone", "t"))
	if err := db.DeleteItem(ctx, "books", "d.books.md"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := db.SelectItem(ctx, "books", "d.books.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("item still present: %v", err)
	}
	var n int
	_ = db.conn.QueryRow(`SELECT count(*) FROM pieces_items_values`).Scan(&n)
	if n != 0 {
		t.Errorf("%d projection rows left", n)
	}
	if err := db.DeleteItem(ctx, "books", "d.books.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSelectItems_PaginationAndCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := range 5 {
		if err := db.InsertItem(ctx, book(fmt.Sprintf("%d.books.md", i), fmt.Sprint("Book ", i))); err != nil {
			t.Fatal(err)
		}
	}
	other := book("x.films.md", "Film")
	other.Type = "films"
	_ = db.InsertItem(ctx, other)

	items, total, err := db.SelectItems(ctx, ItemQuery{Type: "books", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.FilePath)
	}
	if diff := cmp.Diff([]string{"2.books.md", "3.books.md"}, paths); diff != "" {
		t.Errorf("page mismatch (-want +got):\n%s", diff)
	}

	_, total, _ = db.SelectItems(ctx, ItemQuery{})
	if total != 6 {
		t.Errorf("unfiltered total = %d, want 6", total)
	}
}

func TestInsertItem_LargeProjectionIsChunked(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tags := make([]any, valuesChunk*2+7)
	for i := range tags {
		tags[i] = fmt.Sprintf("t%d", i)
	}
	if err := db.InsertItem(ctx, book("big.books.md", "Big", tags...)); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	var n int
	_ = db.conn.QueryRow(`SELECT count(*) FROM pieces_items_values WHERE field = 'tags'`).Scan(&n)
	if n != len(tags) {
		t.Errorf("projection rows = %d, want %d", n, len(tags))
	}
}

func TestItemPaths(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.InsertItem(ctx, book("b.books.md", "B"))
	_ = db.InsertItem(ctx, book("a.books.md", "A"))
	paths, err := db.ItemPaths(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.books.md", "b.books.md"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestPieceRegistry(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := db.GetPiece(ctx, "books"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetPiece before add: %v", err)
	}
	if err := db.AddPiece(ctx, "books", `{"title":"books"}`); err != nil {
		t.Fatalf("AddPiece: %v", err)
	}
	p, err := db.GetPiece(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	if p.DateUpdated != nil || p.Schema != `{"title":"books"}` {
		t.Errorf("piece = %+v", p)
	}
	if err := db.UpdatePiece(ctx, "books", `{"title":"books","v":2}`); err != nil {
		t.Fatalf("UpdatePiece: %v", err)
	}
	p, _ = db.GetPiece(ctx, "books")
	if p.DateUpdated == nil || p.LastChanged().Before(p.DateAdded) {
		t.Errorf("piece after update = %+v", p)
	}

	_ = db.AddPiece(ctx, "films", `{}`)
	list, _ := db.ListPieces(ctx)
	if len(list) != 2 || list[0].Name != "books" {
		t.Errorf("ListPieces = %+v", list)
	}
	if err := db.DeletePiece(ctx, "films"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeletePiece(ctx, "films"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second DeletePiece err = %v", err)
	}
	if err := db.UpdatePiece(ctx, "films", `{}`); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("UpdatePiece missing err = %v", err)
	}
}

func TestCache(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := db.GetCache(ctx, "books", "a.books.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetCache before add: %v", err)
	}
	if err := db.AddCache(ctx, "books", "a.books.md", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateCache(ctx, "books", "a.books.md", "h2"); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetCache(ctx, "books", "a.books.md")
	if err != nil {
		t.Fatal(err)
	}
	if c.ContentHash != "h2" || c.DateUpdated == nil {
		t.Errorf("cache = %+v", c)
	}
	if !c.LastChanged().Equal(*c.DateUpdated) {
		t.Errorf("LastChanged = %v, want %v", c.LastChanged(), *c.DateUpdated)
	}

	_ = db.AddCache(ctx, "books", "b.books.md", "hb")
	if err := db.RemoveCache(ctx, "books", "a.books.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetCache(ctx, "books", "a.books.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("removed entry still present: %v", err)
	}
	if err := db.ClearCache(ctx, "books"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetCache(ctx, "books", "b.books.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cleared entry still present: %v", err)
	}
	if err := db.UpdateCache(ctx, "books", "b.books.md", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("UpdateCache missing err = %v", err)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	it := book("s.books.md", "Search Me")
	it.Note = "uniqueword appears here"
	_ = db.InsertItem(ctx, it)

	results, err := db.Search(ctx, "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].FilePath != "s.books.md" || results[0].Title != "Search Me" {
		t.Errorf("search results = %+v, want 1 hit for s.books.md", results)
	}
}
