package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/pieces"
	"github.com/starford/luzzle/internal/storage"
	"github.com/starford/luzzle/internal/testutil"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

// testEnv sets up a temp root with two synced books and returns the router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()
	_, store := testutil.TestRoot(t)
	testutil.WriteSchema(t, store, "books", testutil.BooksSchema)
	write(t, store, "dune.books.md", "---\ntitle: Dune\ntags: [fiction, classic]\nrating: 5\n---\nSpice and sand.\n")
	write(t, store, "shelf/emma.books.md", "---\ntitle: Emma\ntags: [fiction]\nrating: 3\n---\n")
	write(t, store, ".assets/books/cover/dune-0a0b0c0d.png", string(pngData))

	db := testutil.TestDB(t)
	reg := pieces.New(store, testutil.Logger())
	ctx := context.Background()
	for range reg.Sync(ctx, db, piece.SyncOptions{}) {
	}
	for res := range reg.SyncItems(ctx, db, piece.SyncOptions{}) {
		if res.Failed() {
			t.Fatalf("sync %s: %v", res.File, res.Err)
		}
	}

	deps := Deps{Registry: reg, DB: db, Store: store, Logger: testutil.Logger()}
	r := chi.NewRouter()
	MountHealth(r, deps)
	r.Mount("/api", NewRouter(deps, authToken != "", authToken))
	return r
}

func write(t *testing.T, store storage.Provider, p, content string) {
	t.Helper()
	if err := store.WriteFile(p, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestListTypes(t *testing.T) {
	router := testEnv(t, "")
	w := get(t, router, "/api/types")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[TypeListResponse](t, w)
	want := TypeListResponse{Types: []TypeInfo{{Name: "books", Fields: 8, Indexed: true}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSchema(t *testing.T) {
	router := testEnv(t, "")
	w := get(t, router, "/api/types/books/schema")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		Title  string `json:"title"`
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "books" || len(got.Fields) != 8 || got.Fields[0].Name != "title" {
		t.Errorf("schema = %+v", got)
	}

	if w := get(t, router, "/api/types/games/schema"); w.Code != http.StatusNotFound {
		t.Errorf("unknown type status = %d, want 404", w.Code)
	}
}

func TestListPieces(t *testing.T) {
	router := testEnv(t, "")

	w := get(t, router, "/api/pieces?type=books&limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page := decode[ItemListResponse](t, w)
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].FilePath != "dune.books.md" {
		t.Errorf("page = total %d, %d items", page.Total, len(page.Items))
	}

	w = get(t, router, "/api/pieces?type=books&limit=1&offset=1")
	page = decode[ItemListResponse](t, w)
	if len(page.Items) != 1 || page.Items[0].FilePath != "shelf/emma.books.md" {
		t.Errorf("second page = %+v", page.Items)
	}
}

func TestListPieces_FieldFilter(t *testing.T) {
	router := testEnv(t, "")
	tests := []struct {
		query string
		want  []string
	}{
		{"type=books&field=tags&value=fiction", []string{"dune.books.md", "shelf/emma.books.md"}},
		{"type=books&field=tags&value=classic", []string{"dune.books.md"}},
		{"type=books&field=rating&value=3", []string{"shelf/emma.books.md"}},
		{"type=books&field=tags&value=poetry", []string{}},
	}
	for _, tt := range tests {
		w := get(t, router, "/api/pieces?"+tt.query)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", tt.query, w.Code, w.Body.String())
		}
		page := decode[ItemListResponse](t, w)
		got := []string{}
		for _, it := range page.Items {
			got = append(got, it.FilePath)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.query, diff)
		}
	}
}

func TestListPieces_BadFilter(t *testing.T) {
	router := testEnv(t, "")
	for _, q := range []string{
		"field=tags&value=fiction",
		"type=books&field=nope&value=x",
		"type=books&field=rating&value=high",
	} {
		if w := get(t, router, "/api/pieces?"+q); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
	if w := get(t, router, "/api/pieces?type=games&field=x&value=y"); w.Code != http.StatusNotFound {
		t.Errorf("unknown type status = %d, want 404", w.Code)
	}
}

func TestGetPiece(t *testing.T) {
	router := testEnv(t, "")
	for _, target := range []string{"/api/pieces/shelf/emma.books.md", "/api/pieces/shelf%2Femma.books.md"} {
		w := get(t, router, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", target, w.Code, w.Body.String())
		}
		var item struct {
			FilePath    string         `json:"file_path"`
			Slug        string         `json:"slug"`
			Frontmatter map[string]any `json:"frontmatter"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
			t.Fatal(err)
		}
		if item.FilePath != "shelf/emma.books.md" || item.Slug != "emma" || item.Frontmatter["title"] != "Emma" {
			t.Errorf("%s: item = %+v", target, item)
		}
	}

	for _, target := range []string{"/api/pieces/missing.books.md", "/api/pieces/readme.txt"} {
		if w := get(t, router, target); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, w.Code)
		}
	}
}

func TestSearch(t *testing.T) {
	router := testEnv(t, "")
	w := get(t, router, "/api/search?q=Dune")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[SearchResponse](t, w)
	if len(res.Results) != 1 || res.Results[0].FilePath != "dune.books.md" {
		t.Errorf("results = %+v", res.Results)
	}

	if w := get(t, router, "/api/search"); w.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", w.Code)
	}
}

func TestGetAsset(t *testing.T) {
	router := testEnv(t, "")
	w := get(t, router, "/api/assets/.assets/books/cover/dune-0a0b0c0d.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), pngData) {
		t.Errorf("body length = %d, want %d", w.Body.Len(), len(pngData))
	}

	for _, target := range []string{
		"/api/assets/.assets/books/cover/missing.png",
		"/api/assets/dune.books.md",
		"/api/assets/.assets/../dune.books.md",
	} {
		if w := get(t, router, target); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, w.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	router := testEnv(t, "secret")
	for _, target := range []string{"/health/live", "/health/ready"} {
		w := get(t, router, target)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without auth", target, w.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testEnv(t, "secret")

	if w := get(t, router, "/api/types"); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/types", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/types", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}

func TestAuthDisabled(t *testing.T) {
	router := testEnv(t, "")
	if w := get(t, router, "/api/types"); w.Code != http.StatusOK {
		t.Errorf("disabled auth status = %d, want 200", w.Code)
	}
}
