// Package piece implements the per-type piece engine: creating, reading,
// editing and writing piece documents, and syncing them to the index.
package piece

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/attachment"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/schema"
	"github.com/starford/luzzle/internal/storage"
)

// TitleField is the frontmatter key set from the title passed to Create.
const TitleField = "title"

// Piece is the engine of one piece type. It is safe for concurrent use.
type Piece struct {
	pieceType   string
	store       storage.Provider
	schema      *schema.Schema
	assets      *attachment.Materializer
	logger      *slog.Logger
	concurrency int
}

// Option configures a Piece.
type Option func(*Piece)

// WithMaterializer sets the attachment materializer used by asset fields.
func WithMaterializer(m *attachment.Materializer) Option {
	return func(p *Piece) { p.assets = m }
}

// WithConcurrency bounds the number of documents processed at once by Sync
// and Prune. Zero or less means runtime.NumCPU().
func WithConcurrency(n int) Option {
	return func(p *Piece) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New returns the engine for pieceType. The schema title must equal the type.
func New(pieceType string, store storage.Provider, s *schema.Schema, logger *slog.Logger, opts ...Option) (*Piece, error) {
	if s == nil || s.Title != pieceType {
		title := ""
		if s != nil {
			title = s.Title
		}
		return nil, fmt.Errorf("piece: schema %q for type %q: %w", title, pieceType, apperr.ErrSchemaMismatch)
	}
	p := &Piece{
		pieceType:   pieceType,
		store:       store,
		schema:      s,
		logger:      logger.With(slog.String("type", pieceType)),
		concurrency: runtime.NumCPU(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.assets == nil {
		p.assets = attachment.NewMaterializer(store, nil, p.logger)
	}
	return p, nil
}

// Type returns the piece type name.
func (p *Piece) Type() string { return p.pieceType }

// Schema returns the schema the engine validates against.
func (p *Piece) Schema() *schema.Schema { return p.schema }

// Create builds a new, unwritten document for title in dir. Required fields
// are seeded from the schema.
func (p *Piece) Create(dir, title string) (*markdown.Document, error) {
	slug := markdown.Slugify(title)
	if slug == "" {
		return nil, &apperr.ValidationError{Errors: []apperr.FieldError{{Field: TitleField, Message: "cannot be turned into a file name"}}}
	}
	filePath := markdown.FilePath(dir, slug, p.pieceType)
	exists, err := p.store.Exists(filePath)
	if err != nil {
		return nil, fmt.Errorf("piece: create: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("piece: %s: %w", filePath, apperr.ErrAlreadyExists)
	}

	fm, err := p.schema.Initialize(false)
	if err != nil {
		return nil, fmt.Errorf("piece: create: %w", err)
	}
	if _, ok := p.schema.Field(TitleField); ok {
		fm[TitleField] = title
	}
	return &markdown.Document{
		FilePath:    filePath,
		Type:        p.pieceType,
		Slug:        slug,
		Frontmatter: fm,
	}, nil
}

// Get reads and parses the document at filePath without validating it.
func (p *Piece) Get(filePath string) (*markdown.Document, error) {
	filePath = markdown.CleanPath(filePath)
	data, err := p.store.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("piece: %s: %w", filePath, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("piece: read %s: %w", filePath, err)
	}
	return p.parse(filePath, data)
}

func (p *Piece) parse(filePath string, data []byte) (*markdown.Document, error) {
	name, ok := markdown.ParseFilename(filePath)
	if !ok || name.Type != p.pieceType {
		return nil, fmt.Errorf("piece: %s is not a %s document: %w", filePath, p.pieceType, apperr.ErrSchemaMismatch)
	}
	note, fm, err := markdown.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("piece: parse %s: %w", filePath, err)
	}
	return &markdown.Document{
		FilePath:    filePath,
		Type:        p.pieceType,
		Slug:        name.Slug,
		Note:        note,
		Frontmatter: fm,
	}, nil
}

// Validate checks doc against the schema.
func (p *Piece) Validate(doc *markdown.Document) error {
	return markdown.Validate(doc, p.schema)
}

// Write validates doc and atomically replaces its file. Nothing is written
// when validation fails.
func (p *Piece) Write(doc *markdown.Document) error {
	if err := p.Validate(doc); err != nil {
		return fmt.Errorf("piece: write %s: %w", doc.FilePath, err)
	}
	data, err := markdown.Serialize(doc, p.schema)
	if err != nil {
		return fmt.Errorf("piece: write %s: %w", doc.FilePath, err)
	}
	if err := p.store.WriteFile(doc.FilePath, data); err != nil {
		return fmt.Errorf("piece: write %s: %w", doc.FilePath, err)
	}
	p.logger.Debug("piece: written", slog.String("path", doc.FilePath))
	return nil
}

// Delete removes the document file, which must exist. When db is non-nil the
// item row and cache entry are removed as well.
func (p *Piece) Delete(ctx context.Context, db index.Store, doc *markdown.Document) error {
	exists, err := p.store.Exists(doc.FilePath)
	if err != nil {
		return fmt.Errorf("piece: delete: %w", err)
	}
	if !exists {
		return fmt.Errorf("piece: %s: %w", doc.FilePath, apperr.ErrNotFound)
	}
	if err := p.store.Delete(doc.FilePath); err != nil {
		return fmt.Errorf("piece: delete %s: %w", doc.FilePath, err)
	}
	if db == nil {
		return nil
	}
	return p.forget(ctx, db, doc.FilePath)
}

// forget drops the index row and cache entry of a file path.
func (p *Piece) forget(ctx context.Context, db index.Store, filePath string) error {
	if err := db.DeleteItem(ctx, p.pieceType, filePath); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("piece: forget %s: %w", filePath, err)
	}
	if err := db.RemoveCache(ctx, p.pieceType, filePath); err != nil {
		return fmt.Errorf("piece: forget %s: %w", filePath, err)
	}
	return nil
}

// Rename retitles doc and moves it to the file name derived from the new
// title. Attachment paths are root-relative and keep working.
func (p *Piece) Rename(ctx context.Context, db index.Store, doc *markdown.Document, title string) (*markdown.Document, error) {
	slug := markdown.Slugify(title)
	if slug == "" {
		return nil, &apperr.ValidationError{Errors: []apperr.FieldError{{Field: TitleField, Message: "cannot be turned into a file name"}}}
	}
	name, _ := markdown.ParseFilename(doc.FilePath)
	out := doc.Clone()
	out.Slug = slug
	out.FilePath = markdown.FilePath(name.Dir, slug, p.pieceType)
	if _, ok := p.schema.Field(TitleField); ok {
		out.Frontmatter[TitleField] = title
	}

	if out.FilePath != doc.FilePath {
		exists, err := p.store.Exists(out.FilePath)
		if err != nil {
			return nil, fmt.Errorf("piece: rename: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("piece: %s: %w", out.FilePath, apperr.ErrAlreadyExists)
		}
	}
	if err := p.Write(out); err != nil {
		return nil, err
	}
	if out.FilePath != doc.FilePath {
		if err := p.store.Delete(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("piece: rename: remove %s: %w", doc.FilePath, err)
		}
		if db != nil {
			if err := p.forget(ctx, db, doc.FilePath); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
