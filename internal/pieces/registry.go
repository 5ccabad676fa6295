// Package pieces discovers the registered piece types of a storage root and
// drives bulk sync and prune across all of them.
package pieces

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/attachment"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/schema"
	"github.com/starford/luzzle/internal/storage"
)

// Root-relative locations of the Luzzle configuration directory.
const (
	ConfigDir  = ".luzzle"
	SchemaDir  = ConfigDir + "/schemas"
	LockFile   = ConfigDir + "/sync.lock"
	SchemaExt  = ".json"
	assetsPart = attachment.AssetsDir + "/"
)

// Registry is the fleet of piece types found under a storage root. Types and
// schemas are read from storage on every call, so schema edits apply without
// a restart.
type Registry struct {
	store     storage.Provider
	logger    *slog.Logger
	lockPath  string
	pieceOpts []piece.Option
}

// Option configures a Registry.
type Option func(*Registry)

// WithLockFile sets the OS path of the lock file guarding bulk item sync and
// prune across processes. Without it no lock is taken.
func WithLockFile(p string) Option {
	return func(r *Registry) { r.lockPath = p }
}

// WithPieceOptions passes options to every piece engine the registry builds.
func WithPieceOptions(opts ...piece.Option) Option {
	return func(r *Registry) { r.pieceOpts = append(r.pieceOpts, opts...) }
}

// New returns a Registry over store.
func New(store storage.Provider, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{store: store, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SchemaPath returns the root-relative schema file of a piece type.
func SchemaPath(pieceType string) string {
	return SchemaDir + "/" + pieceType + SchemaExt
}

// GetTypes returns the registered piece types: the base names of the schema
// files, sorted. A root without a schema directory has no types.
func (r *Registry) GetTypes() ([]string, error) {
	entries, err := r.store.GetFilesIn(SchemaDir, storage.ListOptions{})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pieces: list schemas: %w", err)
	}
	var types []string
	for _, e := range entries {
		base := path.Base(e)
		if strings.HasSuffix(e, "/") || !strings.HasSuffix(base, SchemaExt) || strings.HasPrefix(base, ".") {
			continue
		}
		types = append(types, strings.TrimSuffix(base, SchemaExt))
	}
	return types, nil
}

// Schema reads and parses the schema of a piece type. A schema without a
// title takes the type name from its file name.
func (r *Registry) Schema(pieceType string) (*schema.Schema, error) {
	data, err := r.store.ReadFile(SchemaPath(pieceType))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("pieces: type %s: %w", pieceType, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pieces: read schema %s: %w", pieceType, err)
	}
	s, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pieces: schema %s: %w", pieceType, err)
	}
	if s.Title == "" {
		s.Title = pieceType
	}
	return s, nil
}

// GetPiece builds the engine of a piece type from its current schema.
func (r *Registry) GetPiece(pieceType string) (*piece.Piece, error) {
	s, err := r.Schema(pieceType)
	if err != nil {
		return nil, err
	}
	return piece.New(pieceType, r.store, s, r.logger, r.pieceOpts...)
}

// PieceFor returns the engine of the registered type a document path encodes,
// or apperr.ErrNotFound.
func (r *Registry) PieceFor(filePath string) (*piece.Piece, error) {
	t, ok := r.pieceType(markdown.CleanPath(filePath))
	if !ok {
		return nil, fmt.Errorf("pieces: %s is not a piece of a registered type: %w", filePath, apperr.ErrNotFound)
	}
	return r.GetPiece(t)
}

// Files is a classified directory listing.
type Files struct {
	Pieces      []string `json:"pieces"`
	Assets      []string `json:"assets"`
	Types       []string `json:"types"`
	Directories []string `json:"directories"`
}

// GetFilesIn lists dir and classifies its entries. Attachments go to Assets;
// other hidden entries are ignored; Markdown files count as pieces only when
// their name encodes a registered type.
func (r *Registry) GetFilesIn(dir string, deep bool) (Files, error) {
	types, err := r.GetTypes()
	if err != nil {
		return Files{}, err
	}
	registered := make(map[string]struct{}, len(types))
	for _, t := range types {
		registered[t] = struct{}{}
	}

	entries, err := r.store.GetFilesIn(dir, storage.ListOptions{Deep: deep})
	if err != nil {
		return Files{}, fmt.Errorf("pieces: list %s: %w", dir, err)
	}
	var files Files
	seen := make(map[string]struct{})
	for _, e := range entries {
		isDir := strings.HasSuffix(e, "/")
		switch {
		case isAsset(e):
			if !isDir {
				files.Assets = append(files.Assets, e)
			}
		case isHidden(e):
		case isDir:
			files.Directories = append(files.Directories, e)
		default:
			name, ok := markdown.ParseFilename(e)
			if !ok {
				continue
			}
			if _, ok := registered[name.Type]; !ok {
				continue
			}
			files.Pieces = append(files.Pieces, e)
			if _, ok := seen[name.Type]; !ok {
				seen[name.Type] = struct{}{}
				files.Types = append(files.Types, name.Type)
			}
		}
	}
	return files, nil
}

func isAsset(p string) bool {
	p = strings.TrimPrefix(p, "/")
	return strings.HasPrefix(p, assetsPart) || strings.Contains(p, "/"+assetsPart)
}

func isHidden(p string) bool {
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// pieceType returns the registered type of a piece file path, if any.
func (r *Registry) pieceType(p string) (string, bool) {
	if isHidden(p) {
		return "", false
	}
	name, ok := markdown.ParseFilename(p)
	if !ok {
		return "", false
	}
	types, err := r.GetTypes()
	if err != nil {
		return "", false
	}
	for _, t := range types {
		if t == name.Type {
			return t, true
		}
	}
	return "", false
}
