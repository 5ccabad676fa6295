package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/luzzle/internal/storage"
)

// Target identifies where an attachment belongs.
type Target struct {
	Type  string
	Field string
	Slug  string
	// DocPath is the host document path; its extension is the last fallback.
	DocPath string
}

// Materializer writes attachment content under the storage root.
type Materializer struct {
	store    storage.Provider
	resolver *Resolver
	logger   *slog.Logger
}

// NewMaterializer returns a Materializer writing through store.
func NewMaterializer(store storage.Provider, resolver *Resolver, logger *slog.Logger) *Materializer {
	if resolver == nil {
		resolver = NewResolver()
	}
	return &Materializer{store: store, resolver: resolver, logger: logger}
}

// Path returns the root-relative destination of an attachment.
func Path(t Target, token, ext string) string {
	return path.Join(AssetsDir, t.Type, t.Field, t.Slug+"-"+token+ext)
}

// Save resolves input and returns the root-relative asset path that should
// be stored in frontmatter. Existing asset paths are returned unchanged.
func (m *Materializer) Save(ctx context.Context, t Target, input any) (string, error) {
	v, err := m.resolver.MakeValue(ctx, t.Field, input)
	if err != nil {
		return "", err
	}
	if v.Path != "" {
		return v.Path, nil
	}
	defer v.Reader.Close()

	det, err := Detect(v.Reader)
	if err != nil {
		return "", fmt.Errorf("attachment: detect: %w", err)
	}
	ext := det.Ext
	if ext == "" {
		ext = strings.ToLower(path.Ext(v.Name))
	}
	if ext == "" {
		ext = path.Ext(t.DocPath)
	}

	dest := Path(t, token(), ext)
	if err := m.store.WriteStream(dest, det.Reader); err != nil {
		return "", fmt.Errorf("attachment: write %s: %w", dest, err)
	}
	m.logger.Debug("attachment: saved",
		slog.String("path", dest), slog.String("mime", det.MIME))
	return dest, nil
}

// Remove deletes an attachment file.
func (m *Materializer) Remove(p string) error {
	if !IsAssetPath(p) {
		return fmt.Errorf("attachment: %s is not an asset path", p)
	}
	if err := m.store.Delete(strings.TrimPrefix(p, "/")); err != nil {
		return fmt.Errorf("attachment: remove %s: %w", p, err)
	}
	return nil
}

func token() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}
