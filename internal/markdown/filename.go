package markdown

import (
	"path"
	"strings"
	"unicode"
)

// Ext is the extension of every piece file.
const Ext = ".md"

// Layout names the on-disk naming convention of a piece file.
type Layout string

const (
	// LayoutTypeSuffix is <dir>/<slug>.<type>.md, the form new files are written in.
	LayoutTypeSuffix Layout = "slug.type.md"
	// LayoutTypeDir is <type>/<slug>.md, accepted on read.
	LayoutTypeDir Layout = "type/slug.md"
)

// FileName is the identity encoded in a piece file path.
type FileName struct {
	Dir    string
	Slug   string
	Type   string
	Layout Layout
}

// CleanPath normalizes a storage path: slash separated, no leading slash.
func CleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// ParseFilename extracts type and slug from either naming convention.
// The suffix form wins when both could apply.
func ParseFilename(p string) (FileName, bool) {
	p = CleanPath(p)
	base := path.Base(p)
	if !strings.HasSuffix(base, Ext) || strings.HasPrefix(base, ".") {
		return FileName{}, false
	}
	stem := strings.TrimSuffix(base, Ext)
	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}

	if i := strings.LastIndex(stem, "."); i > 0 && i < len(stem)-1 {
		return FileName{Dir: dir, Slug: stem[:i], Type: stem[i+1:], Layout: LayoutTypeSuffix}, true
	}
	if dir != "" && stem != "" {
		return FileName{Dir: dir, Slug: stem, Type: path.Base(dir), Layout: LayoutTypeDir}, true
	}
	return FileName{}, false
}

// FilePath builds the canonical path of a piece file.
func FilePath(dir, slug, pieceType string) string {
	return CleanPath(path.Join(dir, slug+"."+pieceType+Ext))
}

// Slugify turns a title into a lowercase, dash-separated file slug.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
