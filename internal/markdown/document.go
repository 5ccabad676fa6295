// Package markdown models piece documents: Markdown files with a YAML
// frontmatter header.
package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
)

// Document is a parsed piece file.
type Document struct {
	FilePath    string         `json:"file_path"`
	Type        string         `json:"type"`
	Slug        string         `json:"slug"`
	Note        string         `json:"note,omitempty"`
	Frontmatter map[string]any `json:"frontmatter"`
}

// Clone returns a deep copy so field operations never mutate their input.
func (d *Document) Clone() *Document {
	c := *d
	c.Frontmatter = make(map[string]any, len(d.Frontmatter))
	for k, v := range d.Frontmatter {
		c.Frontmatter[k] = cloneValue(v)
	}
	return &c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := maps.Clone(t)
		for k, e := range out {
			out[k] = cloneValue(e)
		}
		return out
	}
	return v
}

// Hash returns the hex-encoded SHA-256 digest of raw file content.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
