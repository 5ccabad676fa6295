// Package models defines the domain types shared by the Luzzle engines.
package models

import "time"

// Action is the outcome classification of one item in a bulk operation.
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionPruned  Action = "pruned"
)

// Result is one element of a sync or prune stream. Err is set when the item
// failed; Action is then empty.
type Result struct {
	File   string `json:"file"`
	Action Action `json:"action,omitempty"`
	Err    error  `json:"-"`
}

// Failed reports whether the item produced an error.
func (r Result) Failed() bool { return r.Err != nil }

// Message returns the error text of a failed result.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// PieceType is a row of the piece-type registry.
type PieceType struct {
	Name        string     `json:"name"`
	Schema      string     `json:"schema"`
	DateAdded   time.Time  `json:"date_added"`
	DateUpdated *time.Time `json:"date_updated,omitempty"`
}

// LastChanged returns the later of DateUpdated and DateAdded.
func (p PieceType) LastChanged() time.Time {
	return latest(p.DateAdded, p.DateUpdated)
}

// Item is a database projection of one piece document.
type Item struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	FilePath        string         `json:"file_path"`
	Slug            string         `json:"slug"`
	Frontmatter     map[string]any `json:"frontmatter"`
	FrontmatterJSON string         `json:"-"`
	Note            string         `json:"note,omitempty"`
	ContentHash     string         `json:"content_hash"`
	DateAdded       time.Time      `json:"date_added"`
	DateUpdated     *time.Time     `json:"date_updated,omitempty"`
	// Values is the per-field database representation; arrays hold one entry
	// per element.
	Values map[string][]any `json:"-"`
}

// CacheEntry records the last synced state of a document.
type CacheEntry struct {
	Type        string     `json:"type"`
	FilePath    string     `json:"file_path"`
	ContentHash string     `json:"content_hash"`
	DateAdded   time.Time  `json:"date_added"`
	DateUpdated *time.Time `json:"date_updated,omitempty"`
}

// LastChanged returns the later of DateUpdated and DateAdded.
func (c CacheEntry) LastChanged() time.Time {
	return latest(c.DateAdded, c.DateUpdated)
}

func latest(added time.Time, updated *time.Time) time.Time {
	if updated != nil && updated.After(added) {
		return *updated
	}
	return added
}
