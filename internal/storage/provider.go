// Package storage defines the uniform file abstraction the piece engines run on.
package storage

import (
	"io"
	"time"
)

// FileInfo describes a stored file or directory.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// ListOptions controls directory listings.
type ListOptions struct {
	// Deep lists the whole subtree instead of the direct children only.
	Deep bool
}

// Provider is the interface for file operations over a backing store.
// All paths are slash-separated and relative to the store root.
type Provider interface {
	// ReadFile returns the raw bytes of the file at path.
	ReadFile(path string) ([]byte, error)
	// WriteFile atomically replaces the file at path with data.
	WriteFile(path string, data []byte) error
	// WriteStream atomically replaces the file at path with everything read from r.
	WriteStream(path string, r io.Reader) error
	// OpenRead opens the file at path for streaming reads.
	OpenRead(path string) (io.ReadCloser, error)
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// Stat returns metadata for path.
	Stat(path string) (FileInfo, error)
	// GetFilesIn lists entries under dir. Directory entries carry a trailing "/".
	GetFilesIn(dir string, opts ListOptions) ([]string, error)
	// Delete removes the file at path.
	Delete(path string) error
	// MakeDirectory creates dir and any missing parents.
	MakeDirectory(dir string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
