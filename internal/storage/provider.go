// Package storage writes exported Markdown files under a directory root.
package storage

import "time"

// FileInfo describes one Markdown file under the root.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for export file operations. All paths are
// relative to the provider's root.
type Provider interface {
	// List returns every .md file under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
