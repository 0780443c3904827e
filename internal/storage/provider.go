// Package storage defines the site file-system abstraction.
package storage

import "github.com/starford/sitefeed/internal/models"

// Provider is the interface for site file operations. All paths are relative
// to the site root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.ItemMetadata, error)
	// Stat returns metadata for a single file.
	Stat(path string) (models.ItemMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
