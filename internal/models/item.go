// Package models defines the domain types for sitefeed.
package models

import "time"

// Item states.
const (
	StatePublic  = "public"
	StatePrivate = "private"
)

// Box capabilities declared in item frontmatter.
const (
	CapabilitySide    = "side"
	CapabilityContent = "content"
	CapabilityBoth    = "both"
)

// Brain is the denormalized, indexed projection of an item used for listings.
type Brain struct {
	Path        string    `json:"path"`
	ParentPath  string    `json:"parent_path"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Format      string    `json:"format"`
	State       string    `json:"state"`
	Owner       string    `json:"owner,omitempty"`
	Preview     string    `json:"preview,omitempty"`
	Tags        []string  `json:"tags"`
	Ancestors   []string  `json:"-"`
	ModTime     time.Time `json:"mtime"`
	PubDatetime time.Time `json:"pub_datetime,omitzero"`
}

// Item is a fully loaded resource: its brain plus everything read from the file.
type Item struct {
	Brain
	Body        string         `json:"body"`
	Description string         `json:"description,omitempty"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Capability  string         `json:"capability,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Checksum    string         `json:"checksum"`
	// File is the storage path relative to the site root.
	File string `json:"-"`
}

// IsPublic reports whether the item is published.
func (it *Item) IsPublic() bool {
	return it.State == "" || it.State == StatePublic
}

// ItemMetadata is a lightweight representation returned by storage listings.
type ItemMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
