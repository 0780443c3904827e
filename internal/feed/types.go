package feed

import (
	"maps"
	"slices"
)

// Capability is a projection feature an item type declares support for.
type Capability uint8

// Item type capabilities.
const (
	// CapTagged types carry tags, a publication date, a preview and a thumbnail.
	CapTagged Capability = 1 << iota
	// CapImage types are images themselves.
	CapImage
	// CapPreview types expose their description as preview text.
	CapPreview
	// CapContainer types hold children.
	CapContainer
)

// Has reports whether c includes all of want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// TypeInfo describes one item format.
type TypeInfo struct {
	Title string
	Caps  Capability
	// InternalNames are children hidden from generic listings.
	InternalNames []string
	// ChildFormats restricts the formats creatable inside a container.
	// Empty means any format.
	ChildFormats []string
}

// TypeRegistry maps formats to their TypeInfo. It is immutable.
type TypeRegistry struct {
	types map[string]TypeInfo
}

// NewTypeRegistry copies types into a registry.
func NewTypeRegistry(types map[string]TypeInfo) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]TypeInfo, len(types))}
	for f, ti := range types {
		ti.InternalNames = slices.Clone(ti.InternalNames)
		ti.ChildFormats = slices.Clone(ti.ChildFormats)
		r.types[f] = ti
	}
	return r
}

// Lookup returns the TypeInfo of format. Unknown formats get a TypeInfo
// titled with the format itself and no capabilities.
func (r *TypeRegistry) Lookup(format string) (TypeInfo, bool) {
	ti, ok := r.types[format]
	if !ok {
		return TypeInfo{Title: format}, false
	}
	ti.InternalNames = slices.Clone(ti.InternalNames)
	ti.ChildFormats = slices.Clone(ti.ChildFormats)
	return ti, true
}

// Title returns the display title of format.
func (r *TypeRegistry) Title(format string) string {
	ti, _ := r.Lookup(format)
	return ti.Title
}

// Caps returns the capability set of format.
func (r *TypeRegistry) Caps(format string) Capability {
	return r.types[format].Caps
}

// Formats returns the registered formats sorted.
func (r *TypeRegistry) Formats() []string {
	return slices.Sorted(maps.Keys(r.types))
}

// Built-in formats.
const (
	FormatFolder  = "folder"
	FormatSection = "section"
	FormatWebPage = "webpage"
	FormatNews    = "news"
	FormatImage   = "image"
	FormatPhoto   = "photo"
	FormatFile    = "file"
	FormatTag     = "tag"
	FormatBoxHTML = "box-html"
	FormatBoxTags = "box-tags"
	FormatBoxNews = "box-news"
)

// DefaultTypes returns the registry of built-in formats. Image and photo
// share a display title, so facet discovery offers them as one option.
func DefaultTypes() *TypeRegistry {
	return NewTypeRegistry(map[string]TypeInfo{
		FormatFolder: {Title: "Folder", Caps: CapContainer},
		FormatSection: {
			Title:         "Section",
			Caps:          CapContainer | CapTagged,
			InternalNames: []string{"boxes"},
			ChildFormats:  []string{FormatSection, FormatWebPage, FormatNews, FormatImage, FormatPhoto, FormatFile},
		},
		FormatWebPage: {Title: "Web Page", Caps: CapTagged | CapPreview},
		FormatNews:    {Title: "News", Caps: CapTagged | CapPreview},
		FormatImage:   {Title: "Image", Caps: CapImage},
		FormatPhoto:   {Title: "Image", Caps: CapImage},
		FormatFile:    {Title: "File", Caps: CapPreview},
		FormatTag:     {Title: "Tag", Caps: CapPreview},
		FormatBoxHTML: {Title: "HTML Box", Caps: CapPreview},
		FormatBoxTags: {Title: "Tag Cloud Box"},
		FormatBoxNews: {Title: "News Box"},
	})
}
