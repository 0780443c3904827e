package feed

import (
	"fmt"
	"slices"

	"github.com/starford/sitefeed/internal/apperr"
)

// ViewConfig configures one feed view: the defaults a request starts from
// and the shape of the listing.
type ViewConfig struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	BatchSize int    `json:"batch_size"`
	SortBy    string `json:"sort_by"`
	Reverse   bool   `json:"reverse"`
	// Recursive lists the whole subtree instead of direct children.
	Recursive bool `json:"recursive"`
	// SiteWide lists from the site root whatever container was requested.
	SiteWide bool `json:"site_wide"`
	// IgnoreInternal hides the container type's internal children.
	IgnoreInternal bool `json:"ignore_internal"`
	// Searchable honours search_type and search_text.
	Searchable bool `json:"searchable"`
	// RequireEdit restricts the view to viewers who may edit the container.
	RequireEdit bool `json:"require_edit"`
	// Breadcrumb adds the container's ancestor trail to the page.
	Breadcrumb bool     `json:"breadcrumb"`
	Fields     []string `json:"fields"`
}

// View names.
const (
	ViewComposite = "composite-view"
	ViewDetails   = "details-view"
	ViewNews      = "news-view"
	ViewTag       = "tag-view"
	ViewNavigator = "browse-navigator"
)

// ContentFields is the default projection of listing views.
var ContentFields = []string{
	FieldPubDatetime, FieldTitle, FieldLongTitle, FieldLink, FieldIsImage,
	FieldPreview, FieldTags, FieldState, FieldImage, FieldCSS, FieldType, FieldAbsPath,
}

// Registry is a statically built, immutable set of views.
type Registry struct {
	views map[string]ViewConfig
	order []string
}

// NewRegistry builds a registry. Names must be unique and non-empty, and
// every listed field must be a projection field.
func NewRegistry(views ...ViewConfig) (*Registry, error) {
	r := &Registry{views: make(map[string]ViewConfig, len(views))}
	for _, v := range views {
		if v.Name == "" {
			return nil, fmt.Errorf("feed: view without name: %w", apperr.ErrInvalidInput)
		}
		if _, dup := r.views[v.Name]; dup {
			return nil, fmt.Errorf("feed: duplicate view %q: %w", v.Name, apperr.ErrAlreadyExists)
		}
		if v.BatchSize <= 0 {
			return nil, fmt.Errorf("feed: view %q: batch size must be positive: %w", v.Name, apperr.ErrInvalidInput)
		}
		for _, f := range v.Fields {
			if !KnownField(f) {
				return nil, fmt.Errorf("feed: view %q: unknown field %q: %w", v.Name, f, apperr.ErrInvalidInput)
			}
		}
		v.Fields = slices.Clone(v.Fields)
		r.views[v.Name] = v
		r.order = append(r.order, v.Name)
	}
	return r, nil
}

// Lookup returns a copy of the named view.
func (r *Registry) Lookup(name string) (ViewConfig, bool) {
	v, ok := r.views[name]
	if !ok {
		return ViewConfig{}, false
	}
	v.Fields = slices.Clone(v.Fields)
	return v, true
}

// List returns copies of all views in registration order.
func (r *Registry) List() []ViewConfig {
	out := make([]ViewConfig, 0, len(r.order))
	for _, name := range r.order {
		v, _ := r.Lookup(name)
		out = append(out, v)
	}
	return out
}

// DefaultViews returns the built-in views.
func DefaultViews() *Registry {
	r, err := NewRegistry(
		ViewConfig{
			Name: ViewComposite, Title: "Composite view",
			BatchSize: 25, SortBy: FieldTitle,
			Searchable: true, Fields: ContentFields,
		},
		ViewConfig{
			Name: ViewDetails, Title: "Details view",
			BatchSize: 10, SortBy: FieldModTime, Reverse: true,
			Searchable: true, IgnoreInternal: true, Fields: ContentFields,
		},
		ViewConfig{
			Name: ViewNews, Title: "News view",
			BatchSize: 5, SortBy: FieldPubDatetime, Reverse: true,
			Recursive: true, IgnoreInternal: true, Fields: ContentFields,
		},
		ViewConfig{
			Name: ViewTag, Title: "Tag view",
			BatchSize: 25, SortBy: FieldPubDatetime, Reverse: true,
			Recursive: true, SiteWide: true, Fields: ContentFields,
		},
		ViewConfig{
			Name: ViewNavigator, Title: "Browse navigator",
			BatchSize: 25, SortBy: FieldModTime,
			IgnoreInternal: true, RequireEdit: true, Breadcrumb: true,
			Fields: []string{FieldTitle, FieldLink, FieldFormat, FieldType, FieldModTime, FieldState, FieldAbsPath},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}
