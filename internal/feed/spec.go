package feed

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/query"
)

// Scope selects between a container's direct children and its subtree.
type Scope int

// Scopes.
const (
	ScopeContainer Scope = iota
	ScopeSubtree
)

func (s Scope) String() string {
	if s == ScopeSubtree {
		return "subtree"
	}
	return "container"
}

// SortOrder sorts by a container's explicit children order. Ordered items
// come first, the rest follow by title; reverse inverts the whole sequence.
const SortOrder = "order"

// sortFields are the fields a feed may be sorted by.
var sortFields = []string{
	query.FieldTitle, query.FieldName, query.FieldAbsPath, query.FieldFormat,
	query.FieldModTime, query.FieldPubDatetime, SortOrder,
}

// Request parameter keys.
const (
	ParamBatchSize  = "batch_size"
	ParamSortBy     = "sort_by"
	ParamReverse    = "reverse"
	ParamSearchType = "search_type"
	ParamSearchText = "search_text"
	ParamOffset     = "offset"
	ParamBStart     = "b_start"
	ParamFormat     = "format"
)

// Spec is the immutable configuration of one feed request.
type Spec struct {
	scope        Scope
	batchSize    int
	sortBy       string
	reverse      bool
	facets       map[string][]string
	freeText     string
	excludeNames []string
	offset       int
}

// SpecOption configures a Spec.
type SpecOption func(*Spec)

// WithScope sets the containment scope.
func WithScope(s Scope) SpecOption {
	return func(sp *Spec) { sp.scope = s }
}

// WithBatchSize sets the page size.
func WithBatchSize(n int) SpecOption {
	return func(sp *Spec) { sp.batchSize = n }
}

// WithSort sets the sort field and direction.
func WithSort(field string, reverse bool) SpecOption {
	return func(sp *Spec) {
		sp.sortBy = field
		sp.reverse = reverse
	}
}

// WithFacet adds values to the facet on field. Values within one facet are
// alternatives.
func WithFacet(field string, values ...string) SpecOption {
	return func(sp *Spec) {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				sp.facets[field] = append(sp.facets[field], v)
			}
		}
	}
}

// WithFreeText sets the free-text search term.
func WithFreeText(term string) SpecOption {
	return func(sp *Spec) { sp.freeText = strings.TrimSpace(term) }
}

// WithExcludeNames hides the named children of the scope root.
func WithExcludeNames(names ...string) SpecOption {
	return func(sp *Spec) { sp.excludeNames = append(sp.excludeNames, names...) }
}

// WithOffset sets the index of the first item of the page.
func WithOffset(n int) SpecOption {
	return func(sp *Spec) { sp.offset = n }
}

// NewSpec builds a Spec. Defaults: container scope, 25 items sorted by title.
func NewSpec(opts ...SpecOption) (Spec, error) {
	sp := Spec{
		batchSize: 25,
		sortBy:    query.FieldTitle,
		facets:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(&sp)
	}
	if sp.batchSize <= 0 {
		return Spec{}, fmt.Errorf("feed: batch size %d: %w", sp.batchSize, apperr.ErrInvalidInput)
	}
	if !slices.Contains(sortFields, sp.sortBy) {
		return Spec{}, &query.UnknownFieldError{Field: sp.sortBy}
	}
	if sp.offset < 0 {
		sp.offset = 0
	}
	for f, vs := range sp.facets {
		vs = slices.Clone(vs)
		slices.Sort(vs)
		sp.facets[f] = slices.Compact(vs)
	}
	slices.Sort(sp.excludeNames)
	sp.excludeNames = slices.Compact(sp.excludeNames)
	return sp, nil
}

// Scope returns whether the feed lists direct children or the whole subtree.
func (s Spec) Scope() Scope { return s.scope }

// BatchSize returns the page size, always positive.
func (s Spec) BatchSize() int { return s.batchSize }

// SortBy returns the sort field; empty sorts by title.
func (s Spec) SortBy() string { return s.sortBy }

// Reverse reports whether the sort is descending.
func (s Spec) Reverse() bool { return s.reverse }

// FreeText returns the free-text term.
func (s Spec) FreeText() string { return s.freeText }

// Offset returns the index of the first item of the page.
func (s Spec) Offset() int { return s.offset }

// HasFreeText reports whether a free-text term is set.
func (s Spec) HasFreeText() bool { return s.freeText != "" }

// Facets returns a copy of the facet filters.
func (s Spec) Facets() map[string][]string {
	out := make(map[string][]string, len(s.facets))
	for f, vs := range s.facets {
		out[f] = slices.Clone(vs)
	}
	return out
}

// FacetFields returns the facet field names in sorted order.
func (s Spec) FacetFields() []string {
	return slices.Sorted(maps.Keys(s.facets))
}

// ExcludeNames returns a sorted copy of the excluded child names.
func (s Spec) ExcludeNames() []string { return slices.Clone(s.excludeNames) }

// Limits bounds request-controlled sizes.
type Limits struct {
	DefaultBatchSize int
	MaxBatchSize     int
}

// ParseSpec builds a Spec from request parameters merged over the view
// defaults. Malformed integers and booleans fall back to the defaults and
// the batch size is clamped to [1, MaxBatchSize]. extra options are applied
// last, e.g. to pass the container's internal names.
func ParseSpec(values url.Values, view ViewConfig, limits Limits, extra ...SpecOption) (Spec, error) {
	batch := view.BatchSize
	if batch <= 0 {
		batch = limits.DefaultBatchSize
	}
	if n, err := strconv.Atoi(values.Get(ParamBatchSize)); err == nil {
		batch = n
	}
	batch = max(batch, 1)
	if limits.MaxBatchSize > 0 {
		batch = min(batch, limits.MaxBatchSize)
	}

	sortBy := view.SortBy
	if s := strings.TrimSpace(values.Get(ParamSortBy)); s != "" {
		sortBy = s
	}
	reverse := view.Reverse
	if b, err := strconv.ParseBool(values.Get(ParamReverse)); err == nil {
		reverse = b
	}

	offset := 0
	for _, key := range []string{ParamOffset, ParamBStart} {
		if n, err := strconv.Atoi(values.Get(key)); err == nil {
			offset = n
			break
		}
	}

	scope := ScopeContainer
	if view.Recursive {
		scope = ScopeSubtree
	}

	opts := []SpecOption{
		WithScope(scope),
		WithBatchSize(batch),
		WithSort(sortBy, reverse),
		WithOffset(offset),
		WithFacet(query.FieldFormat, values[ParamFormat]...),
	}
	if view.Searchable {
		if st := values.Get(ParamSearchType); st != "" {
			opts = append(opts, WithFacet(query.FieldFormat, strings.Split(st, ",")...))
		}
		opts = append(opts, WithFreeText(values.Get(ParamSearchText)))
	}
	opts = append(opts, extra...)
	return NewSpec(opts...)
}
