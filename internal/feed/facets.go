package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// FacetOption is one selectable value of the type facet. Name joins the
// formats sharing Title with commas, ready to be sent back as search_type.
type FacetOption struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// SearchTypes lists the type facet options for the container root: the
// distinct formats found by the containment query, grouped by display
// title and sorted case-insensitively by title.
func (b *Builder) SearchTypes(ctx context.Context, scope Scope, root string, excludes []string) ([]FacetOption, error) {
	q, err := b.Containment(scope, root, excludes)
	if err != nil {
		return nil, err
	}
	brains, err := b.backend.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("feed: search types: %w", backendErr(err))
	}

	byTitle := make(map[string][]string)
	for _, br := range brains {
		title := b.types.Title(br.Format)
		if !slices.Contains(byTitle[title], br.Format) {
			byTitle[title] = append(byTitle[title], br.Format)
		}
	}

	opts := make([]FacetOption, 0, len(byTitle))
	for title, formats := range byTitle {
		slices.Sort(formats)
		opts = append(opts, FacetOption{Name: strings.Join(formats, ","), Title: title})
	}
	slices.SortFunc(opts, func(a, b FacetOption) int {
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return opts, nil
}
