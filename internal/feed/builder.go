// Package feed turns a container and request parameters into a paginated,
// access-filtered, projected listing of items.
package feed

import (
	"context"
	"strings"

	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
)

// ThemePath is the reserved subtree holding site presentation resources.
const ThemePath = "/theme"

// Backend evaluates queries against the catalog.
type Backend interface {
	Search(ctx context.Context, q query.Node) ([]models.Brain, error)
	Count(ctx context.Context, q query.Node) (int, error)
}

// Builder composes feed queries. Query construction does not depend on the
// viewer, so equal specs and roots always produce equal trees.
type Builder struct {
	schema  query.Schema
	backend Backend
	types   *TypeRegistry
}

// NewBuilder creates a Builder. backend is only used by SearchTypes.
func NewBuilder(schema query.Schema, backend Backend, types *TypeRegistry) *Builder {
	return &Builder{schema: schema, backend: backend, types: types}
}

// Schema returns the schema queries are validated against.
func (b *Builder) Schema() query.Schema { return b.schema }

// Build composes the query for spec rooted at the container root.
func (b *Builder) Build(spec Spec, root string) (query.Node, error) {
	preds, err := b.containment(spec.Scope(), root, spec.ExcludeNames())
	if err != nil {
		return query.Node{}, err
	}

	for _, field := range spec.FacetFields() {
		values := spec.facets[field]
		if len(values) == 0 {
			continue
		}
		alts := make([]query.Node, 0, len(values))
		for _, v := range values {
			p, err := b.schema.Phrase(field, v)
			if err != nil {
				return query.Node{}, err
			}
			alts = append(alts, p)
		}
		facet, err := query.AnyOf(alts...)
		if err != nil {
			return query.Node{}, err
		}
		preds = append(preds, facet)
	}

	if spec.HasFreeText() {
		text, err := b.freeText(spec.FreeText())
		if err != nil {
			return query.Node{}, err
		}
		preds = append(preds, text)
	}

	return query.AllOf(preds...)
}

// containment returns the scope predicate, the theme exclusion at the site
// root and the exclusion of internal names.
func (b *Builder) containment(scope Scope, root string, excludes []string) ([]query.Node, error) {
	root = normalizeRoot(root)
	var (
		base query.Node
		err  error
	)
	if scope == ScopeSubtree {
		base, err = b.schema.Subtree(root, false)
	} else {
		base, err = b.schema.Phrase(query.FieldParentPath, root)
	}
	if err != nil {
		return nil, err
	}
	preds := []query.Node{base}

	if root == resource.Root {
		theme, err := b.schema.Subtree(ThemePath, true)
		if err != nil {
			return nil, err
		}
		preds = append(preds, query.Not(theme))
	}

	if len(excludes) > 0 {
		names := make([]query.Node, 0, len(excludes))
		for _, name := range excludes {
			p, err := b.schema.Phrase(query.FieldAbsPath, resource.Join(root, name))
			if err != nil {
				return nil, err
			}
			names = append(names, p)
		}
		excluded, err := query.AnyOf(names...)
		if err != nil {
			return nil, err
		}
		preds = append(preds, query.Not(excluded))
	}
	return preds, nil
}

func (b *Builder) freeText(term string) (query.Node, error) {
	title, err := b.schema.Text(query.FieldTitle, term)
	if err != nil {
		return query.Node{}, err
	}
	body, err := b.schema.Text(query.FieldText, term)
	if err != nil {
		return query.Node{}, err
	}
	name, err := b.schema.Phrase(query.FieldName, term)
	if err != nil {
		return query.Node{}, err
	}
	return query.Or(title, body, name)
}

// Containment builds the scope query alone, as used by facet discovery.
func (b *Builder) Containment(scope Scope, root string, excludes []string) (query.Node, error) {
	preds, err := b.containment(scope, root, excludes)
	if err != nil {
		return query.Node{}, err
	}
	return query.AllOf(preds...)
}

// normalizeRoot cleans a container path.
func normalizeRoot(root string) string {
	if root == "" {
		return resource.Root
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if len(root) > 1 {
		root = strings.TrimSuffix(root, "/")
	}
	return root
}
