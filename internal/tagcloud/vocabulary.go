package tagcloud

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
)

// Source provides the raw material of the vocabulary.
type Source interface {
	TagNames(ctx context.Context) ([]string, error)
	Search(ctx context.Context, q query.Node) ([]models.Brain, error)
}

// Vocabulary returns the tag catalog sorted by id: every tag used by an
// item, plus the tag items stored under tagsPath, which supply titles and
// visibility.
func Vocabulary(ctx context.Context, src Source, schema query.Schema, tagsPath string) ([]TagBrain, error) {
	names, err := src.TagNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("tagcloud: vocabulary: %w", err)
	}

	parent, err := schema.Phrase(query.FieldParentPath, normalize(tagsPath))
	if err != nil {
		return nil, err
	}
	isTag, err := schema.Phrase(query.FieldFormat, feed.FormatTag)
	if err != nil {
		return nil, err
	}
	q, err := query.And(parent, isTag)
	if err != nil {
		return nil, err
	}
	brains, err := src.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("tagcloud: vocabulary: %w", err)
	}

	byID := make(map[string]TagBrain, len(names)+len(brains))
	for _, n := range names {
		byID[n] = TagBrain{ID: n, Title: n}
	}
	for _, b := range brains {
		byID[b.Name] = TagBrain{ID: b.Name, Title: feed.DisplayTitle(&b), Path: b.Path}
	}

	out := make([]TagBrain, 0, len(byID))
	for _, tb := range byID {
		out = append(out, tb)
	}
	slices.SortFunc(out, func(a, b TagBrain) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func normalize(p string) string {
	if p == "" {
		return resource.Root
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
