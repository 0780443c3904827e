package site

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
	"github.com/starford/sitefeed/internal/tagcloud"
)

// Feed renders the view named view of container for viewer. params carries
// the request's query parameters.
func (s *Service) Feed(ctx context.Context, view, container string, viewer access.Viewer, params url.Values) (*feed.Page, error) {
	cfg, ok := s.views.Lookup(view)
	if !ok {
		return nil, fmt.Errorf("site: view %q: %w", view, apperr.ErrNotFound)
	}
	c, err := s.visibleContainer(ctx, container, viewer)
	if err != nil {
		return nil, err
	}
	if cfg.RequireEdit && !s.checker.CanEdit(viewer, c.Item) {
		return nil, fmt.Errorf("site: view %q of %s: %w", view, c.Item.Path, apperr.ErrForbidden)
	}

	root := c.Item.Path
	if cfg.SiteWide {
		root = resource.Root
	}
	var extra []feed.SpecOption
	if cfg.IgnoreInternal {
		ti, _ := s.types.Lookup(c.Item.Format)
		extra = append(extra, feed.WithExcludeNames(ti.InternalNames...))
	}
	spec, err := feed.ParseSpec(params, cfg, s.limits, extra...)
	if err != nil {
		return nil, fmt.Errorf("site: view %q: %w", view, err)
	}

	page, err := s.run(ctx, spec, root, viewer, cfg.Fields, c.Item.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Breadcrumb {
		page.Breadcrumb, err = s.breadcrumb(ctx, c.Item, viewer)
		if err != nil {
			return nil, err
		}
	}
	return page, nil
}

func (s *Service) run(ctx context.Context, spec feed.Spec, root string, viewer access.Viewer, fields []string, current string) (*feed.Page, error) {
	q, err := s.builder.Build(spec, root)
	if err != nil {
		return nil, fmt.Errorf("site: build feed: %w", err)
	}
	req := feed.RequestFor(spec, q, viewer, fields)
	req.Current = current
	if spec.SortBy() == feed.SortOrder {
		req.Order, _, err = s.sets.IDs(ctx, orderedset.Key{Container: root, Name: orderedset.NameChildren})
		if err != nil {
			return nil, fmt.Errorf("site: feed order: %w", err)
		}
	}
	return s.pipeline.Run(ctx, req)
}

// visibleContainer resolves container, reporting containers the viewer may
// not see as missing.
func (s *Service) visibleContainer(ctx context.Context, container string, viewer access.Viewer) (*Container, error) {
	c, err := s.Container(ctx, container)
	if err != nil {
		return nil, err
	}
	if !s.checker.CanView(viewer, c.Item) {
		return nil, fmt.Errorf("site: container %s: %w", c.Item.Path, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Service) breadcrumb(ctx context.Context, it *models.Item, viewer access.Viewer) ([]feed.Crumb, error) {
	trail := append(resource.Ancestors(it.Path), it.Path)
	if it.Path == resource.Root {
		trail = []string{resource.Root}
	}
	crumbs := make([]feed.Crumb, 0, len(trail))
	for _, p := range trail {
		title := resource.Name(p)
		if p == resource.Root {
			title = "Home"
		}
		anc, err := s.resolver.Resolve(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("site: breadcrumb %s: %w", p, err)
		}
		if anc != nil {
			if !s.checker.CanView(viewer, anc) {
				continue
			}
			if anc.Title != "" {
				title = anc.Title
			}
		}
		crumbs = append(crumbs, feed.Crumb{Name: resource.Name(p), Title: title, Link: s.links.Item(p)})
	}
	return crumbs, nil
}

// SearchTypes lists the type facet options of view over container.
func (s *Service) SearchTypes(ctx context.Context, view, container string, viewer access.Viewer) ([]feed.FacetOption, error) {
	cfg, ok := s.views.Lookup(view)
	if !ok {
		return nil, fmt.Errorf("site: view %q: %w", view, apperr.ErrNotFound)
	}
	c, err := s.visibleContainer(ctx, container, viewer)
	if err != nil {
		return nil, err
	}
	scope := feed.ScopeContainer
	if cfg.Recursive {
		scope = feed.ScopeSubtree
	}
	root := c.Item.Path
	if cfg.SiteWide {
		root = resource.Root
	}
	var excludes []string
	if cfg.IgnoreInternal {
		ti, _ := s.types.Lookup(c.Item.Format)
		excludes = ti.InternalNames
	}
	return s.builder.SearchTypes(ctx, scope, root, excludes)
}

// TagFeed lists the items tagged tag across the whole site.
func (s *Service) TagFeed(ctx context.Context, tag string, viewer access.Viewer, params url.Values) (*feed.Page, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("site: tag feed: empty tag: %w", apperr.ErrInvalidInput)
	}
	tagItem, err := s.resolver.Resolve(ctx, path.Join(s.tagsPath, tag))
	if err != nil {
		return nil, fmt.Errorf("site: tag %q: %w", tag, err)
	}
	if tagItem != nil && !s.checker.CanView(viewer, tagItem) {
		return nil, fmt.Errorf("site: tag %q: %w", tag, apperr.ErrNotFound)
	}

	cfg, ok := s.views.Lookup(feed.ViewTag)
	if !ok {
		return nil, fmt.Errorf("site: view %q: %w", feed.ViewTag, apperr.ErrNotFound)
	}
	spec, err := feed.ParseSpec(params, cfg, s.limits,
		feed.WithScope(feed.ScopeSubtree),
		feed.WithFacet(query.FieldTags, tag))
	if err != nil {
		return nil, fmt.Errorf("site: tag feed: %w", err)
	}
	return s.run(ctx, spec, resource.Root, viewer, cfg.Fields, "")
}

// TagCloud computes the site tag cloud with the configured options. Non-nil
// formats replace the configured format filter.
func (s *Service) TagCloud(ctx context.Context, viewer access.Viewer, formats []string) ([]tagcloud.Weight, error) {
	opts := s.cloud
	if formats != nil {
		opts.Formats = formats
	}
	return s.computeCloud(ctx, viewer, opts)
}

func (s *Service) computeCloud(ctx context.Context, viewer access.Viewer, opts tagcloud.Options) ([]tagcloud.Weight, error) {
	vocab, err := tagcloud.Vocabulary(ctx, s.db, s.builder.Schema(), s.tagsPath)
	if err != nil {
		return nil, err
	}
	corpus, err := s.tags.Corpus(opts.Formats)
	if err != nil {
		return nil, err
	}
	return s.tags.Compute(ctx, vocab, corpus, viewer, opts)
}

// Boxes composes container's side or content bar for viewer.
func (s *Service) Boxes(ctx context.Context, container string, viewer access.Viewer, capability boxes.Capability) ([]boxes.Box, error) {
	c, err := s.visibleContainer(ctx, container, viewer)
	if err != nil {
		return nil, err
	}
	out, err := s.boxes.Compose(ctx, c.Item.Path, viewer, capability)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(out), nil
}

// tagBoxEmpty reports a tag cloud box empty when its cloud has no tag the
// viewer can see. The box reads max_tags, show_count, random and formats
// from its frontmatter.
func (s *Service) tagBoxEmpty(ctx context.Context, box *models.Item, viewer access.Viewer) (bool, error) {
	opts := tagcloud.Options{
		MaxTags:   fmInt(box.Frontmatter, "max_tags"),
		ShowCount: fmBool(box.Frontmatter, "show_count"),
		Randomize: fmBool(box.Frontmatter, "random"),
		Formats:   fmStrings(box.Frontmatter, "formats"),
	}
	ws, err := s.computeCloud(ctx, viewer, opts)
	if err != nil {
		return false, err
	}
	return len(ws) == 0, nil
}

// newsBoxEmpty reports a news box empty when the viewer can see no news
// item below the box's container (frontmatter "container", default the
// site root).
func (s *Service) newsBoxEmpty(ctx context.Context, box *models.Item, viewer access.Viewer) (bool, error) {
	root := resource.Root
	if c := fmString(box.Frontmatter, "container"); c != "" {
		root = path.Clean("/" + c)
	}
	spec, err := feed.NewSpec(
		feed.WithScope(feed.ScopeSubtree),
		feed.WithFacet(query.FieldFormat, feed.FormatNews),
	)
	if err != nil {
		return false, err
	}
	q, err := s.builder.Build(spec, root)
	if err != nil {
		return false, err
	}
	items, err := s.pipeline.Visible(ctx, q, viewer)
	if err != nil {
		return false, err
	}
	return len(items) == 0, nil
}

func fmString(fm map[string]any, key string) string {
	if v, ok := fm[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func fmInt(fm map[string]any, key string) int {
	switch v := fm[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func fmBool(fm map[string]any, key string) bool {
	switch v := fm[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func fmStrings(fm map[string]any, key string) []string {
	switch v := fm[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return strings.Split(v, ",")
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
