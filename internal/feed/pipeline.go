package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
)

// Resolver loads the full item behind a brain. Absent items resolve to nil.
type Resolver interface {
	Resolve(ctx context.Context, abs string) (*models.Item, error)
}

// Request is one execution of a feed query.
type Request struct {
	Query     query.Node
	Viewer    access.Viewer
	SortBy    string
	Reverse   bool
	BatchSize int
	Offset    int
	// Order is the explicit sequence used when SortBy is "order".
	Order []string
	// Fields selects the projected fields.
	Fields []string
	// Current is the path of the page being displayed, marked active.
	Current string
}

// RequestFor returns the Request running spec's query.
func RequestFor(spec Spec, q query.Node, viewer access.Viewer, fields []string) Request {
	return Request{
		Query:     q,
		Viewer:    viewer,
		SortBy:    spec.SortBy(),
		Reverse:   spec.Reverse(),
		BatchSize: spec.BatchSize(),
		Offset:    spec.Offset(),
		Fields:    fields,
	}
}

// Crumb is one ancestor in a breadcrumb trail.
type Crumb struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Page is one batch of a feed.
type Page struct {
	Items []Projection `json:"items"`
	// Total counts the items the viewer may see, across all batches.
	Total      int     `json:"total"`
	Offset     int     `json:"offset"`
	BatchSize  int     `json:"batch_size"`
	Breadcrumb []Crumb `json:"breadcrumb,omitempty"`
}

// HasNext reports whether a batch follows this one.
func (p *Page) HasNext() bool { return p.Offset < p.Total-p.BatchSize }

// Pipeline executes feed queries: search, resolve, access filter, sort,
// paginate, project.
type Pipeline struct {
	backend  Backend
	resolver Resolver
	checker  access.Checker
	types    *TypeRegistry
	links    Linker
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(backend Backend, resolver Resolver, checker access.Checker, types *TypeRegistry, links Linker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		backend:  backend,
		resolver: resolver,
		checker:  checker,
		types:    types,
		links:    links,
		logger:   logger,
	}
}

// Run executes req. An offset past the end yields an empty page with the
// correct total.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Page, error) {
	items, err := p.Visible(ctx, req.Query, req.Viewer)
	if err != nil {
		return nil, err
	}

	if err := sortItems(items, req.SortBy, req.Reverse, req.Order); err != nil {
		return nil, err
	}

	batch := max(req.BatchSize, 1)
	offset := max(req.Offset, 0)
	page := &Page{Items: []Projection{}, Total: len(items), Offset: offset, BatchSize: batch}
	if offset >= len(items) {
		return page, nil
	}
	// offset < len(items), so this cannot overflow for any batch size.
	end := offset + min(batch, len(items)-offset)

	env := projectEnv{links: p.links, types: p.types, current: req.Current}
	for _, it := range items[offset:end] {
		page.Items = append(page.Items, project(env, req.Fields, it))
	}
	return page, nil
}

// Visible returns the resolved items matching q that viewer may see, in
// backend order. Candidates whose resource is gone are skipped.
func (p *Pipeline) Visible(ctx context.Context, q query.Node, viewer access.Viewer) ([]*models.Item, error) {
	brains, err := p.backend.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("feed: search: %w", backendErr(err))
	}

	items := make([]*models.Item, 0, len(brains))
	for _, b := range brains {
		it, err := p.resolver.Resolve(ctx, b.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("feed: resolve failed, skipping",
				slog.String("path", b.Path), slog.String("error", err.Error()))
			continue
		}
		if it == nil {
			p.logger.Warn("feed: dangling catalog entry, skipping", slog.String("path", b.Path))
			continue
		}
		if !p.checker.CanView(viewer, it) {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// backendErr classifies a search failure. Query construction errors and
// cancellation pass through; everything else is an unavailable backend.
func backendErr(err error) error {
	var empty *query.EmptyCompositionError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrBackendUnavailable),
		errors.Is(err, context.Canceled),
		errors.As(err, &empty):
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrBackendUnavailable, err)
}

func sortItems(items []*models.Item, field string, reverse bool, order []string) error {
	if field == "" {
		field = query.FieldTitle
	}
	if field == SortOrder {
		sortByOrder(items, reverse, order)
		return nil
	}
	fieldCmp, err := comparator(field)
	if err != nil {
		return err
	}
	slices.SortStableFunc(items, func(a, b *models.Item) int {
		c := fieldCmp(&a.Brain, &b.Brain)
		if reverse {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return nil
}

// sortByOrder puts items listed in order first, in that sequence, followed
// by the others by title. reverse inverts the result; ties stay by path.
func sortByOrder(items []*models.Item, reverse bool, order []string) {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	slices.SortStableFunc(items, func(a, b *models.Item) int {
		pa, oka := pos[a.Path]
		pb, okb := pos[b.Path]
		var c int
		switch {
		case oka && okb:
			c = cmp.Compare(pa, pb)
		case oka:
			c = -1
		case okb:
			c = 1
		default:
			c = compareTitle(&a.Brain, &b.Brain)
		}
		if reverse {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
}

func compareTitle(a, b *models.Brain) int {
	return strings.Compare(strings.ToLower(DisplayTitle(a)), strings.ToLower(DisplayTitle(b)))
}

func comparator(field string) (func(a, b *models.Brain) int, error) {
	switch field {
	case query.FieldTitle:
		return compareTitle, nil
	case query.FieldName:
		return func(a, b *models.Brain) int { return strings.Compare(a.Name, b.Name) }, nil
	case query.FieldAbsPath:
		return func(a, b *models.Brain) int { return strings.Compare(a.Path, b.Path) }, nil
	case query.FieldFormat:
		return func(a, b *models.Brain) int { return strings.Compare(a.Format, b.Format) }, nil
	case query.FieldModTime:
		return func(a, b *models.Brain) int { return a.ModTime.Compare(b.ModTime) }, nil
	case query.FieldPubDatetime:
		return func(a, b *models.Brain) int { return a.PubDatetime.Compare(b.PubDatetime) }, nil
	}
	return nil, &query.UnknownFieldError{Field: field}
}
