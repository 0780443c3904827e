// Package site wires storage, catalog, access control and the feed, tag
// and box engines into the operations exposed over HTTP and MCP.
package site

import (
	"log/slog"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/index"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
	"github.com/starford/sitefeed/internal/storage"
	"github.com/starford/sitefeed/internal/tagcloud"
)

// Event kinds passed to a Notifier.
const (
	EventCreated = index.EventCreated
	EventUpdated = index.EventUpdated
	EventDeleted = index.EventDeleted
)

// Notifier receives change notifications for connected clients.
type Notifier interface {
	PublishItemEvent(kind, path string)
	PublishOrderEvent(container, set string)
}

type nopNotifier struct{}

func (nopNotifier) PublishItemEvent(string, string)  {}
func (nopNotifier) PublishOrderEvent(string, string) {}

// Config holds the site-level settings of a Service.
type Config struct {
	BaseURL  string
	TagsPath string
	Limits   feed.Limits
	// TagCloud holds the default options of the site tag cloud.
	TagCloud     tagcloud.Options
	BucketMax    int
	CountWorkers int
	Fixed        []boxes.Fixed
	EditorRoles  []string
}

// Service coordinates storage, catalog and the feed engines.
type Service struct {
	store    storage.Provider
	db       index.Catalog
	resolver feed.Resolver
	checker  access.Checker
	sets     *orderedset.Manager
	types    *feed.TypeRegistry
	views    *feed.Registry
	builder  *feed.Builder
	pipeline *feed.Pipeline
	tags     *tagcloud.Engine
	boxes    *boxes.Composer
	links    feed.Linker
	notifier Notifier
	logger   *slog.Logger

	limits   feed.Limits
	tagsPath string
	cloud    tagcloud.Options
	tagOpts  []tagcloud.Option
}

// Option configures a Service.
type Option func(*Service)

// WithViews replaces the default view registry.
func WithViews(r *feed.Registry) Option {
	return func(s *Service) { s.views = r }
}

// WithTypes replaces the default type registry.
func WithTypes(r *feed.TypeRegistry) Option {
	return func(s *Service) { s.types = r }
}

// WithNotifier sets the receiver of change notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTagOptions passes extra options to the tag engine.
func WithTagOptions(opts ...tagcloud.Option) Option {
	return func(s *Service) { s.tagOpts = append(s.tagOpts, opts...) }
}

// NewService creates a Service over store and db.
func NewService(store storage.Provider, db index.Catalog, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		resolver: resource.NewResolver(store),
		checker:  access.NewPolicy(cfg.EditorRoles...),
		sets:     orderedset.NewManager(db),
		types:    feed.DefaultTypes(),
		views:    feed.DefaultViews(),
		links:    feed.Linker{BaseURL: cfg.BaseURL, TagsPath: cfg.TagsPath},
		notifier: nopNotifier{},
		logger:   logger,
		limits:   cfg.Limits,
		tagsPath: cfg.TagsPath,
		cloud:    cfg.TagCloud,
	}
	if s.tagsPath == "" {
		s.tagsPath = "/tags"
		s.links.TagsPath = s.tagsPath
	}
	for _, opt := range opts {
		opt(s)
	}

	schema := query.DefaultSchema()
	s.builder = feed.NewBuilder(schema, db, s.types)
	s.pipeline = feed.NewPipeline(db, s.resolver, s.checker, s.types, s.links, logger)

	bucketMax := cfg.BucketMax
	if bucketMax <= 0 {
		bucketMax = tagcloud.DefaultBucketMax
	}
	tagOpts := []tagcloud.Option{tagcloud.WithBucketMax(bucketMax)}
	if cfg.CountWorkers > 0 {
		tagOpts = append(tagOpts, tagcloud.WithWorkers(cfg.CountWorkers))
	}
	s.tags = tagcloud.NewEngine(db, s.resolver, s.checker, schema, s.links, logger, append(tagOpts, s.tagOpts...)...)

	s.boxes = boxes.NewComposer(s.sets, s.resolver, s.checker, logger,
		boxes.WithFixed(cfg.Fixed...),
		boxes.WithEmptiness(feed.FormatBoxTags, s.tagBoxEmpty),
		boxes.WithEmptiness(feed.FormatBoxNews, s.newsBoxEmpty),
	)
	return s
}

// Views returns the configured feed views.
func (s *Service) Views() []feed.ViewConfig {
	return s.views.List()
}

// Types returns the type registry.
func (s *Service) Types() *feed.TypeRegistry {
	return s.types
}

// Checker returns the access policy in use.
func (s *Service) Checker() access.Checker {
	return s.checker
}

func nonNilSlice[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
