// Package tagcloud computes tag usage counts and visual weight buckets.
package tagcloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
)

// DefaultBucketMax is the default number of weight buckets.
const DefaultBucketMax = 5

// TagBrain is one entry of the tag vocabulary.
type TagBrain struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Path is the tag's own item, if it has one. Tags without an item are
	// visible to everyone.
	Path string `json:"path,omitempty"`
}

// Weight is one rendered tag of the cloud.
//
// Buckets run from 1 for the most used tag to BucketMax for the least used.
type Weight struct {
	TagID  string `json:"tag_id"`
	Title  string `json:"title"`
	Count  int    `json:"count"`
	Bucket int    `json:"bucket"`
	CSS    string `json:"css"`
	Link   string `json:"link"`
}

// Options tunes one computation.
type Options struct {
	// MaxTags caps the number of tags returned; 0 means unlimited.
	MaxTags int
	// ShowCount appends the item count to titles.
	ShowCount bool
	// Randomize shuffles the result instead of keeping catalog order.
	Randomize bool
	// Formats restricts counted items and is carried into tag links.
	Formats []string
}

// Counter counts catalog items matching a query.
type Counter interface {
	Count(ctx context.Context, q query.Node) (int, error)
}

// Engine computes tag clouds.
type Engine struct {
	counter   Counter
	resolver  feed.Resolver
	checker   access.Checker
	schema    query.Schema
	links     feed.Linker
	logger    *slog.Logger
	bucketMax int
	workers   int
	rng       *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithBucketMax sets the number of weight buckets.
func WithBucketMax(n int) Option {
	return func(e *Engine) { e.bucketMax = n }
}

// WithWorkers bounds the number of concurrent count queries.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithRand sets the source used by Randomize.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// NewEngine creates an Engine.
func NewEngine(counter Counter, resolver feed.Resolver, checker access.Checker, schema query.Schema, links feed.Linker, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		counter:   counter,
		resolver:  resolver,
		checker:   checker,
		schema:    schema,
		links:     links,
		logger:    logger,
		bucketMax: DefaultBucketMax,
		workers:   4,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bucketMax < 1 {
		e.bucketMax = 1
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Corpus returns the query of items a cloud counts: public items,
// optionally restricted to formats.
func (e *Engine) Corpus(formats []string) (query.Node, error) {
	public, err := e.schema.Phrase(query.FieldState, models.StatePublic)
	if err != nil {
		return query.Node{}, err
	}
	if len(formats) == 0 {
		return public, nil
	}
	alts := make([]query.Node, 0, len(formats))
	for _, f := range formats {
		p, err := e.schema.Phrase(query.FieldFormat, f)
		if err != nil {
			return query.Node{}, err
		}
		alts = append(alts, p)
	}
	byFormat, err := query.AnyOf(alts...)
	if err != nil {
		return query.Node{}, err
	}
	return query.And(public, byFormat)
}

// Compute returns the weighted cloud for tags over the corpus query, in
// catalog order unless opts.Randomize is set. Tags the viewer cannot see and
// tags without matching items are left out.
func (e *Engine) Compute(ctx context.Context, tags []TagBrain, corpus query.Node, viewer access.Viewer, opts Options) ([]Weight, error) {
	visible, err := e.visible(ctx, tags, viewer)
	if err != nil {
		return nil, err
	}

	// With a cap, tags are counted in catalog-order chunks so counting stops
	// once enough used tags are found.
	weights := make([]Weight, 0, len(visible))
	for start := 0; start < len(visible); {
		end := len(visible)
		if opts.MaxTags > 0 {
			need := opts.MaxTags - len(weights)
			end = start + min(max(need, e.workers), len(visible)-start)
		}
		chunk := visible[start:end]
		counts, err := e.count(ctx, chunk, corpus)
		if err != nil {
			return nil, err
		}
		for i, tag := range chunk {
			if counts[i] == 0 {
				continue
			}
			if opts.MaxTags > 0 && len(weights) == opts.MaxTags {
				break
			}
			weights = append(weights, e.weight(tag, counts[i], opts))
		}
		if opts.MaxTags > 0 && len(weights) == opts.MaxTags {
			break
		}
		start = end
	}
	if len(weights) == 0 {
		return weights, nil
	}

	lo, hi := weights[0].Count, weights[0].Count
	for _, w := range weights[1:] {
		lo = min(lo, w.Count)
		hi = max(hi, w.Count)
	}
	for i := range weights {
		weights[i].Bucket = Bucket(weights[i].Count, lo, hi, e.bucketMax)
		weights[i].CSS = "tag-" + strconv.Itoa(weights[i].Bucket)
	}

	if opts.Randomize {
		shuffle := rand.Shuffle
		if e.rng != nil {
			shuffle = e.rng.Shuffle
		}
		shuffle(len(weights), func(i, j int) { weights[i], weights[j] = weights[j], weights[i] })
	}
	return weights, nil
}

func (e *Engine) weight(tag TagBrain, count int, opts Options) Weight {
	title := tag.Title
	if title == "" {
		title = tag.ID
	}
	if opts.ShowCount {
		title = fmt.Sprintf("%s (%d)", title, count)
	}
	return Weight{
		TagID: tag.ID,
		Title: title,
		Count: count,
		Link:  e.link(tag.ID, opts.Formats),
	}
}

// Bucket maps count within [lo, hi] to a bucket in [1, n], 1 being the
// most used. Equal bounds put every tag in bucket 1.
func Bucket(count, lo, hi, n int) int {
	if hi <= lo || n <= 1 {
		return 1
	}
	rank := int(math.Round(float64(count-lo) / float64(hi-lo) * float64(n-1)))
	return min(max(n-rank, 1), n)
}

func (e *Engine) visible(ctx context.Context, tags []TagBrain, viewer access.Viewer) ([]TagBrain, error) {
	out := make([]TagBrain, 0, len(tags))
	for _, tag := range tags {
		if tag.Path == "" {
			out = append(out, tag)
			continue
		}
		it, err := e.resolver.Resolve(ctx, tag.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("tagcloud: resolve tag failed, skipping",
				slog.String("tag", tag.ID), slog.String("error", err.Error()))
			continue
		}
		if it == nil {
			e.logger.Warn("tagcloud: dangling tag, skipping", slog.String("tag", tag.ID))
			continue
		}
		if e.checker.CanView(viewer, it) {
			out = append(out, tag)
		}
	}
	return out, nil
}

// count issues one count query per tag, at most e.workers at a time.
func (e *Engine) count(ctx context.Context, tags []TagBrain, corpus query.Node) ([]int, error) {
	counts := make([]int, len(tags))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, tag := range tags {
		g.Go(func() error {
			member, err := e.schema.Phrase(query.FieldTags, tag.ID)
			if err != nil {
				return err
			}
			q, err := query.And(corpus, member)
			if err != nil {
				return err
			}
			n, err := e.counter.Count(gctx, q)
			if err != nil {
				if !errors.Is(err, apperr.ErrBackendUnavailable) {
					err = fmt.Errorf("%w: %w", apperr.ErrBackendUnavailable, err)
				}
				return fmt.Errorf("tagcloud: count %q: %w", tag.ID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (e *Engine) link(tag string, formats []string) string {
	link := e.links.Tag(tag)
	if len(formats) == 0 {
		return link
	}
	v := url.Values{}
	for _, f := range formats {
		v.Add(feed.ParamFormat, f)
	}
	return link + "?" + v.Encode()
}
