// Package boxes composes the side and content boxes of a container.
//
// A container keeps two ordered sets of box paths, "sidebar" and
// "contentbar". Compose merges one of them with the configured fixed boxes
// and filters the result for a viewer.
package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/orderedset"
)

// Capability selects which bar is composed.
type Capability string

const (
	Side    Capability = models.CapabilitySide
	Content Capability = models.CapabilityContent
)

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case Side, Content:
		return c, nil
	}
	return "", fmt.Errorf("boxes: capability %q: %w", s, apperr.ErrInvalidInput)
}

// SetName returns the ordered set holding the boxes of capability c.
func (c Capability) SetName() string {
	if c == Content {
		return orderedset.NameContentbar
	}
	return orderedset.NameSidebar
}

// Box is one entry of a render plan.
type Box struct {
	ID         string       `json:"id"`
	Capability string       `json:"capability"`
	Fixed      bool         `json:"fixed,omitempty"`
	Empty      bool         `json:"empty,omitempty"`
	Item       *models.Item `json:"item"`
}

// Fixed is a box present in every container at a configured slot. It is
// never stored in, nor reorderable through, the container's ordered sets.
type Fixed struct {
	// Path is the absolute path of the box item.
	Path string `yaml:"path"`
	// Capability is side, content or both. Empty uses the item's own.
	Capability string `yaml:"capability"`
	// Slot is the position in the composed bar. Negative slots count from
	// the end, so -1 is last.
	Slot int `yaml:"slot"`
}

// EmptyFunc reports whether box has nothing to show to viewer.
type EmptyFunc func(ctx context.Context, box *models.Item, viewer access.Viewer) (bool, error)

// Composer builds render plans.
type Composer struct {
	sets     *orderedset.Manager
	resolver feed.Resolver
	checker  access.Checker
	logger   *slog.Logger
	fixed    []Fixed
	empty    map[string]EmptyFunc
}

// Option configures a Composer.
type Option func(*Composer)

// WithFixed adds fixed boxes.
func WithFixed(f ...Fixed) Option {
	return func(c *Composer) { c.fixed = append(c.fixed, f...) }
}

// WithEmptiness registers the emptiness predicate of a box format.
func WithEmptiness(format string, fn EmptyFunc) Option {
	return func(c *Composer) { c.empty[format] = fn }
}

// NewComposer creates a Composer. Formats without a registered predicate
// are empty when their body is blank.
func NewComposer(sets *orderedset.Manager, resolver feed.Resolver, checker access.Checker, logger *slog.Logger, opts ...Option) *Composer {
	c := &Composer{
		sets:     sets,
		resolver: resolver,
		checker:  checker,
		logger:   logger,
		empty: map[string]EmptyFunc{
			feed.FormatBoxHTML: BlankBody,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsFixed reports whether id names a fixed box.
func (c *Composer) IsFixed(id string) bool {
	return slices.ContainsFunc(c.fixed, func(f Fixed) bool { return f.Path == id })
}

// Compose returns the boxes of container's bar for capability, in render
// order. Boxes the viewer cannot see are dropped, and so are empty boxes
// unless the viewer can edit them.
func (c *Composer) Compose(ctx context.Context, container string, viewer access.Viewer, capability Capability) ([]Box, error) {
	key := orderedset.Key{Container: container, Name: capability.SetName()}
	ids, _, err := c.sets.IDs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("boxes: compose %s: %w", key, err)
	}

	regular := make([]Box, 0, len(ids))
	for _, id := range ids {
		if c.IsFixed(id) {
			continue
		}
		it, err := c.resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		if it == nil {
			continue
		}
		box := Box{ID: id, Capability: capabilityOf(it.Capability), Item: it}
		if serves(box.Capability, capability) {
			regular = append(regular, box)
		}
	}

	var fixed []placed
	for _, f := range c.fixed {
		it, err := c.resolve(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		if it == nil {
			continue
		}
		declared := f.Capability
		if declared == "" {
			declared = it.Capability
		}
		box := Box{ID: f.Path, Capability: capabilityOf(declared), Fixed: true, Item: it}
		if serves(box.Capability, capability) {
			fixed = append(fixed, placed{box: box, slot: f.Slot})
		}
	}

	merged := merge(regular, fixed)

	out := make([]Box, 0, len(merged))
	for _, box := range merged {
		if !c.checker.CanView(viewer, box.Item) {
			continue
		}
		empty, err := c.isEmpty(ctx, box.Item, viewer)
		if err != nil {
			return nil, fmt.Errorf("boxes: emptiness of %s: %w", box.ID, err)
		}
		if empty {
			if !c.checker.CanEdit(viewer, box.Item) {
				continue
			}
			box.Empty = true
		}
		out = append(out, box)
	}
	return out, nil
}

func (c *Composer) resolve(ctx context.Context, id string) (*models.Item, error) {
	it, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("boxes: resolve failed, skipping", slog.String("box", id), slog.String("error", err.Error()))
		return nil, nil
	}
	if it == nil {
		c.logger.Warn("boxes: dangling box, skipping", slog.String("box", id))
	}
	return it, nil
}

func (c *Composer) isEmpty(ctx context.Context, it *models.Item, viewer access.Viewer) (bool, error) {
	fn, ok := c.empty[it.Format]
	if !ok {
		fn = BlankBody
	}
	return fn(ctx, it, viewer)
}

func capabilityOf(s string) string {
	switch s := strings.ToLower(strings.TrimSpace(s)); s {
	case models.CapabilitySide, models.CapabilityContent:
		return s
	}
	return models.CapabilityBoth
}

func serves(boxCap string, want Capability) bool {
	return boxCap == models.CapabilityBoth || boxCap == string(want)
}

type placed struct {
	box  Box
	slot int
}

// merge places fixed boxes at their slots and fills the remaining positions
// with regular boxes in order. Colliding slots take the next free position,
// in configuration order.
func merge(regular []Box, fixed []placed) []Box {
	n := len(regular) + len(fixed)
	if len(fixed) == 0 {
		return regular
	}
	out := make([]Box, n)
	taken := make([]bool, n)
	for _, f := range fixed {
		i := f.slot
		if i < 0 {
			i += n
		}
		i = min(max(i, 0), n-1)
		j := nextFree(taken, i)
		out[j] = f.box
		taken[j] = true
	}
	k := 0
	for i := range out {
		if taken[i] {
			continue
		}
		out[i] = regular[k]
		k++
	}
	return out
}

// nextFree returns the first free index at or after i, wrapping backwards
// when the tail is full. A free index always exists.
func nextFree(taken []bool, i int) int {
	for j := i; j < len(taken); j++ {
		if !taken[j] {
			return j
		}
	}
	for j := i - 1; j >= 0; j-- {
		if !taken[j] {
			return j
		}
	}
	return i
}
