package feed

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/starford/sitefeed/internal/models"
)

// Projection field names.
const (
	FieldTitle       = "title"
	FieldLongTitle   = "long_title"
	FieldLink        = "link"
	FieldAbsPath     = "abspath"
	FieldPreview     = "preview"
	FieldTags        = "tags"
	FieldImage       = "image"
	FieldType        = "type"
	FieldFormat      = "format"
	FieldState       = "state"
	FieldPubDatetime = "pub_datetime"
	FieldModTime     = "mtime"
	FieldIsImage     = "is_image"
	FieldCSS         = "css"
)

// CSSActive marks the listed item that is the page currently displayed.
const CSSActive = "active"

// TagRef is a tag as displayed next to an item.
type TagRef struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// Projection is the display-ready record of one listed item. Fields that
// were not requested or do not apply to the item type are left empty and
// omitted from JSON.
type Projection struct {
	Title       string     `json:"title,omitempty"`
	LongTitle   string     `json:"long_title,omitempty"`
	Link        string     `json:"link,omitempty"`
	AbsPath     string     `json:"abspath,omitempty"`
	Preview     string     `json:"preview,omitempty"`
	Tags        []TagRef   `json:"tags,omitempty"`
	Image       string     `json:"image,omitempty"`
	Type        string     `json:"type,omitempty"`
	Format      string     `json:"format,omitempty"`
	State       string     `json:"state,omitempty"`
	PubDatetime *time.Time `json:"pub_datetime,omitempty"`
	ModTime     *time.Time `json:"mtime,omitempty"`
	IsImage     bool       `json:"is_image,omitempty"`
	CSS         string     `json:"css,omitempty"`
}

// Linker turns item paths and tags into links.
type Linker struct {
	BaseURL  string
	TagsPath string
}

// Item returns the link of the item at abs.
func (l Linker) Item(abs string) string {
	return strings.TrimSuffix(l.BaseURL, "/") + abs
}

// Tag returns the link of the tag page for tag.
func (l Linker) Tag(tag string) string {
	return l.Item(path.Join("/", l.TagsPath, url.PathEscape(tag)))
}

// projectEnv is what extractors may read besides the item.
type projectEnv struct {
	links   Linker
	types   *TypeRegistry
	current string
}

// extractor fills one field for item types holding needs. The zero needs
// applies to every type.
type extractor struct {
	needs Capability
	fill  func(env projectEnv, it *models.Item, p *Projection)
}

// extractors lists, per field, alternatives in preference order. The first
// alternative whose capabilities the item type holds wins; when none
// applies the field stays empty.
var extractors = map[string][]extractor{
	FieldTitle: {{fill: func(_ projectEnv, it *models.Item, p *Projection) {
		p.Title = DisplayTitle(&it.Brain)
	}}},
	FieldLongTitle: {
		{needs: CapTagged, fill: func(_ projectEnv, it *models.Item, p *Projection) {
			if lt, ok := it.Frontmatter["long_title"].(string); ok && lt != "" {
				p.LongTitle = lt
				return
			}
			p.LongTitle = DisplayTitle(&it.Brain)
		}},
		{fill: func(_ projectEnv, it *models.Item, p *Projection) {
			p.LongTitle = DisplayTitle(&it.Brain)
		}},
	},
	FieldLink: {{fill: func(env projectEnv, it *models.Item, p *Projection) {
		p.Link = env.links.Item(it.Path)
	}}},
	FieldAbsPath: {{fill: func(_ projectEnv, it *models.Item, p *Projection) {
		p.AbsPath = it.Path
	}}},
	FieldPreview: {
		{needs: CapTagged, fill: func(_ projectEnv, it *models.Item, p *Projection) {
			p.Preview = it.Preview
		}},
		{needs: CapPreview, fill: func(_ projectEnv, it *models.Item, p *Projection) {
			p.Preview = it.Description
		}},
	},
	FieldTags: {{needs: CapTagged, fill: func(env projectEnv, it *models.Item, p *Projection) {
		for _, t := range it.Tags {
			p.Tags = append(p.Tags, TagRef{Name: t, Link: env.links.Tag(t)})
		}
	}}},
	FieldImage: {
		{needs: CapTagged, fill: func(env projectEnv, it *models.Item, p *Projection) {
			if it.Thumbnail != "" {
				p.Image = env.links.Item(path.Join(it.ParentPath, it.Thumbnail))
			}
		}},
		{needs: CapImage, fill: func(env projectEnv, it *models.Item, p *Projection) {
			p.Image = env.links.Item(it.Path)
		}},
	},
	FieldType: {{fill: func(env projectEnv, it *models.Item, p *Projection) {
		p.Type = env.types.Title(it.Format)
	}}},
	FieldFormat: {{fill: func(_ projectEnv, it *models.Item, p *Projection) {
		p.Format = it.Format
	}}},
	FieldState: {{fill: func(_ projectEnv, it *models.Item, p *Projection) {
		p.State = it.State
	}}},
	FieldPubDatetime: {{needs: CapTagged, fill: func(_ projectEnv, it *models.Item, p *Projection) {
		if !it.PubDatetime.IsZero() {
			t := it.PubDatetime
			p.PubDatetime = &t
		}
	}}},
	FieldModTime: {{fill: func(_ projectEnv, it *models.Item, p *Projection) {
		if !it.ModTime.IsZero() {
			t := it.ModTime
			p.ModTime = &t
		}
	}}},
	FieldIsImage: {{needs: CapImage, fill: func(_ projectEnv, _ *models.Item, p *Projection) {
		p.IsImage = true
	}}},
	FieldCSS: {{fill: func(env projectEnv, it *models.Item, p *Projection) {
		if env.current != "" && it.Path == env.current {
			p.CSS = CSSActive
		}
	}}},
}

// KnownField reports whether name is a projection field.
func KnownField(name string) bool {
	_, ok := extractors[name]
	return ok
}

func project(env projectEnv, fields []string, it *models.Item) Projection {
	var p Projection
	caps := env.types.Caps(it.Format)
	for _, f := range fields {
		for _, x := range extractors[f] {
			if caps.Has(x.needs) {
				x.fill(env, it, &p)
				break
			}
		}
	}
	return p
}

// DisplayTitle returns the title of b, falling back to its name.
func DisplayTitle(b *models.Brain) string {
	if b.Title != "" {
		return b.Title
	}
	if b.Name != "" {
		return b.Name
	}
	return b.Path
}
