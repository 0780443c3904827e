package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/testutil"
)

type fakeBackend struct {
	brains []models.Brain
	err    error
}

func (f *fakeBackend) Search(context.Context, query.Node) ([]models.Brain, error) {
	return f.brains, f.err
}

func (f *fakeBackend) Count(context.Context, query.Node) (int, error) {
	return len(f.brains), f.err
}

type fakeResolver map[string]*models.Item

func (f fakeResolver) Resolve(_ context.Context, abs string) (*models.Item, error) {
	return f[abs], nil
}

// corpus returns a backend and resolver over the given items.
func corpus(items ...*models.Item) (*fakeBackend, fakeResolver) {
	b := &fakeBackend{}
	r := fakeResolver{}
	for _, it := range items {
		b.brains = append(b.brains, it.Brain)
		r[it.Path] = it
	}
	return b, r
}

func newItem(path, title, format string) *models.Item {
	return &models.Item{Brain: models.Brain{
		Path:   path,
		Name:   path[len("/c/"):],
		Title:  title,
		Format: format,
		State:  models.StatePublic,
		Tags:   []string{},
	}}
}

func newPipeline(b Backend, r Resolver) *Pipeline {
	return NewPipeline(b, r, access.NewPolicy("editor"), DefaultTypes(),
		Linker{BaseURL: "https://example.org", TagsPath: "/tags"}, testutil.Logger())
}

func titles(p *Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it.Title)
	}
	return out
}

func TestRun_OffsetBeyondTotal(t *testing.T) {
	var items []*models.Item
	for i := range 10 {
		items = append(items, newItem(fmt.Sprintf("/c/i%02d", i), fmt.Sprintf("Item %02d", i), FormatWebPage))
	}
	b, r := corpus(items...)

	page, err := newPipeline(b, r).Run(context.Background(), Request{
		BatchSize: 5, Offset: 1000, Fields: []string{FieldTitle},
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 10, page.Total)
	assert.False(t, page.HasNext())
}

func TestRun_Pagination(t *testing.T) {
	var items []*models.Item
	for i := range 5 {
		items = append(items, newItem(fmt.Sprintf("/c/i%d", i), fmt.Sprintf("Item %d", i), FormatWebPage))
	}
	b, r := corpus(items...)
	p := newPipeline(b, r)

	page, err := p.Run(context.Background(), Request{BatchSize: 2, Offset: 2, Fields: []string{FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 2", "Item 3"}, titles(page))
	assert.True(t, page.HasNext())

	page, err = p.Run(context.Background(), Request{BatchSize: 2, Offset: 4, Fields: []string{FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 4"}, titles(page))
	assert.False(t, page.HasNext())
}

func TestRun_ExtremeBounds(t *testing.T) {
	var items []*models.Item
	for i := range 3 {
		items = append(items, newItem(fmt.Sprintf("/c/i%d", i), fmt.Sprintf("Item %d", i), FormatWebPage))
	}
	b, r := corpus(items...)
	p := newPipeline(b, r)

	tests := []struct {
		name     string
		batch    int
		offset   int
		want     []string
		wantNext bool
	}{
		{"max batch", math.MaxInt, 0, []string{"Item 0", "Item 1", "Item 2"}, false},
		{"max batch with offset", math.MaxInt, 1, []string{"Item 1", "Item 2"}, false},
		{"max batch last item", math.MaxInt, 2, []string{"Item 2"}, false},
		{"max offset", 2, math.MaxInt, []string{}, false},
		{"both max", math.MaxInt, math.MaxInt, []string{}, false},
		{"negative offset", 2, math.MinInt, []string{"Item 0", "Item 1"}, true},
		{"zero batch", 0, 0, []string{"Item 0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := p.Run(context.Background(), Request{BatchSize: tt.batch, Offset: tt.offset, Fields: []string{FieldTitle}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(page))
			assert.Equal(t, 3, page.Total)
			assert.Equal(t, tt.wantNext, page.HasNext())
		})
	}
}

func TestRun_AccessFilterBeforeCount(t *testing.T) {
	pub := newItem("/c/pub", "Public", FormatWebPage)
	priv := newItem("/c/priv", "Private", FormatWebPage)
	priv.State = models.StatePrivate
	priv.Owner = "alice"
	b, r := corpus(pub, priv)
	p := newPipeline(b, r)

	page, err := p.Run(context.Background(), Request{BatchSize: 10, Fields: []string{FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"Public"}, titles(page))

	page, err = p.Run(context.Background(), Request{
		Viewer: access.Viewer{Name: "alice"}, BatchSize: 10, Fields: []string{FieldTitle},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestRun_DanglingSkipped(t *testing.T) {
	a := newItem("/c/a", "A", FormatWebPage)
	b, r := corpus(a)
	b.brains = append(b.brains, models.Brain{Path: "/c/gone", Title: "Gone"})

	page, err := newPipeline(b, r).Run(context.Background(), Request{BatchSize: 10, Fields: []string{FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []string{"A"}, titles(page))
}

func TestRun_BackendFailure(t *testing.T) {
	b := &fakeBackend{err: errors.New("disk I/O error")}
	_, err := newPipeline(b, fakeResolver{}).Run(context.Background(), Request{BatchSize: 10})
	assert.ErrorIs(t, err, apperr.ErrBackendUnavailable)

	b.err = &query.UnknownFieldError{Field: "color"}
	_, err = newPipeline(b, fakeResolver{}).Run(context.Background(), Request{BatchSize: 10})
	assert.NotErrorIs(t, err, apperr.ErrBackendUnavailable)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRun_StableSortTiesByPath(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := newItem("/c/c", "Same", FormatWebPage)
	a := newItem("/c/a", "same", FormatWebPage)
	b := newItem("/c/b", "Other", FormatWebPage)
	for _, it := range []*models.Item{a, b, c} {
		it.ModTime = day
	}
	b.ModTime = day.Add(time.Hour)
	be, r := corpus(c, b, a)
	p := newPipeline(be, r)

	run := func(sortBy string, reverse bool) []string {
		page, err := p.Run(context.Background(), Request{SortBy: sortBy, Reverse: reverse, BatchSize: 10, Fields: []string{FieldAbsPath}})
		require.NoError(t, err)
		out := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			out = append(out, it.AbsPath)
		}
		return out
	}

	assert.Equal(t, []string{"/c/b", "/c/a", "/c/c"}, run(query.FieldTitle, false))
	assert.Equal(t, []string{"/c/a", "/c/c", "/c/b"}, run(query.FieldTitle, true))
	assert.Equal(t, []string{"/c/b", "/c/a", "/c/c"}, run(query.FieldModTime, true))
	assert.Equal(t, []string{"/c/a", "/c/c", "/c/b"}, run(query.FieldModTime, false))
}

func TestRun_ExplicitOrder(t *testing.T) {
	a := newItem("/c/a", "Alpha", FormatWebPage)
	b := newItem("/c/b", "Beta", FormatWebPage)
	c := newItem("/c/c", "Gamma", FormatWebPage)
	d := newItem("/c/d", "Delta", FormatWebPage)
	be, r := corpus(a, b, c, d)

	page, err := newPipeline(be, r).Run(context.Background(), Request{
		SortBy: SortOrder, Order: []string{"/c/c", "/c/a", "/c/missing"}, BatchSize: 10, Fields: []string{FieldTitle},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Alpha", "Beta", "Delta"}, titles(page))

	page, err = newPipeline(be, r).Run(context.Background(), Request{
		SortBy: SortOrder, Reverse: true, Order: []string{"/c/c", "/c/a"}, BatchSize: 10, Fields: []string{FieldTitle},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Delta", "Beta", "Alpha", "Gamma"}, titles(page))
}

func TestRun_UnknownSortField(t *testing.T) {
	be, r := corpus(newItem("/c/a", "A", FormatWebPage))
	_, err := newPipeline(be, r).Run(context.Background(), Request{SortBy: "color", BatchSize: 1})
	var unknown *query.UnknownFieldError
	assert.ErrorAs(t, err, &unknown)
}

func TestProjection_Capabilities(t *testing.T) {
	pub := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	page := newItem("/c/page", "Page", FormatWebPage)
	page.ParentPath = "/c"
	page.Tags = []string{"go"}
	page.Preview = "page preview"
	page.Thumbnail = "thumb.png"
	page.PubDatetime = pub

	img := newItem("/c/img", "Img", FormatImage)
	img.Tags = []string{"ignored"}
	img.Preview = "ignored"

	file := newItem("/c/file", "", FormatFile)
	file.Description = "a file"

	be, r := corpus(page, img, file)
	got, err := newPipeline(be, r).Run(context.Background(), Request{
		SortBy: query.FieldAbsPath, BatchSize: 10, Current: "/c/img",
		Fields: append(append([]string{}, ContentFields...), "no-such-field"),
	})
	require.NoError(t, err)
	require.Len(t, got.Items, 3)

	fileP, imgP, pageP := got.Items[0], got.Items[1], got.Items[2]

	assert.Equal(t, Projection{
		Title:     "file",
		LongTitle: "file",
		Link:      "https://example.org/c/file",
		AbsPath:   "/c/file",
		Preview:   "a file",
		Type:      "File",
		State:     models.StatePublic,
	}, fileP)

	assert.Equal(t, Projection{
		Title:     "Img",
		LongTitle: "Img",
		Link:      "https://example.org/c/img",
		AbsPath:   "/c/img",
		Image:     "https://example.org/c/img",
		Type:      "Image",
		State:     models.StatePublic,
		IsImage:   true,
		CSS:       CSSActive,
	}, imgP)

	assert.Equal(t, "page preview", pageP.Preview)
	assert.Equal(t, []TagRef{{Name: "go", Link: "https://example.org/tags/go"}}, pageP.Tags)
	assert.Equal(t, "https://example.org/c/thumb.png", pageP.Image)
	require.NotNil(t, pageP.PubDatetime)
	assert.True(t, pub.Equal(*pageP.PubDatetime))
	assert.False(t, pageP.IsImage)
	assert.Empty(t, pageP.CSS)
}
