package site

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/testutil"
)

var (
	alice  = access.Viewer{Name: "alice"}
	editor = access.Viewer{Name: "ed", Roles: []string{"editor"}}
	anon   = access.Anonymous()
)

type recorder struct {
	mu     sync.Mutex
	items  []string
	orders []string
}

func (r *recorder) PublishItemEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, kind+":"+path)
}

func (r *recorder) PublishOrderEvent(container, set string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, container+"#"+set)
}

func siteFiles() map[string]string {
	return map[string]string{
		"docs/_index.md":       "---\nformat: section\ntitle: Docs\nowner: alice\n---\n",
		"docs/a.md":            "---\nformat: news\ntitle: Alpha\ntags: [go]\n---\nalpha body\n",
		"docs/b.md":            "---\nformat: news\ntitle: Beta\ntags: [go]\nstate: private\nowner: alice\n---\nbeta body\n",
		"docs/c.md":            "---\nformat: webpage\ntitle: Gamma\ntags: [sql]\n---\ngamma body\n",
		"docs/boxes/_index.md": "---\ntitle: Boxes\nowner: alice\n---\n",
		"docs/boxes/intro.md":  "---\nformat: box-html\ncapability: side\n---\n<p>hi</p>\n",
		"docs/boxes/blank.md":  "---\nformat: box-html\ncapability: side\nowner: alice\n---\n",
		"docs/boxes/cloud.md":  "---\nformat: box-tags\ncapability: side\nformats: [news]\n---\n",
		"docs/boxes/news.md":   "---\nformat: box-news\ncapability: content\ncontainer: /nothing\nowner: alice\n---\n",
		"theme/footer.md":      "---\nformat: box-html\n---\nfooter\n",
		"tags/go.md":           "---\nformat: tag\ntitle: Golang\n---\n",
	}
}

func newService(t *testing.T) (*Service, *testutil.Env, *recorder) {
	t.Helper()
	env := testutil.NewEnv(t, siteFiles())
	rec := &recorder{}
	svc := NewService(env.Store, env.DB, Config{
		BaseURL:     "https://example.org",
		TagsPath:    "/tags",
		Limits:      feed.Limits{DefaultBatchSize: 25, MaxBatchSize: 100},
		Fixed:       []boxes.Fixed{{Path: "/theme/footer", Capability: "side", Slot: -1}},
		EditorRoles: []string{"editor"},
	}, testutil.Logger(), WithNotifier(rec))
	return svc, env, rec
}

func titles(p *feed.Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it.Title)
	}
	return out
}

func boxIDs(bs []boxes.Box) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}

func TestFeed_Composite(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	page, err := svc.Feed(ctx, feed.ViewComposite, "/docs", anon, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Boxes", "Gamma"}, titles(page))
	assert.Equal(t, 3, page.Total)

	page, err = svc.Feed(ctx, feed.ViewComposite, "/docs", alice, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Boxes", "Gamma"}, titles(page))

	page, err = svc.Feed(ctx, feed.ViewComposite, "/docs", anon, url.Values{feed.ParamSearchType: {"news"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, titles(page))
}

func TestFeed_DetailsHidesInternal(t *testing.T) {
	svc, _, _ := newService(t)
	page, err := svc.Feed(context.Background(), feed.ViewDetails, "/docs", anon, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha", "Gamma"}, titles(page))
}

func TestFeed_Errors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Feed(ctx, "no-such-view", "/docs", anon, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Feed(ctx, feed.ViewComposite, "/nope", anon, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Feed(ctx, feed.ViewNavigator, "/docs", anon, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Feed(ctx, feed.ViewComposite, "/docs", anon, url.Values{feed.ParamSortBy: {"color"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFeed_NavigatorBreadcrumb(t *testing.T) {
	svc, _, _ := newService(t)
	page, err := svc.Feed(context.Background(), feed.ViewNavigator, "/docs/boxes", alice, nil)
	require.NoError(t, err)
	assert.Equal(t, []feed.Crumb{
		{Name: "", Title: "Home", Link: "https://example.org/"},
		{Name: "docs", Title: "Docs", Link: "https://example.org/docs"},
		{Name: "boxes", Title: "Boxes", Link: "https://example.org/docs/boxes"},
	}, page.Breadcrumb)
	assert.Equal(t, 4, page.Total)
}

func TestFeed_SiteRootIsVirtual(t *testing.T) {
	svc, _, _ := newService(t)
	page, err := svc.Feed(context.Background(), feed.ViewComposite, "/", anon, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs"}, titles(page))
}

func TestFeed_SortByOrder(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", Op{Kind: OpAppend, ID: "c"})
	require.NoError(t, err)
	_, err = svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", Op{Kind: OpAppend, ID: "/docs/a"})
	require.NoError(t, err)

	page, err := svc.Feed(ctx, feed.ViewComposite, "/docs", alice, url.Values{feed.ParamSortBy: {feed.SortOrder}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Alpha", "Beta", "Boxes"}, titles(page))
	assert.Contains(t, rec.orders, "/docs#children")
}

func TestSearchTypes(t *testing.T) {
	svc, _, _ := newService(t)
	opts, err := svc.SearchTypes(context.Background(), feed.ViewDetails, "/docs", anon)
	require.NoError(t, err)
	assert.Equal(t, []feed.FacetOption{
		{Name: "news", Title: "News"},
		{Name: "webpage", Title: "Web Page"},
	}, opts)
}

func TestTagFeed(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	page, err := svc.TagFeed(ctx, "go", anon, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, titles(page))

	page, err = svc.TagFeed(ctx, "go", alice, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, titles(page))

	page, err = svc.TagFeed(ctx, "go", alice, url.Values{feed.ParamFormat: {"webpage"}})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = svc.TagFeed(ctx, " ", anon, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestTagCloud(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	ws, err := svc.TagCloud(ctx, anon, nil)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, "go", ws[0].TagID)
	assert.Equal(t, "Golang", ws[0].Title)
	assert.Equal(t, "https://example.org/tags/go", ws[0].Link)
	assert.Equal(t, "sql", ws[1].TagID)

	ws, err = svc.TagCloud(ctx, anon, []string{"webpage"})
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "sql", ws[0].TagID)
}

func seedSidebar(t *testing.T, svc *Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.Reorder(context.Background(), "/docs", orderedset.NameSidebar, alice, "", Op{Kind: OpAppend, ID: id})
		require.NoError(t, err)
	}
}

func TestBoxes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	seedSidebar(t, svc, "/docs/boxes/intro", "/docs/boxes/blank", "/docs/boxes/cloud")
	_, err := svc.Reorder(ctx, "/docs", orderedset.NameContentbar, alice, "", Op{Kind: OpAppend, ID: "/docs/boxes/news"})
	require.NoError(t, err)

	side, err := svc.Boxes(ctx, "/docs", anon, boxes.Side)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/intro", "/docs/boxes/cloud", "/theme/footer"}, boxIDs(side))
	assert.True(t, side[2].Fixed)

	side, err = svc.Boxes(ctx, "/docs", alice, boxes.Side)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/intro", "/docs/boxes/blank", "/docs/boxes/cloud", "/theme/footer"}, boxIDs(side))
	assert.True(t, side[1].Empty)

	content, err := svc.Boxes(ctx, "/docs", anon, boxes.Content)
	require.NoError(t, err)
	assert.NotNil(t, content)
	assert.Empty(t, content)

	content, err = svc.Boxes(ctx, "/docs", editor, boxes.Content)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/news"}, boxIDs(content))
	assert.True(t, content[0].Empty)
}

func TestReorder(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	seedSidebar(t, svc, "/docs/boxes/intro", "/docs/boxes/cloud")

	_, err := svc.Reorder(ctx, "/docs", orderedset.NameSidebar, anon, "", Op{Kind: OpRemove, ID: "/docs/boxes/intro"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameSidebar, alice, "", Op{Kind: OpAppend, ID: "/theme/footer"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Reorder(ctx, "/docs", "footer", alice, "", Op{Kind: OpAppend, ID: "x"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameSidebar, alice, "", Op{Kind: OpAppend, ID: "/docs/boxes/missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", Op{Kind: OpAppend, ID: "/docs/boxes/intro"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameSidebar, alice, "", Op{Kind: "shuffle", ID: "/docs/boxes/intro"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	cur, err := svc.OrderIDs(ctx, "/docs", orderedset.NameSidebar, anon)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/intro", "/docs/boxes/cloud"}, cur.IDs)

	moved, err := svc.Reorder(ctx, "/docs", orderedset.NameSidebar, editor, cur.ETag, Op{Kind: OpMove, ID: "/docs/boxes/cloud", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/cloud", "/docs/boxes/intro"}, moved.IDs)
	assert.NotEqual(t, cur.ETag, moved.ETag)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameSidebar, editor, cur.ETag, Op{Kind: OpRemove, ID: "/docs/boxes/cloud"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	ins, err := svc.Reorder(ctx, "/docs", orderedset.NameSidebar, editor, moved.ETag,
		Op{Kind: OpInsert, ID: "/docs/boxes/blank", After: "/docs/boxes/cloud"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/boxes/cloud", "/docs/boxes/blank", "/docs/boxes/intro"}, ins.IDs)

	_, err = svc.Reorder(ctx, "/docs", orderedset.NameSidebar, editor, "", Op{Kind: OpAppend, ID: "/docs/boxes/blank"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestReorder_NoopPublishesNothing(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", Op{Kind: OpAppend, ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs#children"}, rec.orders)

	noops := []Op{
		{Kind: OpRemove, ID: "c"},
		{Kind: OpMove, ID: "a", Index: 3},
	}
	for _, op := range noops {
		o, err := svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", op)
		require.NoError(t, err)
		assert.Equal(t, []string{"/docs/a"}, o.IDs)
	}
	assert.Len(t, rec.orders, 1, "unchanged sets must not publish")

	require.NoError(t, svc.DeleteItem(ctx, "/docs/c", editor))
	assert.Len(t, rec.orders, 1, "deleting an unordered item leaves every set untouched")

	require.NoError(t, svc.DeleteItem(ctx, "/docs/a", editor))
	assert.Equal(t, []string{"/docs#children", "/docs#children"}, rec.orders)
}

func TestCreateItem(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	news := []byte("---\nformat: news\ntitle: Delta\n---\ndelta\n")

	_, err := svc.CreateItem(ctx, "/docs", anon, "d", news)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	it, err := svc.CreateItem(ctx, "/docs", alice, "d", news)
	require.NoError(t, err)
	assert.Equal(t, "/docs/d", it.Path)
	assert.Equal(t, "docs/d.md", it.File)

	_, err = svc.CreateItem(ctx, "/docs", alice, "d", news)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = svc.CreateItem(ctx, "/docs", alice, "box", []byte("---\nformat: box-html\n---\nx\n"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.CreateItem(ctx, "/docs", alice, "../escape", news)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.CreateItem(ctx, "/docs/a", editor, "child", news)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	sub, err := svc.CreateItem(ctx, "/docs", alice, "guides", []byte("---\nformat: section\ntitle: Guides\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, "docs/guides/_index.md", sub.File)

	box, err := svc.CreateItem(ctx, "/docs/boxes", alice, "promo", []byte("---\nformat: box-html\ncapability: content\n---\npromo\n"))
	require.NoError(t, err)

	order, err := svc.OrderIDs(ctx, "/docs", orderedset.NameChildren, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/d", "/docs/guides"}, order.IDs)
	bar, err := svc.OrderIDs(ctx, "/docs/boxes", orderedset.NameContentbar, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{box.Path}, bar.IDs)

	page, err := svc.Feed(ctx, feed.ViewComposite, "/docs", anon, url.Values{feed.ParamSearchType: {"news"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Delta"}, titles(page))
	assert.Contains(t, rec.items, "created:/docs/d")
}

func TestDeleteItem(t *testing.T) {
	svc, env, rec := newService(t)
	ctx := context.Background()
	_, err := svc.Reorder(ctx, "/docs", orderedset.NameChildren, alice, "", Op{Kind: OpAppend, ID: "a"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteItem(ctx, "/docs/a", anon), apperr.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteItem(ctx, "/docs/b", anon), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteItem(ctx, "/theme/footer", editor), apperr.ErrForbidden)

	require.NoError(t, svc.DeleteItem(ctx, "/docs/a", editor))
	checksum, err := env.DB.GetChecksum("docs/a.md")
	require.NoError(t, err)
	assert.Empty(t, checksum)

	order, err := svc.OrderIDs(ctx, "/docs", orderedset.NameChildren, alice)
	require.NoError(t, err)
	assert.Empty(t, order.IDs)
	assert.Contains(t, rec.items, "deleted:/docs/a")

	assert.ErrorIs(t, svc.DeleteItem(ctx, "/docs/a", editor), apperr.ErrNotFound)
}

func TestReindex(t *testing.T) {
	svc, env, _ := newService(t)
	ctx := context.Background()
	env.Write(t, "docs/e.md", "---\nformat: news\ntitle: Echo\n---\n")

	stats, err := svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	page, err := svc.Feed(ctx, feed.ViewComposite, "/docs", anon, url.Values{feed.ParamSearchType: {"news"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Echo"}, titles(page))

	_, err = svc.IndexFile(ctx, "docs/missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
