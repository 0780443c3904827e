package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/site"
	"github.com/starford/sitefeed/internal/testutil"
)

var testTokens = Tokens{
	"alice-token":  {Name: "alice"},
	"editor-token": {Name: "ed", Roles: []string{"editor"}},
}

func testFiles() map[string]string {
	return map[string]string{
		"docs/_index.md": "---\nformat: section\ntitle: Docs\nowner: alice\n---\n",
		"docs/a.md":      "---\nformat: news\ntitle: Alpha\ntags: [go]\n---\nalpha\n",
		"docs/b.md":      "---\nformat: news\ntitle: Beta\ntags: [go]\nstate: private\nowner: alice\n---\nbeta\n",
		"docs/c.md":      "---\nformat: webpage\ntitle: Gamma\ntags: [sql]\n---\ngamma\n",
	}
}

// testEnv sets up a temp site, SQLite catalog, service, and router for testing.
// required=true rejects requests without a token.
func testEnv(t *testing.T, required bool) (*site.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, required, nil)
}

func testEnvWithSSE(t *testing.T, required bool, sseHandler http.Handler) (*site.Service, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t, testFiles())
	svc := site.NewService(env.Store, env.DB, site.Config{
		BaseURL:     "https://example.org",
		Limits:      feed.Limits{DefaultBatchSize: 25, MaxBatchSize: 100},
		EditorRoles: []string{"editor"},
	}, testutil.Logger())
	return svc, NewRouter(svc, required, testTokens, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func pageTitles(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var page FeedPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v (%s)", err, w.Body.String())
	}
	out := make([]string, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.Title)
	}
	return out
}

func TestFeedEndpoint(t *testing.T) {
	_, router := testEnv(t, false)

	w := do(t, router, http.MethodGet, "/feeds/composite-view/docs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("feed status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := strings.Join(pageTitles(t, w), ","); got != "Alpha,Gamma" {
		t.Errorf("anonymous titles = %q", got)
	}

	w = do(t, router, http.MethodGet, "/feeds/composite-view/docs", "alice-token", nil)
	if got := strings.Join(pageTitles(t, w), ","); got != "Alpha,Beta,Gamma" {
		t.Errorf("owner titles = %q", got)
	}

	w = do(t, router, http.MethodGet, "/feeds/composite-view/docs?search_type=webpage", "", nil)
	if got := strings.Join(pageTitles(t, w), ","); got != "Gamma" {
		t.Errorf("faceted titles = %q", got)
	}
}

func TestFeedEndpoint_SiteRoot(t *testing.T) {
	_, router := testEnv(t, false)
	for _, target := range []string{"/feeds/composite-view", "/feeds/composite-view/"} {
		w := do(t, router, http.MethodGet, target, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", target, w.Code, w.Body.String())
		}
		if got := strings.Join(pageTitles(t, w), ","); got != "Docs" {
			t.Errorf("%s titles = %q", target, got)
		}
	}
}

func TestFeedEndpoint_Errors(t *testing.T) {
	_, router := testEnv(t, false)
	tests := []struct {
		target string
		want   int
	}{
		{"/feeds/no-such-view/docs", http.StatusNotFound},
		{"/feeds/composite-view/nowhere", http.StatusNotFound},
		{"/feeds/browse-navigator/docs", http.StatusForbidden},
		{"/feeds/composite-view/docs?sort_by=color", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(t, router, http.MethodGet, tt.target, "", nil)
		if w.Code != tt.want {
			t.Errorf("%s = %d, want %d", tt.target, w.Code, tt.want)
		}
	}
}

func TestFacetsEndpoint(t *testing.T) {
	_, router := testEnv(t, false)
	w := do(t, router, http.MethodGet, "/facets/details-view/docs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("facets status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FacetResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Types) != 2 || resp.Types[0].Name != "news" || resp.Types[1].Name != "webpage" {
		t.Errorf("types = %+v", resp.Types)
	}
}

func TestViewsEndpoint(t *testing.T) {
	_, router := testEnv(t, false)
	w := do(t, router, http.MethodGet, "/views", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("views status = %d", w.Code)
	}
	var resp ViewsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	found := false
	for _, v := range resp.Views {
		if v.Name == feed.ViewComposite {
			found = true
		}
	}
	if !found {
		t.Errorf("views = %+v, missing %s", resp.Views, feed.ViewComposite)
	}
}

func TestTagEndpoints(t *testing.T) {
	_, router := testEnv(t, false)

	w := do(t, router, http.MethodGet, "/tags", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cloud status = %d, body = %s", w.Code, w.Body.String())
	}
	var cloud TagCloudResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cloud)
	ids := map[string]bool{}
	for _, tw := range cloud.Tags {
		ids[tw.TagID] = true
	}
	if !ids["go"] || !ids["sql"] {
		t.Errorf("cloud tags = %+v", cloud.Tags)
	}

	w = do(t, router, http.MethodGet, "/tags?format=webpage", "", nil)
	cloud = TagCloudResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &cloud)
	for _, tw := range cloud.Tags {
		if tw.TagID == "go" {
			t.Errorf("go counted with format=webpage: %+v", tw)
		}
	}

	w = do(t, router, http.MethodGet, "/tags/go", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tag feed status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := strings.Join(pageTitles(t, w), ","); got != "Alpha" {
		t.Errorf("tag feed titles = %q", got)
	}
}

func TestBoxesEndpoint(t *testing.T) {
	_, router := testEnv(t, false)

	w := do(t, router, http.MethodGet, "/boxes/side/docs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("boxes status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp BoxesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Container != "/docs" || resp.Capability != "side" || resp.Boxes == nil {
		t.Errorf("boxes = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/boxes/both/docs", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad capability = %d, want 400", w.Code)
	}
}

func TestOrderEndpoints(t *testing.T) {
	_, router := testEnv(t, false)

	w := do(t, router, http.MethodGet, "/orders/children/docs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order = %d, body = %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag header")
	}

	// Anonymous viewers cannot edit.
	w = do(t, router, http.MethodPost, "/orders/children/docs", "", OrderOp{Kind: site.OpAppend, ID: "c"})
	if w.Code != http.StatusForbidden {
		t.Errorf("anonymous reorder = %d, want 403", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/children/docs", strings.NewReader(`{"op":"append","id":"c"}`))
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("If-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("reorder = %d, body = %s", w.Code, w.Body.String())
	}
	var o Order
	_ = json.Unmarshal(w.Body.Bytes(), &o)
	if len(o.IDs) != 1 || o.IDs[0] != "/docs/c" {
		t.Errorf("ids = %v", o.IDs)
	}

	// The old ETag is stale now.
	req = httptest.NewRequest(http.MethodPost, "/orders/children/docs", strings.NewReader(`{"op":"append","id":"a"}`))
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("If-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("stale If-Match = %d, want 412", w.Code)
	}

	w = do(t, router, http.MethodPost, "/orders/bogus/docs", "alice-token", OrderOp{Kind: site.OpAppend, ID: "a"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown set = %d, want 400", w.Code)
	}
}

func TestCreateAndDeleteItem(t *testing.T) {
	_, router := testEnv(t, false)
	body := CreateItemRequest{Container: "/docs", Name: "d", Content: "---\nformat: news\ntitle: Delta\n---\ndelta\n"}

	w := do(t, router, http.MethodPost, "/items", "", body)
	if w.Code != http.StatusForbidden {
		t.Errorf("anonymous create = %d, want 403", w.Code)
	}

	w = do(t, router, http.MethodPost, "/items", "editor-token", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/items", "editor-token", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodGet, "/feeds/composite-view/docs", "", nil)
	if got := strings.Join(pageTitles(t, w), ","); got != "Alpha,Delta,Gamma" {
		t.Errorf("titles after create = %q", got)
	}

	w = do(t, router, http.MethodDelete, "/items/docs/d", "editor-token", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodDelete, "/items/docs/d", "editor-token", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestCreateItem_BadBody(t *testing.T) {
	_, router := testEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer editor-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/items", "editor-token", CreateItemRequest{Container: "/docs", Name: "../x", Content: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad name = %d, want 400", w.Code)
	}
}

func TestReindexEndpoint(t *testing.T) {
	_, router := testEnv(t, false)
	w := do(t, router, http.MethodPost, "/reindex", "", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("anonymous reindex = %d, want 403", w.Code)
	}
	w = do(t, router, http.MethodPost, "/reindex", "editor-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex = %d, body = %s", w.Code, w.Body.String())
	}
	var stats ReindexResponse
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, true)
	w := do(t, router, http.MethodGet, "/views", "alice-token", nil)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, true)
	w := do(t, router, http.MethodGet, "/views", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, false)
	w := do(t, router, http.MethodGet, "/views", "wrong", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/views", nil)
	req.Header.Set("Authorization", "Basic YWxpY2U6eA==")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("basic auth = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ViewerInContext(t *testing.T) {
	var got access.Viewer
	h := AuthMiddleware(false, testTokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ViewerFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer editor-token")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got.Name != "ed" || !got.HasRole("editor") {
		t.Errorf("viewer = %+v", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !got.IsAnonymous() {
		t.Errorf("viewer without token = %+v, want anonymous", got)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, sseStub)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer alice-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
