package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/site"
)

// Handler holds API route handlers.
type Handler struct {
	svc *site.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *site.Service) *Handler {
	return &Handler{svc: svc}
}

// containerPath extracts the absolute item path from the wildcard part of
// the URL. Supports encoded slashes from OpenAPI clients (e.g. news%2F2024).
func containerPath(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return "/" + raw
}

// Feed handles GET /api/feeds/{view}/*.
//
//	@Summary		Render a feed view of a container
//	@Tags			feeds
//	@Produce		json
//	@Param			view		path		string	true	"View name"	Enums(composite-view, details-view, news-view, tag-view, browse-navigator)
//	@Param			path		path		string	false	"Container path"
//	@Param			b_start		query		int		false	"Batch offset"
//	@Param			batch_size	query		int		false	"Batch size"
//	@Param			sort_by		query		string	false	"Sort key"
//	@Param			reverse		query		bool	false	"Reverse the sort"
//	@Param			search_type	query		string	false	"Format facet"
//	@Param			search_text	query		string	false	"Free text"
//	@Success		200			{object}	FeedPage
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/feeds/{view}/{path} [get]
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	page, err := h.svc.Feed(r.Context(), view, containerPath(r), ViewerFrom(r.Context()), r.URL.Query())
	if err != nil {
		writeError(w, "feed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Facets handles GET /api/facets/{view}/*.
//
//	@Summary		List the type facet of a feed view
//	@Tags			feeds
//	@Produce		json
//	@Param			view	path		string	true	"View name"
//	@Param			path	path		string	false	"Container path"
//	@Success		200		{object}	FacetResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/facets/{view}/{path} [get]
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	opts, err := h.svc.SearchTypes(r.Context(), view, containerPath(r), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, "facets", err)
		return
	}
	writeJSON(w, http.StatusOK, FacetResponse{Types: opts})
}

// TagCloud handles GET /api/tags.
//
//	@Summary		Weighted tag cloud
//	@Tags			tags
//	@Produce		json
//	@Param			format	query		[]string	false	"Restrict counts to formats"
//	@Success		200		{object}	TagCloudResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) TagCloud(w http.ResponseWriter, r *http.Request) {
	var formats []string
	if fs, ok := r.URL.Query()["format"]; ok {
		formats = splitList(fs)
	}
	ws, err := h.svc.TagCloud(r.Context(), ViewerFrom(r.Context()), formats)
	if err != nil {
		writeError(w, "tag cloud", err)
		return
	}
	if ws == nil {
		ws = []TagWeight{}
	}
	writeJSON(w, http.StatusOK, TagCloudResponse{Tags: ws})
}

// TagFeed handles GET /api/tags/{tag}.
//
//	@Summary		List items carrying a tag
//	@Tags			tags
//	@Produce		json
//	@Param			tag		path		string	true	"Tag id"
//	@Param			b_start	query		int		false	"Batch offset"
//	@Param			batch_size	query	int		false	"Batch size"
//	@Success		200		{object}	FeedPage
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags/{tag} [get]
func (h *Handler) TagFeed(w http.ResponseWriter, r *http.Request) {
	tag, err := url.PathUnescape(chi.URLParam(r, "tag"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid tag"))
		return
	}
	page, err := h.svc.TagFeed(r.Context(), tag, ViewerFrom(r.Context()), r.URL.Query())
	if err != nil {
		writeError(w, "tag feed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Boxes handles GET /api/boxes/{capability}/*.
//
//	@Summary		Compose the side or content bar of a container
//	@Tags			boxes
//	@Produce		json
//	@Param			capability	path		string	true	"Bar"	Enums(side, content)
//	@Param			path		path		string	false	"Container path"
//	@Success		200			{object}	BoxesResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/boxes/{capability}/{path} [get]
func (h *Handler) Boxes(w http.ResponseWriter, r *http.Request) {
	capability, err := boxes.ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		writeError(w, "boxes", err)
		return
	}
	container := containerPath(r)
	bs, err := h.svc.Boxes(r.Context(), container, ViewerFrom(r.Context()), capability)
	if err != nil {
		writeError(w, "boxes", err)
		return
	}
	writeJSON(w, http.StatusOK, BoxesResponse{Container: container, Capability: string(capability), Boxes: bs})
}

// GetOrder handles GET /api/orders/{set}/*.
//
//	@Summary		Read an ordered set
//	@Tags			orders
//	@Produce		json
//	@Param			set		path		string	true	"Set name"	Enums(children, sidebar, contentbar)
//	@Param			path	path		string	false	"Container path"
//	@Success		200		{object}	Order
//	@Header			200		{string}	ETag	"Checksum of the current order"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/orders/{set}/{path} [get]
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.OrderIDs(r.Context(), containerPath(r), chi.URLParam(r, "set"), ViewerFrom(r.Context()))
	if err != nil {
		writeError(w, "get order", err)
		return
	}
	w.Header().Set("ETag", `"`+o.ETag+`"`)
	writeJSON(w, http.StatusOK, o)
}

// Reorder handles POST /api/orders/{set}/*.
//
//	@Summary		Apply one operation to an ordered set
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			set			path		string	true	"Set name"	Enums(children, sidebar, contentbar)
//	@Param			path		path		string	false	"Container path"
//	@Param			If-Match	header		string	false	"ETag for optimistic concurrency"
//	@Param			body		body		OrderOp	true	"Operation"
//	@Success		200			{object}	Order
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/orders/{set}/{path} [post]
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var op OrderOp
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	o, err := h.svc.Reorder(r.Context(), containerPath(r), chi.URLParam(r, "set"), ViewerFrom(r.Context()), ifMatch, op)
	if err != nil {
		writeError(w, "reorder", err)
		return
	}
	w.Header().Set("ETag", `"`+o.ETag+`"`)
	writeJSON(w, http.StatusOK, o)
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create an item inside a container
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and content are required"))
		return
	}
	it, err := h.svc.CreateItem(r.Context(), req.Container, ViewerFrom(r.Context()), req.Name, []byte(req.Content))
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// DeleteItem handles DELETE /api/items/*.
//
//	@Summary		Delete an item
//	@Tags			items
//	@Param			path	path	string	true	"Item path"
//	@Success		204		"Item deleted"
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{path} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	p := containerPath(r)
	if p == "/" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteItem(r.Context(), p, ViewerFrom(r.Context())); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Rebuild the catalog from storage
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	ReindexResponse
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if ViewerFrom(r.Context()).IsAnonymous() {
		writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
		return
	}
	stats, err := h.svc.Reindex(r.Context())
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Views handles GET /api/views.
//
//	@Summary		List the configured feed views
//	@Tags			feeds
//	@Produce		json
//	@Success		200	{object}	ViewsResponse
//	@Security		BearerAuth
//	@Router			/views [get]
func (h *Handler) Views(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ViewsResponse{Views: h.svc.Views()})
}

// splitList flattens repeated and comma-separated query values.
func splitList(vals []string) []string {
	out := []string{}
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
