package api

import (
	"github.com/starford/sitefeed/internal/boxes"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/index"
	"github.com/starford/sitefeed/internal/site"
	"github.com/starford/sitefeed/internal/tagcloud"
)

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	Container string `json:"container" example:"/news" validate:"required"`
	Name      string `json:"name" example:"launch" validate:"required"`
	Content   string `json:"content" example:"---\nformat: news\ntitle: Launch\n---\nWe launched." validate:"required"`
}

// FeedPage is one batch of a feed (aliased from the domain layer).
type FeedPage = feed.Page

// FacetOption is one entry of the type facet (aliased from the domain layer).
type FacetOption = feed.FacetOption

// FacetResponse wraps the type facet options of a view.
type FacetResponse struct {
	Types []FacetOption `json:"types" validate:"required"`
}

// TagWeight is one tag cloud entry (aliased from the domain layer).
type TagWeight = tagcloud.Weight

// TagCloudResponse wraps the weighted tags.
type TagCloudResponse struct {
	Tags []TagWeight `json:"tags" validate:"required"`
}

// Box is one composed box (aliased from the domain layer).
type Box = boxes.Box

// BoxesResponse wraps a composed bar.
type BoxesResponse struct {
	Container  string `json:"container" example:"/news" validate:"required"`
	Capability string `json:"capability" example:"side" validate:"required"`
	Boxes      []Box  `json:"boxes" validate:"required"`
}

// OrderOp is a reorder request body (aliased from the domain layer).
type OrderOp = site.Op

// Order is the state of an ordered set (aliased from the domain layer).
type Order = site.Order

// ViewsResponse lists the configured views.
type ViewsResponse struct {
	Views []feed.ViewConfig `json:"views" validate:"required"`
}

// ReindexResponse reports the outcome of a full reindex.
type ReindexResponse = index.SyncStats
