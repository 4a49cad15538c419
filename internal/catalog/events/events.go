package events

import (
	"time"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// Event types
const (
	EventTypeListingCreated   = "listing.created"
	EventTypeListingUpdated   = "listing.updated"
	EventTypeListingDeleted   = "listing.deleted"
	EventTypeCatalogRefreshed = "catalog.refreshed"
)

// Kafka topics
const (
	TopicListings         = "marketplace-listings"
	TopicCatalogRefreshed = "catalog-refreshed"
)

// ListingEvent is emitted by the marketplace when a seller creates, edits or
// deletes a listing. Created carries the full Product; updated carries a Patch
// and optionally the full Product; deleted only needs ProductID.
type ListingEvent struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	ProductID int64                `json:"product_id"`
	Product   *domain.Product      `json:"product,omitempty"`
	Patch     *domain.ProductPatch `json:"patch,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// CatalogRefreshedEvent announces that the cached catalog was reloaded from
// the marketplace API
type CatalogRefreshedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Service   string    `json:"service"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
