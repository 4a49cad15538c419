package events

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

// StoreApplier mirrors seller edits into the cached catalog between refreshes
type StoreApplier struct {
	store *store.Store
}

func NewStoreApplier(s *store.Store) *StoreApplier {
	return &StoreApplier{store: s}
}

// Register installs the applier for every listing event type
func (a *StoreApplier) Register(c *Consumer) {
	c.RegisterHandler(EventTypeListingCreated, a.Created)
	c.RegisterHandler(EventTypeListingUpdated, a.Updated)
	c.RegisterHandler(EventTypeListingDeleted, a.Deleted)
}

func (a *StoreApplier) Created(ctx context.Context, event ListingEvent) error {
	if event.Product == nil {
		return errors.New("listing.created without product")
	}
	if err := event.Product.Validate(); err != nil {
		return errors.Wrap(err, "invalid listing")
	}
	if err := a.store.UpsertOne(*event.Product); err != nil {
		return errors.Wrap(err, "listing not applied")
	}
	logger.Debug(ctx).Int64("product_id", event.Product.ID).Msg("Listing added to catalog")
	return nil
}

// Updated patches the cached record. A full Product in the event is used
// when the record is not cached yet.
func (a *StoreApplier) Updated(ctx context.Context, event ListingEvent) error {
	id := event.ProductID
	if id == 0 && event.Product != nil {
		id = event.Product.ID
	}
	if id == 0 {
		return domain.ErrMissingID
	}

	if event.Patch != nil {
		found, err := a.store.PatchOne(id, *event.Patch)
		if err != nil {
			return errors.Wrap(err, "listing update not applied")
		}
		if found {
			logger.Debug(ctx).Int64("product_id", id).Msg("Listing patched in catalog")
			return nil
		}
	}
	if event.Product != nil {
		return a.Created(ctx, event)
	}

	logger.Debug(ctx).Int64("product_id", id).Msg("Update for uncached listing ignored")
	return nil
}

func (a *StoreApplier) Deleted(ctx context.Context, event ListingEvent) error {
	if event.ProductID == 0 {
		return domain.ErrMissingID
	}
	a.store.RemoveOne(event.ProductID)
	logger.Debug(ctx).Int64("product_id", event.ProductID).Msg("Listing removed from catalog")
	return nil
}
