package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
	"github.com/tair/marketplace-catalog/pkg/clock"
)

func listing(id int64, slug string) *domain.Product {
	return &domain.Product{
		ID:       id,
		Slug:     slug,
		Title:    "Listing " + slug,
		Category: "Books",
		Price:    1000,
		SellerID: "seller-1",
	}
}

func message(t *testing.T, eventType string, event ListingEvent) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic: TopicListings,
		Value: payload,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte("evt-1")},
		},
	}
}

func TestStoreApplierLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	a := NewStoreApplier(s)

	require.NoError(t, a.Created(ctx, ListingEvent{Product: listing(1, "novel")}))
	got, ok := s.GetBySlug("novel")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)

	price := 750.0
	require.NoError(t, a.Updated(ctx, ListingEvent{ProductID: 1, Patch: &domain.ProductPatch{Price: &price}}))
	got, _ = s.GetByID(1)
	assert.Equal(t, 750.0, got.Price)
	assert.Equal(t, "novel", got.Slug)

	require.NoError(t, a.Deleted(ctx, ListingEvent{ProductID: 1}))
	_, ok = s.GetByID(1)
	assert.False(t, ok)
}

func TestStoreApplierUpdateOfUncachedListing(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	a := NewStoreApplier(s)
	price := 10.0

	require.NoError(t, a.Updated(ctx, ListingEvent{ProductID: 5, Patch: &domain.ProductPatch{Price: &price}}))
	assert.Zero(t, s.Len(), "patch without a cached record is ignored")

	require.NoError(t, a.Updated(ctx, ListingEvent{ProductID: 5, Product: listing(5, "chair")}))
	_, ok := s.GetByID(5)
	assert.True(t, ok, "full product is upserted")
}

func TestStoreApplierRejectsBadEvents(t *testing.T) {
	ctx := context.Background()
	a := NewStoreApplier(store.New())

	assert.Error(t, a.Created(ctx, ListingEvent{}))

	bad := listing(2, "x")
	bad.Price = -1
	assert.ErrorIs(t, a.Created(ctx, ListingEvent{Product: bad}), domain.ErrNegativePrice)

	assert.ErrorIs(t, a.Deleted(ctx, ListingEvent{}), domain.ErrMissingID)
	assert.ErrorIs(t, a.Updated(ctx, ListingEvent{}), domain.ErrMissingID)
}

func TestStoreApplierKeepsRecordsValid(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	a := NewStoreApplier(s)

	p := listing(1, "bike")
	sellerAmount := 900.0
	p.SellerAmount = &sellerAmount
	require.NoError(t, a.Created(ctx, ListingEvent{Product: p}))

	price := 100.0
	err := a.Updated(ctx, ListingEvent{ProductID: 1, Patch: &domain.ProductPatch{Price: &price}})
	assert.ErrorIs(t, err, domain.ErrSellerAmountAbovePrice)
	got, _ := s.GetByID(1)
	assert.Equal(t, 1000.0, got.Price)

	err = a.Created(ctx, ListingEvent{Product: listing(2, "bike")})
	assert.ErrorIs(t, err, store.ErrSlugTaken)
	_, ok := s.GetByID(2)
	assert.False(t, ok)
	got, _ = s.GetBySlug("bike")
	assert.Equal(t, int64(1), got.ID)
}

func TestConsumerDispatchesByHeader(t *testing.T) {
	ctx := context.Background()
	s := store.New()
	c := newConsumer([]string{TopicListings})
	NewStoreApplier(s).Register(c)

	require.NoError(t, c.handle(ctx, message(t, EventTypeListingCreated, ListingEvent{Product: listing(3, "lamp")})))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, c.handle(ctx, message(t, EventTypeListingDeleted, ListingEvent{ProductID: 3})))
	assert.Zero(t, s.Len())
}

func TestConsumerFallsBackToPayloadEventType(t *testing.T) {
	s := store.New()
	c := newConsumer([]string{TopicListings})
	NewStoreApplier(s).Register(c)

	payload, err := json.Marshal(ListingEvent{EventType: EventTypeListingCreated, Product: listing(4, "desk")})
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), &sarama.ConsumerMessage{Value: payload}))
	assert.Equal(t, 1, s.Len())
}

func TestConsumerSkipsUnusableMessages(t *testing.T) {
	ctx := context.Background()
	c := newConsumer([]string{TopicListings})
	NewStoreApplier(store.New()).Register(c)

	err := c.handle(ctx, &sarama.ConsumerMessage{Value: []byte("{broken")})
	assert.Error(t, err)

	err = c.handle(ctx, message(t, "listing.archived", ListingEvent{ProductID: 1}))
	assert.ErrorContains(t, err, "no handler registered")
}

func TestPublisherCatalogRefreshed(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event CatalogRefreshedEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if _, err := uuid.Parse(event.EventID); err != nil {
			return errors.Wrap(err, "event id")
		}
		if event.EventType != EventTypeCatalogRefreshed || event.Count != 42 || event.Service != "catalog" {
			return errors.Newf("unexpected event %+v", event)
		}
		if !event.Timestamp.Equal(now) {
			return errors.Newf("unexpected timestamp %s", event.Timestamp)
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, "catalog", clock.NewMockClock(now))
	require.NoError(t, p.CatalogRefreshed(context.Background(), 42))
	require.NoError(t, p.Close())
}

func TestPublisherSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, "catalog", clock.NewRealClock())
	err := p.CatalogRefreshed(context.Background(), 1)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
