package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/pkg/clock"
)

// ProductsKey is where the catalog snapshot lives in every backend
const ProductsKey = "catalog:products"

type document struct {
	SavedAt  time.Time        `json:"savedAt"`
	Products []domain.Product `json:"products"`
}

// Repository reads and writes the product snapshot through a KV
type Repository struct {
	kv    KV
	clock clock.Clock
}

func NewRepository(kv KV, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Repository{kv: kv, clock: clk}
}

// Load returns the persisted products; found is false when nothing was saved yet
func (r *Repository) Load(ctx context.Context) ([]domain.Product, bool, error) {
	raw, found, err := r.kv.Get(ctx, ProductsKey)
	if err != nil || !found {
		return nil, false, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, errors.Wrap(err, "decode catalog snapshot")
	}
	return doc.Products, true, nil
}

func (r *Repository) Save(ctx context.Context, products []domain.Product) error {
	raw, err := json.Marshal(document{SavedAt: r.clock.Now().UTC(), Products: products})
	if err != nil {
		return errors.Wrap(err, "encode catalog snapshot")
	}
	return r.kv.Put(ctx, ProductsKey, raw)
}

// SavedAt returns when the snapshot was written, for startup diagnostics
func (r *Repository) SavedAt(ctx context.Context) (time.Time, bool, error) {
	raw, found, err := r.kv.Get(ctx, ProductsKey)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	var doc struct {
		SavedAt time.Time `json:"savedAt"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return time.Time{}, false, errors.Wrap(err, "decode catalog snapshot")
	}
	return doc.SavedAt, true, nil
}
