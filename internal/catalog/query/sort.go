package query

import (
	"sort"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// SortKey names a listing order
type SortKey string

const (
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortNewest    SortKey = "newest"
)

// Sort returns a stably ordered copy of products. Unknown keys keep input order.
func Sort(products []domain.Product, key SortKey) []domain.Product {
	out := append([]domain.Product(nil), products...)

	var less func(a, b domain.Product) bool
	switch key {
	case SortPriceLow:
		less = func(a, b domain.Product) bool { return a.Price < b.Price }
	case SortPriceHigh:
		less = func(a, b domain.Product) bool { return a.Price > b.Price }
	case SortNewest:
		less = func(a, b domain.Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
