package similar

import (
	"math"
	"sort"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// DefaultLimit is how many similar listings a product page shows
const DefaultLimit = 6

// FindSimilar ranks listings from other sellers in the anchor's category by
// closeness in price, newest first on ties. The anchor does not have to be
// part of products. A limit <= 0 uses DefaultLimit.
func FindSimilar(anchor domain.Product, products []domain.Product, limit int) []domain.Product {
	if limit <= 0 {
		limit = DefaultLimit
	}

	type candidate struct {
		product  domain.Product
		distance float64
	}

	candidates := make([]candidate, 0)
	for _, p := range products {
		if p.ID == anchor.ID || p.Category != anchor.Category || p.SellerID == anchor.SellerID {
			continue
		}
		candidates = append(candidates, candidate{product: p, distance: math.Abs(p.Price - anchor.Price)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].product.CreatedAt.After(candidates[j].product.CreatedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.Product, len(candidates))
	for i, c := range candidates {
		out[i] = c.product
	}
	return out
}
