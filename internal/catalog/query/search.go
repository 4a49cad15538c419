package query

import (
	"strings"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// SearchOptions widens the fields a search term is matched against
type SearchOptions struct {
	// IncludeCategory also matches the category name. Admin listings use it.
	IncludeCategory bool
}

// Search keeps records whose title or description contain term, ignoring case.
// A blank term matches everything.
func Search(products []domain.Product, term string, opts SearchOptions) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if needle == "" || matches(p, needle, opts) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p domain.Product, needle string, opts SearchOptions) bool {
	if strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	return opts.IncludeCategory && strings.Contains(strings.ToLower(p.Category), needle)
}
