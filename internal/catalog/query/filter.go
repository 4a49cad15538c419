package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// Filters holds the optional listing predicates. Zero values mean "any".
type Filters struct {
	Category  string
	School    string
	Condition domain.Condition
	MinPrice  *float64
	MaxPrice  *float64
}

// IsZero reports whether no predicate is set
func (f Filters) IsZero() bool {
	return f.Category == "" && f.School == "" && f.Condition == "" && f.MinPrice == nil && f.MaxPrice == nil
}

// ParseFilters builds Filters from raw request values. Price bounds that are
// not finite non-negative numbers are dropped rather than reported.
func ParseFilters(category, school, condition, minPrice, maxPrice string) Filters {
	return Filters{
		Category:  strings.TrimSpace(category),
		School:    strings.TrimSpace(school),
		Condition: domain.Condition(condition).Normalize(),
		MinPrice:  parsePrice(minPrice),
		MaxPrice:  parsePrice(maxPrice),
	}
}

func parsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > maxPrice {
		return nil
	}
	return &v
}

const maxPrice = 1e15

// Filter keeps records satisfying every provided predicate, in input order
func Filter(products []domain.Product, f Filters) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	if f.IsZero() {
		return append(out, products...)
	}
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Match reports whether p satisfies all provided predicates
func (f Filters) Match(p domain.Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.School != "" && p.School != f.School {
		return false
	}
	if f.Condition != "" && p.Condition.Normalize() != f.Condition.Normalize() {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}
