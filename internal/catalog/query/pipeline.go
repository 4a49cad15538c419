package query

import (
	"sort"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// Query describes one listing view over a catalog snapshot
type Query struct {
	Term    string
	Search  SearchOptions
	Filters Filters
	Sort    SortKey
	// Limit <= 0 returns every match.
	Limit  int
	Offset int
}

// Page is a derived, throwaway view. Total counts matches before paging.
type Page struct {
	Items []domain.Product
	Total int
}

// Apply runs search, then filter, then sort, then paging. The input is never modified.
func Apply(products []domain.Product, q Query) Page {
	matched := Search(products, q.Term, q.Search)
	matched = Filter(matched, q.Filters)
	matched = Sort(matched, q.Sort)

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if q.Limit > 0 && offset+q.Limit < total {
		end = offset + q.Limit
	}

	return Page{Items: matched[offset:end], Total: total}
}

// Count is a facet value with the number of matching records
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PriceRange is the min and max price of a result set
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Facets summarizes a result set for building filter controls
type Facets struct {
	Total      int         `json:"total"`
	Categories []Count     `json:"categories"`
	Schools    []Count     `json:"schools"`
	Conditions []Count     `json:"conditions"`
	Price      *PriceRange `json:"priceRange,omitempty"`
}

// BuildFacets counts categories, schools and conditions and finds the price range.
// Counts are ordered by descending count, then value.
func BuildFacets(products []domain.Product) Facets {
	categories := make(map[string]int)
	schools := make(map[string]int)
	conditions := make(map[string]int)
	var price *PriceRange

	for _, p := range products {
		if p.Category != "" {
			categories[p.Category]++
		}
		if p.School != "" {
			schools[p.School]++
		}
		if c := p.Condition.Normalize(); c != "" {
			conditions[string(c)]++
		}
		if price == nil {
			price = &PriceRange{Min: p.Price, Max: p.Price}
			continue
		}
		if p.Price < price.Min {
			price.Min = p.Price
		}
		if p.Price > price.Max {
			price.Max = p.Price
		}
	}

	return Facets{
		Total:      len(products),
		Categories: sortedCounts(categories),
		Schools:    sortedCounts(schools),
		Conditions: sortedCounts(conditions),
		Price:      price,
	}
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for v, n := range m {
		out = append(out, Count{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
