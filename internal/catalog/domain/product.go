package domain

import (
	"strings"
	"time"
)

// Condition is the wear grade of a listing
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionGood Condition = "good"
	ConditionUsed Condition = "used"
)

// Normalize lowercases and trims the condition for comparisons
func (c Condition) Normalize() Condition {
	return Condition(strings.ToLower(strings.TrimSpace(string(c))))
}

// Valid reports whether c is one of the known grades
func (c Condition) Valid() bool {
	switch c.Normalize() {
	case ConditionNew, ConditionGood, ConditionUsed:
		return true
	}
	return false
}

// Product is one marketplace listing as served by the marketplace API.
// Seller display fields are denormalized copies and are never authoritative.
type Product struct {
	ID           int64     `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Condition    Condition `json:"condition"`
	School       string    `json:"school"`
	Price        float64   `json:"price"`
	SellerAmount *float64  `json:"sellerAmount,omitempty"`
	Images       []string  `json:"images"`
	SellerID     string    `json:"sellerId"`
	SellerName   string    `json:"sellerName,omitempty"`
	SellerAvatar string    `json:"sellerAvatar,omitempty"`
	SellerCampus string    `json:"sellerCampus,omitempty"`
	SellerRating float64   `json:"sellerRating,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Thumbnail returns the canonical listing image, or "" when there is none
func (p *Product) Thumbnail() string {
	return p.Image(0)
}

// Image returns the image at index i. Out-of-range indexes wrap around, so
// carousels can step past either end without bounds checks.
func (p *Product) Image(i int) string {
	n := len(p.Images)
	if n == 0 {
		return ""
	}
	i %= n
	if i < 0 {
		i += n
	}
	return p.Images[i]
}

// Validate checks the invariants a record must hold to enter a snapshot
func (p *Product) Validate() error {
	switch {
	case p.ID == 0:
		return ErrMissingID
	case strings.TrimSpace(p.Slug) == "":
		return ErrMissingSlug
	case strings.TrimSpace(p.Title) == "":
		return ErrEmptyTitle
	case p.SellerID == "":
		return ErrMissingSeller
	case p.Price < 0:
		return ErrNegativePrice
	case p.SellerAmount != nil && *p.SellerAmount > p.Price:
		return ErrSellerAmountAbovePrice
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias store-owned slices
func (p Product) Clone() Product {
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	if p.SellerAmount != nil {
		v := *p.SellerAmount
		p.SellerAmount = &v
	}
	return p
}

// ProductPatch carries the fields of a seller edit. Nil fields are left untouched.
// ID and slug are deliberately absent: the slug is a routing key and never changes.
type ProductPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Condition    *Condition `json:"condition,omitempty"`
	School       *string    `json:"school,omitempty"`
	Price        *float64   `json:"price,omitempty"`
	SellerAmount *float64   `json:"sellerAmount,omitempty"`
	Images       []string   `json:"images,omitempty"`
	SellerName   *string    `json:"sellerName,omitempty"`
	SellerAvatar *string    `json:"sellerAvatar,omitempty"`
	SellerCampus *string    `json:"sellerCampus,omitempty"`
	SellerRating *float64   `json:"sellerRating,omitempty"`
}

// Apply returns p with the patch applied
func (pp ProductPatch) Apply(p Product) Product {
	p.Title = coalesce(pp.Title, p.Title)
	p.Description = coalesce(pp.Description, p.Description)
	p.Category = coalesce(pp.Category, p.Category)
	p.Condition = coalesce(pp.Condition, p.Condition)
	p.School = coalesce(pp.School, p.School)
	p.Price = coalesce(pp.Price, p.Price)
	if pp.SellerAmount != nil {
		v := *pp.SellerAmount
		p.SellerAmount = &v
	}
	if pp.Images != nil {
		p.Images = append([]string(nil), pp.Images...)
	}
	p.SellerName = coalesce(pp.SellerName, p.SellerName)
	p.SellerAvatar = coalesce(pp.SellerAvatar, p.SellerAvatar)
	p.SellerCampus = coalesce(pp.SellerCampus, p.SellerCampus)
	p.SellerRating = coalesce(pp.SellerRating, p.SellerRating)
	return p
}

func coalesce[T any](ptr *T, fallback T) T {
	if ptr != nil {
		return *ptr
	}
	return fallback
}

// Snapshot is a point-in-time copy of the catalog held by the store
type Snapshot struct {
	Products []Product
	Loading  bool
	Error    string
}

// ListResponse is the marketplace API envelope for the product listing.
// Success=false is treated the same as a transport failure.
type ListResponse struct {
	Success bool      `json:"success"`
	Items   []Product `json:"items"`
	Message string    `json:"message,omitempty"`
}
