package store

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
)

// ErrSlugTaken is returned when a write would give a slug to a second product
var ErrSlugTaken = errors.New("slug belongs to another product")

// Store owns the in-memory catalog snapshot. All reads hand out copies and
// all writes happen under one lock, so readers never see a half-replaced list.
type Store struct {
	mu       sync.RWMutex
	products []domain.Product
	byID     map[int64]int
	bySlug   map[string]int
	loading  bool
	err      string
}

// New creates an empty store
func New() *Store {
	return &Store{
		byID:   make(map[int64]int),
		bySlug: make(map[string]int),
	}
}

// SetAll replaces every record and clears the error. Loading is left alone.
// Records sharing an id collapse to the last occurrence.
func (s *Store) SetAll(products []domain.Product) {
	next := make([]domain.Product, 0, len(products))
	byID := make(map[int64]int, len(products))
	for _, p := range products {
		if i, ok := byID[p.ID]; ok {
			next[i] = p.Clone()
			continue
		}
		byID[p.ID] = len(next)
		next = append(next, p.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = next
	s.byID = byID
	s.reindexSlugs()
	s.err = ""
}

// UpsertOne inserts p or replaces the record with the same id. The stored
// slug of an existing record is kept; a slug owned by another id is refused.
func (s *Store) UpsertOne(p domain.Product) error {
	p = p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[p.ID]; ok {
		old := s.products[i]
		if old.Slug != "" {
			p.Slug = old.Slug
		} else if p.Slug != "" {
			if err := s.claimSlug(p.Slug, i); err != nil {
				return err
			}
		}
		s.products[i] = p
		return nil
	}

	i := len(s.products)
	if p.Slug != "" {
		if err := s.claimSlug(p.Slug, i); err != nil {
			return err
		}
	}
	s.byID[p.ID] = i
	s.products = append(s.products, p)
	return nil
}

// RemoveOne deletes the record with id; unknown ids are ignored
func (s *Store) RemoveOne(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return
	}
	s.products = append(s.products[:i], s.products[i+1:]...)
	s.reindex()
}

// PatchOne applies patch to the record with id and reports whether it existed.
// A patch that would leave the record invalid is refused and nothing changes.
func (s *Store) PatchOne(id int64, patch domain.ProductPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	next := patch.Apply(s.products[i])
	if err := next.Validate(); err != nil {
		return true, errors.Wrapf(err, "patch of product %d", id)
	}
	s.products[i] = next
	return true, nil
}

func (s *Store) GetByID(id int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i].Clone(), true
}

func (s *Store) GetBySlug(slug string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.bySlug[slug]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i].Clone(), true
}

// Records returns a copy of the current records
func (s *Store) Records() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyProducts()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// Snapshot returns records and flags read under a single lock
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{
		Products: s.copyProducts(),
		Loading:  s.loading,
		Error:    s.err,
	}
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// SetError records a user-facing message; "" clears it
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset drops all records and flags
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = nil
	s.byID = make(map[int64]int)
	s.bySlug = make(map[string]int)
	s.loading = false
	s.err = ""
}

func (s *Store) copyProducts() []domain.Product {
	out := make([]domain.Product, len(s.products))
	for i := range s.products {
		out[i] = s.products[i].Clone()
	}
	return out
}

// claimSlug indexes slug to position i unless another record owns it
func (s *Store) claimSlug(slug string, i int) error {
	if owner, taken := s.bySlug[slug]; taken && owner != i {
		return errors.Wrapf(ErrSlugTaken, "slug %q", slug)
	}
	s.bySlug[slug] = i
	return nil
}

func (s *Store) reindex() {
	s.byID = make(map[int64]int, len(s.products))
	for i, p := range s.products {
		s.byID[p.ID] = i
	}
	s.reindexSlugs()
}

func (s *Store) reindexSlugs() {
	s.bySlug = make(map[string]int, len(s.products))
	for i, p := range s.products {
		if p.Slug != "" {
			s.bySlug[p.Slug] = i
		}
	}
}
