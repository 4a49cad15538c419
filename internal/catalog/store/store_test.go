package store_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
)

func product(id int64, slug string) domain.Product {
	return domain.Product{
		ID:        id,
		Slug:      slug,
		Title:     "Item " + slug,
		Category:  "Books",
		Price:     1000,
		Images:    []string{"https://cdn.example/" + slug + ".jpg"},
		SellerID:  "seller-1",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSetAll(t *testing.T) {
	t.Run("replaces records and clears error", func(t *testing.T) {
		s := store.New()
		s.SetAll([]domain.Product{product(1, "a")})
		s.SetError("boom")
		s.SetLoading(true)

		s.SetAll([]domain.Product{product(2, "b"), product(3, "c")})

		snap := s.Snapshot()
		require.Len(t, snap.Products, 2)
		assert.Empty(t, snap.Error)
		assert.True(t, snap.Loading, "SetAll must not touch loading")
		_, ok := s.GetByID(1)
		assert.False(t, ok)
	})

	t.Run("duplicate ids collapse to the last record", func(t *testing.T) {
		s := store.New()
		first := product(1, "a")
		second := product(1, "a")
		second.Title = "newer"

		s.SetAll([]domain.Product{first, product(2, "b"), second})

		require.Equal(t, 2, s.Len())
		got, ok := s.GetByID(1)
		require.True(t, ok)
		assert.Equal(t, "newer", got.Title)
	})

	t.Run("stored records are isolated from caller slices", func(t *testing.T) {
		s := store.New()
		in := []domain.Product{product(1, "a")}
		s.SetAll(in)
		in[0].Images[0] = "mutated"

		got, _ := s.GetByID(1)
		assert.Equal(t, "https://cdn.example/a.jpg", got.Images[0])
	})
}

func TestLookups(t *testing.T) {
	s := store.New()
	s.SetAll([]domain.Product{product(1, "calc-book"), product(2, "lamp")})

	p, ok := s.GetBySlug("lamp")
	require.True(t, ok)
	assert.Equal(t, int64(2), p.ID)

	_, ok = s.GetBySlug("missing")
	assert.False(t, ok)
	_, ok = s.GetByID(99)
	assert.False(t, ok)
}

func TestSingleRecordMutations(t *testing.T) {
	t.Run("upsert inserts then replaces keeping slug", func(t *testing.T) {
		s := store.New()
		require.NoError(t, s.UpsertOne(product(1, "a")))
		changed := product(1, "renamed")
		changed.Price = 5
		require.NoError(t, s.UpsertOne(changed))

		require.Equal(t, 1, s.Len())
		got, ok := s.GetBySlug("a")
		require.True(t, ok)
		assert.Equal(t, 5.0, got.Price)
		_, ok = s.GetBySlug("renamed")
		assert.False(t, ok)
	})

	t.Run("remove reindexes remaining records", func(t *testing.T) {
		s := store.New()
		s.SetAll([]domain.Product{product(1, "a"), product(2, "b"), product(3, "c")})
		s.RemoveOne(2)
		s.RemoveOne(42)

		require.Equal(t, 2, s.Len())
		got, ok := s.GetBySlug("c")
		require.True(t, ok)
		assert.Equal(t, int64(3), got.ID)
	})

	t.Run("patch touches only provided fields", func(t *testing.T) {
		s := store.New()
		s.SetAll([]domain.Product{product(1, "a")})
		price := 250.0
		cond := domain.ConditionUsed

		ok, err := s.PatchOne(1, domain.ProductPatch{Price: &price, Condition: &cond})
		require.NoError(t, err)
		require.True(t, ok)

		got, _ := s.GetByID(1)
		assert.Equal(t, 250.0, got.Price)
		assert.Equal(t, domain.ConditionUsed, got.Condition)
		assert.Equal(t, "Item a", got.Title)
		assert.Equal(t, "a", got.Slug)

		ok, err = s.PatchOne(7, domain.ProductPatch{Price: &price})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("patch leaving an invalid record is refused", func(t *testing.T) {
		s := store.New()
		p := product(1, "a")
		sellerAmount := 900.0
		p.SellerAmount = &sellerAmount
		s.SetAll([]domain.Product{p})
		price := 100.0

		ok, err := s.PatchOne(1, domain.ProductPatch{Price: &price})
		assert.True(t, ok)
		assert.ErrorIs(t, err, domain.ErrSellerAmountAbovePrice)

		got, _ := s.GetByID(1)
		assert.Equal(t, 1000.0, got.Price)
		assert.NoError(t, got.Validate())
	})

	t.Run("upsert refuses a slug owned by another id", func(t *testing.T) {
		s := store.New()
		require.NoError(t, s.UpsertOne(product(1, "dup")))

		err := s.UpsertOne(product(2, "dup"))
		assert.ErrorIs(t, err, store.ErrSlugTaken)

		assert.Equal(t, 1, s.Len())
		got, ok := s.GetBySlug("dup")
		require.True(t, ok)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("upsert indexes a slug given to a record without one", func(t *testing.T) {
		s := store.New()
		s.SetAll([]domain.Product{product(1, ""), product(2, "taken")})

		require.NoError(t, s.UpsertOne(product(1, "new")))
		got, ok := s.GetBySlug("new")
		require.True(t, ok)
		assert.Equal(t, int64(1), got.ID)

		s.SetAll([]domain.Product{product(1, ""), product(2, "taken")})
		assert.ErrorIs(t, s.UpsertOne(product(1, "taken")), store.ErrSlugTaken)
		got, _ = s.GetByID(1)
		assert.Empty(t, got.Slug)
	})
}

func TestReset(t *testing.T) {
	s := store.New()
	s.SetAll([]domain.Product{product(1, "a")})
	s.SetLoading(true)
	s.SetError("x")

	s.Reset()

	snap := s.Snapshot()
	assert.Empty(t, snap.Products)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := store.New()
	small := []domain.Product{product(1, "a")}
	large := []domain.Product{product(1, "a"), product(2, "b"), product(3, "c")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.SetAll(small)
			} else {
				s.SetAll(large)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			n := len(s.Records())
			assert.Contains(t, []int{0, 1, 3}, n)
		}
	}()
	wg.Wait()
}
