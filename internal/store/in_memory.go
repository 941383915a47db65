package store

import (
	"context"
	"slices"
	"sync"
	"time"

	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/google/uuid"
)

// inMemory implements ProductStore using an in-memory map.
type inMemory struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
}

// NewInMemoryStore creates a new instance of ProductStore
func NewInMemoryStore() ProductStore {
	return &inMemory{
		products: make(map[uuid.UUID]Product),
	}
}

// ListAll returns a snapshot of all products ordered by creation date, then ID.
func (s *inMemory) ListAll(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		list = append(list, p)
	}
	slices.SortFunc(list, func(a, b Product) int {
		if c := a.CreatedDate.Compare(b.CreatedDate); c != 0 {
			return c
		}
		return slices.Compare(a.ProductID[:], b.ProductID[:])
	})
	return list, nil
}

// FindByID retrieves a product by its ID.
func (s *inMemory) FindByID(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	return &p, nil
}

// Save stores a copy of the product, replacing any record with the same ID.
func (s *inMemory) Save(_ context.Context, product Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.ProductID] = product
	return nil
}

// DeleteByID deletes a product by its ID.
func (s *inMemory) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, id)
	return nil
}

// inMemoryPopularity implements PopularityStore using a slice.
type inMemoryPopularity struct {
	mu      sync.Mutex
	records []PopularityRecord
	nextID  int64
}

// NewInMemoryPopularityStore creates a new instance of PopularityStore
func NewInMemoryPopularityStore() PopularityStore {
	return &inMemoryPopularity{nextID: 1}
}

func (s *inMemoryPopularity) Create(_ context.Context, productID uuid.UUID) (*PopularityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := PopularityRecord{ID: s.nextID, ProductID: productID, CreatedDate: time.Now().UTC()}
	s.nextID++
	s.records = append(s.records, record)
	return &record, nil
}

func (s *inMemoryPopularity) FindByProductID(_ context.Context, productID uuid.UUID) ([]PopularityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := []PopularityRecord{}
	for _, r := range s.records {
		if r.ProductID == productID {
			found = append(found, r)
		}
	}
	return found, nil
}

func (s *inMemoryPopularity) DeleteByProductID(_ context.Context, productID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r PopularityRecord) bool {
		return r.ProductID == productID
	})
	return int64(before - len(s.records)), nil
}
