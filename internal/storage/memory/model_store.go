package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// ModelStore is an in-memory implementation of storage.ModelStore.
type ModelStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ImpactModel // keyed by (name, version)
}

// NewModelStore creates a new in-memory model store.
func NewModelStore() *ModelStore {
	return &ModelStore{data: make(map[string]*domain.ImpactModel)}
}

func modelKey(name string, version int) string {
	return fmt.Sprintf("%s|%d", name, version)
}

// Insert adds a model definition. Returns ErrDuplicateKey if (name, version) exists.
func (s *ModelStore) Insert(_ context.Context, m *domain.ImpactModel) error {
	if m == nil || m.Name == "" || m.Version < 1 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := modelKey(m.Name, m.Version)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := cloneModel(m)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.data[key] = cp
	return nil
}

// Get retrieves a model by exact (name, version), active or not.
func (s *ModelStore) Get(_ context.Context, name string, version int) (*domain.ImpactModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[modelKey(name, version)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneModel(m), nil
}

// GetLatestActive retrieves the highest-version active model for name.
func (s *ModelStore) GetLatestActive(_ context.Context, name string) (*domain.ImpactModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.ImpactModel
	for _, m := range s.data {
		if m.Name != name || !m.Active {
			continue
		}
		if best == nil || m.Version > best.Version {
			best = m
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return cloneModel(best), nil
}

// GetActive retrieves all active models ordered by name ASC, version DESC.
func (s *ModelStore) GetActive(_ context.Context) ([]*domain.ImpactModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ImpactModel
	for _, m := range s.data {
		if m.Active {
			result = append(result, cloneModel(m))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version > result[j].Version
	})

	return result, nil
}

// SetActive toggles activation for (name, version).
func (s *ModelStore) SetActive(_ context.Context, name string, version int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data[modelKey(name, version)]
	if !ok {
		return storage.ErrNotFound
	}
	m.Active = active
	return nil
}

func cloneModel(m *domain.ImpactModel) *domain.ImpactModel {
	cp := *m
	cp.Params = make(map[string]decimal.Decimal, len(m.Params))
	for k, v := range m.Params {
		cp.Params[k] = v
	}
	return &cp
}

var _ storage.ModelStore = (*ModelStore)(nil)
