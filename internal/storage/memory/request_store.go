package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// RequestStore is an in-memory implementation of storage.RequestStore.
// One mutex covers requests and results so the terminal write (result +
// status flip) is atomic, matching the postgres adapter's transaction.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.EstimateRequest
	results  map[uuid.UUID]*domain.EstimateResult
}

// NewRequestStore creates a new in-memory request store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[uuid.UUID]*domain.EstimateRequest),
		results:  make(map[uuid.UUID]*domain.EstimateResult),
	}
}

// CreateRequest persists a new request with status pending.
func (s *RequestStore) CreateRequest(_ context.Context, r *domain.EstimateRequest) error {
	if r == nil || r.ID == uuid.Nil || r.Ticker == "" || r.Shares <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *r
	if cp.Status == "" {
		cp.Status = domain.StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.requests[r.ID] = &cp
	return nil
}

// GetRequest retrieves a request by id.
func (s *RequestStore) GetRequest(_ context.Context, id uuid.UUID) (*domain.EstimateRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// TransitionStatus moves a request from one status to another as an
// atomic compare-and-set.
func (s *RequestStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.Status) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != from {
		return storage.ErrInvalidTransition
	}
	r.Status = to
	return nil
}

// SaveResult writes the result and flips the owning request to the
// terminal status in one atomic step.
func (s *RequestStore) SaveResult(_ context.Context, res *domain.EstimateResult, from, to domain.Status) error {
	if res == nil || res.RequestID == uuid.Nil {
		return storage.ErrInvalidInput
	}
	if !to.Terminal() || !from.CanTransitionTo(to) {
		return storage.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[res.RequestID]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != from {
		return storage.ErrInvalidTransition
	}

	cp := *res
	if cp.ComputedAt.IsZero() {
		cp.ComputedAt = time.Now().UTC()
	}
	s.results[res.RequestID] = &cp
	r.Status = to
	return nil
}

// GetResult retrieves the result owned by a request.
func (s *RequestStore) GetResult(_ context.Context, id uuid.UUID) (*domain.EstimateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

var _ storage.RequestStore = (*RequestStore)(nil)
