package spec

import (
	"context"
	"sync"
	"time"

	"github.com/madcok-co/consumerd/internal/apierr"
)

// MemoryStore is the reference Specification Store: an in-process map
// guarded by a mutex. Every operation is synchronous and atomic with
// respect to other MemoryStore calls (§4.C).
type MemoryStore struct {
	mu    sync.RWMutex
	specs map[string]*ConsumerSpec
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{specs: make(map[string]*ConsumerSpec)}
}

func (m *MemoryStore) Create(ctx context.Context, s *ConsumerSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.specs[s.ID]; exists {
		return apierr.New(apierr.Conflict, "id already exists: "+s.ID)
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.specs[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*ConsumerSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.specs[id]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*ConsumerSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ConsumerSpec, 0, len(m.specs))
	for _, s := range m.specs {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch Patch) (*ConsumerSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.specs[id]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	patch.Apply(s)
	s.UpdatedAt = time.Now()
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.specs[id]; !ok {
		return apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	delete(m.specs, id)
	return nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, id string, status Status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.specs[id]
	if !ok {
		return apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	s.Status = status
	s.LastError = lastError
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
