package state

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for tests and for
// running without Redis. Blobs are stored as JSON so reads return copies,
// never aliases of saved values.
type MemoryStore struct {
	mu        sync.RWMutex
	product   []byte
	status    []byte
	packaging []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) load(blob []byte, out any) (bool, error) {
	if blob == nil {
		return false, nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return false, err
	}
	return true, nil
}

// GetProduct retrieves the product state, defaulting to a fresh idle state.
func (s *MemoryStore) GetProduct(ctx context.Context) (*ProductState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st ProductState
	found, err := s.load(s.product, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewProductState(), nil
	}
	return &st, nil
}

// SaveProduct persists the product state.
func (s *MemoryStore) SaveProduct(ctx context.Context, st *ProductState) error {
	st.Touch()
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = data
	return nil
}

// ClearProduct removes the product state.
func (s *MemoryStore) ClearProduct(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = nil
	return nil
}

// GetStatus retrieves the status projection, defaulting to idle.
func (s *MemoryStore) GetStatus(ctx context.Context) (*ProductStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st ProductStatus
	found, err := s.load(s.status, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewProductStatus(), nil
	}
	return &st, nil
}

// SaveStatus persists the status projection.
func (s *MemoryStore) SaveStatus(ctx context.Context, st *ProductStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = data
	return nil
}

// ClearStatus removes the status projection.
func (s *MemoryStore) ClearStatus(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = nil
	return nil
}

// GetPackaging retrieves the packaging state, defaulting to a box.
func (s *MemoryStore) GetPackaging(ctx context.Context) (*PackagingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st PackagingState
	found, err := s.load(s.packaging, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewPackagingState(), nil
	}
	if st.PanelTextures == nil {
		st.PanelTextures = map[string]PanelTexture{}
	}
	return &st, nil
}

// SavePackaging persists the packaging state.
func (s *MemoryStore) SavePackaging(ctx context.Context, st *PackagingState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.packaging = data
	return nil
}

// ClearPackaging removes the packaging state.
func (s *MemoryStore) ClearPackaging(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packaging = nil
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
