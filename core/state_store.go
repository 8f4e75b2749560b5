package core

import (
	"context"
	"sync"
)

// MemoryStateStore keeps the bridge aggregate in process memory.
type MemoryStateStore struct {
	mu    sync.Mutex
	state BridgeState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: NewBridgeState()}
}

func (s *MemoryStateStore) Load(context.Context) (BridgeState, error) {
	if s == nil {
		return BridgeState{}, configurationError("core: state store is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *MemoryStateStore) Update(_ context.Context, fn func(state *BridgeState) error) (BridgeState, error) {
	if s == nil {
		return BridgeState{}, configurationError("core: state store is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.Clone()
	if fn != nil {
		if err := fn(&working); err != nil {
			return s.state.Clone(), err
		}
	}
	s.state = working
	return working.Clone(), nil
}
