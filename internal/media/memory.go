package media

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps media in a map. Used by the mock stack and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	images    map[string][]byte
	sequences map[string][][]byte
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		images:    make(map[string][]byte),
		sequences: make(map[string][][]byte),
	}
}

// PutImage stores an image under ref.
func (s *MemoryStore) PutImage(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[ref] = data
}

// PutSequence stores a frame sequence under ref.
func (s *MemoryStore) PutSequence(ref string, frames [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[ref] = frames
}

func (s *MemoryStore) GetImage(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, ref)
	}
	return data, nil
}

func (s *MemoryStore) GetFrameSequence(_ context.Context, ref string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frames, ok := s.sequences[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, ref)
	}
	return frames, nil
}

var _ Store = (*MemoryStore)(nil)
