package memory

import (
	"context"
	"sync"

	"medbill/internal/domain"
	"medbill/internal/port"
)

// Store is an in-memory ArtifactStore, the default backend for
// development and tests.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]port.Artifact
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{artifacts: make(map[string]port.Artifact)}
}

func (s *Store) Put(_ context.Context, artifact port.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.Key] = artifact
	return nil
}

func (s *Store) Get(_ context.Context, key string) (*port.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[key]
	if !ok {
		return nil, domain.ErrArtifactNotFound
	}
	return &a, nil
}
