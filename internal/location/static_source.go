package location

import (
	"fmt"
	"sync"
)

// StaticSource reports one fixed position, for hosts without a tracker
type StaticSource struct {
	coords Coordinates

	mu      sync.Mutex
	updates chan Token
	started bool
	closed  bool
}

// NewStaticSource validates coords and returns a source for them
func NewStaticSource(coords Coordinates) (*StaticSource, error) {
	if err := coords.Validate(); err != nil {
		return nil, fmt.Errorf("invalid static location: %w", err)
	}
	return &StaticSource{coords: coords, updates: make(chan Token, 1)}, nil
}

// Start queues the single token
func (s *StaticSource) Start(observerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.started {
		return fmt.Errorf("static location source already started")
	}
	s.started = true
	s.updates <- Token{ObserverID: observerID, Seq: 1}
	return nil
}

// Updates returns the token stream
func (s *StaticSource) Updates() <-chan Token {
	return s.updates
}

// Resolve returns the configured coordinates
func (s *StaticSource) Resolve(Token) (Coordinates, error) {
	return s.coords, nil
}

// Close closes the token stream
func (s *StaticSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}
