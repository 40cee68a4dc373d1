package location

import (
	"errors"
	"fmt"
	"sync"

	"autotheme/internal/ha"

	"go.uber.org/zap"
)

// ErrSourceClosed is returned by Start after Close
var ErrSourceClosed = errors.New("location source closed")

// HASource follows the latitude/longitude attributes of a Home Assistant
// entity such as zone.home or a device_tracker.
type HASource struct {
	client ha.HAClient
	logger *zap.Logger

	mu         sync.Mutex
	observerID string
	updates    chan Token
	sub        ha.Subscription
	last       *Coordinates
	seq        uint64
	closed     bool
}

// NewHASource creates a source reading from client
func NewHASource(client ha.HAClient, logger *zap.Logger) *HASource {
	return &HASource{
		client:  client,
		logger:  logger.Named("location"),
		updates: make(chan Token, 1),
	}
}

// Start subscribes to observerID (an entity id) and queues an initial token
// so the first fix is resolved without waiting for a change.
func (s *HASource) Start(observerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.sub != nil {
		return fmt.Errorf("location source already started for %s", s.observerID)
	}

	sub, err := s.client.SubscribeStateChanges(observerID, s.onStateChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", observerID, err)
	}
	s.observerID = observerID
	s.sub = sub

	s.logger.Info("Following observer location", zap.String("entity_id", observerID))
	s.notifyLocked()
	return nil
}

// Updates returns the token stream. It is closed by Close.
func (s *HASource) Updates() <-chan Token {
	return s.updates
}

// Resolve fetches the entity and reads its coordinates
func (s *HASource) Resolve(token Token) (Coordinates, error) {
	state, err := s.client.GetState(token.ObserverID)
	if err != nil {
		return Coordinates{}, fmt.Errorf("failed to fetch %s: %w", token.ObserverID, err)
	}

	coords, err := coordinatesOf(state)
	if err != nil {
		return Coordinates{}, err
	}

	s.mu.Lock()
	s.last = &coords
	s.mu.Unlock()
	return coords, nil
}

// Close unsubscribes and closes the token stream
func (s *HASource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe from observer",
				zap.String("entity_id", s.observerID), zap.Error(err))
		}
	}
	close(s.updates)
}

// onStateChange only forwards changes that move the observer; device
// trackers report far more often than their coordinates change.
func (s *HASource) onStateChange(entityID string, _, newState *ha.State) {
	if newState == nil {
		return
	}
	coords, err := coordinatesOf(newState)
	if err != nil {
		s.logger.Debug("Ignoring location state without usable coordinates",
			zap.String("entity_id", entityID), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.last != nil && *s.last == coords {
		return
	}
	s.logger.Debug("Observer moved",
		zap.String("entity_id", entityID),
		zap.Float64("latitude", coords.Latitude),
		zap.Float64("longitude", coords.Longitude))
	s.notifyLocked()
}

// notifyLocked queues a token without blocking. A token already waiting
// covers this change too, since Resolve reads the latest state.
func (s *HASource) notifyLocked() {
	s.seq++
	select {
	case s.updates <- Token{ObserverID: s.observerID, Seq: s.seq}:
	default:
	}
}

func coordinatesOf(state *ha.State) (Coordinates, error) {
	lat, ok := state.FloatAttribute("latitude")
	if !ok {
		return Coordinates{}, fmt.Errorf("%s has no latitude attribute", state.EntityID)
	}
	long, ok := state.FloatAttribute("longitude")
	if !ok {
		return Coordinates{}, fmt.Errorf("%s has no longitude attribute", state.EntityID)
	}

	coords := Coordinates{Latitude: lat, Longitude: long}
	if err := coords.Validate(); err != nil {
		return Coordinates{}, fmt.Errorf("%s: %w", state.EntityID, err)
	}
	return coords, nil
}
