// Package thememode keeps the theme mode record in two Home Assistant
// input_boolean helpers: one for the auto-switch flag and one for dark mode.
package thememode

import (
	"errors"
	"fmt"
	"sync"

	"autotheme/internal/autoswitch"
	"autotheme/internal/ha"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrUnknownKey is returned by Update for keys other than the two flags.
var ErrUnknownKey = errors.New("unknown theme mode key")

// changeBuffer bounds queued change notifications; extra ones are dropped
// since the loop re-reads the entity anyway.
const changeBuffer = 16

// Entities names the input_boolean helpers (without the domain prefix).
type Entities struct {
	AutoSwitch string
	IsDark     string
}

// Store implements autoswitch.ThemeConfig on top of Home Assistant.
type Store struct {
	client   ha.HAClient
	logger   *zap.Logger
	readOnly bool
	names    map[string]string

	mu      sync.Mutex
	mode    autoswitch.ThemeMode
	known   map[string]bool
	changes chan string
	subs    []ha.Subscription
	closed  bool
}

var _ autoswitch.ThemeConfig = (*Store)(nil)

// NewStore creates a store. In read-only mode SetIsDark only logs.
func NewStore(client ha.HAClient, entities Entities, readOnly bool, logger *zap.Logger) *Store {
	return &Store{
		client:   client,
		logger:   logger.Named("thememode"),
		readOnly: readOnly,
		names: map[string]string{
			autoswitch.KeyAutoSwitch: entities.AutoSwitch,
			autoswitch.KeyIsDark:     entities.IsDark,
		},
		known:   make(map[string]bool),
		changes: make(chan string, changeBuffer),
	}
}

func entityID(name string) string {
	return "input_boolean." + name
}

// Start subscribes to both helpers. Every change is announced on Changes
// with the key that changed.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("theme mode store closed")
	}
	if len(s.subs) > 0 {
		return fmt.Errorf("theme mode store already started")
	}

	for _, key := range []string{autoswitch.KeyAutoSwitch, autoswitch.KeyIsDark} {
		key := key
		id := entityID(s.names[key])
		sub, err := s.client.SubscribeStateChanges(id, func(_ string, _, newState *ha.State) {
			s.onStateChange(key, newState)
		})
		if err != nil {
			for _, sub := range s.subs {
				_ = sub.Unsubscribe()
			}
			s.subs = nil
			return fmt.Errorf("failed to subscribe to %s: %w", id, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("Subscribed to theme mode helpers",
		zap.String("auto_switch", entityID(s.names[autoswitch.KeyAutoSwitch])),
		zap.String("is_dark", entityID(s.names[autoswitch.KeyIsDark])))
	return nil
}

// Changes returns the command channel for the auto-switch loop. It is
// closed by Close.
func (s *Store) Changes() <-chan string {
	return s.changes
}

func (s *Store) onStateChange(key string, newState *ha.State) {
	value, err := parseFlag(newState)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if err == nil {
		s.setLocked(key, value)
	}

	select {
	case s.changes <- key:
	default:
		s.logger.Debug("Change queue full, dropping notification", zap.String("key", key))
	}
}

// Current reads both helpers from Home Assistant and returns the mode.
// Flags that cannot be read keep their cached value.
func (s *Store) Current() (autoswitch.ThemeMode, error) {
	var errs error
	for _, key := range []string{autoswitch.KeyAutoSwitch, autoswitch.KeyIsDark} {
		errs = multierr.Append(errs, s.refresh(key))
	}
	return s.snapshot(), errs
}

// Update re-reads the helper behind key and returns the resulting mode.
func (s *Store) Update(key string) (autoswitch.ThemeMode, error) {
	if _, ok := s.names[key]; !ok {
		return s.snapshot(), fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return s.snapshot(), s.refresh(key)
}

// refresh fetches one helper and updates the cache.
func (s *Store) refresh(key string) error {
	id := entityID(s.names[key])
	state, err := s.client.GetState(id)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", id, err)
	}
	value, err := parseFlag(state)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", id, err)
	}

	s.mu.Lock()
	s.setLocked(key, value)
	s.mu.Unlock()
	return nil
}

// SetIsDark turns the dark mode helper on or off. Nothing is sent when the
// helper is already known to hold the value.
func (s *Store) SetIsDark(isDark bool) error {
	s.mu.Lock()
	if s.known[autoswitch.KeyIsDark] && s.mode.IsDark == isDark {
		s.mu.Unlock()
		s.logger.Debug("Dark mode already set", zap.Bool("is_dark", isDark))
		return nil
	}
	s.mu.Unlock()

	name := s.names[autoswitch.KeyIsDark]
	if s.readOnly {
		s.logger.Info("READ-ONLY mode: Would set dark mode",
			zap.String("entity_id", entityID(name)),
			zap.Bool("is_dark", isDark))
		return nil
	}

	// The client may deliver the resulting state change synchronously, so
	// the lock must not be held here.
	if err := s.client.SetInputBoolean(name, isDark); err != nil {
		return fmt.Errorf("failed to set %s: %w", entityID(name), err)
	}

	s.mu.Lock()
	s.setLocked(autoswitch.KeyIsDark, isDark)
	s.mu.Unlock()
	return nil
}

// Close unsubscribes from Home Assistant and closes the change channel.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	s.subs = nil
	close(s.changes)
}

func (s *Store) setLocked(key string, value bool) {
	switch key {
	case autoswitch.KeyAutoSwitch:
		s.mode.AutoSwitch = value
	case autoswitch.KeyIsDark:
		s.mode.IsDark = value
	}
	s.known[key] = true
}

func (s *Store) snapshot() autoswitch.ThemeMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func parseFlag(state *ha.State) (bool, error) {
	if state == nil {
		return false, fmt.Errorf("entity removed")
	}
	switch state.State {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("unexpected state %q", state.State)
}
