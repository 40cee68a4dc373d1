package ha

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// Message is the envelope of every frame exchanged with Home Assistant
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Error is the error body of a failed result frame
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage is sent in reply to auth_required
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// Event is the payload of an event frame
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent is the data of a state_changed event
type StateChangedEvent struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// State is an entity state
type State struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// FloatAttribute returns a numeric attribute. Home Assistant sends numbers as
// JSON numbers, but some integrations stringify them.
func (s *State) FloatAttribute(name string) (float64, bool) {
	if s == nil || s.Attributes == nil {
		return 0, false
	}
	switch v := s.Attributes[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IsOn reports whether a binary entity (input_boolean, switch) is on
func (s *State) IsOn() bool {
	return s != nil && s.State == "on"
}

// request is implemented by every frame that expects a result frame
type request interface {
	msgID() int
}

// CallServiceRequest is a call_service frame
type CallServiceRequest struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

func (r *CallServiceRequest) msgID() int { return r.ID }

// GetStatesRequest is a get_states frame
type GetStatesRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func (r *GetStatesRequest) msgID() int { return r.ID }

// SubscribeEventsRequest is a subscribe_events frame
type SubscribeEventsRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

func (r *SubscribeEventsRequest) msgID() int { return r.ID }

// StateChangeHandler is called when a state change event is received
type StateChangeHandler func(entityID string, oldState, newState *State)

// Subscription represents an active event subscription
type Subscription interface {
	Unsubscribe() error
}

// handlerTable fans state changes out to per-entity handlers. Both Client
// and MockClient embed it.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[string]map[int]StateChangeHandler
	nextID   int
}

func (t *handlerTable) add(entityID string, handler StateChangeHandler) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handlers == nil {
		t.handlers = make(map[string]map[int]StateChangeHandler)
	}
	if t.handlers[entityID] == nil {
		t.handlers[entityID] = make(map[int]StateChangeHandler)
	}
	t.nextID++
	t.handlers[entityID][t.nextID] = handler
	return t.nextID
}

func (t *handlerTable) remove(entityID string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handlers[entityID], id)
	if len(t.handlers[entityID]) == 0 {
		delete(t.handlers, entityID)
	}
}

func (t *handlerTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = make(map[string]map[int]StateChangeHandler)
}

func (t *handlerTable) count(entityID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers[entityID])
}

// dispatch calls handlers outside the lock so they may (un)subscribe.
func (t *handlerTable) dispatch(entityID string, oldState, newState *State) {
	t.mu.RLock()
	handlers := make([]StateChangeHandler, 0, len(t.handlers[entityID]))
	for _, h := range t.handlers[entityID] {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(entityID, oldState, newState)
	}
}

type subscription struct {
	entityID string
	id       int
	table    *handlerTable
}

func (s *subscription) Unsubscribe() error {
	s.table.remove(s.entityID, s.id)
	return nil
}
