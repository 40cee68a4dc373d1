// Package integration runs the auto-switch loop against a fake Home
// Assistant websocket server.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connWrapper) write(msg interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteJSON(msg)
}

// EntityState is an entity as the server stores it
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// ServiceCall records a call_service request
type ServiceCall struct {
	Domain   string
	Service  string
	EntityID string
}

type frame struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   *eventFrame     `json:"event,omitempty"`
}

type eventFrame struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired time.Time       `json:"time_fired"`
}

type request struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data"`
	AccessToken string                 `json:"access_token"`
}

// MockHAServer simulates the parts of the Home Assistant websocket API the
// service uses: auth, get_states, subscribe_events and input_boolean
// services.
type MockHAServer struct {
	server *httptest.Server
	token  string

	statesMu sync.RWMutex
	states   map[string]*EntityState

	connsMu     sync.Mutex
	connections []*connWrapper

	callsMu      sync.Mutex
	serviceCalls []ServiceCall
}

// NewMockHAServer starts a server that is shut down with the test
func NewMockHAServer(t *testing.T, token string) *MockHAServer {
	s := &MockHAServer{
		token:  token,
		states: make(map[string]*EntityState),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.Stop)
	return s
}

// URL is the websocket endpoint
func (s *MockHAServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/websocket"
}

// Stop closes every connection and the listener
func (s *MockHAServer) Stop() {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	s.server.Close()
}

// SetState stores a state and broadcasts state_changed. Nil attributes keep
// the previous ones.
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	oldState := s.states[entityID]
	if attributes == nil && oldState != nil {
		attributes = oldState.Attributes
	}
	now := time.Now()
	newState := &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	s.states[entityID] = newState
	s.statesMu.Unlock()

	s.broadcastStateChange(entityID, oldState, newState)
}

// GetState returns the stored state or nil
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// ServiceCalls returns the recorded calls for entityID
func (s *MockHAServer) ServiceCalls(entityID string) []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	var calls []ServiceCall
	for _, call := range s.serviceCalls {
		if call.EntityID == entityID {
			calls = append(calls, call)
		}
	}
	return calls
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wrapper := &connWrapper{conn: conn}
	defer s.drop(wrapper)

	wrapper.write(frame{Type: "auth_required"})

	var auth request
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.AccessToken != s.token {
		wrapper.write(frame{Type: "auth_invalid"})
		return
	}
	wrapper.write(frame{Type: "auth_ok"})

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	success := true
	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		switch req.Type {
		case "subscribe_events":
			wrapper.write(frame{ID: req.ID, Type: "result", Success: &success})
		case "get_states":
			s.statesMu.RLock()
			states := make([]*EntityState, 0, len(s.states))
			for _, state := range s.states {
				states = append(states, state)
			}
			s.statesMu.RUnlock()

			result, _ := json.Marshal(states)
			wrapper.write(frame{ID: req.ID, Type: "result", Success: &success, Result: result})
		case "call_service":
			s.handleCallService(req)
			wrapper.write(frame{ID: req.ID, Type: "result", Success: &success})
		}
	}
}

func (s *MockHAServer) handleCallService(req request) {
	entityID, _ := req.ServiceData["entity_id"].(string)

	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Domain:   req.Domain,
		Service:  req.Service,
		EntityID: entityID,
	})
	s.callsMu.Unlock()

	if req.Domain != "input_boolean" || s.GetState(entityID) == nil {
		return
	}
	switch req.Service {
	case "turn_on":
		s.SetState(entityID, "on", nil)
	case "turn_off":
		s.SetState(entityID, "off", nil)
	}
}

func (s *MockHAServer) drop(wrapper *connWrapper) {
	s.connsMu.Lock()
	for i, w := range s.connections {
		if w == wrapper {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}
	s.connsMu.Unlock()
	wrapper.conn.Close()
}

func (s *MockHAServer) broadcastStateChange(entityID string, oldState, newState *EntityState) {
	data, _ := json.Marshal(struct {
		EntityID string       `json:"entity_id"`
		NewState *EntityState `json:"new_state"`
		OldState *EntityState `json:"old_state"`
	}{entityID, newState, oldState})

	msg := frame{
		Type: "event",
		Event: &eventFrame{
			EventType: "state_changed",
			Data:      data,
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.write(msg)
	}
}
