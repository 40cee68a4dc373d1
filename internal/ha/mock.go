package ha

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// MockClient implements HAClient in memory for tests. Service calls on
// input_boolean update the stored state and notify subscribers, as Home
// Assistant would.
type MockClient struct {
	statesMu sync.RWMutex
	states   map[string]*State

	connMu    sync.RWMutex
	connected bool

	callsMu      sync.Mutex
	serviceCalls []ServiceCall

	failMu    sync.Mutex
	callErr   error
	getErr    error
	getCounts map[string]int

	handlers handlerTable
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:    make(map[string]*State),
		getCounts: make(map[string]int),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	m.connected = false
	m.connMu.Unlock()

	m.handlers.clear()
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetState retrieves a mock state
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.failMu.Lock()
	m.getCounts[entityID]++
	err := m.getErr
	m.failMu.Unlock()
	if err != nil {
		return nil, err
	}

	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return state, nil
}

// GetAllStates retrieves all mock states
func (m *MockClient) GetAllStates() ([]*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	return states, nil
}

// CallService records a service call and applies input_boolean changes
func (m *MockClient) CallService(domain, service string, data map[string]interface{}) error {
	m.failMu.Lock()
	err := m.callErr
	m.failMu.Unlock()
	if err != nil {
		return err
	}

	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	entityID, _ := data["entity_id"].(string)
	if domain != "input_boolean" || !strings.HasPrefix(entityID, "input_boolean.") {
		return nil
	}

	switch service {
	case "turn_on":
		m.SetState(entityID, "on", nil)
	case "turn_off":
		m.SetState(entityID, "off", nil)
	}
	return nil
}

// SubscribeStateChanges subscribes to state changes
func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	id := m.handlers.add(entityID, handler)
	return &subscription{entityID: entityID, id: id, table: &m.handlers}, nil
}

// SetInputBoolean sets a mock input_boolean
func (m *MockClient) SetInputBoolean(name string, value bool) error {
	return m.CallService("input_boolean", inputBooleanService(value), map[string]interface{}{
		"entity_id": "input_boolean." + name,
	})
}

// SetState stores a state and notifies subscribers. Nil attributes keep the
// previous attributes.
func (m *MockClient) SetState(entityID, value string, attributes map[string]interface{}) {
	m.statesMu.Lock()
	old := m.states[entityID]
	if attributes == nil && old != nil {
		attributes = old.Attributes
	}
	now := time.Now()
	next := &State{
		EntityID:    entityID,
		State:       value,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	m.states[entityID] = next
	m.statesMu.Unlock()

	m.handlers.dispatch(entityID, old, next)
}

// SetCallServiceError makes every following CallService fail with err (nil clears it)
func (m *MockClient) SetCallServiceError(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.callErr = err
}

// SetGetStateError makes every following GetState fail with err (nil clears it)
func (m *MockClient) SetGetStateError(err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.getErr = err
}

// GetStateCount returns how many times GetState was called for entityID
func (m *MockClient) GetStateCount(entityID string) int {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.getCounts[entityID]
}

// SubscriberCount returns the number of live subscriptions for entityID
func (m *MockClient) SubscriberCount(entityID string) int {
	return m.handlers.count(entityID)
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
}
