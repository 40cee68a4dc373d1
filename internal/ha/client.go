// Package ha is a minimal Home Assistant websocket client. It is the
// transport behind the theme-mode store and the location source.
package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by requests issued while disconnected
var ErrNotConnected = errors.New("not connected to Home Assistant")

// HAClient defines the interface for Home Assistant WebSocket client
type HAClient interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	GetState(entityID string) (*State, error)
	GetAllStates() ([]*State, error)
	CallService(domain, service string, data map[string]interface{}) error
	SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error)
	SetInputBoolean(name string, value bool) error
}

// Client implements HAClient over a single websocket connection
type Client struct {
	url            string
	token          string
	logger         *zap.Logger
	requestTimeout time.Duration

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	reconnect bool
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex

	idMu  sync.Mutex
	msgID int

	pendingMu sync.Mutex
	pending   map[int]chan Message

	handlers handlerTable
}

// NewClient creates a new Home Assistant WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:            url,
		token:          token,
		logger:         logger.Named("ha"),
		requestTimeout: 10 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		reconnect:      true,
		pending:        make(map[int]chan Message),
	}
}

// Connect dials, authenticates and subscribes to state_changed events
func (c *Client) Connect() error {
	c.connMu.Lock()
	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, err := c.handshake()
	if err != nil {
		c.connMu.Unlock()
		return err
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.reconnect = true
	go c.readLoop(c.ctx, conn)
	c.connMu.Unlock()

	c.logger.Info("Connected to Home Assistant", zap.String("url", c.url))

	if _, err := c.send(&SubscribeEventsRequest{
		ID:        c.nextID(),
		Type:      "subscribe_events",
		EventType: "state_changed",
	}); err != nil {
		c.logger.Warn("Failed to subscribe to state changes", zap.Error(err))
	}
	return nil
}

// handshake performs the auth_required / auth / auth_ok exchange
func (c *Client) handshake() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	fail := func(err error) (*websocket.Conn, error) {
		conn.Close()
		return nil, err
	}

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return fail(fmt.Errorf("failed to read auth_required: %w", err))
	}
	if msg.Type != "auth_required" {
		return fail(fmt.Errorf("expected auth_required, got %s", msg.Type))
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token}); err != nil {
		return fail(fmt.Errorf("failed to send auth: %w", err))
	}

	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fail(fmt.Errorf("failed to read auth response: %w", err))
	}
	switch msg.Type {
	case "auth_ok":
		return conn, nil
	case "auth_invalid":
		return fail(fmt.Errorf("authentication failed: invalid token"))
	default:
		return fail(fmt.Errorf("expected auth_ok, got %s", msg.Type))
	}
}

// Disconnect closes the connection and drops every subscription
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.reconnect = false
	c.connected = false
	c.cancel()

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.conn.Close()
	c.conn = nil

	c.handlers.clear()
	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextID() int {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.msgID++
	return c.msgID
}

// send writes req and waits for the result frame with the same id
func (c *Client) send(req request) (*Message, error) {
	c.connMu.RLock()
	conn, ctx, connected := c.conn, c.ctx, c.connected
	c.connMu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}

	id := req.msgID()
	respCh := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request %d failed", id)
		}
		return &resp, nil
	case <-time.After(c.requestTimeout):
		return nil, fmt.Errorf("timeout waiting for response to request %d", id)
	case <-ctx.Done():
		return nil, ErrNotConnected
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.connectionLost(conn)
			return
		}

		if msg.Type == "event" {
			c.handleEvent(&msg)
			continue
		}

		if msg.ID == 0 {
			continue
		}
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.ID]; ok {
			select {
			case ch <- msg:
			default:
				c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
			}
		}
		c.pendingMu.Unlock()
	}
}

func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil || msg.Event.EventType != "state_changed" {
		return
	}

	var data StateChangedEvent
	if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
		c.logger.Error("Failed to unmarshal state_changed event", zap.Error(err))
		return
	}
	c.handlers.dispatch(data.EntityID, data.OldState, data.NewState)
}

// connectionLost marks the client disconnected and, unless Disconnect was
// called, reconnects with exponential backoff. Subscriptions survive.
func (c *Client) connectionLost(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.cancel()
	conn.Close()
	retry := c.reconnect
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")
	if retry {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		time.Sleep(backoff)

		c.connMu.RLock()
		retry := c.reconnect
		c.connMu.RUnlock()
		if !retry {
			return
		}

		c.logger.Info("Attempting to reconnect...")
		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err), zap.Duration("backoff", backoff))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		c.logger.Info("Reconnected successfully")
		return
	}
}

// GetAllStates retrieves all entity states
func (c *Client) GetAllStates() ([]*State, error) {
	resp, err := c.send(&GetStatesRequest{ID: c.nextID(), Type: "get_states"})
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}
	return states, nil
}

// GetState retrieves the state of one entity. Home Assistant has no single
// entity query on the websocket API, so this filters get_states.
func (c *Client) GetState(entityID string) (*State, error) {
	states, err := c.GetAllStates()
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		if s.EntityID == entityID {
			return s, nil
		}
	}
	return nil, fmt.Errorf("entity %s not found", entityID)
}

// CallService calls a Home Assistant service
func (c *Client) CallService(domain, service string, data map[string]interface{}) error {
	_, err := c.send(&CallServiceRequest{
		ID:          c.nextID(),
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	return err
}

// SubscribeStateChanges registers handler for state changes of entityID
func (c *Client) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	id := c.handlers.add(entityID, handler)
	return &subscription{entityID: entityID, id: id, table: &c.handlers}, nil
}

// SetInputBoolean turns input_boolean.<name> on or off
func (c *Client) SetInputBoolean(name string, value bool) error {
	return c.CallService("input_boolean", inputBooleanService(value), map[string]interface{}{
		"entity_id": "input_boolean." + name,
	})
}

func inputBooleanService(value bool) string {
	if value {
		return "turn_on"
	}
	return "turn_off"
}
