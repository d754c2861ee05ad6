// Package server manages individual WebSocket clients: command parsing,
// read/write pumps, rate limiting, and heartbeat-based liveness.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cardhouse/roomhub/internal/logger"
)

// Client is one WebSocket connection's transport adapter. It owns the
// connection, forwards parsed commands to the hub, and writes hub pushes and
// its own command responses back to the peer. It never touches hub state
// directly.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
	addr string

	id   uuid.UUID
	room uuid.UUID
	name string

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	heartbeat      time.Duration
	timeout        time.Duration

	closeOnce sync.Once
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so hub deliveries stay non-blocking.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		hub:            hub,
		send:           make(chan []byte, 256),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		heartbeat:      cfg.HeartbeatInterval,
		timeout:        cfg.ClientTimeout,
	}
}

// Serve registers the client with the hub and runs both pumps. It returns
// when the connection is gone and the hub has been told to disconnect.
func (c *Client) Serve() {
	id, err := c.hub.Connect(c.send)
	if err != nil {
		logger.WarnF("Rejecting WebSocket client from %s: %v", c.addr, err)
		_ = c.conn.Close()
		return
	}
	c.id = id

	go c.writePump()
	c.readPump()
}

// shutdown tears the adapter down exactly once: the hub gets its disconnect
// signal and the connection is closed.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.hub.Disconnect(c.id)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			logger.WarnF("Error closing connection from %s: %v", c.addr, err)
		}
	})
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.WarnF("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	})
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})
}

// handleReadError logs the error by kind and always terminates the pump.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.WarnF("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		logger.InfoF("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		logger.InfoF("Client %s connection closed: %v", c.addr, err)
	default:
		logger.WarnF("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Client) readPump() {
	defer c.shutdown()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			logger.WarnF("Error refreshing read deadline for %s: %v", c.addr, err)
			return
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			logger.WarnF("Rate limit exceeded for %s (%d messages per %s); discarding message",
				c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			continue
		}

		c.handleText(strings.TrimSpace(string(raw)))
	}
}

// handleText dispatches one inbound text frame: either a /command or bare
// text relayed to the current room.
func (c *Client) handleText(text string) {
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		c.relayText(text)
		return
	}

	command, arg, _ := strings.Cut(text, " ")
	switch command {
	case "/list":
		rooms := c.hub.ListRooms()
		c.enqueue(MarshalEnvelope(RoomInfoList{Rooms: rooms}, EventGetRoomList, StatusOK))

	case "/join":
		c.handleJoin(arg)

	case "/create":
		c.handleCreate(arg)

	case "/name":
		if arg == "" {
			c.enqueue(ErrorEnvelope(EventSetName, "name is required"))
			return
		}
		c.name = arg
		c.enqueue(MarshalEnvelope(TextMessage{Message: "name set to " + arg}, EventSetName, StatusOK))

	case "/cards":
		c.handleCards(arg)

	default:
		c.enqueue(ErrorEnvelope(EventUnknown, "unknown command: "+command))
	}
}

func (c *Client) handleJoin(arg string) {
	roomID, err := uuid.Parse(arg)
	if err != nil {
		c.enqueue(ErrorEnvelope(EventEnterRoom, "room id is required"))
		return
	}

	info, err := c.hub.JoinRoom(c.id, roomID)
	if err != nil {
		c.enqueue(ErrorEnvelope(EventEnterRoom, err.Error()))
		return
	}

	c.room = roomID
	c.enqueue(MarshalEnvelope(info, EventEnterRoom, StatusOK))
}

func (c *Client) handleCreate(arg string) {
	if arg == "" {
		c.enqueue(ErrorEnvelope(EventCreateRoom, "room name is required"))
		return
	}

	info, err := c.hub.CreateRoom(c.id, arg)
	if err != nil {
		c.enqueue(ErrorEnvelope(EventCreateRoom, err.Error()))
		return
	}

	// The creator is the room's first member, so relaying works immediately.
	c.room = info.ID
	c.enqueue(MarshalEnvelope(info, EventCreateRoom, StatusOK))
}

// handleCards relays a card payload from the record subsystem's browser page
// to the current room. The card fields pass through untouched.
func (c *Client) handleCards(arg string) {
	if arg == "" {
		c.enqueue(ErrorEnvelope(EventUnknown, "cards info is required"))
		return
	}

	var cards []json.RawMessage
	if err := json.Unmarshal([]byte(arg), &cards); err != nil {
		c.enqueue(ErrorEnvelope(EventCardsInfo, "cards info must be a JSON array"))
		return
	}

	if c.room == uuid.Nil {
		c.enqueue(ErrorEnvelope(EventCardsInfo, "join a room first"))
		return
	}

	c.hub.Relay(c.id, c.room, MarshalEnvelope(CardInfoList{Cards: cards}, EventCardsInfo, StatusOK))
}

func (c *Client) relayText(text string) {
	if c.room == uuid.Nil {
		c.enqueue(ErrorEnvelope(EventMessage, "join a room first"))
		return
	}

	if c.name != "" {
		text = c.name + ": " + text
	}
	c.hub.Relay(c.id, c.room, MessagePayload(text))
}

// enqueue queues a payload for the write pump. The send channel is closed by
// the hub once the session is unregistered; a payload racing that close is
// dropped.
func (c *Client) enqueue(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugF("Dropped payload for closed session from %s", c.addr)
		}
	}()

	select {
	case c.send <- payload:
	default:
		logger.DebugF("Send buffer full for %s; dropping payload", c.addr)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				logger.WarnF("Error setting write deadline for %s: %v", c.addr, err)
				return
			}

			if !ok {
				// Hub closed the channel: session retired or hub stopping.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					logger.WarnF("Error writing close message to %s: %v", c.addr, err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					logger.WarnF("Error writing message to %s: %v", c.addr, err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				logger.WarnF("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					logger.WarnF("Error writing ping to %s: %v", c.addr, err)
				}
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
