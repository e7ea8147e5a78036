package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/identity"
	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
)

// sendBufferSize bounds per-client backpressure. A client that cannot
// drain this many messages gets drops, not a stalled room.
const sendBufferSize = 256

// wsConnection is the subset of *websocket.Conn the client needs; tests
// substitute a mock.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
}

// Client is one WebSocket connection. It implements game.Conn so the room
// engine can reach it without knowing about sockets.
type Client struct {
	conn    wsConnection
	hub     *Hub
	session identity.Session

	mu        sync.RWMutex
	room      *game.Room
	closed    bool
	closeOnce sync.Once

	send chan []byte
}

func newClient(conn wsConnection, hub *Hub, session identity.Session) *Client {
	conn.SetReadLimit(game.MaxPayloadBytes)
	return &Client{
		conn:    conn,
		hub:     hub,
		session: session,
		send:    make(chan []byte, sendBufferSize),
	}
}

// ID satisfies game.Conn.
func (c *Client) ID() game.ConnectionID {
	return game.ConnectionID(c.session.ConnectionID)
}

// Enqueue satisfies game.Conn. It never blocks: a full buffer drops the
// message for this client only.
func (c *Client) Enqueue(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send to closing client",
				zap.String("connectionId", c.session.ConnectionID), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send buffer full, dropping message",
			zap.String("connectionId", c.session.ConnectionID))
	}
}

// Close satisfies game.Conn: it tears the connection down from the server
// side (kicks, shutdown).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// setRoom records which room this connection is attached to.
func (c *Client) setRoom(r *game.Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

func (c *Client) currentRoom() *game.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) caller() game.Caller {
	return game.Caller{
		Conn:         c,
		PersistentID: game.PersistentID(c.session.PersistentID),
		DisplayName:  c.session.DisplayName,
		IsGameMaster: c.session.Role == identity.RoleGameMaster,
	}
}

// readPump decodes inbound envelopes and hands them to the hub until the
// socket dies, then reports the disconnect.
func (c *Client) readPump() {
	var readErr error
	defer func() {
		c.hub.handleDisconnect(c, readErr)
		_ = c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			// An oversized frame kills the connection; tell the client why
			// before the write pump flushes out.
			if errors.Is(err, websocket.ErrReadLimit) {
				c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: game.ErrPayloadTooLarge.Error()}))
			}
			readErr = err
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg game.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn(context.Background(), "Failed to unmarshal message",
				zap.String("connectionId", c.session.ConnectionID), zap.Error(err))
			c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: game.ErrInvalidPayload.Error()}))
			continue
		}

		c.hub.route(c, msg)
	}
}

// writePump drains the send buffer in order. Closing the channel flushes
// remaining messages, sends the close frame, and returns.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	writeWait := 10 * time.Second

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
