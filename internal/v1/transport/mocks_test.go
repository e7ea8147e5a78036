package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/identity"
)

// mockSocket stands in for *websocket.Conn. Inbound frames are fed through
// readCh; terminate unblocks ReadMessage with an error, which is how the
// read pump observes a dead socket.
type mockSocket struct {
	mu      sync.Mutex
	once    sync.Once
	readCh  chan []byte
	readErr error
	written [][]byte
	closed  bool
}

func newMockSocket() *mockSocket {
	return &mockSocket{readCh: make(chan []byte, 16)}
}

func (m *mockSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-m.readCh
	if !ok {
		m.mu.Lock()
		err := m.readErr
		m.mu.Unlock()
		if err == nil {
			err = errors.New("use of closed connection")
		}
		return 0, nil, err
	}
	return websocket.TextMessage, data, nil
}

func (m *mockSocket) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if messageType == websocket.TextMessage {
		m.written = append(m.written, data)
	}
	return nil
}

func (m *mockSocket) Close() error {
	m.terminate(nil)
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockSocket) SetWriteDeadline(time.Time) error { return nil }
func (m *mockSocket) SetReadLimit(int64)               {}

// terminate makes the next ReadMessage fail with err.
func (m *mockSocket) terminate(err error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.readErr = err
		m.mu.Unlock()
		close(m.readCh)
	})
}

// push feeds one inbound envelope to the read pump.
func (m *mockSocket) push(t *testing.T, event game.Event, payload any) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	data, err := json.Marshal(game.Message{Event: event, Payload: raw})
	require.NoError(t, err)
	m.readCh <- data
}

// writtenEvents decodes every text frame written so far.
func (m *mockSocket) writtenEvents() []game.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Message, 0, len(m.written))
	for _, data := range m.written {
		var msg game.Message
		if json.Unmarshal(data, &msg) == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockSocket) wrote(event game.Event) bool {
	for _, msg := range m.writtenEvents() {
		if msg.Event == event {
			return true
		}
	}
	return false
}

func gmSession(pid string) identity.Session {
	return identity.Session{
		PersistentID: pid,
		ConnectionID: "conn-" + pid,
		DisplayName:  "GameMaster",
		Role:         identity.RoleGameMaster,
	}
}

func playerSession(pid, name string) identity.Session {
	return identity.Session{
		PersistentID: pid,
		ConnectionID: "conn-" + pid,
		DisplayName:  name,
		Role:         identity.RolePlayer,
	}
}

// newTestHub builds a hub with no snapshot or analytics backends so tests
// exercise the registry alone. Sweep settings are inert.
func newTestHub() *Hub {
	return NewHub(Config{SweepInterval: time.Hour, StaleMaxAge: time.Hour})
}

// quietClient builds a client whose pumps are never started; responses are
// inspected straight off the send buffer.
func quietClient(h *Hub, session identity.Session) *Client {
	return newClient(newMockSocket(), h, session)
}

// drain empties the client's send buffer and decodes each envelope.
func drain(t *testing.T, c *Client) []game.Message {
	t.Helper()
	var out []game.Message
	for {
		select {
		case data := <-c.send:
			var msg game.Message
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// createRoom registers a room through the GM create path and returns it
// with its minted code.
func createRoom(t *testing.T, h *Hub, gmPID string) (*game.Room, string) {
	t.Helper()
	c := quietClient(h, gmSession(gmPID))
	h.handleCreateRoom(c, game.Message{Event: game.EventCreateRoom})
	var created game.RoomCreatedPayload
	require.True(t, lastOf(t, drain(t, c), game.EventRoomCreated, &created))
	room := h.Room(game.RoomCode(created.Code))
	require.NotNil(t, room)
	return room, created.Code
}

// lastOf returns the newest message with the given event, decoding its
// payload into dst, which may be nil.
func lastOf(t *testing.T, msgs []game.Message, event game.Event, dst any) bool {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event != event {
			continue
		}
		if dst != nil {
			require.NoError(t, json.Unmarshal(msgs[i].Payload, dst))
		}
		return true
	}
	return false
}
