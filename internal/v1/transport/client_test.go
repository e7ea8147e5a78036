package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/identity"
)

func TestCaller_ReflectsSession(t *testing.T) {
	h := newTestHub()

	gm := quietClient(h, gmSession("GM-1")).caller()
	assert.True(t, gm.IsGameMaster)
	assert.Equal(t, game.PersistentID("GM-1"), gm.PersistentID)

	p := quietClient(h, playerSession("P-alice", "Alice")).caller()
	assert.False(t, p.IsGameMaster)
	assert.Equal(t, "Alice", p.DisplayName)
}

func TestEnqueue_AfterCloseIsNoop(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, playerSession("P-alice", "Alice"))

	c.Close()
	assert.NotPanics(t, func() {
		c.Enqueue([]byte(`{"event":"error"}`))
	})
	c.Close() // idempotent
}

func TestEnqueue_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, playerSession("P-alice", "Alice"))

	frame := []byte(`{"event":"timer_update"}`)
	for i := 0; i < sendBufferSize; i++ {
		c.Enqueue(frame)
	}

	done := make(chan struct{})
	go func() {
		c.Enqueue(frame)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	assert.Len(t, c.send, sendBufferSize)
	c.Close()
}

func TestReadPump_OversizedFrameGetsSizeError(t *testing.T) {
	h := newTestHub()
	sock := newMockSocket()
	h.HandleConnection(sock, playerSession("P-big", "Biggie"))

	sock.terminate(websocket.ErrReadLimit)

	require.Eventually(t, func() bool {
		for _, msg := range sock.writtenEvents() {
			if msg.Event != game.EventError {
				continue
			}
			var p game.ErrorPayload
			if json.Unmarshal(msg.Payload, &p) == nil && p.Message == game.ErrPayloadTooLarge.Error() {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "limit violation surfaces as an error event")
}

func TestWritePump_FlushesThenClosesSocket(t *testing.T) {
	h := newTestHub()
	sock := newMockSocket()
	c := newClient(sock, h, identity.Session{PersistentID: "P-alice", ConnectionID: "conn-1"})

	c.Enqueue(game.Encode(game.EventTimerUpdate, nil))
	c.Enqueue(game.Encode(game.EventTimerUpdate, nil))
	c.Close()

	// The channel is closed, so the pump drains synchronously and returns.
	c.writePump()

	require.Len(t, sock.writtenEvents(), 2)
	sock.mu.Lock()
	defer sock.mu.Unlock()
	assert.True(t, sock.closed)
}
