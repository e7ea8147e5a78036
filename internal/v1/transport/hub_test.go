package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/server/internal/v1/game"
)

func TestCreateRoom_MintsCodeAndBindsGM(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, gmSession("GM-1"))

	h.handleCreateRoom(c, game.Message{Event: game.EventCreateRoom})

	var created game.RoomCreatedPayload
	require.True(t, lastOf(t, drain(t, c), game.EventRoomCreated, &created))
	assert.Len(t, created.Code, roomCodeLength)
	for _, ch := range created.Code {
		assert.True(t, strings.ContainsRune(roomCodeCharset, ch), "unexpected code char %q", ch)
	}

	room := h.Room(game.RoomCode(created.Code))
	require.NotNil(t, room)
	assert.Equal(t, game.PersistentID("GM-1"), room.GMPersistentID)
	assert.True(t, room.HasConnection(c.ID()))
	assert.Same(t, room, c.currentRoom())
}

func TestCreateRoom_PlayerRejected(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, playerSession("P-alice", "Alice"))

	h.handleCreateRoom(c, game.Message{Event: game.EventCreateRoom})

	var e game.ErrorPayload
	require.True(t, lastOf(t, drain(t, c), game.EventError, &e))
	assert.Equal(t, game.ErrUnauthorized.Error(), e.Message)
	assert.Empty(t, h.Rooms())
}

func TestCreateRoom_SuppliedCodeReclaims(t *testing.T) {
	h := newTestHub()
	first := quietClient(h, gmSession("GM-old"))
	h.handleCreateRoom(first, game.Message{Event: game.EventCreateRoom})
	var created game.RoomCreatedPayload
	require.True(t, lastOf(t, drain(t, first), game.EventRoomCreated, &created))
	room := h.Room(game.RoomCode(created.Code))
	require.NotNil(t, room)

	// A second GM handshake carrying the existing code rebinds the room
	// instead of minting a duplicate.
	second := quietClient(h, gmSession("GM-new"))
	h.handleCreateRoom(second, game.Message{
		Event:   game.EventCreateRoom,
		Payload: mustJSON(t, game.CreateRoomPayload{Code: created.Code}),
	})

	require.True(t, lastOf(t, drain(t, second), game.EventRoomCreated, nil))
	assert.Len(t, h.Rooms(), 1)
	assert.Same(t, room, h.Room(game.RoomCode(created.Code)))
	assert.Equal(t, game.PersistentID("GM-new"), room.GMPersistentID)
	assert.Same(t, room, second.currentRoom())
}

func TestJoinRoom_NotFound(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, playerSession("P-alice", "Alice"))

	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: "NOSUCH", PlayerName: "Alice"}),
	})

	var nf game.RoomOnlyPayload
	require.True(t, lastOf(t, drain(t, c), game.EventRoomNotFound, &nf))
	assert.Equal(t, "NOSUCH", nf.Code)
	assert.Nil(t, c.currentRoom())
}

func TestJoinRoom_SeatsPlayer(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")

	c := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "Alice"}),
	})

	assert.Same(t, room, c.currentRoom())
	assert.True(t, room.HasConnection(c.ID()))
	require.Len(t, room.PlayerList(), 1)
}

func TestJoinRoom_CodeIsCaseInsensitive(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")

	c := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: strings.ToLower(code), PlayerName: "Alice"}),
	})

	require.True(t, lastOf(t, drain(t, c), game.EventRoomJoined, nil))
	assert.Same(t, room, c.currentRoom())
}

func TestJoinRoom_RoomErrorForwarded(t *testing.T) {
	h := newTestHub()
	_, code := createRoom(t, h, "GM-1")
	taken := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(taken, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "Alice"}),
	})

	dup := quietClient(h, playerSession("P-bob", "alice"))
	h.handleJoinRoom(dup, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "alice"}),
	})

	var e game.ErrorPayload
	require.True(t, lastOf(t, drain(t, dup), game.EventError, &e))
	assert.Equal(t, game.ErrNameTaken.Error(), e.Message)
	assert.Nil(t, dup.currentRoom())
}

func TestRejoinRoom_RebindsSeat(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")
	c := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "Alice"}),
	})
	room.DetachConnection(c.ID())

	back := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleRejoinRoom(back, game.Message{
		Event:   game.EventRejoinRoom,
		Payload: mustJSON(t, game.RejoinRoomPayload{Code: code, PersistentPlayerID: "P-alice"}),
	})

	assert.Same(t, room, back.currentRoom())
	assert.True(t, room.HasConnection(back.ID()))
}

func TestRoute_NoRoomYet(t *testing.T) {
	h := newTestHub()
	c := quietClient(h, playerSession("P-alice", "Alice"))

	h.route(c, game.Message{Event: game.EventGetGameState})

	require.True(t, lastOf(t, drain(t, c), game.EventRoomNotFound, nil))
}

func TestDisconnect_GracefulLeavesImmediately(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")
	c := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "Alice"}),
	})

	h.handleDisconnect(c, &websocket.CloseError{Code: websocket.CloseNormalClosure})

	assert.Empty(t, room.PlayerList(), "clean close frame removes the seat")
}

func TestDisconnect_AbruptKeepsSeatForGrace(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")
	c := quietClient(h, playerSession("P-alice", "Alice"))
	h.handleJoinRoom(c, game.Message{
		Event:   game.EventJoinRoom,
		Payload: mustJSON(t, game.JoinRoomPayload{Code: code, PlayerName: "Alice"}),
	})

	h.handleDisconnect(c, errors.New("connection reset by peer"))

	require.Len(t, room.PlayerList(), 1, "seat survives for the reconnect grace")
	assert.False(t, room.HasConnection(c.ID()))
	room.Shutdown()
}

func TestExportRecords_SkipsConcluded(t *testing.T) {
	h := newTestHub()
	live, liveCode := createRoom(t, h, "GM-1")
	done, _ := createRoom(t, h, "GM-2")
	_ = live
	done.Concluded = true

	recs := h.ExportRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, liveCode, recs[0].Code)
}

func TestRestoreRooms_RebuildsAndSkipsCollisions(t *testing.T) {
	h := newTestHub()
	room, code := createRoom(t, h, "GM-1")
	rec := room.ExportRecord()

	fresh := newTestHub()
	fresh.RestoreRooms([]game.RoomRecord{rec})
	restored := fresh.Room(game.RoomCode(code))
	require.NotNil(t, restored)
	assert.Equal(t, game.PersistentID("GM-1"), restored.GMPersistentID)

	// A live room with the same code is never replaced.
	h.RestoreRooms([]game.RoomRecord{rec})
	assert.Same(t, room, h.Room(game.RoomCode(code)))
	assert.Len(t, h.Rooms(), 1)
}

func TestSweepOnce_EvictsStaleRooms(t *testing.T) {
	h := NewHub(Config{SweepInterval: time.Hour, StaleMaxAge: time.Nanosecond})
	_, code := createRoom(t, h, "GM-1")

	time.Sleep(2 * time.Millisecond)
	h.sweepOnce()

	assert.Nil(t, h.Room(game.RoomCode(code)))
	assert.Empty(t, h.Rooms())
}

func TestHandleConnection_AssignsIdentityFirst(t *testing.T) {
	h := newTestHub()
	sock := newMockSocket()
	session := playerSession("P-alice", "Alice")

	c := h.HandleConnection(sock, session)

	var assigned game.PersistentIDAssignedPayload
	require.Eventually(t, func() bool {
		return lastOf(t, sock.writtenEvents(), game.EventPersistentIDAssigned, &assigned)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "P-alice", assigned.PersistentID)
	assert.Equal(t, session.ConnectionID, assigned.ConnectionToken)
	assert.Equal(t, game.ConnectionID(session.ConnectionID), c.ID())

	sock.terminate(errors.New("gone"))
	require.Eventually(t, func() bool {
		sock.mu.Lock()
		defer sock.mu.Unlock()
		return sock.closed
	}, time.Second, 5*time.Millisecond)
}

func TestHandleConnection_PumpsRouteToHub(t *testing.T) {
	h := newTestHub()
	sock := newMockSocket()
	h.HandleConnection(sock, gmSession("GM-1"))

	sock.push(t, game.EventCreateRoom, nil)

	var created game.RoomCreatedPayload
	require.Eventually(t, func() bool {
		return lastOf(t, sock.writtenEvents(), game.EventRoomCreated, &created)
	}, time.Second, 5*time.Millisecond)
	room := h.Room(game.RoomCode(created.Code))
	require.NotNil(t, room)

	sock.terminate(errors.New("gone"))
	require.Eventually(t, func() bool {
		return room.GMDisconnectedSince() != nil
	}, time.Second, 5*time.Millisecond)
	room.Shutdown()
}

func TestReadPump_MalformedFrameAnswersError(t *testing.T) {
	h := newTestHub()
	sock := newMockSocket()
	h.HandleConnection(sock, playerSession("P-alice", "Alice"))

	sock.readCh <- []byte(`{not json`)

	require.Eventually(t, func() bool {
		return sock.wrote(game.EventError)
	}, time.Second, 5*time.Millisecond)
	sock.terminate(errors.New("gone"))
}

func TestServeWs_RejectsUnnamedHandshake(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHub()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws/hub", nil)

	h.ServeWs(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "name required")
}

func TestServeWs_CachedIdentityNeedsNoName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHub()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws/hub?persistentId=P-returning", nil)

	h.ServeWs(c)

	// Identity resolution passes; the plain HTTP request then fails the
	// websocket upgrade instead of being turned away at the door.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
