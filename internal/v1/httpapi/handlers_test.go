package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/transport"
)

// stubConn satisfies game.Conn for seating participants without sockets.
type stubConn struct{ id game.ConnectionID }

func (s stubConn) ID() game.ConnectionID { return s.id }
func (s stubConn) Enqueue([]byte)        {}
func (s stubConn) Close()                {}

type fixture struct {
	router *gin.Engine
	hub    *transport.Hub
	store  *analytics.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := transport.NewHub(transport.Config{})
	store := analytics.NewStore(nil)
	router := gin.New()
	NewHandler(hub, store).Register(router, nil)
	return &fixture{router: router, hub: hub, store: store}
}

// seedRoom restores a room into the hub and seats one connected player.
func (f *fixture) seedRoom(t *testing.T, code string) (*game.Room, game.ConnectionID) {
	t.Helper()
	f.hub.RestoreRooms([]game.RoomRecord{{
		Code:           code,
		GMPersistentID: "GM-1",
		Started:        true,
		Questions:      []game.Question{{ID: "q1"}},
	}})
	room := f.hub.Room(game.RoomCode(code))
	require.NotNil(t, room)

	connID := game.ConnectionID("token-alice")
	err := room.HandleJoin(game.Caller{
		Conn:         stubConn{id: connID},
		PersistentID: "P-alice",
		DisplayName:  "Alice",
	}, game.JoinRoomPayload{Code: code, PlayerName: "Alice"})
	require.NoError(t, err)
	return room, connID
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDebugRooms(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "ABC123")

	w := f.do(http.MethodGet, "/debug/rooms", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int              `json:"count"`
		Rooms []map[string]any `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, "ABC123", resp.Rooms[0]["code"])
}

func TestRoomPlayers(t *testing.T) {
	f := newFixture(t)
	f.seedRoom(t, "ABC123")

	w := f.do(http.MethodGet, "/api/room/abc123/players", "", "")
	require.Equal(t, http.StatusOK, w.Code, "codes are case-insensitive")

	var resp struct {
		Players []map[string]any `json:"players"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Players, 1)
	assert.Equal(t, "Alice", resp.Players[0]["playerName"])

	w = f.do(http.MethodGet, "/api/room/NOSUCH/players", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateBoard_RequiresConnectionToken(t *testing.T) {
	f := newFixture(t)
	_, connID := f.seedRoom(t, "ABC123")

	body := `{"boardData":"<svg/>"}`

	w := f.do(http.MethodPost, "/api/room/ABC123/board", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "no token")

	w = f.do(http.MethodPost, "/api/room/ABC123/board", body, "token-forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "token not seated in room")

	w = f.do(http.MethodPost, "/api/room/ABC123/board", body, string(connID))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateBoard_ValidatesBody(t *testing.T) {
	f := newFixture(t)
	_, connID := f.seedRoom(t, "ABC123")

	w := f.do(http.MethodPost, "/api/room/ABC123/board", `{"wrong":"field"}`, string(connID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/room/NOSUCH/board", `{"boardData":"x"}`, string(connID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecapEndpoints(t *testing.T) {
	f := newFixture(t)
	f.store.SaveRecap(&game.Recap{ID: "recap-1", RoomCode: "ABC123", WinnerID: "P-alice",
		Rounds: []game.RecapRound{{RoundIndex: 0}, {RoundIndex: 1}}})
	f.store.SaveRecap(&game.Recap{ID: "recap-2", RoomCode: "XYZ789"})

	w := f.do(http.MethodGet, "/api/recaps", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []*game.Recap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "recap-2", list[0].ID, "newest first")

	w = f.do(http.MethodGet, "/api/recaps/recap-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec game.Recap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "P-alice", rec.WinnerID)

	w = f.do(http.MethodGet, "/api/recaps/recap-404", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/recaps/recap-1/round/1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/recaps/recap-1/round/7", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/recaps/recap-1/round/one", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/recaps/room/abc123", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var forRoom []*game.Recap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &forRoom))
	require.Len(t, forRoom, 1)
	assert.Equal(t, "recap-1", forRoom[0].ID)
}

func TestGameAnalytics(t *testing.T) {
	f := newFixture(t)
	f.store.AnswerSubmitted("ABC123", 0, &game.Answer{PersistentID: "P-alice", Text: "blue"})

	w := f.do(http.MethodGet, "/api/analytics/game/abc123", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var log analytics.GameLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &log))
	require.Len(t, log.Answers, 1)
	assert.Equal(t, "blue", log.Answers[0].Answer)

	w = f.do(http.MethodGet, "/api/analytics/game/NOSUCH", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
