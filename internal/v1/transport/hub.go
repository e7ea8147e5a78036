package transport

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/auth"
	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/identity"
	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"github.com/quizhall/server/internal/v1/ratelimit"
	"github.com/quizhall/server/internal/v1/snapshot"
)

const (
	roomCodeLength  = 6
	roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// gmSweepSlack is the safety net over the GM disconnect grace: the
	// stale sweeper evicts any room whose GM has been gone this long even
	// if the per-room expiry timer was lost.
	gmSweepSlack = 3 * time.Minute
)

// Hub is the room registry: it owns the code-to-room map, accepts
// WebSocket connections, mints room codes, and runs the stale sweeper.
type Hub struct {
	mu    sync.Mutex
	rooms map[game.RoomCode]*game.Room

	snapshots   *snapshot.Store
	analytics   *analytics.Store
	rateLimiter *ratelimit.RateLimiter

	sweepInterval time.Duration
	staleMaxAge   time.Duration

	allowedOrigins []string
}

// Config wires the hub's collaborators.
type Config struct {
	Snapshots     *snapshot.Store
	Analytics     *analytics.Store
	RateLimiter   *ratelimit.RateLimiter
	SweepInterval time.Duration
	StaleMaxAge   time.Duration
}

// NewHub creates the hub with its dependencies.
func NewHub(cfg Config) *Hub {
	return &Hub{
		rooms:          make(map[game.RoomCode]*game.Room),
		snapshots:      cfg.Snapshots,
		analytics:      cfg.Analytics,
		rateLimiter:    cfg.RateLimiter,
		sweepInterval:  cfg.SweepInterval,
		staleMaxAge:    cfg.StaleMaxAge,
		allowedOrigins: auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

// hooks builds the outward-facing callbacks for a room.
func (h *Hub) hooks() game.Hooks {
	return game.Hooks{
		OnCritical: h.critical,
		OnEvict:    h.scheduleEvict,
		OnRecap:    h.saveRecap,
		Analytics:  h.analyticsSink(),
	}
}

func (h *Hub) analyticsSink() game.Sink {
	if h.analytics == nil {
		return nil
	}
	return h.analytics
}

func (h *Hub) saveRecap(rec *game.Recap) {
	if h.analytics != nil {
		h.analytics.SaveRecap(rec)
	}
}

// critical journals a must-not-lose event and flushes a snapshot off the
// calling goroutine.
func (h *Hub) critical(event string, details map[string]any) {
	if h.snapshots == nil {
		return
	}
	h.snapshots.LogCritical(event, details)
	go func() {
		if err := h.snapshots.SaveAll(h.ExportRecords()); err != nil {
			logging.Error(context.Background(), "critical snapshot flush failed",
				zap.String("event", event), zap.Error(err))
		}
	}()
}

// ServeWs resolves the connection's identity and upgrades to WebSocket.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}

	session, err := identity.Resolve(identity.Handshake{
		PersistentID:        c.Query("persistentId"),
		DisplayName:         c.Query("displayName"),
		IsGameMaster:        c.Query("isGameMaster") == "true",
		IsInitialConnection: c.Query("isInitialConnection") == "true",
		// A cached identity marks a returning session, which may arrive
		// without a display name.
		Recovered: c.Query("persistentId") != "",
	})
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     auth.CheckOrigin(h.allowedOrigins),
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.HandleConnection(conn, session)
}

// HandleConnection takes an established socket, assigns its identity, and
// starts the pumps. The first event every connection receives is its
// persistent ID and connection token.
func (h *Hub) HandleConnection(conn wsConnection, session identity.Session) *Client {
	client := newClient(conn, h, session)
	metrics.IncConnection()

	client.Enqueue(game.Encode(game.EventPersistentIDAssigned, game.PersistentIDAssignedPayload{
		PersistentID:    session.PersistentID,
		ConnectionToken: session.ConnectionID,
	}))

	go client.writePump()
	go client.readPump()
	return client
}

// route steers one inbound envelope: membership events resolve the room
// here, everything else goes to the client's current room.
func (h *Hub) route(c *Client, msg game.Message) {
	switch msg.Event {
	case game.EventCreateRoom:
		h.handleCreateRoom(c, msg)
	case game.EventJoinRoom:
		h.handleJoinRoom(c, msg)
	case game.EventRejoinRoom:
		h.handleRejoinRoom(c, msg)
	default:
		room := c.currentRoom()
		if room == nil {
			c.Enqueue(game.Encode(game.EventRoomNotFound, game.RoomOnlyPayload{}))
			return
		}
		room.Dispatch(c.caller(), msg)
	}
}

func (h *Hub) handleCreateRoom(c *Client, msg game.Message) {
	if c.session.Role != identity.RoleGameMaster {
		c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: game.ErrUnauthorized.Error()}))
		return
	}

	var p game.CreateRoomPayload
	if len(msg.Payload) > 0 {
		_ = json.Unmarshal(msg.Payload, &p)
	}
	p.Code = strings.ToUpper(p.Code)

	// A supplied code that already exists is a reclaim: the returning GM
	// rebinds the room instead of colliding with it.
	if p.Code != "" {
		if room := h.Room(game.RoomCode(p.Code)); room != nil {
			room.BindGM(c, game.PersistentID(c.session.PersistentID), c.session.DisplayName)
			c.setRoom(room)
			c.Enqueue(game.Encode(game.EventRoomCreated, game.RoomCreatedPayload{
				Code:           p.Code,
				IsStreamerMode: room.IsStreamerMode,
				IsPointsMode:   room.IsPointsMode,
			}))
			return
		}
	}

	h.mu.Lock()
	code := game.RoomCode(p.Code)
	if code == "" {
		code = h.mintCodeLocked()
	}
	room := game.NewRoom(code, game.PersistentID(c.session.PersistentID), game.Options{
		IsStreamerMode:        p.IsStreamerMode,
		IsPointsMode:          p.IsPointsMode,
		IsCommunityVotingMode: p.IsCommunityMode,
	}, h.hooks())
	h.rooms[code] = room
	h.mu.Unlock()

	metrics.ActiveRooms.Inc()
	logging.Info(logging.WithRoom(context.Background(), string(code)), "room created",
		zap.String("gmPersistentId", c.session.PersistentID))

	room.BindGM(c, game.PersistentID(c.session.PersistentID), c.session.DisplayName)
	c.setRoom(room)

	h.critical("room_created", map[string]any{
		"roomCode":       string(code),
		"gmPersistentId": c.session.PersistentID,
	})

	c.Enqueue(game.Encode(game.EventRoomCreated, game.RoomCreatedPayload{
		Code:           string(code),
		IsStreamerMode: room.IsStreamerMode,
		IsPointsMode:   room.IsPointsMode,
	}))
}

func (h *Hub) handleJoinRoom(c *Client, msg game.Message) {
	var p game.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: game.ErrInvalidPayload.Error()}))
		return
	}
	p.Code = strings.ToUpper(p.Code)

	room := h.Room(game.RoomCode(p.Code))
	if room == nil {
		c.Enqueue(game.Encode(game.EventRoomNotFound, game.RoomOnlyPayload{Code: p.Code}))
		return
	}
	if err := room.HandleJoin(c.caller(), p); err != nil {
		c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: err.Error()}))
		return
	}
	c.setRoom(room)
}

func (h *Hub) handleRejoinRoom(c *Client, msg game.Message) {
	var p game.RejoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: game.ErrInvalidPayload.Error()}))
		return
	}
	p.Code = strings.ToUpper(p.Code)

	room := h.Room(game.RoomCode(p.Code))
	if room == nil {
		c.Enqueue(game.Encode(game.EventRoomNotFound, game.RoomOnlyPayload{Code: p.Code}))
		return
	}
	if err := room.HandleRejoin(c.caller(), p); err != nil {
		c.Enqueue(game.Encode(game.EventError, game.ErrorPayload{Message: err.Error()}))
		return
	}
	c.setRoom(room)
}

// handleDisconnect reports a dead socket to its room. A clean close frame
// is a graceful leave (immediate removal); anything else gets the
// reconnect grace period.
func (h *Hub) handleDisconnect(c *Client, readErr error) {
	c.Close()
	room := c.currentRoom()
	if room == nil {
		return
	}
	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure) {
		room.HandleLeave(game.ConnectionID(c.session.ConnectionID))
		return
	}
	room.DetachConnection(game.ConnectionID(c.session.ConnectionID))
}

// Room looks a live room up by code.
func (h *Hub) Room(code game.RoomCode) *game.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[code]
}

// Rooms returns a point-in-time copy of the registry.
func (h *Hub) Rooms() []*game.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*game.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	return out
}

// mintCodeLocked generates a fresh 6-character code, retrying on the rare
// collision with a live room.
func (h *Hub) mintCodeLocked() game.RoomCode {
	for {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeCharset[rand.IntN(len(roomCodeCharset))]
		}
		code := game.RoomCode(b)
		if _, exists := h.rooms[code]; !exists {
			return code
		}
	}
}

// scheduleEvict removes a room after its engine asked for eviction. The
// engine calls this with the room lock held, so the removal runs on its
// own goroutine.
func (h *Hub) scheduleEvict(code game.RoomCode, reason string) {
	go func() {
		h.mu.Lock()
		room, ok := h.rooms[code]
		delete(h.rooms, code)
		h.mu.Unlock()
		if !ok {
			return
		}

		room.Shutdown()
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(code))
		logging.Info(logging.WithRoom(context.Background(), string(code)), "room evicted",
			zap.String("reason", reason))
	}()
}

// ExportRecords projects every live room for the snapshot store.
func (h *Hub) ExportRecords() []game.RoomRecord {
	rooms := h.Rooms()
	out := make([]game.RoomRecord, 0, len(rooms))
	for _, r := range rooms {
		rec := r.ExportRecord()
		if rec.IsConcluded {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// RestoreRooms rebuilds rooms from a loaded snapshot.
func (h *Hub) RestoreRooms(records []game.RoomRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range records {
		code := game.RoomCode(rec.Code)
		if _, exists := h.rooms[code]; exists {
			continue
		}
		h.rooms[code] = game.RestoreRoom(rec, h.hooks())
		metrics.ActiveRooms.Inc()
	}
	if len(records) > 0 {
		logging.Info(context.Background(), "rooms restored from snapshot",
			zap.Int("count", len(records)))
	}
}

// RunStaleSweeper periodically evicts rooms that have been inactive past
// the max age or whose GM vanished without the per-room expiry firing.
func (h *Hub) RunStaleSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepOnce()
		}
	}
}

func (h *Hub) sweepOnce() {
	now := time.Now()
	var stale []*game.Room

	h.mu.Lock()
	for code, room := range h.rooms {
		gmGone := room.GMDisconnectedSince()
		if now.Sub(room.LastActivity()) > h.staleMaxAge ||
			(gmGone != nil && now.Sub(*gmGone) > gmSweepSlack) {
			delete(h.rooms, code)
			stale = append(stale, room)
		}
	}
	h.mu.Unlock()

	for _, room := range stale {
		room.Shutdown()
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(room.Code))
		logging.Info(logging.WithRoom(context.Background(), string(room.Code)), "stale room swept")
		h.critical("room_swept", map[string]any{"roomCode": string(room.Code)})
	}
}

// Shutdown stops every room's timers. Connections drain as their pumps
// observe the closed sockets.
func (h *Hub) Shutdown(ctx context.Context) error {
	rooms := h.Rooms()
	for _, r := range rooms {
		r.Shutdown()
	}
	logging.Info(ctx, "hub shut down", zap.Int("rooms", len(rooms)))
	return nil
}
