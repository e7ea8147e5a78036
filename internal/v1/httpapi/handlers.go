// Package httpapi exposes the read-only HTTP surface (debug, recaps,
// analytics) and the HTTP mirrors of a few socket operations for
// non-socket callers.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/transport"
)

// Handler serves the HTTP API over the hub and the analytics store.
type Handler struct {
	hub       *transport.Hub
	analytics *analytics.Store
}

func NewHandler(hub *transport.Hub, store *analytics.Store) *Handler {
	return &Handler{hub: hub, analytics: store}
}

// Register mounts every route on the given engine. roomLimit, when not
// nil, rate-limits the per-room endpoints more tightly than the global
// limiter.
func (h *Handler) Register(r gin.IRouter, roomLimit gin.HandlerFunc) {
	r.GET("/debug/rooms", h.DebugRooms)

	api := r.Group("/api")
	api.GET("/recaps", h.ListRecaps)
	api.GET("/recaps/:id", h.GetRecap)
	api.GET("/recaps/:id/round/:n", h.GetRecapRound)
	api.GET("/recaps/room/:code", h.RecapsForRoom)
	api.GET("/analytics/game/:code", h.GameAnalytics)

	rooms := api.Group("/room")
	if roomLimit != nil {
		rooms.Use(roomLimit)
	}
	rooms.GET("/:code/players", h.RoomPlayers)
	rooms.POST("/:code/board", h.UpdateBoard)
}

// DebugRooms dumps a sanitized view of every live room.
func (h *Handler) DebugRooms(c *gin.Context) {
	rooms := h.hub.Rooms()
	out := make([]map[string]any, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.DebugSummary())
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "rooms": out})
}

// ListRecaps returns archived recaps, newest first.
func (h *Handler) ListRecaps(c *gin.Context) {
	c.JSON(http.StatusOK, h.analytics.Recaps())
}

// GetRecap returns one recap by ID.
func (h *Handler) GetRecap(c *gin.Context) {
	rec := h.analytics.Recap(c.Param("id"))
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recap not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRecapRound returns a single round of one recap.
func (h *Handler) GetRecapRound(c *gin.Context) {
	rec := h.analytics.Recap(c.Param("id"))
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recap not found"})
		return
	}
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 0 || n >= len(rec.Rounds) {
		c.JSON(http.StatusNotFound, gin.H{"error": "round not found"})
		return
	}
	c.JSON(http.StatusOK, rec.Rounds[n])
}

// RecapsForRoom returns every recap archived for one room code.
func (h *Handler) RecapsForRoom(c *gin.Context) {
	c.JSON(http.StatusOK, h.analytics.RecapsForRoom(strings.ToUpper(c.Param("code"))))
}

// GameAnalytics returns the append-only analytics record for one room.
func (h *Handler) GameAnalytics(c *gin.Context) {
	log := h.analytics.Game(game.RoomCode(strings.ToUpper(c.Param("code"))))
	if log == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analytics for room"})
		return
	}
	c.JSON(http.StatusOK, log)
}

// RoomPlayers mirrors the player list for non-socket callers.
func (h *Handler) RoomPlayers(c *gin.Context) {
	room := h.hub.Room(game.RoomCode(strings.ToUpper(c.Param("code"))))
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": room.PlayerList()})
}

type boardRequest struct {
	Board string `json:"boardData" binding:"required"`
}

// UpdateBoard mirrors the update_board socket operation. The caller
// authorizes with the connection token issued in persistent_id_assigned:
// the token must belong to a live connection seated in this room.
func (h *Handler) UpdateBoard(c *gin.Context) {
	room := h.hub.Room(game.RoomCode(strings.ToUpper(c.Param("code"))))
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	token := bearerToken(c)
	if token == "" || !room.HasConnection(game.ConnectionID(token)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "connection token required"})
		return
	}

	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boardData required"})
		return
	}

	if err := room.UpdateBoardFor(game.ConnectionID(token), req.Board); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
