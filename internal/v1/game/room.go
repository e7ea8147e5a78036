package game

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"go.uber.org/zap"
)

// Sink receives append-only analytics records. Implementations must not
// block; failures are theirs to log and swallow.
type Sink interface {
	AnswerSubmitted(code RoomCode, roundIndex int, a *Answer)
	RoundFinalized(code RoomCode, roundIndex int, question Question, answers []*Answer)
	GameConcluded(code RoomCode, winner PersistentID, rounds int)
}

// Hooks let the room reach outward without knowing about the registry or
// the snapshot store. All callbacks are invoked outside the room lock
// unless noted.
type Hooks struct {
	// OnCritical flushes a snapshot after events that must not be lost to a
	// crash (room creation, GM disconnect, eviction). May be nil.
	OnCritical func(event string, details map[string]any)

	// OnEvict asks the registry to drop the room. Called with the room lock
	// held; implementations must only schedule, never call back in.
	OnEvict func(code RoomCode, reason string)

	// OnRecap archives a finished game's recap for the read-only HTTP
	// surface. May be nil.
	OnRecap func(rec *Recap)

	// Analytics is the append-only sink. May be nil.
	Analytics Sink
}

// Options are the GM-chosen settings fixed at room creation.
type Options struct {
	IsStreamerMode        bool
	IsPointsMode          bool
	IsCommunityVotingMode bool
}

// Room is one live game session. All exported mutators go through
// Dispatch, which serializes them under mu.
type Room struct {
	mu sync.RWMutex

	Code           RoomCode
	GMPersistentID PersistentID
	gmConnectionID ConnectionID

	// gmPlayerID is the synthetic GM-as-player seat that exists only while
	// community voting mode is on.
	gmPlayerID PersistentID

	createdAt    time.Time
	lastActivity time.Time

	Started               bool
	Concluded             bool
	IsStreamerMode        bool
	IsCommunityVotingMode bool
	IsPointsMode          bool

	Questions           []Question
	CurrentRoundIndex   int
	RoundStartedAt      *time.Time
	TimeLimitSeconds    *int
	SubmissionPhaseOver bool
	phase               Phase
	previewActive       bool
	focusedSubmission   PersistentID

	// Per-round state, cleared on advance.
	roundAnswers     map[PersistentID]*Answer
	evaluatedAnswers map[PersistentID]bool
	votes            map[PersistentID]map[PersistentID]VoteChoice
	submissionSeq    int

	// Board state survives within a round; player boards are tagged with
	// their round index so stale buffers are never mistaken for fresh ones.
	playerBoards map[PersistentID]*BoardSnapshot
	gmBoard      *BoardSnapshot

	// participants preserves join order; byID is the lookup index.
	participants []*Participant
	byID         map[PersistentID]*Participant

	gmDisconnectedSince *time.Time
	gmGraceTimer        *time.Timer

	// timerGen invalidates stale countdown goroutines and grace callbacks:
	// any timer artifact checks its generation against the current one
	// before acting.
	timerGen      int
	timeRemaining int
	graceTimer    *time.Timer

	disconnectTimers map[PersistentID]*time.Timer

	// readyPeers tracks connections that announced webrtc readiness.
	readyPeers map[ConnectionID]PersistentID

	recap     *Recap
	recapLive bool

	hooks Hooks
}

// NewRoom builds an idle room bound to its creating game master. Rooms
// created in community mode get the synthetic GM-as-player seat up front.
func NewRoom(code RoomCode, gm PersistentID, opts Options, hooks Hooks) *Room {
	now := time.Now()
	r := &Room{
		Code:                  code,
		GMPersistentID:        gm,
		createdAt:             now,
		lastActivity:          now,
		IsStreamerMode:        opts.IsStreamerMode,
		IsPointsMode:          opts.IsPointsMode,
		IsCommunityVotingMode: opts.IsCommunityVotingMode,
		phase:                 PhaseIdle,
		roundAnswers:          make(map[PersistentID]*Answer),
		evaluatedAnswers:      make(map[PersistentID]bool),
		votes:                 make(map[PersistentID]map[PersistentID]VoteChoice),
		playerBoards:          make(map[PersistentID]*BoardSnapshot),
		byID:                  make(map[PersistentID]*Participant),
		disconnectTimers:      make(map[PersistentID]*time.Timer),
		readyPeers:            make(map[ConnectionID]PersistentID),
		hooks:                 hooks,
	}
	if opts.IsCommunityVotingMode {
		r.addGMPlayerSeatLocked()
	}
	return r
}

// touch records activity for the stale sweeper. Caller holds mu.
func (r *Room) touch() {
	r.lastActivity = time.Now()
}

// LastActivity is read by the registry's stale sweeper.
func (r *Room) LastActivity() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity
}

// GMDisconnectedSince reports when the GM dropped, or nil.
func (r *Room) GMDisconnectedSince() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gmDisconnectedSince == nil {
		return nil
	}
	t := *r.gmDisconnectedSince
	return &t
}

// participant returns the seat for pid, or nil. Caller holds mu.
func (r *Room) participant(pid PersistentID) *Participant {
	return r.byID[pid]
}

// gm returns the game master's seat, or nil. Caller holds mu.
func (r *Room) gm() *Participant {
	return r.byID[r.GMPersistentID]
}

// players returns every non-GM seat in join order. Caller holds mu.
func (r *Room) players() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if !p.IsGameMaster {
			out = append(out, p)
		}
	}
	return out
}

// activePlayers returns active, non-spectator players. In community mode
// the synthetic GM-as-player seat counts as a player here; the end-of-game
// predicate separates it back out.
func (r *Room) activePlayers() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if !p.IsGameMaster && p.IsActive && !p.IsSpectator {
			out = append(out, p)
		}
	}
	return out
}

// nameTaken reports whether a connected participant already claims the
// display name, case-insensitively. Caller holds mu.
func (r *Room) nameTaken(name string, except PersistentID) bool {
	for _, p := range r.participants {
		if p.PersistentID == except {
			continue
		}
		if strings.EqualFold(p.DisplayName, name) {
			return true
		}
	}
	return false
}

// broadcast fans a message out to every connected participant. A full
// client buffer drops that client's copy rather than stalling the room.
// Caller holds mu.
func (r *Room) broadcast(event Event, payload any) {
	data := Encode(event, payload)
	for _, p := range r.participants {
		if p.conn != nil {
			p.conn.Enqueue(data)
		}
	}
	metrics.WebsocketEvents.WithLabelValues(string(event), "broadcast").Inc()
}

// sendTo delivers a message to one participant, if connected. Caller holds mu.
func (r *Room) sendTo(pid PersistentID, event Event, payload any) {
	p := r.byID[pid]
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Enqueue(Encode(event, payload))
}

// sendError surfaces a failed operation to the offending connection only.
func sendError(conn Conn, err error) {
	if conn == nil {
		return
	}
	conn.Enqueue(Encode(EventError, ErrorPayload{Message: err.Error()}))
	metrics.WebsocketEvents.WithLabelValues(string(EventError), "sent").Inc()
}

// logCtx builds the standard logging context for this room. Caller holds mu
// or accesses only immutable fields.
func (r *Room) logCtx() context.Context {
	return logging.WithRoom(context.Background(), string(r.Code))
}

// BindGM attaches (or re-attaches) the game master connection. Used at
// creation and on reclaim; cancels any pending GM expiry.
func (r *Room) BindGM(conn Conn, pid PersistentID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindGMLocked(conn, pid, displayName)
}

func (r *Room) bindGMLocked(conn Conn, pid PersistentID, displayName string) {
	r.cancelGMGraceLocked()

	gm := r.byID[r.GMPersistentID]
	if gm == nil {
		gm = &Participant{
			PersistentID: r.GMPersistentID,
			DisplayName:  displayName,
			IsGameMaster: true,
			IsActive:     true,
			Answers:      make(map[int]*Answer),
			joinedAt:     time.Now(),
		}
		r.participants = append(r.participants, gm)
		r.byID[gm.PersistentID] = gm
	}

	// Reclaim by a new GM session rebinds the seat to the new identity.
	if pid != r.GMPersistentID {
		delete(r.byID, r.GMPersistentID)
		r.GMPersistentID = pid
		gm.PersistentID = pid
		r.byID[pid] = gm
	}

	gm.conn = conn
	gm.ConnectionID = conn.ID()
	gm.IsActive = true
	r.gmConnectionID = conn.ID()
	if seat := r.byID[r.gmPlayerID]; seat != nil && !seat.IsSpectator {
		seat.IsActive = true
	}
	r.touch()

	logging.Info(r.logCtx(), "game master bound",
		zap.String("persistentId", string(pid)))
}

// DetachConnection handles an abrupt transport drop for whichever seat the
// connection belonged to. Graceful leaves go through handleLeave instead.
func (r *Room) DetachConnection(connID ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants {
		if p.ConnectionID != connID || p.conn == nil {
			continue
		}
		if p.IsGameMaster {
			r.gmDroppedLocked(p)
		} else {
			r.playerDroppedLocked(p)
		}
		return
	}
	delete(r.readyPeers, connID)
}

// Empty reports whether no participant holds a live connection.
func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.conn != nil {
			return false
		}
	}
	return true
}

// Shutdown stops every timer the room owns. Called by the registry on
// eviction and process shutdown.
func (r *Room) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTimerLocked()
	r.cancelGMGraceLocked()
	for pid, t := range r.disconnectTimers {
		t.Stop()
		delete(r.disconnectTimers, pid)
	}
}

// critical records a must-not-lose event through the snapshot hook.
func (r *Room) critical(event string, details map[string]any) {
	if r.hooks.OnCritical == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["roomCode"] = string(r.Code)
	r.hooks.OnCritical(event, details)
}

// sortedForRecap orders players for recap display: active non-spectators
// first, then by lives descending, then by persistent ID for stability.
func sortedForRecap(players []*Participant) []*Participant {
	out := make([]*Participant, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aLive := a.IsActive && !a.IsSpectator
		bLive := b.IsActive && !b.IsSpectator
		if aLive != bLive {
			return aLive
		}
		if a.Lives != b.Lives {
			return a.Lives > b.Lives
		}
		return a.PersistentID < b.PersistentID
	})
	return out
}

// DebugSummary is the sanitized projection served by /debug/rooms.
func (r *Room) DebugSummary() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.participants))
	connected := 0
	for _, p := range r.participants {
		names = append(names, p.DisplayName)
		if p.conn != nil {
			connected++
		}
	}
	// Streamer-mode rooms keep their code out of the debug dump so an
	// on-stream screen grab cannot leak it.
	code := string(r.Code)
	if r.IsStreamerMode {
		code = "******"
	}
	return map[string]any{
		"code":            code,
		"started":         r.Started,
		"concluded":       r.Concluded,
		"phase":           string(r.phase),
		"round":           r.CurrentRoundIndex,
		"participants":    names,
		"connectedCount":  connected,
		"isStreamerMode":  r.IsStreamerMode,
		"isPointsMode":    r.IsPointsMode,
		"isCommunityMode": r.IsCommunityVotingMode,
		"lastActivity":    r.lastActivity.Format(time.RFC3339),
		"createdAt":       r.createdAt.Format(time.RFC3339),
	}
}

// PlayerList is the projection served by /api/room/:code/players.
func (r *Room) PlayerList() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]any, 0, len(r.participants))
	for _, p := range r.players() {
		out = append(out, map[string]any{
			"persistentPlayerId": string(p.PersistentID),
			"playerName":         p.DisplayName,
			"lives":              p.Lives,
			"score":              p.Score,
			"isActive":           p.IsActive,
			"isSpectator":        p.IsSpectator,
			"avatar":             p.Avatar,
		})
	}
	return out
}

// HasConnection reports whether the given connection currently holds a seat
// in this room. Used by the HTTP mirror endpoints for authorization.
func (r *Room) HasConnection(connID ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.conn != nil && p.ConnectionID == connID {
			return true
		}
	}
	return false
}

// UpdateBoardFor is the HTTP mirror of the update_board socket event.
func (r *Room) UpdateBoardFor(connID ConnectionID, board string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants {
		if p.conn == nil || p.ConnectionID != connID {
			continue
		}
		return r.updateBoardLocked(p, board)
	}
	return ErrPlayerNotFound
}

func (r *Room) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Room(%s, %d participants, phase=%s)", r.Code, len(r.participants), r.phase)
}
