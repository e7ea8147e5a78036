package game

import (
	"time"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"go.uber.org/zap"
)

// HandleJoin seats a player. Reconnecting players (same persistent ID, no
// live socket) are rebound with their lives, answers and spectator flags
// intact; a second live socket for the same identity is rejected.
func (r *Room) HandleJoin(c Caller, p JoinRoomPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.participant(c.PersistentID); existing != nil {
		if existing.conn != nil && existing.ConnectionID != c.Conn.ID() {
			return ErrAlreadyConnected
		}
		r.rebindPlayerLocked(existing, c.Conn)
		r.sendTo(existing.PersistentID, EventRoomJoined, RoomJoinedPayload{
			Code:               string(r.Code),
			PersistentPlayerID: string(existing.PersistentID),
			IsSpectator:        existing.IsSpectator,
		})
		r.sendStateLocked(existing.PersistentID)
		return nil
	}

	if p.PlayerName == "" {
		return ErrInvalidPayload
	}
	if r.nameTaken(p.PlayerName, c.PersistentID) {
		return ErrNameTaken
	}

	player := &Participant{
		PersistentID:      c.PersistentID,
		ConnectionID:      c.Conn.ID(),
		DisplayName:       p.PlayerName,
		IsActive:          true,
		IsSpectator:       p.IsSpectator,
		JoinedAsSpectator: p.IsSpectator,
		Avatar:            p.Avatar,
		Lives:             InitialLives,
		Answers:           make(map[int]*Answer),
		joinedAt:          time.Now(),
		conn:              c.Conn,
	}
	if p.IsSpectator {
		player.Lives = 0
	}
	r.participants = append(r.participants, player)
	r.byID[player.PersistentID] = player
	r.touch()

	metrics.RoomParticipants.WithLabelValues(string(r.Code)).Inc()
	logging.Info(r.logCtx(), "player joined",
		zap.String("persistentId", string(player.PersistentID)),
		zap.String("playerName", player.DisplayName),
		zap.Bool("spectator", player.IsSpectator))

	r.sendTo(player.PersistentID, EventRoomJoined, RoomJoinedPayload{
		Code:               string(r.Code),
		PersistentPlayerID: string(player.PersistentID),
		IsSpectator:        player.IsSpectator,
	})
	r.broadcast(EventPlayerJoined, PlayerStatusPayload{
		PersistentPlayerID: string(player.PersistentID),
		PlayerName:         player.DisplayName,
		IsActive:           true,
	})
	r.broadcastStateLocked()
	return nil
}

// HandleRejoin re-attaches a connection to its previous seat: the GM
// reclaims the room by identity match, a player cancels their pending
// removal.
func (r *Room) HandleRejoin(c Caller, p RejoinRoomPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.IsGameMaster || c.IsGameMaster {
		// Knowing the code is not enough: rejoin only rebinds the GM
		// identity the room is already bound to. A fresh GM session goes
		// through the create_room reclaim path instead.
		if c.PersistentID != r.GMPersistentID {
			return ErrUnauthorized
		}
		r.bindGMLocked(c.Conn, c.PersistentID, c.DisplayName)
		r.broadcast(EventGMDisconnectedStatus, GMDisconnectedPayload{Disconnected: false})
		r.sendStateLocked(c.PersistentID)
		return nil
	}

	pid := PersistentID(p.PersistentPlayerID)
	if pid == "" {
		pid = c.PersistentID
	}
	player := r.participant(pid)
	if player == nil {
		return ErrPlayerNotFound
	}
	if player.conn != nil && player.ConnectionID != c.Conn.ID() {
		return ErrAlreadyConnected
	}

	r.rebindPlayerLocked(player, c.Conn)
	if p.Avatar != "" {
		player.Avatar = p.Avatar
	}
	r.sendStateLocked(pid)
	return nil
}

// rebindPlayerLocked restores a seat onto a fresh connection and cancels
// any pending removal.
func (r *Room) rebindPlayerLocked(p *Participant, conn Conn) {
	if t := r.disconnectTimers[p.PersistentID]; t != nil {
		t.Stop()
		delete(r.disconnectTimers, p.PersistentID)
	}
	p.conn = conn
	p.ConnectionID = conn.ID()
	p.IsActive = true
	p.DisconnectDeadline = nil
	r.touch()

	logging.Info(r.logCtx(), "player reconnected",
		zap.String("persistentId", string(p.PersistentID)))

	r.broadcast(EventPlayerReconnectedStatus, PlayerStatusPayload{
		PersistentPlayerID: string(p.PersistentID),
		PlayerName:         p.DisplayName,
		IsActive:           true,
	})
	r.broadcastStateLocked()
}

// HandleLeave removes a participant immediately on a graceful client exit.
func (r *Room) HandleLeave(connID ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants {
		if p.ConnectionID != connID || p.conn == nil {
			continue
		}
		if p.IsGameMaster {
			r.gmDroppedLocked(p)
			return
		}
		r.removePlayerLocked(p, EventPlayerLeftGracefully)
		return
	}
}

// playerDroppedLocked marks a player inactive and arms their removal
// deadline.
func (r *Room) playerDroppedLocked(p *Participant) {
	delete(r.readyPeers, p.ConnectionID)
	p.conn = nil
	p.ConnectionID = ""
	p.IsActive = false
	deadline := time.Now().Add(PlayerDisconnectGrace)
	p.DisconnectDeadline = &deadline

	logging.Info(r.logCtx(), "player disconnected, grace period armed",
		zap.String("persistentId", string(p.PersistentID)),
		zap.Duration("grace", PlayerDisconnectGrace))

	r.broadcast(EventPlayerDisconnectedStatus, PlayerStatusPayload{
		PersistentPlayerID: string(p.PersistentID),
		PlayerName:         p.DisplayName,
		IsActive:           false,
		Temporary:          true,
	})

	pid := p.PersistentID
	if t := r.disconnectTimers[pid]; t != nil {
		t.Stop()
	}
	r.disconnectTimers[pid] = time.AfterFunc(PlayerDisconnectGrace, func() {
		r.expirePlayerGrace(pid)
	})
}

// expirePlayerGrace fires after the disconnect grace: if the player never
// came back, drop their seat and re-check round progress.
func (r *Room) expirePlayerGrace(pid PersistentID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.disconnectTimers, pid)
	p := r.participant(pid)
	if p == nil || p.conn != nil {
		return
	}
	r.removePlayerLocked(p, EventPlayerRemovedTimeout)
}

// removePlayerLocked drops a participant and all of their per-round state.
func (r *Room) removePlayerLocked(p *Participant, notice Event) {
	pid := p.PersistentID
	if t := r.disconnectTimers[pid]; t != nil {
		t.Stop()
		delete(r.disconnectTimers, pid)
	}
	p.conn = nil
	delete(r.byID, pid)
	for i, other := range r.participants {
		if other.PersistentID == pid {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
	delete(r.roundAnswers, pid)
	delete(r.evaluatedAnswers, pid)
	delete(r.playerBoards, pid)
	delete(r.votes, pid)
	for _, ballots := range r.votes {
		delete(ballots, pid)
	}
	r.touch()

	metrics.RoomParticipants.WithLabelValues(string(r.Code)).Dec()
	logging.Info(r.logCtx(), "player removed",
		zap.String("persistentId", string(pid)),
		zap.String("reason", string(notice)))

	r.broadcast(notice, PlayerStatusPayload{
		PersistentPlayerID: string(pid),
		PlayerName:         p.DisplayName,
		IsActive:           false,
	})
	r.broadcastStateLocked()

	if r.Started && !r.Concluded {
		if r.checkGameOverLocked() {
			return
		}
		// A shrunken expected set may mean everyone remaining has answered.
		r.maybeEndSubmissionsLocked()
	}
}

// gmDroppedLocked marks the GM gone and arms the room expiry.
func (r *Room) gmDroppedLocked(gm *Participant) {
	gm.conn = nil
	gm.ConnectionID = ""
	gm.IsActive = false
	r.gmConnectionID = ""
	if seat := r.byID[r.gmPlayerID]; seat != nil {
		seat.IsActive = false
	}
	now := time.Now()
	r.gmDisconnectedSince = &now

	logging.Warn(r.logCtx(), "game master disconnected, room expiry armed",
		zap.Duration("grace", GMDisconnectGrace))

	r.broadcast(EventGMDisconnectedStatus, GMDisconnectedPayload{Disconnected: true})
	r.critical("gm_disconnected", map[string]any{
		"gmPersistentId": string(r.GMPersistentID),
	})

	if r.gmGraceTimer != nil {
		r.gmGraceTimer.Stop()
	}
	r.gmGraceTimer = time.AfterFunc(GMDisconnectGrace, r.expireGMGrace)
}

// expireGMGrace concludes and evicts a room whose GM never returned.
func (r *Room) expireGMGrace() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gmDisconnectedSince == nil {
		return
	}
	logging.Warn(r.logCtx(), "game master absent past grace, evicting room")

	r.Concluded = true
	r.phase = PhaseConcluded
	r.stopTimerLocked()
	r.broadcast(EventRoomNotFound, RoomOnlyPayload{Code: string(r.Code)})
	r.broadcast(EventGameOver, ErrorPayload{Message: "GM disconnected too long"})
	r.critical("room_evicted_gm_timeout", nil)

	if r.hooks.OnEvict != nil {
		r.hooks.OnEvict(r.Code, "GM disconnected too long")
	}
}

// cancelGMGraceLocked clears GM-absence state on reclaim.
func (r *Room) cancelGMGraceLocked() {
	if r.gmGraceTimer != nil {
		r.gmGraceTimer.Stop()
		r.gmGraceTimer = nil
	}
	r.gmDisconnectedSince = nil
}

func (r *Room) handleKickPlayer(p KickPlayerPayload) error {
	target := r.participant(PersistentID(p.PlayerIDToKick))
	if target == nil {
		return ErrPlayerNotFound
	}
	if target.IsGameMaster || target.PersistentID == r.GMPersistentID {
		return ErrUnauthorized
	}

	r.sendTo(target.PersistentID, EventKickedFromRoom, RoomOnlyPayload{Code: string(r.Code)})
	if target.conn != nil {
		target.conn.Close()
	}
	r.removePlayerLocked(target, EventPlayerLeftGracefully)
	return nil
}

func (r *Room) handleUpdateAvatar(c Caller, p UpdateAvatarPayload) error {
	pid := PersistentID(p.PersistentPlayerID)
	if pid == "" {
		pid = c.PersistentID
	}
	// Players may only change their own avatar; the GM may change anyone's.
	if pid != c.PersistentID && c.PersistentID != r.GMPersistentID {
		return ErrUnauthorized
	}
	target := r.participant(pid)
	if target == nil {
		return ErrPlayerNotFound
	}
	target.Avatar = p.Avatar
	r.broadcast(EventAvatarUpdated, AvatarUpdatedPayload{
		PersistentPlayerID: string(pid),
		Avatar:             p.Avatar,
	})
	return nil
}
