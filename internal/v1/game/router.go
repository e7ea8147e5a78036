package game

import (
	"encoding/json"
	"time"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"go.uber.org/zap"
)

// Caller identifies the connection behind one inbound event.
type Caller struct {
	Conn         Conn
	PersistentID PersistentID
	DisplayName  string
	IsGameMaster bool
}

// Dispatch routes one room-scoped event: decode, authorize against the
// caller's role, mutate under the write lock, and fan out the derived
// broadcasts before releasing it. Errors surface to the caller only.
func (r *Room) Dispatch(c Caller, msg Message) {
	start := time.Now()
	err := r.dispatch(c, msg)
	metrics.MessageProcessingDuration.WithLabelValues(string(msg.Event)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.WebsocketEvents.WithLabelValues(string(msg.Event), "error").Inc()
		logging.Warn(r.logCtx(), "event rejected",
			zap.String("event", string(msg.Event)),
			zap.String("persistentId", string(c.PersistentID)),
			zap.Error(err))
		sendError(c.Conn, err)
		return
	}
	metrics.WebsocketEvents.WithLabelValues(string(msg.Event), "ok").Inc()
}

func (r *Room) dispatch(c Caller, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.participant(c.PersistentID) == nil && !isMembershipEvent(msg.Event) {
		return ErrPlayerNotFound
	}
	r.touch()

	switch msg.Event {
	// GM-only game control.
	case EventStartGame:
		var p StartGamePayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleStartGame(p) })
	case EventEvaluateAnswer:
		var p EvaluateAnswerPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleEvaluateAnswer(p) })
	case EventNextQuestion:
		return r.asGM(c, nil, nil, r.handleNextQuestion)
	case EventEndRoundEarly:
		return r.asGM(c, nil, nil, r.handleEndRoundEarly)
	case EventRestartGame:
		return r.asGM(c, nil, nil, r.handleRestartGame)
	case EventGMEndGameRequest:
		return r.asGM(c, nil, nil, r.handleEndGame)
	case EventStartPreviewMode:
		return r.asGM(c, nil, nil, r.handleStartPreview)
	case EventStopPreviewMode:
		return r.asGM(c, nil, nil, r.handleStopPreview)
	case EventFocusSubmission:
		var p FocusSubmissionPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleFocusSubmission(p) })
	case EventKickPlayer:
		var p KickPlayerPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleKickPlayer(p) })
	case EventToggleCommunityVoting:
		var p ToggleCommunityVotingPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleToggleCommunityVoting(p) })
	case EventShowAnswer:
		var p ShowAnswerPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleShowAnswer(p) })
	case EventForceEndVoting:
		return r.asGM(c, nil, nil, r.handleForceEndVoting)
	case EventUpdateGMBoard:
		var p UpdateGMBoardPayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleUpdateGMBoard(p) })
	case EventClearGMBoard:
		return r.asGM(c, nil, nil, r.handleClearGMBoard)
	case EventGMShowRecapToAll:
		return r.asGM(c, nil, nil, r.handleShowRecapToAll)
	case EventGMNavigateRecapRound:
		var p RecapNavigatePayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleNavigateRecapRound(p) })
	case EventGMNavigateRecapTab:
		var p RecapNavigatePayload
		return r.asGM(c, msg.Payload, &p, func() error { return r.handleNavigateRecapTab(p) })

	// Player (and, in community mode, GM) gameplay.
	case EventSubmitAnswer:
		var p SubmitAnswerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleSubmitAnswer(c, p)
	case EventUpdateBoard:
		var p UpdateBoardPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleUpdateBoard(c, p)
	case EventSubmitVote:
		var p SubmitVotePayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleSubmitVote(c, p)

	// Open to any room member.
	case EventUpdateAvatar:
		var p UpdateAvatarPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleUpdateAvatar(c, p)
	case EventGetGameState:
		r.sendStateLocked(c.PersistentID)
		return nil

	// Signaling relay.
	case EventWebRTCReady:
		return r.handleSignalReady(c)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICECandidate:
		var p SignalPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleSignalForward(c, msg.Event, p)
	case EventWebcamStateChange, EventMicStateChange:
		var p MediaStatePayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.handleMediaState(c, msg.Event, p)

	default:
		return ErrInvalidPayload
	}
}

// asGM decodes into dst (when given) and runs fn only for the bound GM.
func (r *Room) asGM(c Caller, raw json.RawMessage, dst any, fn func() error) error {
	if c.PersistentID != r.GMPersistentID {
		return ErrUnauthorized
	}
	if dst != nil {
		if err := decode(raw, dst); err != nil {
			return err
		}
	}
	return fn()
}

// isMembershipEvent lists events a connection may send before it holds a
// seat (they establish or re-establish one at the hub layer).
func isMembershipEvent(e Event) bool {
	switch e {
	case EventJoinRoom, EventRejoinRoom, EventCreateRoom:
		return true
	}
	return false
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}
