package game

import (
	"time"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"go.uber.org/zap"
)

func (r *Room) handleStartGame(p StartGamePayload) error {
	if len(p.Questions) == 0 {
		return ErrInvalidPayload
	}
	if r.Started && !r.Concluded {
		return ErrInvalidPayload
	}

	r.Questions = p.Questions
	r.Started = true
	r.Concluded = false
	r.recap = nil
	r.recapLive = false
	r.CurrentRoundIndex = 0
	r.TimeLimitSeconds = p.TimeLimit
	r.resetRoundStateLocked()

	now := time.Now()
	r.RoundStartedAt = &now
	r.phase = PhaseAwaitingAnswers

	logging.Info(r.logCtx(), "game started",
		zap.Int("questions", len(p.Questions)),
		zap.Bool("timed", r.timerArmed()))

	r.broadcast(EventGameStarted, RoomOnlyPayload{Code: string(r.Code)})
	r.broadcast(EventNewQuestion, r.Questions[0])
	r.broadcastStateLocked()
	r.startTimerLocked()
	return nil
}

// effectivePID maps the GM's submissions and votes onto the synthetic
// GM-as-player seat in community mode.
func (r *Room) effectivePID(c Caller) PersistentID {
	if r.IsCommunityVotingMode && c.PersistentID == r.GMPersistentID && r.gmPlayerID != "" {
		return r.gmPlayerID
	}
	return c.PersistentID
}

func (r *Room) handleSubmitAnswer(c Caller, p SubmitAnswerPayload) error {
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	if r.SubmissionPhaseOver {
		return ErrSubmissionsClosed
	}
	// The GM only plays through the synthetic community-mode seat.
	if c.PersistentID == r.GMPersistentID && !r.IsCommunityVotingMode {
		return ErrUnauthorized
	}

	pid := r.effectivePID(c)
	player := r.participant(pid)
	if player == nil {
		return ErrPlayerNotFound
	}
	if player.IsSpectator {
		return ErrSpectatorSubmit
	}
	if !player.IsActive {
		return ErrSubmissionsClosed
	}

	// Idempotent retry: the same attempt acknowledges again without a
	// second store.
	if prior, ok := r.roundAnswers[pid]; ok {
		if p.AttemptID != "" && prior.AttemptID == p.AttemptID {
			r.sendTo(c.PersistentID, EventAnswerReceived, AnswerReceivedPayload{
				PersistentPlayerID: string(pid),
				PlayerName:         player.DisplayName,
				HasDrawing:         prior.HasDrawing,
			})
			return nil
		}
		return ErrSubmissionsClosed
	}

	ans := &Answer{
		RoundIndex:      r.CurrentRoundIndex,
		PersistentID:    pid,
		DisplayName:     player.DisplayName,
		Text:            p.Answer,
		HasDrawing:      p.HasDrawing,
		Drawing:         p.Drawing,
		SubmittedAt:     time.Now(),
		AttemptID:       p.AttemptID,
		Evaluation:      EvalUnevaluated,
		submissionOrder: r.submissionSeq,
	}
	// Drawing submissions without an inline blob fall back to the player's
	// live board for this round.
	if ans.HasDrawing && ans.Drawing == "" {
		if board, ok := r.playerBoards[pid]; ok && board.RoundIndex == r.CurrentRoundIndex {
			ans.Drawing = board.Data
		}
	}
	r.submissionSeq++
	r.roundAnswers[pid] = ans
	player.Answers[r.CurrentRoundIndex] = ans
	player.LastAnswerAt = ans.SubmittedAt
	r.touch()

	if r.hooks.Analytics != nil {
		r.hooks.Analytics.AnswerSubmitted(r.Code, r.CurrentRoundIndex, ans)
	}

	r.broadcast(EventAnswerReceived, AnswerReceivedPayload{
		PersistentPlayerID: string(pid),
		PlayerName:         player.DisplayName,
		HasDrawing:         ans.HasDrawing,
	})
	r.broadcastStateLocked()
	r.maybeEndSubmissionsLocked()
	return nil
}

func (r *Room) handleUpdateBoard(c Caller, p UpdateBoardPayload) error {
	if c.PersistentID == r.GMPersistentID && !r.IsCommunityVotingMode {
		return ErrUnauthorized
	}
	pid := r.effectivePID(c)
	player := r.participant(pid)
	if player == nil {
		return ErrPlayerNotFound
	}
	return r.updateBoardLocked(player, p.Board)
}

func (r *Room) updateBoardLocked(p *Participant, board string) error {
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	if r.SubmissionPhaseOver {
		return ErrSubmissionsClosed
	}
	if p.IsSpectator || !p.IsActive {
		return ErrSpectatorSubmit
	}

	r.playerBoards[p.PersistentID] = &BoardSnapshot{
		Data:       board,
		RoundIndex: r.CurrentRoundIndex,
		UpdatedAt:  time.Now(),
	}
	r.broadcast(EventBoardUpdate, BoardUpdatePayload{
		PersistentPlayerID: string(p.PersistentID),
		Board:              board,
		RoundIndex:         r.CurrentRoundIndex,
	})
	return nil
}

func (r *Room) handleEvaluateAnswer(p EvaluateAnswerPayload) error {
	if r.IsCommunityVotingMode {
		return ErrNotCommunityMode
	}
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	pid := PersistentID(p.PlayerID)
	target := r.participant(pid)
	if target == nil {
		return ErrPlayerNotFound
	}

	r.phase = PhaseDirectEvaluation
	r.applyEvaluationLocked(target, p.IsCorrect)
	r.broadcastStateLocked()
	r.checkGameOverLocked()
	return nil
}

// applyEvaluationLocked records the verdict for one player's current-round
// answer: lives, streak, points, elimination. Shared by direct evaluation
// and vote finalization.
func (r *Room) applyEvaluationLocked(target *Participant, correct bool) {
	r.evaluatedAnswers[target.PersistentID] = correct

	ans := r.roundAnswers[target.PersistentID]
	if ans != nil {
		if correct {
			ans.Evaluation = EvalCorrect
		} else {
			ans.Evaluation = EvalIncorrect
		}
	}

	if correct {
		if r.IsPointsMode && ans != nil {
			pts := r.pointsForLocked(target, ans)
			ans.PointsAwarded = pts
			target.Score += pts
			target.LastPointsEarned = pts
		}
		target.Streak++
		return
	}

	target.Streak = 0
	target.LastPointsEarned = 0
	if target.Lives > 0 {
		target.Lives--
	}
	if target.Lives == 0 {
		r.eliminateLocked(target)
	}
}

// eliminateLocked turns a player out of lives into a present spectator.
func (r *Room) eliminateLocked(p *Participant) {
	p.IsSpectator = true

	logging.Info(r.logCtx(), "player eliminated",
		zap.String("persistentId", string(p.PersistentID)))

	// The synthetic GM seat has no socket of its own; notify the GM's.
	notify := p.PersistentID
	if p.PersistentID == r.gmPlayerID {
		notify = r.GMPersistentID
	}
	r.sendTo(notify, EventBecomeSpectator, RoomOnlyPayload{Code: string(r.Code)})
}

func (r *Room) handleNextQuestion() error {
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	if r.CurrentRoundIndex >= len(r.Questions)-1 {
		return ErrNoMoreQuestions
	}
	r.advanceRoundLocked()
	return nil
}

func (r *Room) handleEndRoundEarly() error {
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	if r.SubmissionPhaseOver {
		return ErrSubmissionsClosed
	}
	r.stopTimerLocked()
	r.broadcast(EventTimeUp, RoomOnlyPayload{Code: string(r.Code)})
	r.beginGraceLocked()
	return nil
}

func (r *Room) handleRestartGame() error {
	r.stopTimerLocked()
	r.Started = false
	r.Concluded = false
	r.phase = PhaseIdle
	r.CurrentRoundIndex = 0
	r.RoundStartedAt = nil
	r.recap = nil
	r.recapLive = false
	r.resetRoundStateLocked()

	for _, p := range r.participants {
		if p.IsGameMaster {
			continue
		}
		p.Answers = make(map[int]*Answer)
		p.Score = 0
		p.Streak = 0
		p.LastPointsEarned = 0
		if p.JoinedAsSpectator {
			p.IsSpectator = true
			p.Lives = 0
		} else {
			p.IsSpectator = false
			p.Lives = InitialLives
		}
	}

	logging.Info(r.logCtx(), "game restarted")
	r.broadcast(EventGameRestarted, RoomOnlyPayload{Code: string(r.Code)})
	r.broadcastStateLocked()
	return nil
}

func (r *Room) handleEndGame() error {
	if r.Concluded {
		return ErrGameConcluded
	}
	r.concludeLocked(r.findWinnerLocked())
	return nil
}

func (r *Room) handleStartPreview() error {
	r.previewActive = true
	r.broadcast(EventStartPreviewMode, RoomOnlyPayload{Code: string(r.Code)})
	return nil
}

func (r *Room) handleStopPreview() error {
	r.previewActive = false
	r.focusedSubmission = ""
	r.broadcast(EventStopPreviewMode, RoomOnlyPayload{Code: string(r.Code)})
	return nil
}

func (r *Room) handleFocusSubmission(p FocusSubmissionPayload) error {
	pid := PersistentID(p.PlayerID)
	if r.participant(pid) == nil {
		return ErrPlayerNotFound
	}
	r.focusedSubmission = pid
	r.broadcast(EventFocusSubmission, FocusSubmissionPayload{
		Code:     string(r.Code),
		PlayerID: p.PlayerID,
	})
	return nil
}

func (r *Room) handleUpdateGMBoard(p UpdateGMBoardPayload) error {
	r.gmBoard = &BoardSnapshot{
		Data:       p.Board,
		RoundIndex: r.CurrentRoundIndex,
		UpdatedAt:  time.Now(),
	}
	r.broadcast(EventGameMasterBoardUpdate, UpdateGMBoardPayload{
		Code:  string(r.Code),
		Board: p.Board,
	})
	return nil
}

func (r *Room) handleClearGMBoard() error {
	r.gmBoard = nil
	r.broadcast(EventGameMasterBoardCleared, RoomOnlyPayload{Code: string(r.Code)})
	return nil
}

// resetRoundStateLocked clears everything scoped to a single round.
func (r *Room) resetRoundStateLocked() {
	r.roundAnswers = make(map[PersistentID]*Answer)
	r.evaluatedAnswers = make(map[PersistentID]bool)
	r.votes = make(map[PersistentID]map[PersistentID]VoteChoice)
	r.playerBoards = make(map[PersistentID]*BoardSnapshot)
	r.gmBoard = nil
	r.submissionSeq = 0
	r.SubmissionPhaseOver = false
	r.previewActive = false
	r.focusedSubmission = ""
}

// advanceRoundLocked moves to the next question and re-arms the countdown.
func (r *Room) advanceRoundLocked() {
	r.CurrentRoundIndex++
	r.resetRoundStateLocked()
	now := time.Now()
	r.RoundStartedAt = &now
	r.phase = PhaseAwaitingAnswers
	r.touch()

	metrics.RoundsFinalized.WithLabelValues(r.modeLabel()).Inc()
	logging.Info(r.logCtx(), "round advanced",
		zap.Int("roundIndex", r.CurrentRoundIndex))

	r.broadcast(EventNewQuestion, r.Questions[r.CurrentRoundIndex])
	r.broadcastStateLocked()
	r.startTimerLocked()
}

func (r *Room) modeLabel() string {
	if r.IsCommunityVotingMode {
		return "community"
	}
	return "direct"
}
