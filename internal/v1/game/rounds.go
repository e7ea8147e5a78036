package game

import (
	"time"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
	"go.uber.org/zap"
)

// expectedSubmitters is the set of seats a round waits on: active
// non-spectator players, including the synthetic GM seat in community
// mode. Caller holds mu.
func (r *Room) expectedSubmitters() []*Participant {
	return r.activePlayers()
}

// maybeEndSubmissionsLocked closes the round as soon as every expected
// participant has answered. Timer expiry and end_round_early go through
// the grace window instead.
func (r *Room) maybeEndSubmissionsLocked() {
	if !r.Started || r.Concluded || r.SubmissionPhaseOver {
		return
	}
	expected := r.expectedSubmitters()
	if len(expected) == 0 {
		return
	}
	for _, p := range expected {
		if _, ok := r.roundAnswers[p.PersistentID]; !ok {
			return
		}
	}
	r.stopTimerLocked()
	r.finalizeSubmissionsLocked()
}

// beginGraceLocked schedules the round finalize after the auto-submit
// window, letting in-flight submissions land. The captured generation
// voids the callback if the round moved on in the meantime.
func (r *Room) beginGraceLocked() {
	if r.graceTimer != nil {
		r.graceTimer.Stop()
	}
	gen := r.timerGen
	r.graceTimer = time.AfterFunc(AutoSubmitGrace, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.timerGen {
			return
		}
		r.finalizeSubmissionsLocked()
	})
}

// finalizeSubmissionsLocked enters the preview phase: closes the round to
// new answers and auto-submits "-" for every expected non-submitter.
func (r *Room) finalizeSubmissionsLocked() {
	if r.SubmissionPhaseOver || !r.Started || r.Concluded {
		return
	}
	r.SubmissionPhaseOver = true
	r.phase = PhasePreview
	r.previewActive = true

	for _, p := range r.expectedSubmitters() {
		if _, ok := r.roundAnswers[p.PersistentID]; ok {
			continue
		}
		ans := &Answer{
			RoundIndex:      r.CurrentRoundIndex,
			PersistentID:    p.PersistentID,
			DisplayName:     p.DisplayName,
			Text:            AutoSubmitText,
			SubmittedAt:     time.Now(),
			Evaluation:      EvalUnevaluated,
			submissionOrder: r.submissionSeq,
		}
		if board, ok := r.playerBoards[p.PersistentID]; ok && board.RoundIndex == r.CurrentRoundIndex {
			ans.HasDrawing = true
			ans.Drawing = board.Data
		}
		r.submissionSeq++
		r.roundAnswers[p.PersistentID] = ans
		p.Answers[r.CurrentRoundIndex] = ans
	}

	logging.Info(r.logCtx(), "submissions closed",
		zap.Int("roundIndex", r.CurrentRoundIndex),
		zap.Int("answers", len(r.roundAnswers)))

	if r.hooks.Analytics != nil && r.CurrentRoundIndex < len(r.Questions) {
		answers := make([]*Answer, 0, len(r.roundAnswers))
		for _, a := range r.roundAnswers {
			answers = append(answers, a)
		}
		r.hooks.Analytics.RoundFinalized(r.Code, r.CurrentRoundIndex, r.Questions[r.CurrentRoundIndex], answers)
	}

	r.broadcast(EventStartPreviewMode, RoomOnlyPayload{Code: string(r.Code)})
	r.broadcastStateLocked()
}

// checkGameOverLocked applies the end-of-game predicate and concludes the
// room when it holds. Reports whether the game ended.
func (r *Room) checkGameOverLocked() bool {
	if !r.Started || r.Concluded {
		return false
	}

	if r.IsCommunityVotingMode {
		var others int
		var lastOther PersistentID
		gmAlive := false
		for _, p := range r.activePlayers() {
			if p.PersistentID == r.gmPlayerID {
				gmAlive = true
				continue
			}
			others++
			lastOther = p.PersistentID
		}
		switch {
		case others == 0 && gmAlive:
			r.concludeLocked(r.gmPlayerID)
			return true
		case others == 1 && !gmAlive:
			r.concludeLocked(lastOther)
			return true
		case others == 0 && !gmAlive:
			r.concludeLocked("")
			return true
		}
		return false
	}

	if len(r.players()) == 0 {
		return false
	}
	alive := r.activePlayers()
	if len(alive) > 1 {
		return false
	}
	var winner PersistentID
	if len(alive) == 1 {
		winner = alive[0].PersistentID
	}
	r.concludeLocked(winner)
	return true
}

// findWinnerLocked resolves the winner for an explicit GM end-game: the
// sole surviving player, if there is exactly one.
func (r *Room) findWinnerLocked() PersistentID {
	alive := r.activePlayers()
	if len(alive) == 1 {
		return alive[0].PersistentID
	}
	return ""
}

// concludeLocked finishes the game: freezes state, builds the recap, and
// hands it to the GM for shared review.
func (r *Room) concludeLocked(winner PersistentID) {
	r.Concluded = true
	r.phase = PhaseConcluded
	r.stopTimerLocked()
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}

	r.recap = r.buildRecapLocked(winner)

	logging.Info(r.logCtx(), "game concluded",
		zap.String("winner", string(winner)),
		zap.Int("rounds", r.CurrentRoundIndex+1))
	metrics.RoundsFinalized.WithLabelValues(r.modeLabel()).Inc()

	if r.hooks.Analytics != nil {
		r.hooks.Analytics.GameConcluded(r.Code, winner, r.CurrentRoundIndex+1)
	}
	if r.hooks.OnRecap != nil {
		r.hooks.OnRecap(r.recap)
	}
	r.critical("game_concluded", map[string]any{
		"winner": string(winner),
		"rounds": r.CurrentRoundIndex + 1,
	})

	r.broadcast(EventGameOverPendingRecap, map[string]any{
		"code":     string(r.Code),
		"winnerId": string(winner),
	})
	// The GM reviews the recap first, then shares it with the room.
	r.sendTo(r.GMPersistentID, EventGameRecap, r.recap)
	r.broadcastStateLocked()
}
