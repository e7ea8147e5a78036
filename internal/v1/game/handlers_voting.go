package game

import (
	"github.com/google/uuid"
	"github.com/quizhall/server/internal/v1/logging"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

func (r *Room) handleToggleCommunityVoting(p ToggleCommunityVotingPayload) error {
	if p.IsCommunityMode == r.IsCommunityVotingMode {
		return nil
	}
	if r.Started && !r.Concluded {
		return ErrInvalidPayload
	}

	r.IsCommunityVotingMode = p.IsCommunityMode
	if p.IsCommunityMode {
		r.addGMPlayerSeatLocked()
	} else {
		r.removeGMPlayerSeatLocked()
	}

	logging.Info(r.logCtx(), "community voting toggled",
		zap.Bool("enabled", p.IsCommunityMode))

	r.broadcast(EventCommunityVotingStatus, ToggleCommunityVotingPayload{
		Code:            string(r.Code),
		IsCommunityMode: p.IsCommunityMode,
	})
	r.broadcastStateLocked()
	return nil
}

// addGMPlayerSeatLocked creates the synthetic seat through which the GM
// plays alongside everyone else in community mode.
func (r *Room) addGMPlayerSeatLocked() {
	if r.gmPlayerID != "" {
		return
	}
	seat := &Participant{
		PersistentID: PersistentID("P-gm-" + uuid.New().String()),
		DisplayName:  "GameMaster (Playing)",
		IsActive:     true,
		Lives:        InitialLives,
		Answers:      make(map[int]*Answer),
	}
	r.gmPlayerID = seat.PersistentID
	r.participants = append(r.participants, seat)
	r.byID[seat.PersistentID] = seat
}

func (r *Room) removeGMPlayerSeatLocked() {
	if r.gmPlayerID == "" {
		return
	}
	pid := r.gmPlayerID
	r.gmPlayerID = ""
	delete(r.byID, pid)
	for i, p := range r.participants {
		if p.PersistentID == pid {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
	delete(r.roundAnswers, pid)
	delete(r.evaluatedAnswers, pid)
	delete(r.votes, pid)
	for _, ballots := range r.votes {
		delete(ballots, pid)
	}
}

func (r *Room) handleSubmitVote(c Caller, p SubmitVotePayload) error {
	if !r.IsCommunityVotingMode {
		return ErrNotCommunityMode
	}
	if !r.Started || r.Concluded {
		return ErrGameNotStarted
	}
	if !r.SubmissionPhaseOver {
		return ErrSubmissionsClosed
	}
	if p.Vote != VoteCorrect && p.Vote != VoteIncorrect {
		return ErrInvalidPayload
	}

	voter := r.effectivePID(c)
	seat := r.participant(voter)
	if seat == nil || !seat.IsActive || seat.IsSpectator {
		return ErrUnauthorized
	}

	author := PersistentID(p.AnswerID)
	if _, ok := r.roundAnswers[author]; !ok {
		return ErrPlayerNotFound
	}
	if author == voter {
		return ErrSelfVote
	}
	ballots := r.votes[author]
	if ballots == nil {
		ballots = make(map[PersistentID]VoteChoice)
		r.votes[author] = ballots
	}
	if _, ok := ballots[voter]; ok {
		return ErrDuplicateVote
	}
	ballots[voter] = p.Vote
	r.phase = PhaseCommunityVoting

	r.broadcast(EventAnswerVoted, AnswerVotedPayload{
		AnswerID: string(author),
		VoterID:  string(voter),
		Vote:     p.Vote,
	})

	if r.allVotesInLocked() {
		r.finalizeVotingLocked()
	}
	return nil
}

func (r *Room) handleForceEndVoting() error {
	if !r.IsCommunityVotingMode {
		return ErrNotCommunityMode
	}
	if !r.SubmissionPhaseOver || r.Concluded {
		return ErrSubmissionsClosed
	}
	r.finalizeVotingLocked()
	return nil
}

func (r *Room) handleShowAnswer(p ShowAnswerPayload) error {
	if !r.IsCommunityVotingMode {
		return ErrNotCommunityMode
	}
	for _, q := range r.Questions {
		if q.ID == p.QuestionID {
			r.broadcast(EventCorrectAnswerRevealed, CorrectAnswerRevealedPayload{
				QuestionID: q.ID,
				Answer:     q.Answer,
			})
			return nil
		}
	}
	return ErrQuestionNotFound
}

// allVotesInLocked holds when every submitted answer has collected a
// ballot from every eligible voter other than its author.
func (r *Room) allVotesInLocked() bool {
	eligible := set.New[PersistentID]()
	for _, p := range r.activePlayers() {
		eligible.Insert(p.PersistentID)
	}
	if eligible.Len() == 0 {
		return false
	}

	for author := range r.roundAnswers {
		needed := eligible.Len()
		if eligible.Has(author) {
			needed--
		}
		if len(r.votes[author]) < needed {
			return false
		}
	}
	return true
}

// finalizeVotingLocked resolves every answer by majority (tie counts as
// incorrect, zero ballots count as correct), applies life losses, and
// advances or concludes.
func (r *Room) finalizeVotingLocked() {
	if !r.SubmissionPhaseOver || r.Concluded {
		return
	}

	for author := range r.roundAnswers {
		seat := r.participant(author)
		if seat == nil {
			continue
		}
		var correct, incorrect int
		for _, v := range r.votes[author] {
			if v == VoteCorrect {
				correct++
			} else {
				incorrect++
			}
		}
		verdict := correct > incorrect || (correct == 0 && incorrect == 0)
		r.applyEvaluationLocked(seat, verdict)

		if verdict && author == r.gmPlayerID {
			r.broadcast(EventGMCommunityAnswerAccept, AnswerVotedPayload{
				AnswerID: string(author),
				Vote:     VoteCorrect,
			})
		}
	}

	logging.Info(r.logCtx(), "voting finalized",
		zap.Int("roundIndex", r.CurrentRoundIndex),
		zap.Int("answers", len(r.roundAnswers)))

	r.broadcastStateLocked()
	if r.checkGameOverLocked() {
		return
	}
	if r.CurrentRoundIndex < len(r.Questions)-1 {
		r.advanceRoundLocked()
		return
	}
	r.concludeLocked(r.findWinnerLocked())
}
