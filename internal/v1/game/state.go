package game

import "time"

// StatePayload is the consolidated room snapshot pushed as a single
// game_state_update after every mutation. Clients reconcile against the
// whole document; the server never ships partial diffs. Optional fields
// are nullable so added fields stay backward compatible.
type StatePayload struct {
	Started              bool       `json:"started"`
	IsConcluded          bool       `json:"isConcluded"`
	CurrentQuestion      *Question  `json:"currentQuestion"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	TimeLimit            *int       `json:"timeLimit"`
	QuestionStartTime    *time.Time `json:"questionStartTime"`
	SubmissionPhaseOver  bool       `json:"submissionPhaseOver"`

	Players          []StatePlayer                           `json:"players"`
	RoundAnswers     map[string]*Answer                      `json:"roundAnswers"`
	EvaluatedAnswers map[string]bool                         `json:"evaluatedAnswers"`
	PlayerBoards     map[string]*BoardSnapshot               `json:"playerBoards"`
	CurrentVotes     map[string]map[string]VoteChoice        `json:"currentVotes"`

	IsCommunityVotingMode bool   `json:"isCommunityVotingMode"`
	IsPointsMode          bool   `json:"isPointsMode"`
	IsStreamerMode        bool   `json:"isStreamerMode"`
	GameMasterBoardData   string `json:"gameMasterBoardData,omitempty"`
}

type StatePlayer struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	PlayerName         string `json:"playerName"`
	Lives              int    `json:"lives"`
	Score              int    `json:"score"`
	Streak             int    `json:"streak"`
	LastPointsEarned   int    `json:"lastPointsEarned"`
	IsActive           bool   `json:"isActive"`
	IsSpectator        bool   `json:"isSpectator"`
	Avatar             string `json:"avatar,omitempty"`
}

// statePayloadLocked derives the snapshot purely from current room state.
func (r *Room) statePayloadLocked() StatePayload {
	s := StatePayload{
		Started:               r.Started,
		IsConcluded:           r.Concluded,
		CurrentQuestionIndex:  r.CurrentRoundIndex,
		TimeLimit:             r.TimeLimitSeconds,
		QuestionStartTime:     r.RoundStartedAt,
		SubmissionPhaseOver:   r.SubmissionPhaseOver,
		RoundAnswers:          make(map[string]*Answer, len(r.roundAnswers)),
		EvaluatedAnswers:      make(map[string]bool, len(r.evaluatedAnswers)),
		PlayerBoards:          make(map[string]*BoardSnapshot, len(r.playerBoards)),
		CurrentVotes:          make(map[string]map[string]VoteChoice, len(r.votes)),
		IsCommunityVotingMode: r.IsCommunityVotingMode,
		IsPointsMode:          r.IsPointsMode,
		IsStreamerMode:        r.IsStreamerMode,
	}
	if r.Started && r.CurrentRoundIndex < len(r.Questions) {
		q := r.Questions[r.CurrentRoundIndex]
		s.CurrentQuestion = &q
	}
	if r.gmBoard != nil {
		s.GameMasterBoardData = r.gmBoard.Data
	}

	for _, p := range r.players() {
		s.Players = append(s.Players, StatePlayer{
			PersistentPlayerID: string(p.PersistentID),
			PlayerName:         p.DisplayName,
			Lives:              p.Lives,
			Score:              p.Score,
			Streak:             p.Streak,
			LastPointsEarned:   p.LastPointsEarned,
			IsActive:           p.IsActive,
			IsSpectator:        p.IsSpectator,
			Avatar:             p.Avatar,
		})
	}
	for pid, a := range r.roundAnswers {
		s.RoundAnswers[string(pid)] = a
	}
	for pid, v := range r.evaluatedAnswers {
		s.EvaluatedAnswers[string(pid)] = v
	}
	for pid, b := range r.playerBoards {
		s.PlayerBoards[string(pid)] = b
	}
	for author, ballots := range r.votes {
		m := make(map[string]VoteChoice, len(ballots))
		for voter, v := range ballots {
			m[string(voter)] = v
		}
		s.CurrentVotes[string(author)] = m
	}
	return s
}

// broadcastStateLocked pushes the snapshot to every connected client.
func (r *Room) broadcastStateLocked() {
	r.broadcast(EventGameStateUpdate, r.statePayloadLocked())
}

// sendStateLocked pushes the snapshot to a single participant.
func (r *Room) sendStateLocked(pid PersistentID) {
	r.sendTo(pid, EventGameStateUpdate, r.statePayloadLocked())
}
