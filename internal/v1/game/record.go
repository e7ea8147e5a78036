package game

import "time"

// RoomRecord is the ephemeral-field-free projection of a room written to
// the snapshot file. Timers, connection IDs, live boards and in-flight
// votes are deliberately absent; they cannot survive a restart.
type RoomRecord struct {
	Code           string              `json:"code"`
	GMPersistentID string              `json:"gmPersistentId"`
	Participants   []ParticipantRecord `json:"participants"`
	Questions      []Question          `json:"questions,omitempty"`

	Started           bool       `json:"started"`
	IsConcluded       bool       `json:"isConcluded"`
	CurrentRoundIndex int        `json:"currentRoundIndex"`
	TimeLimit         *int       `json:"timeLimit"`
	RoundStartedAt    *time.Time `json:"roundStartedAt"`

	IsStreamerMode        bool `json:"isStreamerMode"`
	IsCommunityVotingMode bool `json:"isCommunityVotingMode"`
	IsPointsMode          bool `json:"isPointsMode"`

	CreatedAt time.Time `json:"createdAt"`
	SavedAt   time.Time `json:"savedAt"`
}

type ParticipantRecord struct {
	PersistentID      string          `json:"persistentId"`
	DisplayName       string          `json:"displayName"`
	IsGameMaster      bool            `json:"isGameMaster"`
	Lives             int             `json:"lives"`
	Score             int             `json:"score"`
	Streak            int             `json:"streak"`
	IsSpectator       bool            `json:"isSpectator"`
	JoinedAsSpectator bool            `json:"joinedAsSpectator"`
	Avatar            string          `json:"avatar,omitempty"`
	Answers           map[int]*Answer `json:"answers,omitempty"`
}

// ExportRecord projects the room for persistence.
func (r *Room) ExportRecord() RoomRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec := RoomRecord{
		Code:                  string(r.Code),
		GMPersistentID:        string(r.GMPersistentID),
		Questions:             r.Questions,
		Started:               r.Started,
		IsConcluded:           r.Concluded,
		CurrentRoundIndex:     r.CurrentRoundIndex,
		TimeLimit:             r.TimeLimitSeconds,
		RoundStartedAt:        r.RoundStartedAt,
		IsStreamerMode:        r.IsStreamerMode,
		IsCommunityVotingMode: r.IsCommunityVotingMode,
		IsPointsMode:          r.IsPointsMode,
		CreatedAt:             r.createdAt,
		SavedAt:               time.Now(),
	}
	for _, p := range r.participants {
		rec.Participants = append(rec.Participants, ParticipantRecord{
			PersistentID:      string(p.PersistentID),
			DisplayName:       p.DisplayName,
			IsGameMaster:      p.IsGameMaster,
			Lives:             p.Lives,
			Score:             p.Score,
			Streak:            p.Streak,
			IsSpectator:       p.IsSpectator,
			JoinedAsSpectator: p.JoinedAsSpectator,
			Avatar:            p.Avatar,
			Answers:           p.Answers,
		})
	}
	return rec
}

// RestoreRoom rebuilds a room from a snapshot record. Every participant
// comes back inactive (they must reconnect) and no timers are armed; the
// GM connection stays unbound until the GM rejoins.
func RestoreRoom(rec RoomRecord, hooks Hooks) *Room {
	r := NewRoom(RoomCode(rec.Code), PersistentID(rec.GMPersistentID), Options{
		IsStreamerMode:        rec.IsStreamerMode,
		IsPointsMode:          rec.IsPointsMode,
		IsCommunityVotingMode: rec.IsCommunityVotingMode,
	}, hooks)

	// The snapshot carries the synthetic GM seat if one existed; drop the
	// freshly minted one and restore the recorded identity instead.
	r.removeGMPlayerSeatLocked()

	r.createdAt = rec.CreatedAt
	r.Questions = rec.Questions
	r.Started = rec.Started
	r.Concluded = rec.IsConcluded
	r.CurrentRoundIndex = rec.CurrentRoundIndex
	r.TimeLimitSeconds = rec.TimeLimit
	r.RoundStartedAt = rec.RoundStartedAt
	if rec.Started {
		r.phase = PhaseAwaitingAnswers
	}
	if rec.IsConcluded {
		r.phase = PhaseConcluded
	}

	for _, pr := range rec.Participants {
		p := &Participant{
			PersistentID:      PersistentID(pr.PersistentID),
			DisplayName:       pr.DisplayName,
			IsGameMaster:      pr.IsGameMaster,
			Lives:             pr.Lives,
			Score:             pr.Score,
			Streak:            pr.Streak,
			IsSpectator:       pr.IsSpectator,
			JoinedAsSpectator: pr.JoinedAsSpectator,
			Avatar:            pr.Avatar,
			Answers:           pr.Answers,
			joinedAt:          rec.CreatedAt,
		}
		if p.Answers == nil {
			p.Answers = make(map[int]*Answer)
		}
		r.participants = append(r.participants, p)
		r.byID[p.PersistentID] = p
	}

	// Re-establish the synthetic GM seat so community games stay playable.
	if rec.IsCommunityVotingMode {
		for _, p := range r.participants {
			if !p.IsGameMaster && p.DisplayName == "GameMaster (Playing)" {
				r.gmPlayerID = p.PersistentID
			}
		}
		if r.gmPlayerID == "" {
			r.addGMPlayerSeatLocked()
		}
		// Like everyone else, the GM seat waits for its owner to return.
		if seat := r.byID[r.gmPlayerID]; seat != nil {
			seat.IsActive = false
		}
	}
	return r
}
