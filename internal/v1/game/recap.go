package game

import (
	"time"

	"github.com/google/uuid"
)

// Recap is the end-of-game review document. The GM receives it first and
// can then broadcast it, stepping everyone through rounds and tabs in
// lockstep.
type Recap struct {
	ID          string    `json:"id"`
	RoomCode    string    `json:"roomCode"`
	GeneratedAt time.Time `json:"generatedAt"`
	WinnerID    string    `json:"winnerId,omitempty"`

	Players []RecapPlayer `json:"players"`
	Rounds  []RecapRound  `json:"rounds"`

	InitialSelectedRoundIndex int    `json:"initialSelectedRoundIndex"`
	InitialSelectedTabKey     string `json:"initialSelectedTabKey"`
}

type RecapPlayer struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	PlayerName         string `json:"playerName"`
	Lives              int    `json:"lives"`
	Score              int    `json:"score"`
	IsActive           bool   `json:"isActive"`
	IsSpectator        bool   `json:"isSpectator"`
	IsWinner           bool   `json:"isWinner"`
}

type RecapRound struct {
	RoundIndex  int               `json:"roundIndex"`
	Question    Question          `json:"question"`
	Submissions []RecapSubmission `json:"submissions"`
}

type RecapSubmission struct {
	PersistentPlayerID string     `json:"persistentPlayerId"`
	PlayerName         string     `json:"playerName"`
	Text               string     `json:"answer"`
	HasDrawing         bool       `json:"hasDrawing"`
	Drawing            string     `json:"drawingData,omitempty"`
	Evaluation         Evaluation `json:"evaluation"`
	Points             int        `json:"pointsAwarded"`
}

// buildRecapLocked assembles the recap from accumulated answers. Rounds
// nobody answered are omitted.
func (r *Room) buildRecapLocked(winner PersistentID) *Recap {
	players := sortedForRecap(r.players())

	rec := &Recap{
		ID:                    uuid.New().String(),
		RoomCode:              string(r.Code),
		GeneratedAt:           time.Now(),
		WinnerID:              string(winner),
		InitialSelectedTabKey: "overallResults",
	}

	for _, p := range players {
		rec.Players = append(rec.Players, RecapPlayer{
			PersistentPlayerID: string(p.PersistentID),
			PlayerName:         p.DisplayName,
			Lives:              p.Lives,
			Score:              p.Score,
			IsActive:           p.IsActive,
			IsSpectator:        p.IsSpectator,
			IsWinner:           p.PersistentID == winner && winner != "",
		})
	}

	for i := range r.Questions {
		round := RecapRound{RoundIndex: i, Question: r.Questions[i]}
		for _, p := range players {
			ans, ok := p.Answers[i]
			if !ok {
				continue
			}
			sub := RecapSubmission{
				PersistentPlayerID: string(p.PersistentID),
				PlayerName:         p.DisplayName,
				Text:               ans.Text,
				HasDrawing:         ans.HasDrawing,
				Drawing:            ans.Drawing,
				Evaluation:         ans.Evaluation,
				Points:             ans.PointsAwarded,
			}
			if sub.HasDrawing && sub.Drawing == "" {
				if board, ok := r.playerBoards[p.PersistentID]; ok && board.RoundIndex == i {
					sub.Drawing = board.Data
				}
			}
			round.Submissions = append(round.Submissions, sub)
		}
		if len(round.Submissions) > 0 {
			rec.Rounds = append(rec.Rounds, round)
		}
	}
	return rec
}

// RecapDocument exposes the finished recap to the HTTP layer.
func (r *Room) RecapDocument() *Recap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recap
}

func (r *Room) handleShowRecapToAll() error {
	if !r.Concluded || r.recap == nil {
		return ErrGameNotStarted
	}
	r.recapLive = true
	r.broadcast(EventGameRecap, r.recap)
	return nil
}

// Navigation only broadcasts once the GM has shared the recap; before that
// the room has nothing to step through.
func (r *Room) handleNavigateRecapRound(p RecapNavigatePayload) error {
	if r.recap == nil || !r.recapLive {
		return ErrGameNotStarted
	}
	if p.RoundIndex < 0 || p.RoundIndex >= len(r.recap.Rounds) {
		return ErrInvalidPayload
	}
	r.broadcast(EventRecapRoundChanged, RecapNavigatePayload{
		Code:       string(r.Code),
		RoundIndex: p.RoundIndex,
	})
	return nil
}

func (r *Room) handleNavigateRecapTab(p RecapNavigatePayload) error {
	if r.recap == nil || !r.recapLive {
		return ErrGameNotStarted
	}
	if p.TabKey == "" {
		return ErrInvalidPayload
	}
	r.broadcast(EventRecapTabChanged, RecapNavigatePayload{
		Code:   string(r.Code),
		TabKey: p.TabKey,
	})
	return nil
}
