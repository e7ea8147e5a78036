// Package analytics keeps an append-only per-room record of answers and
// round timings, plus the archive of finished-game recaps. Nothing here
// ever reads back into the room engine; the store exists for the HTTP
// read surface and the optional Redis mirror.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/quizhall/server/internal/v1/game"
	"github.com/quizhall/server/internal/v1/logging"
	"go.uber.org/zap"
)

// AnswerEvent is one recorded submission.
type AnswerEvent struct {
	RoundIndex  int       `json:"roundIndex"`
	PlayerID    string    `json:"persistentPlayerId"`
	PlayerName  string    `json:"playerName"`
	Answer      string    `json:"answer"`
	HasDrawing  bool      `json:"hasDrawing"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RoundEvent summarizes one finalized round.
type RoundEvent struct {
	RoundIndex  int       `json:"roundIndex"`
	QuestionID  string    `json:"questionId"`
	AnswerCount int       `json:"answerCount"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

// GameLog is the full analytics record for one room.
type GameLog struct {
	RoomCode    string        `json:"roomCode"`
	Answers     []AnswerEvent `json:"answers"`
	Rounds      []RoundEvent  `json:"rounds"`
	Winner      string        `json:"winner,omitempty"`
	RoundsTotal int           `json:"roundsTotal,omitempty"`
	ConcludedAt *time.Time    `json:"concludedAt,omitempty"`
}

// Store implements game.Sink. Appends are cheap map/slice operations under
// a mutex; the optional mirror pushes the same events to Redis without
// ever blocking or failing the caller.
type Store struct {
	mu     sync.RWMutex
	games  map[game.RoomCode]*GameLog
	recaps *recapArchive
	mirror *Mirror
}

// NewStore builds the analytics store. mirror may be nil.
func NewStore(mirror *Mirror) *Store {
	return &Store{
		games:  make(map[game.RoomCode]*GameLog),
		recaps: newRecapArchive(),
		mirror: mirror,
	}
}

func (s *Store) logFor(code game.RoomCode) *GameLog {
	g, ok := s.games[code]
	if !ok {
		g = &GameLog{RoomCode: string(code)}
		s.games[code] = g
	}
	return g
}

// AnswerSubmitted records one submission.
func (s *Store) AnswerSubmitted(code game.RoomCode, roundIndex int, a *game.Answer) {
	ev := AnswerEvent{
		RoundIndex:  roundIndex,
		PlayerID:    string(a.PersistentID),
		PlayerName:  a.DisplayName,
		Answer:      a.Text,
		HasDrawing:  a.HasDrawing,
		SubmittedAt: a.SubmittedAt,
	}

	s.mu.Lock()
	s.logFor(code).Answers = append(s.logFor(code).Answers, ev)
	s.mu.Unlock()

	s.mirror.Append(context.Background(), string(code), "answer", ev)
}

// RoundFinalized records the close of one round.
func (s *Store) RoundFinalized(code game.RoomCode, roundIndex int, question game.Question, answers []*game.Answer) {
	ev := RoundEvent{
		RoundIndex:  roundIndex,
		QuestionID:  question.ID,
		AnswerCount: len(answers),
		FinalizedAt: time.Now(),
	}

	s.mu.Lock()
	s.logFor(code).Rounds = append(s.logFor(code).Rounds, ev)
	s.mu.Unlock()

	s.mirror.Append(context.Background(), string(code), "round", ev)
}

// GameConcluded closes the record for one room.
func (s *Store) GameConcluded(code game.RoomCode, winner game.PersistentID, rounds int) {
	now := time.Now()

	s.mu.Lock()
	g := s.logFor(code)
	g.Winner = string(winner)
	g.RoundsTotal = rounds
	g.ConcludedAt = &now
	s.mu.Unlock()

	s.mirror.Append(context.Background(), string(code), "concluded", map[string]any{
		"winner": string(winner),
		"rounds": rounds,
	})

	logging.Info(context.Background(), "analytics record closed",
		zap.String("roomCode", string(code)),
		zap.Int("rounds", rounds))
}

// Game returns the record for one room, or nil.
func (s *Store) Game(code game.RoomCode) *GameLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[code]
	if !ok {
		return nil
	}
	// Shallow copy so callers never race with appends.
	out := *g
	out.Answers = append([]AnswerEvent(nil), g.Answers...)
	out.Rounds = append([]RoundEvent(nil), g.Rounds...)
	return &out
}

// SaveRecap archives a finished game's recap.
func (s *Store) SaveRecap(rec *game.Recap) {
	if rec == nil {
		return
	}
	s.recaps.save(rec)
	s.mirror.Append(context.Background(), rec.RoomCode, "recap", map[string]any{"recapId": rec.ID})
}

// Recaps lists archived recaps, newest first.
func (s *Store) Recaps() []*game.Recap { return s.recaps.list() }

// Recap returns one archived recap by ID, or nil.
func (s *Store) Recap(id string) *game.Recap { return s.recaps.byID(id) }

// RecapsForRoom returns the recaps archived for one room code.
func (s *Store) RecapsForRoom(code string) []*game.Recap { return s.recaps.byRoom(code) }

// recapArchive is the in-memory recap index.
type recapArchive struct {
	mu     sync.RWMutex
	byIDs  map[string]*game.Recap
	order  []string
	byCode map[string][]string
}

func newRecapArchive() *recapArchive {
	return &recapArchive{
		byIDs:  make(map[string]*game.Recap),
		byCode: make(map[string][]string),
	}
}

func (a *recapArchive) save(rec *game.Recap) {
	if rec == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byIDs[rec.ID]; exists {
		return
	}
	a.byIDs[rec.ID] = rec
	a.order = append(a.order, rec.ID)
	a.byCode[rec.RoomCode] = append(a.byCode[rec.RoomCode], rec.ID)
}

func (a *recapArchive) list() []*game.Recap {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*game.Recap, 0, len(a.order))
	for i := len(a.order) - 1; i >= 0; i-- {
		out = append(out, a.byIDs[a.order[i]])
	}
	return out
}

func (a *recapArchive) byID(id string) *game.Recap {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byIDs[id]
}

func (a *recapArchive) byRoom(code string) []*game.Recap {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := a.byCode[code]
	out := make([]*game.Recap, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.byIDs[id])
	}
	return out
}
