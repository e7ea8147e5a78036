package game

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorderConn implements Conn and records every enqueued envelope.
type recorderConn struct {
	id ConnectionID

	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func newRecorderConn(id string) *recorderConn {
	return &recorderConn{id: ConnectionID(id)}
}

func (c *recorderConn) ID() ConnectionID { return c.id }

func (c *recorderConn) Enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msg Message
	_ = json.Unmarshal(data, &msg)
	c.msgs = append(c.msgs, msg)
}

func (c *recorderConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recorderConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recorderConn) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (c *recorderConn) received(e Event) bool {
	for _, got := range c.events() {
		if got == e {
			return true
		}
	}
	return false
}

func (c *recorderConn) count(e Event) int {
	n := 0
	for _, got := range c.events() {
		if got == e {
			n++
		}
	}
	return n
}

// lastPayload decodes the most recent payload for the given event.
func (c *recorderConn) lastPayload(e Event, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Event == e {
			_ = json.Unmarshal(c.msgs[i].Payload, dst)
			return true
		}
	}
	return false
}

func (c *recorderConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

// recordingSink implements Sink for analytics assertions.
type recordingSink struct {
	mu        sync.Mutex
	answers   int
	rounds    int
	concluded int
	winner    PersistentID
}

func (s *recordingSink) AnswerSubmitted(RoomCode, int, *Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers++
}

func (s *recordingSink) RoundFinalized(RoomCode, int, Question, []*Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds++
}

func (s *recordingSink) GameConcluded(_ RoomCode, winner PersistentID, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concluded++
	s.winner = winner
}

const testGMID = PersistentID("GM-test")

// newTestRoom builds a room with its GM already bound.
func newTestRoom(opts Options) (*Room, *recorderConn) {
	gmConn := newRecorderConn("conn-gm")
	r := NewRoom("ABC123", testGMID, opts, Hooks{})
	r.BindGM(gmConn, testGMID, "GameMaster")
	return r, gmConn
}

func gmCaller(conn *recorderConn) Caller {
	return Caller{Conn: conn, PersistentID: testGMID, DisplayName: "GameMaster", IsGameMaster: true}
}

// joinPlayer seats a named player and returns its connection and caller.
func joinPlayer(t *testing.T, r *Room, pid, name string) (*recorderConn, Caller) {
	t.Helper()
	conn := newRecorderConn("conn-" + pid)
	c := Caller{Conn: conn, PersistentID: PersistentID(pid), DisplayName: name}
	require.NoError(t, r.HandleJoin(c, JoinRoomPayload{Code: string(r.Code), PlayerName: name}))
	return conn, c
}

func joinSpectator(t *testing.T, r *Room, pid, name string) (*recorderConn, Caller) {
	t.Helper()
	conn := newRecorderConn("conn-" + pid)
	c := Caller{Conn: conn, PersistentID: PersistentID(pid), DisplayName: name}
	require.NoError(t, r.HandleJoin(c, JoinRoomPayload{Code: string(r.Code), PlayerName: name, IsSpectator: true}))
	return conn, c
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func questions(n int) []Question {
	out := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Question{
			ID:   string(rune('a' + i)),
			Text: "question",
			Type: "text",
		})
	}
	return out
}

// startGame launches a game through the dispatcher.
func startGame(t *testing.T, r *Room, gmConn *recorderConn, qs []Question, timeLimit *int) {
	t.Helper()
	err := r.dispatch(gmCaller(gmConn), Message{
		Event:   EventStartGame,
		Payload: rawPayload(t, StartGamePayload{Questions: qs, TimeLimit: timeLimit}),
	})
	require.NoError(t, err)
}

// submit sends one answer through the dispatcher.
func submit(t *testing.T, r *Room, c Caller, answer, attemptID string) error {
	t.Helper()
	return r.dispatch(c, Message{
		Event:   EventSubmitAnswer,
		Payload: rawPayload(t, SubmitAnswerPayload{Answer: answer, AttemptID: attemptID}),
	})
}

// vote sends one community ballot through the dispatcher.
func vote(t *testing.T, r *Room, c Caller, author PersistentID, choice VoteChoice) error {
	t.Helper()
	return r.dispatch(c, Message{
		Event:   EventSubmitVote,
		Payload: rawPayload(t, SubmitVotePayload{AnswerID: string(author), Vote: choice}),
	})
}
