package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_NonMemberRejected(t *testing.T) {
	r, _ := newTestRoom(Options{})
	stranger := Caller{Conn: newRecorderConn("conn-stranger"), PersistentID: "P-stranger"}

	err := r.dispatch(stranger, Message{Event: EventGetGameState})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestDispatch_GMOnlyEventsRejectPlayers(t *testing.T) {
	r, gmConn := newTestRoom(Options{})
	_, alice := joinPlayer(t, r, "P-alice", "Alice")
	startGame(t, r, gmConn, questions(2), nil)

	gmOnly := []Message{
		{Event: EventStartGame, Payload: rawPayload(t, StartGamePayload{Questions: questions(1)})},
		{Event: EventNextQuestion},
		{Event: EventEndRoundEarly},
		{Event: EventRestartGame},
		{Event: EventGMEndGameRequest},
		{Event: EventKickPlayer, Payload: rawPayload(t, KickPlayerPayload{PlayerIDToKick: "P-alice"})},
		{Event: EventForceEndVoting},
		{Event: EventGMShowRecapToAll},
	}
	for _, msg := range gmOnly {
		assert.ErrorIs(t, r.dispatch(alice, msg), ErrUnauthorized, "event %s", msg.Event)
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	r, _ := newTestRoom(Options{})
	_, alice := joinPlayer(t, r, "P-alice", "Alice")

	err := r.dispatch(alice, Message{Event: "no_such_event"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDispatch_MalformedPayload(t *testing.T) {
	r, _ := newTestRoom(Options{})
	_, alice := joinPlayer(t, r, "P-alice", "Alice")

	err := r.dispatch(alice, Message{Event: EventSubmitAnswer, Payload: json.RawMessage(`{bad`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = r.dispatch(alice, Message{Event: EventSubmitAnswer})
	assert.ErrorIs(t, err, ErrInvalidPayload, "empty payload")
}

func TestDispatch_ErrorSurfacesToCallerOnly(t *testing.T) {
	r, gmConn := newTestRoom(Options{})
	aliceConn, alice := joinPlayer(t, r, "P-alice", "Alice")
	gmConn.reset()
	aliceConn.reset()

	r.Dispatch(alice, Message{Event: EventSubmitAnswer, Payload: rawPayload(t, SubmitAnswerPayload{Answer: "x"})})

	var e ErrorPayload
	require.True(t, aliceConn.lastPayload(EventError, &e))
	assert.Equal(t, ErrGameNotStarted.Error(), e.Message)
	assert.False(t, gmConn.received(EventError))
}

func TestDispatch_RejectedEventMutatesNothing(t *testing.T) {
	r, gmConn := newTestRoom(Options{})
	_, alice := joinPlayer(t, r, "P-alice", "Alice")
	startGame(t, r, gmConn, questions(1), nil)

	before := len(r.roundAnswers)
	err := r.dispatch(alice, Message{Event: EventSubmitVote, Payload: rawPayload(t, SubmitVotePayload{AnswerID: "P-alice", Vote: VoteCorrect})})
	assert.ErrorIs(t, err, ErrNotCommunityMode)
	assert.Equal(t, before, len(r.roundAnswers))
	assert.Empty(t, r.votes)
}
