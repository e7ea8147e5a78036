package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// playThrough runs a two-question direct game to conclusion: alice answers
// both rounds correctly, bob misses every round until eliminated.
func playThrough(t *testing.T) (*Room, *recorderConn, *recorderConn) {
	t.Helper()
	r, gmConn := newTestRoom(Options{})
	_, alice := joinPlayer(t, r, "P-alice", "Alice")
	bobConn, bob := joinPlayer(t, r, "P-bob", "Bob")
	startGame(t, r, gmConn, questions(3), nil)

	require.NoError(t, submit(t, r, alice, "right", ""))
	require.NoError(t, submit(t, r, bob, "wrong", ""))
	require.NoError(t, evaluate(t, r, gmConn, "P-alice", true))
	require.NoError(t, evaluate(t, r, gmConn, "P-bob", false))
	require.NoError(t, r.dispatch(gmCaller(gmConn), Message{Event: EventNextQuestion}))

	require.NoError(t, submit(t, r, alice, "right again", ""))
	require.NoError(t, submit(t, r, bob, "wrong again", ""))
	require.NoError(t, evaluate(t, r, gmConn, "P-alice", true))
	r.byID["P-bob"].Lives = 1
	require.NoError(t, evaluate(t, r, gmConn, "P-bob", false))

	require.True(t, r.Concluded)
	return r, gmConn, bobConn
}

func TestRecap_BuiltOnConclusion(t *testing.T) {
	r, _, _ := playThrough(t)
	rec := r.RecapDocument()
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, string(r.Code), rec.RoomCode)
	assert.Equal(t, "P-alice", rec.WinnerID)
	assert.Equal(t, 0, rec.InitialSelectedRoundIndex)
	assert.Equal(t, "overallResults", rec.InitialSelectedTabKey)

	// Only the two answered rounds appear; the untouched third is omitted.
	require.Len(t, rec.Rounds, 2)
	assert.Len(t, rec.Rounds[0].Submissions, 2)

	require.Len(t, rec.Players, 2)
	assert.Equal(t, "P-alice", rec.Players[0].PersistentPlayerID, "survivors sort first")
	assert.True(t, rec.Players[0].IsWinner)
	assert.False(t, rec.Players[1].IsWinner)
}

func TestRecap_GMSharesWithRoom(t *testing.T) {
	r, gmConn, bobConn := playThrough(t)
	require.False(t, bobConn.received(EventGameRecap))

	require.NoError(t, r.dispatch(gmCaller(gmConn), Message{Event: EventGMShowRecapToAll}))
	assert.True(t, bobConn.received(EventGameRecap))
	assert.True(t, r.recapLive)
}

func TestRecap_NavigationRequiresShare(t *testing.T) {
	r, gmConn, _ := playThrough(t)

	err := r.dispatch(gmCaller(gmConn), Message{
		Event:   EventGMNavigateRecapRound,
		Payload: rawPayload(t, RecapNavigatePayload{RoundIndex: 0}),
	})
	assert.ErrorIs(t, err, ErrGameNotStarted)

	err = r.dispatch(gmCaller(gmConn), Message{
		Event:   EventGMNavigateRecapTab,
		Payload: rawPayload(t, RecapNavigatePayload{TabKey: "roundDetails"}),
	})
	assert.ErrorIs(t, err, ErrGameNotStarted)
}

func TestRecap_NavigationBounds(t *testing.T) {
	r, gmConn, bobConn := playThrough(t)
	require.NoError(t, r.dispatch(gmCaller(gmConn), Message{Event: EventGMShowRecapToAll}))

	require.NoError(t, r.dispatch(gmCaller(gmConn), Message{
		Event:   EventGMNavigateRecapRound,
		Payload: rawPayload(t, RecapNavigatePayload{RoundIndex: 1}),
	}))
	var nav RecapNavigatePayload
	require.True(t, bobConn.lastPayload(EventRecapRoundChanged, &nav))
	assert.Equal(t, 1, nav.RoundIndex)

	err := r.dispatch(gmCaller(gmConn), Message{
		Event:   EventGMNavigateRecapRound,
		Payload: rawPayload(t, RecapNavigatePayload{RoundIndex: 5}),
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	require.NoError(t, r.dispatch(gmCaller(gmConn), Message{
		Event:   EventGMNavigateRecapTab,
		Payload: rawPayload(t, RecapNavigatePayload{TabKey: "roundDetails"}),
	}))
	assert.True(t, bobConn.received(EventRecapTabChanged))
}

func TestRecap_ShowBeforeConclusionRejected(t *testing.T) {
	r, gmConn := newTestRoom(Options{})
	joinPlayer(t, r, "P-alice", "Alice")
	startGame(t, r, gmConn, questions(1), nil)

	err := r.dispatch(gmCaller(gmConn), Message{Event: EventGMShowRecapToAll})
	assert.ErrorIs(t, err, ErrGameNotStarted)
}
