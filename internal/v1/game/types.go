// Package game implements the room engine: round lifecycle, submissions,
// evaluation, lives accounting, community voting, points, recap generation
// and the derived broadcasts that keep every connected client in sync.
//
// Concurrency Design:
// Each Room is guarded by a read-write mutex and all mutations funnel
// through the router, which takes the write lock for the duration of one
// operation. Broadcasts are enqueued into per-client buffered channels
// before the lock is released, so the order observed by clients matches
// the serialized order of engine operations.
package game

import "time"

// RoomCode is the 6-character uppercase alphanumeric room token.
type RoomCode string

// PersistentID is the stable participant identity across reconnects.
type PersistentID string

// ConnectionID is the transient per-socket identity.
type ConnectionID string

const (
	// InitialLives is the number of lives a fresh player starts with.
	InitialLives = 3

	// NoTimerSentinel disables the countdown: a time limit at or above this
	// value behaves like no limit at all.
	NoTimerSentinel = 99999

	// AutoSubmitGrace is the window between the end-of-round trigger and
	// finalization, allowing in-flight submissions to land.
	AutoSubmitGrace = 1 * time.Second

	// PlayerDisconnectGrace is how long an abruptly disconnected player keeps
	// their seat before removal.
	PlayerDisconnectGrace = 2*time.Minute + 15*time.Second

	// GMDisconnectGrace is how long a room survives without its game master.
	GMDisconnectGrace = 2*time.Minute + 10*time.Second

	// MaxPayloadBytes caps a single inbound event (drawing blobs are SVG and
	// can be large).
	MaxPayloadBytes = 5 * 1024 * 1024
)

// AutoSubmitText is recorded for expected participants who never answered.
const AutoSubmitText = "-"

// Evaluation is the judged state of an answer.
type Evaluation string

const (
	EvalUnevaluated Evaluation = "unevaluated"
	EvalCorrect     Evaluation = "correct"
	EvalIncorrect   Evaluation = "incorrect"
)

// Phase is the round state machine position.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingAnswers  Phase = "awaiting_submissions"
	PhasePreview          Phase = "preview"
	PhaseDirectEvaluation Phase = "direct_evaluation"
	PhaseCommunityVoting  Phase = "community_voting"
	PhaseConcluded        Phase = "concluded"
)

// Question is an opaque record supplied by the GM at start_game.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Type     string `json:"type"` // "text" or "drawing"
	Answer   string `json:"answer,omitempty"`
	Grade    int    `json:"grade,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Language string `json:"language,omitempty"`
}

// Answer is one participant's submission for one round. Immutable after
// creation except for Evaluation and PointsAwarded.
type Answer struct {
	RoundIndex    int          `json:"roundIndex"`
	PersistentID  PersistentID `json:"persistentPlayerId"`
	DisplayName   string       `json:"playerName"`
	Text          string       `json:"answer"`
	HasDrawing    bool         `json:"hasDrawing"`
	Drawing       string       `json:"drawingData,omitempty"`
	SubmittedAt   time.Time    `json:"submittedAt"`
	AttemptID     string       `json:"answerAttemptId,omitempty"`
	Evaluation    Evaluation   `json:"evaluation"`
	PointsAwarded int          `json:"pointsAwarded,omitempty"`

	// submissionOrder is the 0-based per-round arrival position, assigned
	// under the room lock on receipt. Feeds the position bonus.
	submissionOrder int
}

// BoardSnapshot is the live drawing buffer of one player, superseded on
// every update_board.
type BoardSnapshot struct {
	Data       string    `json:"boardData"`
	RoundIndex int       `json:"roundIndex"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// VoteChoice is a community-voting ballot for one answer.
type VoteChoice string

const (
	VoteCorrect   VoteChoice = "correct"
	VoteIncorrect VoteChoice = "incorrect"
)

// Participant is a seat in the room: the game master or a player. A
// participant survives disconnects; only its conn comes and goes.
type Participant struct {
	PersistentID PersistentID
	ConnectionID ConnectionID // zero when disconnected
	DisplayName  string
	IsGameMaster bool

	IsActive          bool
	IsSpectator       bool
	JoinedAsSpectator bool
	Avatar            string

	// DisconnectDeadline is set while a disconnect grace timer is pending.
	DisconnectDeadline *time.Time

	Lives            int
	Score            int
	Streak           int
	LastPointsEarned int
	LastAnswerAt     time.Time

	// Answers is sparse, keyed by round index.
	Answers map[int]*Answer

	joinedAt time.Time
	conn     Conn
}

// connected reports whether the participant currently has a live socket.
func (p *Participant) connected() bool {
	return p.conn != nil
}

// canSubmit reports whether the participant may submit answers right now.
func (p *Participant) canSubmit() bool {
	return p.IsActive && !p.IsSpectator
}

// Conn is the transport-side handle the engine uses to reach one client.
// Implementations must not block: Enqueue drops the message when the
// client's buffer is full rather than stalling the room.
type Conn interface {
	ID() ConnectionID
	Enqueue(data []byte)
	Close()
}
