package game

import "encoding/json"

// Event names the kind of a message on the wire. All client and server
// traffic is a stream of {"event": ..., "payload": ...} envelopes.
type Event string

// Client -> server events.
const (
	EventCreateRoom            Event = "create_room"
	EventJoinRoom              Event = "join_room"
	EventRejoinRoom            Event = "rejoin_room"
	EventStartGame             Event = "start_game"
	EventSubmitAnswer          Event = "submit_answer"
	EventUpdateBoard           Event = "update_board"
	EventEvaluateAnswer        Event = "evaluate_answer"
	EventNextQuestion          Event = "next_question"
	EventEndRoundEarly         Event = "end_round_early"
	EventRestartGame           Event = "restart_game"
	EventStartPreviewMode      Event = "start_preview_mode"
	EventStopPreviewMode       Event = "stop_preview_mode"
	EventFocusSubmission       Event = "focus_submission"
	EventKickPlayer            Event = "kick_player"
	EventToggleCommunityVoting Event = "toggle_community_voting"
	EventSubmitVote            Event = "submit_vote"
	EventShowAnswer            Event = "show_answer"
	EventForceEndVoting        Event = "force_end_voting"
	EventUpdateGMBoard         Event = "update_game_master_board"
	EventClearGMBoard          Event = "clear_game_master_board"
	EventUpdateAvatar          Event = "update_avatar"
	EventGetGameState          Event = "get_game_state"
	EventGMEndGameRequest      Event = "gm_end_game_request"
	EventGMShowRecapToAll      Event = "gm_show_recap_to_all"
	EventGMNavigateRecapRound  Event = "gm_navigate_recap_round"
	EventGMNavigateRecapTab    Event = "gm_navigate_recap_tab"

	EventWebRTCReady        Event = "webrtc-ready"
	EventWebRTCOffer        Event = "webrtc-offer"
	EventWebRTCAnswer       Event = "webrtc-answer"
	EventWebRTCICECandidate Event = "webrtc-ice-candidate"
	EventWebcamStateChange  Event = "webcam-state-change"
	EventMicStateChange     Event = "microphone-state-change"
)

// Server -> client events.
const (
	EventPersistentIDAssigned Event = "persistent_id_assigned"
	EventRoomCreated          Event = "room_created"
	EventRoomJoined           Event = "room_joined"
	EventRoomNotFound         Event = "room_not_found"
	EventError                Event = "error"
	EventGameStateUpdate      Event = "game_state_update"
	EventGameStarted          Event = "game_started"
	EventNewQuestion          Event = "new_question"
	EventTimerUpdate          Event = "timer_update"
	EventTimeUp               Event = "time_up"
	EventAnswerReceived       Event = "answer_received"
	EventBoardUpdate          Event = "board_update"

	EventPlayerJoined             Event = "player_joined"
	EventPlayerLeftGracefully     Event = "player_left_gracefully"
	EventPlayerRemovedTimeout     Event = "player_removed_after_timeout"
	EventPlayerDisconnectedStatus Event = "player_disconnected_status"
	EventPlayerReconnectedStatus  Event = "player_reconnected_status"
	EventGMDisconnectedStatus     Event = "gm_disconnected_status"
	EventBecomeSpectator          Event = "become_spectator"
	EventKickedFromRoom           Event = "kicked_from_room"

	EventGameRestarted        Event = "game_restarted"
	EventGameOverPendingRecap Event = "game_over_pending_recap"
	EventGameOver             Event = "game_over"
	EventGameRecap            Event = "game_recap"
	EventRecapRoundChanged    Event = "recap_round_changed"
	EventRecapTabChanged      Event = "recap_tab_changed"

	EventCommunityVotingStatus    Event = "community_voting_status_changed"
	EventAnswerVoted              Event = "answer_voted"
	EventCorrectAnswerRevealed    Event = "correct_answer_revealed"
	EventGMCommunityAnswerAccept  Event = "gm_community_answer_accepted"
	EventAvatarUpdated            Event = "avatar_updated"
	EventGameMasterBoardUpdate    Event = "game_master_board_update"
	EventGameMasterBoardCleared   Event = "game_master_board_cleared"
	EventWebRTCReadyPeers         Event = "webrtc-ready-peers"
	EventWebRTCPeerJoined         Event = "webrtc-peer-joined"
	EventWebcamStateBroadcast     Event = "webcam-state-broadcast"
	EventMicrophoneStateBroadcast Event = "microphone-state-broadcast"
)

// Message is the wire envelope in both directions.
type Message struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Inbound payloads ---

type CreateRoomPayload struct {
	Code            string `json:"code,omitempty"`
	IsStreamerMode  bool   `json:"isStreamerMode,omitempty"`
	IsPointsMode    bool   `json:"isPointsMode,omitempty"`
	IsCommunityMode bool   `json:"isCommunityVotingMode,omitempty"`
}

type JoinRoomPayload struct {
	Code        string `json:"code"`
	PlayerName  string `json:"playerName"`
	IsSpectator bool   `json:"isSpectator,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

type RejoinRoomPayload struct {
	Code               string `json:"code"`
	IsGameMaster       bool   `json:"isGameMaster,omitempty"`
	PersistentPlayerID string `json:"persistentPlayerId,omitempty"`
	Avatar             string `json:"avatar,omitempty"`
}

type StartGamePayload struct {
	Code      string     `json:"code"`
	Questions []Question `json:"questions"`
	TimeLimit *int       `json:"timeLimit"` // nil or >= NoTimerSentinel means no countdown
}

type SubmitAnswerPayload struct {
	Code       string `json:"code"`
	Answer     string `json:"answer"`
	HasDrawing bool   `json:"hasDrawing,omitempty"`
	Drawing    string `json:"drawingData,omitempty"`
	AttemptID  string `json:"answerAttemptId,omitempty"`
}

type UpdateBoardPayload struct {
	Code  string `json:"code"`
	Board string `json:"boardData"`
}

type EvaluateAnswerPayload struct {
	Code      string `json:"code"`
	PlayerID  string `json:"playerId"`
	IsCorrect bool   `json:"isCorrect"`
}

type RoomOnlyPayload struct {
	Code string `json:"code"`
}

type FocusSubmissionPayload struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type KickPlayerPayload struct {
	Code           string `json:"code"`
	PlayerIDToKick string `json:"playerIdToKick"`
}

type ToggleCommunityVotingPayload struct {
	Code            string `json:"code"`
	IsCommunityMode bool   `json:"isCommunityVotingMode"`
}

type SubmitVotePayload struct {
	Code     string     `json:"code"`
	AnswerID string     `json:"answerId"` // persistent ID of the answer's author
	Vote     VoteChoice `json:"vote"`
}

type ShowAnswerPayload struct {
	Code       string `json:"code"`
	QuestionID string `json:"questionId"`
}

type UpdateGMBoardPayload struct {
	Code  string `json:"code"`
	Board string `json:"boardData"`
}

type UpdateAvatarPayload struct {
	Code               string `json:"code"`
	PersistentPlayerID string `json:"persistentPlayerId"`
	Avatar             string `json:"avatar"`
}

type RecapNavigatePayload struct {
	Code       string `json:"code"`
	RoundIndex int    `json:"roundIndex,omitempty"`
	TabKey     string `json:"tabKey,omitempty"`
}

// SignalPayload carries opaque WebRTC signaling blobs between two peers in
// the same room. The server never inspects Data.
type SignalPayload struct {
	Code string          `json:"code"`
	To   string          `json:"to,omitempty"`
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type MediaStatePayload struct {
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
	From    string `json:"from,omitempty"`
}

// --- Outbound payloads ---

type PersistentIDAssignedPayload struct {
	PersistentID    string `json:"persistentId"`
	ConnectionToken string `json:"connectionToken"`
}

type RoomCreatedPayload struct {
	Code           string `json:"code"`
	IsStreamerMode bool   `json:"isStreamerMode"`
	IsPointsMode   bool   `json:"isPointsMode"`
}

type RoomJoinedPayload struct {
	Code               string `json:"code"`
	PersistentPlayerID string `json:"persistentPlayerId"`
	IsSpectator        bool   `json:"isSpectator"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type TimerUpdatePayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

type PlayerStatusPayload struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	PlayerName         string `json:"playerName,omitempty"`
	IsActive           bool   `json:"isActive"`
	Temporary          bool   `json:"temporary,omitempty"`
}

type GMDisconnectedPayload struct {
	Disconnected bool `json:"disconnected"`
}

type AnswerReceivedPayload struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	PlayerName         string `json:"playerName"`
	HasDrawing         bool   `json:"hasDrawing"`
}

type BoardUpdatePayload struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	Board              string `json:"boardData"`
	RoundIndex         int    `json:"roundIndex"`
}

type AnswerVotedPayload struct {
	AnswerID string     `json:"answerId"`
	VoterID  string     `json:"voterId"`
	Vote     VoteChoice `json:"vote"`
}

type CorrectAnswerRevealedPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type AvatarUpdatedPayload struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	Avatar             string `json:"avatar"`
}

type ReadyPeersPayload struct {
	Peers []string `json:"peers"`
}

type PeerJoinedPayload struct {
	PeerID string `json:"peerId"`
}

type MediaStateBroadcastPayload struct {
	PersistentPlayerID string `json:"persistentPlayerId"`
	Enabled            bool   `json:"enabled"`
}

// mustMarshal wraps marshaling of server-built payloads; these are plain
// structs and cannot fail to encode.
func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// Encode builds a complete wire message for the given event and payload.
func Encode(event Event, payload any) []byte {
	data, _ := json.Marshal(Message{Event: event, Payload: mustMarshal(payload)})
	return data
}
