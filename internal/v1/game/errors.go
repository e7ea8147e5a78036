package game

import "errors"

// Error kinds surfaced to clients as a single `error` event. Invalid
// inbound events never mutate room state.
var (
	ErrRoomNotFound      = errors.New("Room not found")
	ErrPlayerNotFound    = errors.New("Player not found")
	ErrQuestionNotFound  = errors.New("Question not found")
	ErrUnauthorized      = errors.New("Not authorized for this action")
	ErrNameTaken         = errors.New("Name already taken")
	ErrAlreadyConnected  = errors.New("Already connected from another tab/device")
	ErrGameNotStarted    = errors.New("Game has not started")
	ErrGameConcluded     = errors.New("Game is already over")
	ErrSubmissionsClosed = errors.New("Submissions are closed for this round")
	ErrSpectatorSubmit   = errors.New("Spectators cannot submit answers")
	ErrNotCommunityMode  = errors.New("Community voting is not enabled")
	ErrSelfVote          = errors.New("Cannot vote on your own answer")
	ErrDuplicateVote     = errors.New("Already voted on this answer")
	ErrNoMoreQuestions   = errors.New("No more questions")
	ErrPayloadTooLarge   = errors.New("Payload exceeds size limit")
	ErrInvalidPayload    = errors.New("Invalid payload")
)
