package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches the given id or code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrWrongPassword is returned when joining a private room with a bad password.
	ErrWrongPassword = errors.New("wrong password")
	// ErrRoomFull is returned when the roster has reached maxPlayers.
	ErrRoomFull = errors.New("room full")
	// ErrAlreadyJoined is returned when the account already has a player in the room.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrGameInProgress is returned when late join is disabled and the game is running.
	ErrGameInProgress = errors.New("game in progress")
	// ErrInvalidState is returned when a mutation is attempted outside its legal phase.
	ErrInvalidState = errors.New("invalid room state")
	// ErrQuestionMismatch is returned when an answer targets a question that is not active.
	ErrQuestionMismatch = errors.New("question is not active")
	// ErrPlayerNotFound is returned when a user acts on a room they never joined.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrValidation indicates malformed room config or quiz content at creation.
	ErrValidation = errors.New("invalid room configuration")
	// ErrCodeTaken indicates a room code collision; callers retry with a fresh code.
	ErrCodeTaken = errors.New("room code already taken")
	// ErrStaleTransition indicates a guarded phase transition lost its race.
	// Exactly one of the racing triggers succeeds; the loser absorbs this silently.
	ErrStaleTransition = errors.New("stale phase transition")
)

// ErrorCode maps a domain error to the stable machine code shown to clients.
// Join failures each get a distinct code because each has a distinct remediation.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrGameInProgress):
		return "game_in_progress"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrQuestionMismatch):
		return "question_mismatch"
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, ErrQuizNotFound):
		return "quiz_not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal_error"
	}
}
