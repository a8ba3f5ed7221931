package engine

import "errors"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindPersistence
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a named rejection. Code is stable and safe to send to the client.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidInput  = newErr(KindValidation, "invalid_input", "invalid input")
	ErrInvalidConfig = newErr(KindValidation, "invalid_config", "invalid session config")
	ErrOutOfBounds   = newErr(KindValidation, "out_of_bounds", "cell out of bounds")
	ErrInvalidMatch  = newErr(KindValidation, "invalid_match", "chain is not a valid match")

	ErrCellLocked            = newErr(KindConflict, "cell_locked", "cell is locked by another player")
	ErrGroupPartiallyLocked  = newErr(KindConflict, "group_partially_locked", "group contains cells locked by another player")
	ErrNoValidGroup          = newErr(KindConflict, "no_valid_group", "no group of three or more cells here")
	ErrNoSelection           = newErr(KindConflict, "no_selection", "no group selected")
	ErrSessionFull           = newErr(KindConflict, "session_full", "session is full")
	ErrSessionAlreadyStarted = newErr(KindConflict, "session_already_started", "session already started")
	ErrSessionNotPlaying     = newErr(KindConflict, "session_not_playing", "session is not in play")
	ErrSessionFinished       = newErr(KindConflict, "session_finished", "session is finished")
	ErrNicknameTaken         = newErr(KindConflict, "nickname_taken", "nickname already taken in this session")
	ErrAlreadyJoined         = newErr(KindConflict, "already_joined", "player already joined")
	ErrNotHost               = newErr(KindConflict, "not_host", "only the host can start the session")
	ErrNotEnoughPlayers      = newErr(KindConflict, "not_enough_players", "at least two players are needed")

	ErrPlayerNotFound  = newErr(KindNotFound, "player_not_found", "player not found")
	ErrSessionNotFound = newErr(KindNotFound, "session_not_found", "session not found")

	ErrPersistence = newErr(KindPersistence, "persistence", "storage unavailable")

	ErrInternal = newErr(KindInternal, "internal", "internal error")
)

// KindOf reports the kind of a named error anywhere in err's chain.
// Unnamed errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the wire code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
