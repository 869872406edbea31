package apperror

import "errors"

var ErrMalformedRequest = errors.New("malformed request")

// business rule violations, surfaced to the requesting connection only.
var (
	ErrGameFull     = errors.New("game full")
	ErrGameNotFound = errors.New("game not found")
	ErrGameEnded    = errors.New("game already ended")
	ErrNotAPlayer   = errors.New("you are not a player in this game")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrCellOccupied = errors.New("cell already occupied")
	ErrInvalidIndex = errors.New("index must be an integer 0..8")
)

var (
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrTooMuchContention = errors.New("too much contention")
)

var businessRules = []error{
	ErrGameFull,
	ErrGameNotFound,
	ErrGameEnded,
	ErrNotAPlayer,
	ErrNotYourTurn,
	ErrCellOccupied,
	ErrInvalidIndex,
}

// IsBusinessRule - reports whether err is a game rule violation.
func IsBusinessRule(err error) bool {
	for _, target := range businessRules {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ClientMessage - returns the text sent to a connection for err.
func ClientMessage(err error) string {
	for _, target := range businessRules {
		if errors.Is(err, target) {
			return target.Error()
		}
	}

	if errors.Is(err, ErrMalformedRequest) {
		return err.Error()
	}

	return "internal server error"
}
