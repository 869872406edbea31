package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/tictactoe"
)

// Abandoned - winner of a game whose last opponent left before it was decided.
const Abandoned = "abandoned"

// Players maps each mark to the connection holding it.
type Players struct {
	X string `json:"X"`
	O string `json:"O"`
}

type Game struct {
	ID      string          `json:"id"`
	Board   tictactoe.Board `json:"board"`
	Players Players         `json:"players"`
	Turn    string          `json:"turn"`
	Winner  string          `json:"winner"`
}

func NewGame(id string) *Game {
	return &Game{
		ID:   id,
		Turn: tictactoe.MarkX,
	}
}

// Reset - returns the game to a fresh empty state, keeping its id.
func (that *Game) Reset() {
	*that = *NewGame(that.ID)
}

func (that *Game) IsFinished() bool {
	return that.Winner != ""
}

// IsEmpty - reports whether neither slot is taken.
func (that *Game) IsEmpty() bool {
	return that.Players.X == "" && that.Players.O == ""
}

// MarkOf - returns the mark owned by connID, or an empty string.
func (that *Game) MarkOf(connID string) string {
	switch {
	case connID == "":
		return ""
	case that.Players.X == connID:
		return tictactoe.MarkX
	case that.Players.O == connID:
		return tictactoe.MarkO
	default:
		return ""
	}
}

func (that *Game) holder(mark string) string {
	if mark == tictactoe.MarkX {
		return that.Players.X
	}
	return that.Players.O
}

func (that *Game) setHolder(mark, connID string) {
	if mark == tictactoe.MarkX {
		that.Players.X = connID
		return
	}
	that.Players.O = connID
}

// Join - seats connID and returns its mark; changed is false when nothing was modified.
func (that *Game) Join(connID string) (mark string, changed bool, err error) {
	if that.IsFinished() {
		that.Reset()
		changed = true
	}

	if mark = that.MarkOf(connID); mark != "" {
		return mark, changed, nil
	}

	for _, candidate := range []string{tictactoe.MarkX, tictactoe.MarkO} {
		if that.holder(candidate) == "" {
			that.setHolder(candidate, connID)
			return candidate, true, nil
		}
	}

	return "", false, apperror.ErrGameFull
}

// MakeTurn - places connID's mark on index and settles the outcome.
func (that *Game) MakeTurn(connID string, index int) error {
	if !tictactoe.IsValidIndex(index) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidIndex, index)
	}

	if that.IsFinished() {
		return apperror.ErrGameEnded
	}

	mark := that.MarkOf(connID)
	if mark == "" {
		return apperror.ErrNotAPlayer
	}

	if that.Turn != mark {
		return apperror.ErrNotYourTurn
	}

	if that.Board[index] != tictactoe.EmptyCell {
		return apperror.ErrCellOccupied
	}

	that.Board[index] = mark

	if outcome := tictactoe.Evaluate(that.Board); outcome != "" {
		that.Winner = outcome
		return nil
	}

	that.Turn = tictactoe.ToggleMark(mark)

	return nil
}

// Leave - frees connID's slot; removed is false when connID was not seated.
func (that *Game) Leave(connID string) (removed bool) {
	leaving := that.MarkOf(connID)
	if leaving == "" {
		return false
	}

	if !that.IsFinished() {
		remaining := tictactoe.ToggleMark(leaving)
		if that.holder(remaining) != "" {
			that.Winner = remaining
		} else {
			that.Winner = Abandoned
		}
	}

	that.setHolder(leaving, "")

	if that.IsEmpty() {
		that.Reset()
	}

	return true
}
