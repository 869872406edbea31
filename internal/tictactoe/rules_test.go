package tictactoe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	t.Run("Returns MarkX when X completes a row", func(t *testing.T) {
		// Given: a board where X holds the top row
		board := Board{
			MarkX, MarkX, MarkX,
			MarkO, MarkO, EmptyCell,
			EmptyCell, EmptyCell, EmptyCell,
		}

		// When: evaluating the board
		result := Evaluate(board)

		// Then: X wins
		assert.Equal(t, MarkX, result)
	})

	t.Run("Returns MarkO when O completes a diagonal", func(t *testing.T) {
		// Given: a board where O holds the anti-diagonal
		board := Board{
			MarkX, MarkX, MarkO,
			EmptyCell, MarkO, EmptyCell,
			MarkO, EmptyCell, MarkX,
		}

		// When: evaluating the board
		result := Evaluate(board)

		// Then: O wins
		assert.Equal(t, MarkO, result)
	})

	t.Run("Returns Draw on a full board without a line", func(t *testing.T) {
		// Given: a full board with no winning line
		board := Board{
			MarkX, MarkO, MarkX,
			MarkX, MarkO, MarkO,
			MarkO, MarkX, MarkX,
		}

		// When: evaluating the board
		result := Evaluate(board)

		// Then: the game is a draw
		assert.Equal(t, Draw, result)
	})

	t.Run("Returns empty string while the game is open", func(t *testing.T) {
		// Given: a partially filled board
		board := Board{
			MarkX, MarkO, EmptyCell,
			EmptyCell, MarkX, EmptyCell,
			EmptyCell, EmptyCell, MarkO,
		}

		// When: evaluating the board
		result := Evaluate(board)

		// Then: there is no outcome yet
		assert.Equal(t, "", result)
	})

	t.Run("Win on the last cell beats draw", func(t *testing.T) {
		// Given: a full board where the final move completed a column
		board := Board{
			MarkX, MarkO, MarkX,
			MarkO, MarkO, MarkX,
			MarkO, MarkX, MarkX,
		}

		// When: evaluating the board
		result := Evaluate(board)

		// Then: X wins instead of a draw
		assert.Equal(t, MarkX, result)
	})
}

func TestEvaluate_Exhaustive(t *testing.T) {
	cells := [3]string{EmptyCell, MarkX, MarkO}

	var board Board
	for n := 0; n < 19683; n++ { // 3^9
		v := n
		for i := range board {
			board[i] = cells[v%3]
			v /= 3
		}

		winners := map[string]bool{}
		for _, combo := range WinCombos {
			if board[combo[0]] != EmptyCell &&
				board[combo[0]] == board[combo[1]] &&
				board[combo[1]] == board[combo[2]] {
				winners[board[combo[0]]] = true
			}
		}

		full := true
		for _, cell := range board {
			if cell == EmptyCell {
				full = false
			}
		}

		result := Evaluate(board)

		switch {
		case len(winners) > 0:
			assert.True(t, winners[result], "board %v: expected one of %v, got %q", board, winners, result)
		case full:
			assert.Equal(t, Draw, result, "board %v", board)
		default:
			assert.Equal(t, "", result, "board %v", board)
		}
	}
}

func TestToggleMark(t *testing.T) {
	assert.Equal(t, MarkO, ToggleMark(MarkX))
	assert.Equal(t, MarkX, ToggleMark(MarkO))
}

func TestIsValidIndex(t *testing.T) {
	for i := 0; i < BoardSize; i++ {
		assert.True(t, IsValidIndex(i))
	}

	assert.False(t, IsValidIndex(-1))
	assert.False(t, IsValidIndex(9))
}
