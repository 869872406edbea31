package tictactoe

const (
	MarkX = "X"
	MarkO = "O"

	EmptyCell = ""

	// Draw is the outcome of a full board with no winning line.
	Draw = "draw"
)

// BoardSize - number of cells on the 3x3 grid.
const BoardSize = 9

type Board [BoardSize]string

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Evaluate - returns the winning mark, Draw, or an empty string while the game is still open.
func Evaluate(board Board) string {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	// the game will continue until all the squares are full
	for _, cell := range board {
		if cell == EmptyCell {
			return ""
		}
	}

	return Draw
}

// ToggleMark - returns the opponent of the given mark.
func ToggleMark(mark string) string {
	if mark == MarkX {
		return MarkO
	}
	return MarkX
}

// IsValidIndex - reports whether index addresses a cell of the board.
func IsValidIndex(index int) bool {
	return index >= 0 && index < BoardSize
}
