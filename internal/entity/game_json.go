package entity

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-sync/internal/tictactoe"
)

// gameJSON is the wire and store shape of a Game: empty cells, free slots
// and an open winner are null.
type gameJSON struct {
	ID      string                       `json:"id"`
	Board   [tictactoe.BoardSize]*string `json:"board"`
	Players playersJSON                  `json:"players"`
	Turn    string                       `json:"turn"`
	Winner  *string                      `json:"winner"`
}

type playersJSON struct {
	X *string `json:"X"`
	O *string `json:"O"`
}

// MarshalJSON - encodes empty values as null. Decoding needs no counterpart,
// null leaves a string field empty.
func (that Game) MarshalJSON() ([]byte, error) {
	wire := gameJSON{
		ID: that.ID,
		Players: playersJSON{
			X: nullable(that.Players.X),
			O: nullable(that.Players.O),
		},
		Turn:   that.Turn,
		Winner: nullable(that.Winner),
	}

	for i, cell := range that.Board {
		wire.Board[i] = nullable(cell)
	}

	return json.Marshal(wire)
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
