package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/tictactoe"
)

const (
	TypeJoin   = "join"
	TypeMove   = "move"
	TypeHello  = "hello"
	TypeJoined = "joined"
	TypeError  = "error"
)

// Message is an inbound client intent.
type Message struct {
	Type   string          `json:"type"`
	GameID string          `json:"gameId,omitempty"`
	Index  json.RawMessage `json:"index,omitempty"`
}

type HelloMessage struct {
	Type       string `json:"type"`
	ConnID     string `json:"connId"`
	ServerPort int    `json:"serverPort"`
}

type JoinedMessage struct {
	Type   string       `json:"type"`
	Symbol string       `json:"symbol"`
	Game   *entity.Game `json:"game"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func parseMessage(data []byte) (*Message, error) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON", apperror.ErrMalformedRequest)
	}

	return &message, nil
}

// cellIndex - only a JSON integer in 0..8 is accepted.
func (that *Message) cellIndex() (int, error) {
	if len(that.Index) == 0 {
		return 0, apperror.ErrInvalidIndex
	}

	decoder := json.NewDecoder(bytes.NewReader(that.Index))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return 0, apperror.ErrInvalidIndex
	}

	number, ok := raw.(json.Number)
	if !ok {
		return 0, apperror.ErrInvalidIndex
	}

	index, err := number.Int64()
	if err != nil || !tictactoe.IsValidIndex(int(index)) {
		return 0, apperror.ErrInvalidIndex
	}

	return int(index), nil
}

func (that *Server) sendMessage(client *Client, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err = client.Send(payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (that *Server) sendErrorResponse(client *Client, text string) error {
	return that.sendMessage(client, ErrorMessage{Type: TypeError, Message: text})
}
