package websocket

import (
	"context"
	"fmt"
)

func (that *Server) handleJoin(ctx context.Context, client *Client, message *Message) error {
	log := that.logger.With("method", "handleJoin", "connID", client.ID(), "gameID", message.GameID)

	game, symbol, err := that.gameUseCase.Join(ctx, client, message.GameID)
	if err != nil {
		return err
	}

	if err = that.sendMessage(client, JoinedMessage{Type: TypeJoined, Symbol: symbol, Game: game}); err != nil {
		return fmt.Errorf("failed to confirm join: %w", err)
	}

	log.Info("player joined", "symbol", symbol)

	return nil
}

// handleMove - the resulting state reaches the client through the room update, not a direct reply.
func (that *Server) handleMove(ctx context.Context, client *Client, message *Message) error {
	index, err := message.cellIndex()
	if err != nil {
		return err
	}

	if _, err = that.gameUseCase.Move(ctx, client.ID(), message.GameID, index); err != nil {
		return err
	}

	return nil
}
