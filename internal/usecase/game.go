package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/room"
)

var ErrMissingGameID = fmt.Errorf("%w: missing gameId", apperror.ErrMalformedRequest)

// GameUseCase turns the intents of a single connection into room membership and game transitions.
type GameUseCase interface {
	Join(ctx context.Context, conn room.Conn, gameID string) (*entity.Game, string, error)
	Move(ctx context.Context, connID, gameID string, index int) (*entity.Game, error)
	Disconnect(ctx context.Context, connID string)
}

type gamePlayService interface {
	Join(ctx context.Context, gameID, connID string) (*entity.Game, string, error)
	Move(ctx context.Context, gameID, connID string, index int) (*entity.Game, error)
	Leave(ctx context.Context, gameID, connID string) (*entity.Game, bool, error)
}

type roomManager interface {
	Join(ctx context.Context, gameID string, conn room.Conn) error
	Leave(ctx context.Context, connID string) (string, bool, error)
	GameOf(connID string) (string, bool)
}

type gameUseCase struct {
	logger   *slog.Logger
	gamePlay gamePlayService
	rooms    roomManager
}

func NewGameUseCase(logger *slog.Logger, gamePlay gamePlayService, rooms roomManager) GameUseCase {
	return &gameUseCase{
		logger:   logger.With("component", "usecase"),
		gamePlay: gamePlay,
		rooms:    rooms,
	}
}

// Join - subscribes the connection to gameID before seating it, so the resulting update reaches it too.
// A connection switching games leaves its previous game first.
func (that *gameUseCase) Join(ctx context.Context, conn room.Conn, gameID string) (*entity.Game, string, error) {
	log := that.logger.With("method", "Join", "gameID", gameID, "connID", conn.ID())

	if gameID == "" {
		return nil, "", ErrMissingGameID
	}

	previous, ok := that.rooms.GameOf(conn.ID())
	if ok && previous != gameID {
		that.leave(ctx, conn.ID())
	}

	if err := that.rooms.Join(ctx, gameID, conn); err != nil {
		return nil, "", fmt.Errorf("failed to join room: %w", err)
	}

	game, symbol, err := that.gamePlay.Join(ctx, gameID, conn.ID())
	if err != nil {
		if !ok || previous != gameID {
			if _, _, leaveErr := that.rooms.Leave(ctx, conn.ID()); leaveErr != nil {
				log.Error("failed to roll back room join", "error", leaveErr)
			}
		}

		return nil, "", err
	}

	return game, symbol, nil
}

// Move - gameID falls back to the room the connection is in.
func (that *gameUseCase) Move(ctx context.Context, connID, gameID string, index int) (*entity.Game, error) {
	if gameID == "" {
		current, ok := that.rooms.GameOf(connID)
		if !ok {
			return nil, ErrMissingGameID
		}

		gameID = current
	}

	return that.gamePlay.Move(ctx, gameID, connID, index)
}

// Disconnect - releases the connection's room and seat. Failures are logged.
func (that *gameUseCase) Disconnect(ctx context.Context, connID string) {
	that.leave(ctx, connID)
}

func (that *gameUseCase) leave(ctx context.Context, connID string) {
	log := that.logger.With("method", "leave", "connID", connID)

	gameID, ok, err := that.rooms.Leave(ctx, connID)
	if err != nil {
		log.Error("failed to leave room", "error", err)
	}

	if !ok {
		return
	}

	if _, _, err := that.gamePlay.Leave(ctx, gameID, connID); err != nil {
		log.Error("failed to leave game", "gameID", gameID, "error", err)
	}
}
