package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/repository"
	"github.com/rocketscienceinc/tictactoe-sync/internal/tictactoe"
)

type gameRepo interface {
	Transact(ctx context.Context, id string, body repository.Body[entity.Game]) (*entity.Game, error)
}

// GamePlayService applies join, move and leave as atomic transitions of the stored game.
type GamePlayService interface {
	Join(ctx context.Context, gameID, connID string) (*entity.Game, string, error)
	Move(ctx context.Context, gameID, connID string, index int) (*entity.Game, error)
	Leave(ctx context.Context, gameID, connID string) (*entity.Game, bool, error)
}

type gamePlayService struct {
	logger *slog.Logger
	games  gameRepo
}

func NewGamePlayService(logger *slog.Logger, games gameRepo) GamePlayService {
	return &gamePlayService{
		logger: logger.With("component", "gameplay"),
		games:  games,
	}
}

// Join - seats connID in the game, resetting a finished game first.
func (that *gamePlayService) Join(ctx context.Context, gameID, connID string) (*entity.Game, string, error) {
	var symbol string

	game, err := that.games.Transact(ctx, gameID, func(game *entity.Game, _ bool) (bool, error) {
		mark, changed, err := game.Join(connID)
		if err != nil {
			return false, err
		}

		symbol = mark

		return changed, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to join game %s: %w", gameID, err)
	}

	that.logger.Debug("player joined", "gameID", gameID, "connID", connID, "symbol", symbol)

	return game, symbol, nil
}

// Move - places connID's mark on index.
func (that *gamePlayService) Move(ctx context.Context, gameID, connID string, index int) (*entity.Game, error) {
	if !tictactoe.IsValidIndex(index) {
		return nil, fmt.Errorf("%w: cell %d", apperror.ErrInvalidIndex, index)
	}

	game, err := that.games.Transact(ctx, gameID, func(game *entity.Game, exists bool) (bool, error) {
		if !exists {
			return false, apperror.ErrGameNotFound
		}

		if err := game.MakeTurn(connID, index); err != nil {
			return false, err
		}

		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to make turn in game %s: %w", gameID, err)
	}

	if game.IsFinished() {
		that.logger.Info("game finished", "gameID", gameID, "winner", game.Winner)
	}

	return game, nil
}

// Leave - frees connID's slot; removed is false when connID held no mark.
func (that *gamePlayService) Leave(ctx context.Context, gameID, connID string) (*entity.Game, bool, error) {
	var removed bool

	game, err := that.games.Transact(ctx, gameID, func(game *entity.Game, exists bool) (bool, error) {
		if !exists {
			return false, apperror.ErrGameNotFound
		}

		removed = game.Leave(connID)

		return removed, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to leave game %s: %w", gameID, err)
	}

	if removed {
		that.logger.Debug("player left", "gameID", gameID, "connID", connID, "winner", game.Winner)
	}

	return game, removed, nil
}
