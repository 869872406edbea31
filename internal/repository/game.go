package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/store"
)

const DefaultKeyPrefix = "ttt"

type GameRepository interface {
	// Transact runs body against the stored game, see Transactor.Transact.
	Transact(ctx context.Context, id string, body Body[entity.Game]) (*entity.Game, error)
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	// UpdatesChannel returns the pub/sub channel carrying committed states of game id.
	UpdatesChannel(id string) string
}

type dbGame struct {
	kv         store.KV
	prefix     string
	transactor *Transactor[entity.Game]
}

func NewGameRepository(logger *slog.Logger, kv store.KV, publisher store.Publisher, prefix string, opts TransactorOptions) GameRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	repo := &dbGame{
		kv:     kv,
		prefix: prefix,
	}

	repo.transactor = NewTransactor(logger, kv, publisher, repo.newGame, opts)

	return repo
}

func (that *dbGame) gameKey(id string) string {
	return that.prefix + ":game:" + id
}

func (that *dbGame) UpdatesChannel(id string) string {
	return that.gameKey(id) + ":updates"
}

// newGame builds the default value for a key; the id is recovered from the key.
func (that *dbGame) newGame(key string) *entity.Game {
	return entity.NewGame(key[len(that.prefix+":game:"):])
}

func (that *dbGame) Transact(ctx context.Context, id string, body Body[entity.Game]) (*entity.Game, error) {
	game, err := that.transactor.Transact(ctx, that.gameKey(id), that.UpdatesChannel(id), body)
	if err != nil {
		return nil, fmt.Errorf("failed to transact game %s: %w", id, err)
	}

	return game, nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	response, err := that.kv.Get(ctx, that.gameKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if response == nil {
		return nil, apperror.ErrGameNotFound
	}

	var existingGame entity.Game
	if err = json.Unmarshal(response, &existingGame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &existingGame, nil
}
