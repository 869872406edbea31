package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
	GameHandler(w http.ResponseWriter, r *http.Request)
}

type gameReader interface {
	GetByID(ctx context.Context, id string) (*entity.Game, error)
}

type handlers struct {
	logger *slog.Logger
	games  gameReader
}

func NewHandlers(logger *slog.Logger, games gameReader) Handlers {
	return &handlers{
		logger: logger.With("component", "rest"),
		games:  games,
	}
}

// GameHandler - returns the stored state of a game without touching it.
func (that *handlers) GameHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "GameHandler")

	id := mux.Vars(r)["id"]

	game, err := that.games.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrGameNotFound) {
			http.Error(w, apperror.ErrGameNotFound.Error(), http.StatusNotFound)
			return
		}

		log.Error("failed to get game", "gameID", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(game); err != nil {
		log.Error("failed to encode game", "gameID", id, "error", err)
	}
}
