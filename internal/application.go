package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-sync/internal/config"
	"github.com/rocketscienceinc/tictactoe-sync/internal/repository"
	"github.com/rocketscienceinc/tictactoe-sync/internal/room"
	"github.com/rocketscienceinc/tictactoe-sync/internal/service"
	"github.com/rocketscienceinc/tictactoe-sync/internal/store"
	"github.com/rocketscienceinc/tictactoe-sync/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-sync/transport/rest"
	"github.com/rocketscienceinc/tictactoe-sync/transport/websocket"
)

const shutdownTimeout = 10 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	opened, err := openStores(ctx, logger, conf)
	if err != nil {
		return err
	}

	defer opened.close(log)

	games := repository.NewGameRepository(logger, opened.kv, opened.pubsub, conf.Store.KeyPrefix, repository.TransactorOptions{
		MaxAttempts: conf.Store.MaxAttempts,
		Timeout:     conf.Store.Timeout,
	})
	rooms := room.NewManager(logger, opened.pubsub, games.UpdatesChannel)
	gamePlayService := service.NewGamePlayService(logger, games)
	gameUseCase := usecase.NewGameUseCase(logger, gamePlayService, rooms)

	port, err := conf.PortNumber()
	if err != nil {
		return err
	}

	wsServer := websocket.New(logger, gameUseCase, port)
	srv := rest.NewServer(conf.Port, rest.NewRouter(rest.NewHandlers(logger, games), wsServer))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.Port)
		if httpErr := srv.ListenAndServe(); httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		return shutdown(shutdownCtx, log, srv, wsServer, rooms)
	})

	return group.Wait()
}

// shutdown - stops accepting connections, runs the disconnect path of the live ones, then drops subscriptions.
func shutdown(ctx context.Context, log *slog.Logger, srv *http.Server, wsServer *websocket.Server, rooms *room.Manager) error {
	var errs []error

	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down HTTP server: %w", err))
	}

	if err := wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := rooms.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close rooms: %w", err))
	}

	log.Info("Application shut down")

	return errors.Join(errs...)
}

type stores struct {
	kv      store.KV
	pubsub  store.PubSub
	closers []func() error
}

// openStores - builds the KV for store.driver and the pub/sub for store.broker.
// The memory driver keeps updates in process unless the broker is NATS.
func openStores(ctx context.Context, logger *slog.Logger, conf *config.Config) (*stores, error) {
	opened := &stores{}

	switch conf.Store.Driver {
	case config.DriverMemory:
		memory := store.NewMemory()
		opened.kv = memory
		opened.pubsub = memory
	default:
		if conf.Redis.Host == "" {
			return nil, ErrAddrNotFound
		}

		redisStore, err := store.NewRedis(ctx, logger, store.RedisOptions{
			Addr:     conf.Redis.GetRedisAddr(),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		opened.kv = redisStore
		opened.pubsub = redisStore
		opened.closers = append(opened.closers, redisStore.Close)
	}

	if conf.Store.Broker == config.BrokerNATS {
		natsBroker, err := store.NewNATS(logger, store.NATSOptions{URL: conf.NATS.URL, Name: "tictactoe-sync"})
		if err != nil {
			opened.close(logger)
			return nil, fmt.Errorf("could not connect to nats: %w", err)
		}

		opened.pubsub = natsBroker
		opened.closers = append(opened.closers, natsBroker.Close)
	}

	return opened, nil
}

func (that *stores) close(log *slog.Logger) {
	for i := len(that.closers) - 1; i >= 0; i-- {
		if err := that.closers[i](); err != nil {
			log.Error("could not close store", "error", err)
		}
	}
}
