package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// subscribeTimeout bounds the wait for a SUBSCRIBE confirmation.
const subscribeTimeout = 5 * time.Second

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis implements KV and PubSub on top of a single go-redis client. Every
// subscribed channel shares one pub/sub connection.
type Redis struct {
	logger *slog.Logger
	client *redis.Client

	subMu    sync.Mutex
	pubsub   *redis.PubSub
	channels map[string]*redisChannel
	nextID   uint64
}

// NewRedis - connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, logger *slog.Logger, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    opts.DB,
		ContextTimeoutEnabled: true,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisFromClient(logger, client), nil
}

func NewRedisFromClient(logger *slog.Logger, client *redis.Client) *Redis {
	return &Redis{
		logger:   logger.With("component", "redis"),
		client:   client,
		channels: make(map[string]*redisChannel),
	}
}

func (that *Redis) Watch(ctx context.Context, key string, fn UpdateFunc) error {
	var fnErr error

	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("%w: failed to get %s: %w", ErrUnavailable, key, err)
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		// returning without EXEC releases the watch
		if next == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})

		return err
	}, key)

	switch {
	case fnErr != nil:
		return fnErr
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrUnavailable):
		return err
	case err != nil:
		return fmt.Errorf("%w: failed to commit %s: %w", ErrUnavailable, key, err)
	}

	return nil
}

func (that *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := that.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s: %w", ErrUnavailable, key, err)
	}

	return value, nil
}

func (that *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := that.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: failed to publish to %s: %w", ErrUnavailable, channel, err)
	}

	return nil
}

// Subscribe - adds handler to channel on the shared pub/sub connection and waits for the
// SUBSCRIBE confirmation. Only the first handler of a channel sends SUBSCRIBE.
func (that *Redis) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	that.subMu.Lock()

	entry, ok := that.channels[channel]
	if !ok {
		entry = &redisChannel{handlers: make(map[uint64]Handler), ready: make(chan struct{})}
		that.channels[channel] = entry
	}

	that.nextID++
	id := that.nextID
	entry.handlers[id] = handler

	ctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()

	var err error
	switch {
	case that.pubsub == nil:
		pubsub := that.client.Subscribe(ctx)
		if err = pubsub.Subscribe(ctx, channel); err != nil {
			_ = pubsub.Close()
			break
		}

		that.pubsub = pubsub
		go that.dispatch(pubsub)
	case !ok:
		err = that.pubsub.Subscribe(ctx, channel)
	}

	that.subMu.Unlock()

	sub := &redisSubscription{store: that, channel: channel, id: id}

	if err == nil {
		select {
		case <-entry.ready:
			return sub, nil
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	_ = sub.Unsubscribe(context.WithoutCancel(ctx))

	return nil, fmt.Errorf("%w: failed to subscribe to %s: %w", ErrUnavailable, channel, err)
}

// dispatch - routes confirmations and messages of the shared connection by channel until it closes.
func (that *Redis) dispatch(pubsub *redis.PubSub) {
	for item := range pubsub.ChannelWithSubscriptions() {
		switch msg := item.(type) {
		case *redis.Subscription:
			if msg.Kind != "subscribe" {
				continue
			}

			that.subMu.Lock()
			if entry, ok := that.channels[msg.Channel]; ok && !entry.confirmed {
				entry.confirmed = true
				close(entry.ready)
			}
			that.subMu.Unlock()
		case *redis.Message:
			that.subMu.Lock()
			var handlers []Handler
			if entry, ok := that.channels[msg.Channel]; ok {
				handlers = make([]Handler, 0, len(entry.handlers))
				for _, handler := range entry.handlers {
					handlers = append(handlers, handler)
				}
			}
			that.subMu.Unlock()

			for _, handler := range handlers {
				handler([]byte(msg.Payload))
			}
		}
	}

	that.logger.Debug("pub/sub connection closed")
}

func (that *Redis) Close() error {
	that.subMu.Lock()
	pubsub := that.pubsub
	that.pubsub = nil
	that.channels = make(map[string]*redisChannel)
	that.subMu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			that.logger.Warn("failed to close pub/sub connection", "error", err)
		}
	}

	if err := that.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

type redisChannel struct {
	handlers  map[uint64]Handler
	ready     chan struct{}
	confirmed bool
}

type redisSubscription struct {
	store   *Redis
	channel string
	id      uint64
	once    sync.Once
}

// Unsubscribe - removes the handler; the last handler of a channel sends UNSUBSCRIBE.
// A payload already being dispatched may still reach the handler.
func (that *redisSubscription) Unsubscribe(ctx context.Context) error {
	var err error

	that.once.Do(func() {
		owner := that.store

		owner.subMu.Lock()
		defer owner.subMu.Unlock()

		entry, ok := owner.channels[that.channel]
		if !ok {
			return
		}

		delete(entry.handlers, that.id)
		if len(entry.handlers) > 0 {
			return
		}

		delete(owner.channels, that.channel)

		// sent under subMu so a concurrent SUBSCRIBE of the same channel cannot be overtaken
		if owner.pubsub != nil {
			if unsubErr := owner.pubsub.Unsubscribe(ctx, that.channel); unsubErr != nil {
				err = fmt.Errorf("failed to unsubscribe from %s: %w", that.channel, unsubErr)
			}
		}
	})

	return err
}
