package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/store"
)

const (
	DefaultMaxAttempts = 100
	DefaultTimeout     = 5 * time.Second
)

// Body mutates value in place and reports whether it should be committed.
// exists is false when value is a fresh default because the key was absent.
type Body[T any] func(value *T, exists bool) (commit bool, err error)

type TransactorOptions struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Transactor runs optimistic read-modify-write cycles of JSON-encoded values
// and publishes every committed value to the key's update channel.
type Transactor[T any] struct {
	logger    *slog.Logger
	kv        store.KV
	publisher store.Publisher
	newValue  func(key string) *T

	maxAttempts int
	timeout     time.Duration
}

func NewTransactor[T any](logger *slog.Logger, kv store.KV, publisher store.Publisher, newValue func(key string) *T, opts TransactorOptions) *Transactor[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Transactor[T]{
		logger:      logger.With("component", "transactor"),
		kv:          kv,
		publisher:   publisher,
		newValue:    newValue,
		maxAttempts: opts.MaxAttempts,
		timeout:     opts.Timeout,
	}
}

// Transact - applies body to the current value of key, retrying from a fresh read on conflict.
// The returned value is the committed state, or the observed state when body aborted.
func (that *Transactor[T]) Transact(ctx context.Context, key, channel string, body Body[T]) (*T, error) {
	log := that.logger.With("method", "Transact", "key", key)

	ctx, cancel := context.WithTimeout(ctx, that.timeout)
	defer cancel()

	for attempt := 1; attempt <= that.maxAttempts; attempt++ {
		var (
			result  *T
			payload []byte
		)

		err := that.kv.Watch(ctx, key, func(current []byte) ([]byte, error) {
			value, exists := that.newValue(key), false
			if current != nil {
				if err := json.Unmarshal(current, value); err != nil {
					return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
				}
				exists = true
			}

			result, payload = value, nil

			commit, err := body(value, exists)
			if err != nil || !commit {
				return nil, err
			}

			next, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s: %w", key, err)
			}

			payload = next

			return next, nil
		})

		if errors.Is(err, store.ErrConflict) {
			log.Debug("conflict, retrying", "attempt", attempt)
			continue
		}

		if err != nil {
			return nil, that.wrapErr(ctx, err)
		}

		if payload != nil {
			// the commit stands; the next commit republishes the full state
			if err = that.publisher.Publish(ctx, channel, payload); err != nil {
				log.Error("committed but failed to publish", "channel", channel, "error", err)
			}
		}

		return result, nil
	}

	log.Warn("giving up after repeated conflicts", "attempts", that.maxAttempts)

	return nil, fmt.Errorf("%w: %s after %d attempts", apperror.ErrTooMuchContention, key, that.maxAttempts)
}

// wrapErr maps context expiry to the store-unavailable class.
func (that *Transactor[T]) wrapErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%w: %w", apperror.ErrStoreUnavailable, err)
	}

	return err
}
