// Package store holds the primitives of the shared state store: an optimistic
// key-value watch/commit and a publish/subscribe channel.
package store

import (
	"context"
	"errors"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
)

var (
	// ErrConflict - the watched key changed before the commit was applied.
	ErrConflict = errors.New("watched key changed concurrently")
	// ErrUnavailable - the store could not be reached or answered with an error.
	ErrUnavailable = apperror.ErrStoreUnavailable
)

// UpdateFunc receives the current value of a key (nil when absent) and returns
// the value to commit, or nil to release the watch without writing.
type UpdateFunc func(current []byte) (next []byte, err error)

// KV is a key-value store with compare-and-swap commits.
type KV interface {
	// Watch runs fn against key under a watch. A non-nil result is committed
	// only if key was not modified in between; otherwise ErrConflict is returned.
	// Errors returned by fn are passed through unchanged.
	Watch(ctx context.Context, key string, fn UpdateFunc) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Handler consumes payloads published on a channel.
type Handler func(payload []byte)

type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type PubSub interface {
	Publisher
	// Subscribe returns once the subscription is active.
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Close() error
}
