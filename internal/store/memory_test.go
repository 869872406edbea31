package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBodyFailed = errors.New("body failed")

func TestMemory_Watch(t *testing.T) {
	ctx := context.Background()

	t.Run("Absent key is passed as nil and committed", func(t *testing.T) {
		// Given: an empty store
		mem := NewMemory()

		// When: committing a value for a new key
		var seen []byte
		err := mem.Watch(ctx, "k", func(current []byte) ([]byte, error) {
			seen = current
			return []byte("v1"), nil
		})

		// Then: the body saw nil and the value is stored
		require.NoError(t, err)
		assert.Nil(t, seen)

		value, err := mem.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)
	})

	t.Run("Nil result releases the watch without writing", func(t *testing.T) {
		mem := NewMemory()
		mem.Set("k", []byte("v1"))

		err := mem.Watch(ctx, "k", func(_ []byte) ([]byte, error) {
			return nil, nil
		})

		require.NoError(t, err)
		value, _ := mem.Get(ctx, "k")
		assert.Equal(t, []byte("v1"), value)
	})

	t.Run("Body error is passed through and nothing is written", func(t *testing.T) {
		mem := NewMemory()

		err := mem.Watch(ctx, "k", func(_ []byte) ([]byte, error) {
			return []byte("v1"), errBodyFailed
		})

		require.ErrorIs(t, err, errBodyFailed)
		value, _ := mem.Get(ctx, "k")
		assert.Nil(t, value)
	})

	t.Run("Concurrent write between read and commit is a conflict", func(t *testing.T) {
		// Given: a stored value
		mem := NewMemory()
		mem.Set("k", []byte("v1"))

		// When: another writer changes the key while the body runs
		err := mem.Watch(ctx, "k", func(_ []byte) ([]byte, error) {
			mem.Set("k", []byte("other"))
			return []byte("mine"), nil
		})

		// Then: the commit is rejected and the other write survives
		require.ErrorIs(t, err, ErrConflict)
		value, _ := mem.Get(ctx, "k")
		assert.Equal(t, []byte("other"), value)
	})

	t.Run("Injected conflicts fail exactly n commits", func(t *testing.T) {
		mem := NewMemory()
		mem.InjectConflicts("k", 2)

		commit := func(_ []byte) ([]byte, error) { return []byte("v"), nil }

		assert.ErrorIs(t, mem.Watch(ctx, "k", commit), ErrConflict)
		assert.ErrorIs(t, mem.Watch(ctx, "k", commit), ErrConflict)
		assert.NoError(t, mem.Watch(ctx, "k", commit))
	})

	t.Run("Cancelled context fails before reading", func(t *testing.T) {
		mem := NewMemory()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := mem.Watch(cancelled, "k", func(_ []byte) ([]byte, error) {
			called = true
			return nil, nil
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestMemory_PubSub(t *testing.T) {
	ctx := context.Background()

	t.Run("Publish reaches every subscriber of the channel", func(t *testing.T) {
		// Given: two subscribers on one channel and one on another
		mem := NewMemory()
		var a, b, other [][]byte

		_, err := mem.Subscribe(ctx, "ch", func(p []byte) { a = append(a, p) })
		require.NoError(t, err)
		_, err = mem.Subscribe(ctx, "ch", func(p []byte) { b = append(b, p) })
		require.NoError(t, err)
		_, err = mem.Subscribe(ctx, "other", func(p []byte) { other = append(other, p) })
		require.NoError(t, err)

		// When: publishing on ch
		require.NoError(t, mem.Publish(ctx, "ch", []byte("hello")))

		// Then: only ch subscribers receive it
		assert.Equal(t, [][]byte{[]byte("hello")}, a)
		assert.Equal(t, [][]byte{[]byte("hello")}, b)
		assert.Empty(t, other)
	})

	t.Run("Unsubscribed handler receives nothing", func(t *testing.T) {
		mem := NewMemory()
		received := 0

		sub, err := mem.Subscribe(ctx, "ch", func(_ []byte) { received++ })
		require.NoError(t, err)
		assert.Equal(t, 1, mem.Subscribers("ch"))

		require.NoError(t, sub.Unsubscribe(ctx))
		require.NoError(t, mem.Publish(ctx, "ch", []byte("hello")))

		assert.Zero(t, received)
		assert.Zero(t, mem.Subscribers("ch"))
	})
}
