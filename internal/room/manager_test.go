package room

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/store"
)

type mockConn struct {
	id       string
	received [][]byte
	sendErr  error
	mu       sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// failingPubSub refuses every subscription.
type failingPubSub struct {
	*store.Memory
}

func (f failingPubSub) Subscribe(context.Context, string, store.Handler) (store.Subscription, error) {
	return nil, errors.New("broker down")
}

// deliveringPubSub publishes pending payloads while a SUBSCRIBE is in flight,
// the way a shared pub/sub connection keeps dispatching other channels.
type deliveringPubSub struct {
	*store.Memory
	during func()
}

func (d deliveringPubSub) Subscribe(ctx context.Context, channel string, handler store.Handler) (store.Subscription, error) {
	if d.during != nil {
		d.during()
	}

	return d.Memory.Subscribe(ctx, channel, handler)
}

func channelOf(gameID string) string { return "test:" + gameID }

func newTestManager(t *testing.T) (*Manager, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewManager(logger, mem, channelOf), mem
}

func publishGame(t *testing.T, mem *store.Memory, game *entity.Game) {
	t.Helper()

	payload, err := json.Marshal(game)
	require.NoError(t, err)
	require.NoError(t, mem.Publish(context.Background(), channelOf(game.ID), payload))
}

func TestManager_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("First connection subscribes once", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		b := &mockConn{id: "b"}

		// When
		require.NoError(t, manager.Join(ctx, "g1", a))
		require.NoError(t, manager.Join(ctx, "g1", b))

		// Then
		assert.Equal(t, 2, manager.Size("g1"))
		assert.True(t, manager.Subscribed("g1"))
		assert.Equal(t, 1, mem.Subscribers(channelOf("g1")))
	})

	t.Run("Rejoining the same game is idempotent", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		require.NoError(t, manager.Join(ctx, "g1", a))

		// When
		require.NoError(t, manager.Join(ctx, "g1", a))

		// Then
		assert.Equal(t, 1, manager.Size("g1"))
		assert.Equal(t, 1, mem.Subscribers(channelOf("g1")))
	})

	t.Run("Joining another game moves the connection", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		require.NoError(t, manager.Join(ctx, "g1", a))

		// When
		require.NoError(t, manager.Join(ctx, "g2", a))

		// Then
		gameID, ok := manager.GameOf("a")
		assert.True(t, ok)
		assert.Equal(t, "g2", gameID)
		assert.Equal(t, 0, manager.Size("g1"))
		assert.False(t, manager.Subscribed("g1"))
		assert.Equal(t, 0, mem.Subscribers(channelOf("g1")))
		assert.Equal(t, 1, mem.Subscribers(channelOf("g2")))
	})

	t.Run("Subscription failure rolls back the join", func(t *testing.T) {
		// Given
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		manager := NewManager(logger, failingPubSub{store.NewMemory()}, channelOf)
		a := &mockConn{id: "a"}

		// When
		err := manager.Join(ctx, "g1", a)

		// Then
		require.Error(t, err)
		_, ok := manager.GameOf("a")
		assert.False(t, ok)
		assert.Equal(t, 0, manager.Size("g1"))
		assert.False(t, manager.Subscribed("g1"))
	})
}

func TestManager_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("Last connection out drops the subscription", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		b := &mockConn{id: "b"}
		require.NoError(t, manager.Join(ctx, "g1", a))
		require.NoError(t, manager.Join(ctx, "g1", b))

		// When
		gameID, ok, err := manager.Leave(ctx, "a")

		// Then
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "g1", gameID)
		assert.True(t, manager.Subscribed("g1"))

		// When
		_, _, err = manager.Leave(ctx, "b")

		// Then
		require.NoError(t, err)
		assert.False(t, manager.Subscribed("g1"))
		assert.Equal(t, 0, mem.Subscribers(channelOf("g1")))
	})

	t.Run("Unknown connection is a no-op", func(t *testing.T) {
		// Given
		manager, _ := newTestManager(t)

		// When
		gameID, ok, err := manager.Leave(ctx, "ghost")

		// Then
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gameID)
	})
}

func TestManager_Updates(t *testing.T) {
	ctx := context.Background()

	t.Run("Published state reaches every member of the room only", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		b := &mockConn{id: "b"}
		other := &mockConn{id: "other"}
		require.NoError(t, manager.Join(ctx, "g1", a))
		require.NoError(t, manager.Join(ctx, "g1", b))
		require.NoError(t, manager.Join(ctx, "g2", other))

		game := entity.NewGame("g1")
		game.Players.X = "a"

		// When
		publishGame(t, mem, game)

		// Then
		for _, conn := range []*mockConn{a, b} {
			received := conn.getReceived()
			require.Len(t, received, 1)

			var message UpdateMessage
			require.NoError(t, json.Unmarshal(received[0], &message))
			assert.Equal(t, TypeUpdate, message.Type)
			assert.Equal(t, game, message.Game)
		}
		assert.Empty(t, other.getReceived())
	})

	t.Run("Malformed payload is dropped", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		require.NoError(t, manager.Join(ctx, "g1", a))

		// When
		require.NoError(t, mem.Publish(ctx, channelOf("g1"), []byte("{not json")))

		// Then
		assert.Empty(t, a.getReceived())
	})

	t.Run("State of another game on the channel is dropped", func(t *testing.T) {
		// Given: a room for a.b and a broker that routes a_b onto the same channel
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		require.NoError(t, manager.Join(ctx, "a.b", a))

		payload, err := json.Marshal(entity.NewGame("a_b"))
		require.NoError(t, err)

		// When
		require.NoError(t, mem.Publish(ctx, channelOf("a.b"), payload))

		// Then
		assert.Empty(t, a.getReceived())

		// When: the room's own game is published
		publishGame(t, mem, entity.NewGame("a.b"))

		// Then
		assert.Len(t, a.getReceived(), 1)
	})

	t.Run("Failed send does not stop the broadcast", func(t *testing.T) {
		// Given
		manager, _ := newTestManager(t)
		broken := &mockConn{id: "broken", sendErr: errors.New("closed")}
		healthy := &mockConn{id: "healthy"}
		require.NoError(t, manager.Join(ctx, "g1", broken))
		require.NoError(t, manager.Join(ctx, "g1", healthy))

		// When
		manager.Broadcast("g1", []byte("hi"))

		// Then
		assert.Equal(t, [][]byte{[]byte("hi")}, healthy.getReceived())
		assert.Empty(t, broken.getReceived())
	})

	t.Run("No delivery after leaving", func(t *testing.T) {
		// Given
		manager, mem := newTestManager(t)
		a := &mockConn{id: "a"}
		require.NoError(t, manager.Join(ctx, "g1", a))
		_, _, err := manager.Leave(ctx, "a")
		require.NoError(t, err)

		// When
		publishGame(t, mem, entity.NewGame("g1"))

		// Then
		assert.Empty(t, a.getReceived())
	})
}

func TestManager_DeliveryDuringSubscribe(t *testing.T) {
	// Given: a room for g1 and a pub/sub that delivers g1 while g2 is being subscribed
	ctx := context.Background()
	mem := store.NewMemory()
	ps := &deliveringPubSub{Memory: mem}
	manager := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), ps, channelOf)

	a := &mockConn{id: "a"}
	require.NoError(t, manager.Join(ctx, "g1", a))

	payload, err := json.Marshal(entity.NewGame("g1"))
	require.NoError(t, err)
	ps.during = func() { assert.NoError(t, mem.Publish(ctx, channelOf("g1"), payload)) }

	// When: another connection joins g2
	done := make(chan error, 1)
	go func() { done <- manager.Join(ctx, "g2", &mockConn{id: "b"}) }()

	// Then: the join completes and g1 still got its update
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("join blocked on a delivery for another room")
	}

	assert.Len(t, a.getReceived(), 1)
	assert.True(t, manager.Subscribed("g2"))
}

func TestManager_Concurrency(t *testing.T) {
	// Given
	ctx := context.Background()
	manager, mem := newTestManager(t)

	// When
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := &mockConn{id: string(rune('A' + i))}
			assert.NoError(t, manager.Join(ctx, "g1", conn))
			if i%2 == 0 {
				_, _, err := manager.Leave(ctx, conn.ID())
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	// Then
	assert.Equal(t, 25, manager.Size("g1"))
	assert.Equal(t, 1, mem.Subscribers(channelOf("g1")))
}

func TestManager_Close(t *testing.T) {
	// Given
	ctx := context.Background()
	manager, mem := newTestManager(t)
	require.NoError(t, manager.Join(ctx, "g1", &mockConn{id: "a"}))
	require.NoError(t, manager.Join(ctx, "g2", &mockConn{id: "b"}))

	// When
	require.NoError(t, manager.Close(ctx))

	// Then
	assert.Equal(t, 0, mem.Subscribers(channelOf("g1")))
	assert.Equal(t, 0, mem.Subscribers(channelOf("g2")))
	_, ok := manager.GameOf("a")
	assert.False(t, ok)
}
