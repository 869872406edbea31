package store

import (
	"context"
	"sync"
)

type memoryEntry struct {
	value   []byte
	version uint64
}

// Memory is a process-local KV and PubSub, used for single-process runs and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	// pending forced conflicts per key
	conflicts map[string]int

	subMu  sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
}

func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]memoryEntry),
		conflicts: make(map[string]int),
		subs:      make(map[string]map[uint64]Handler),
	}
}

// InjectConflicts - makes the next n commits on key fail as if another writer got there first.
func (that *Memory) InjectConflicts(key string, n int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.conflicts[key] += n
}

func (that *Memory) Watch(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	that.mu.Lock()
	watched := that.entries[key]
	that.mu.Unlock()

	next, err := fn(cloneBytes(watched.value))
	if err != nil {
		return err
	}

	if next == nil {
		return nil
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if n := that.conflicts[key]; n > 0 {
		that.conflicts[key] = n - 1
		// simulate the concurrent writer
		that.entries[key] = memoryEntry{value: watched.value, version: that.entries[key].version + 1}
		return ErrConflict
	}

	if that.entries[key].version != watched.version {
		return ErrConflict
	}

	that.entries[key] = memoryEntry{value: cloneBytes(next), version: watched.version + 1}

	return nil
}

func (that *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return cloneBytes(that.entries[key].value), nil
}

// Set - writes key unconditionally, bumping its version.
func (that *Memory) Set(key string, value []byte) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.entries[key] = memoryEntry{value: cloneBytes(value), version: that.entries[key].version + 1}
}

// Publish delivers payload synchronously to every handler subscribed to channel.
func (that *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	that.subMu.RLock()
	handlers := make([]Handler, 0, len(that.subs[channel]))
	for _, handler := range that.subs[channel] {
		handlers = append(handlers, handler)
	}
	that.subMu.RUnlock()

	for _, handler := range handlers {
		handler(cloneBytes(payload))
	}

	return nil
}

func (that *Memory) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	that.subMu.Lock()
	defer that.subMu.Unlock()

	that.nextID++
	id := that.nextID

	if that.subs[channel] == nil {
		that.subs[channel] = make(map[uint64]Handler)
	}
	that.subs[channel][id] = handler

	return &memorySubscription{memory: that, channel: channel, id: id}, nil
}

// Subscribers - number of active subscriptions on channel.
func (that *Memory) Subscribers(channel string) int {
	that.subMu.RLock()
	defer that.subMu.RUnlock()

	return len(that.subs[channel])
}

func (that *Memory) Close() error {
	return nil
}

type memorySubscription struct {
	memory  *Memory
	channel string
	id      uint64
}

func (that *memorySubscription) Unsubscribe(_ context.Context) error {
	that.memory.subMu.Lock()
	defer that.memory.subMu.Unlock()

	delete(that.memory.subs[that.channel], that.id)
	if len(that.memory.subs[that.channel]) == 0 {
		delete(that.memory.subs, that.channel)
	}

	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
