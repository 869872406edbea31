// Package room keeps the per-process mapping between games and the live
// connections watching them, and the store subscriptions feeding those rooms.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/store"
)

// Conn is a locally held connection that can receive outbound payloads.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// UpdateMessage is broadcast to a room for every published game state.
type UpdateMessage struct {
	Type string       `json:"type"`
	Game *entity.Game `json:"game"`
}

const TypeUpdate = "update"

type Manager struct {
	logger  *slog.Logger
	pubsub  store.PubSub
	channel func(gameID string) string

	// mu guards membership and subscriptions and is held across SUBSCRIBE.
	// roomsMu guards rooms alone so delivery never waits on a pending subscribe.
	mu      sync.Mutex
	roomsMu sync.RWMutex
	rooms   map[string]map[string]Conn // gameID -> connID -> conn
	members map[string]string          // connID -> gameID
	subs    map[string]store.Subscription
}

// NewManager - channel maps a game id onto the pub/sub channel carrying its updates.
func NewManager(logger *slog.Logger, pubsub store.PubSub, channel func(gameID string) string) *Manager {
	return &Manager{
		logger:  logger.With("component", "rooms"),
		pubsub:  pubsub,
		channel: channel,
		rooms:   make(map[string]map[string]Conn),
		members: make(map[string]string),
		subs:    make(map[string]store.Subscription),
	}
}

// Join - adds conn to the room of gameID and makes sure the process is subscribed to its updates.
// A connection already in another room is moved out of it first.
func (that *Manager) Join(ctx context.Context, gameID string, conn Conn) error {
	log := that.logger.With("method", "Join", "gameID", gameID, "connID", conn.ID())

	var stale store.Subscription

	that.mu.Lock()

	if previous, ok := that.members[conn.ID()]; ok && previous != gameID {
		stale = that.removeLocked(conn.ID())
	}

	that.roomsMu.Lock()
	members, ok := that.rooms[gameID]
	if !ok {
		members = make(map[string]Conn)
		that.rooms[gameID] = members
	}
	members[conn.ID()] = conn
	that.roomsMu.Unlock()

	that.members[conn.ID()] = gameID

	err := that.ensureSubscribedLocked(ctx, gameID)
	if err != nil {
		// the room was never subscribed, so there is nothing to tear down
		that.removeLocked(conn.ID())
	}

	that.mu.Unlock()

	size := that.Size(gameID)

	if unsubErr := that.unsubscribe(ctx, stale); unsubErr != nil {
		log.Error("failed to leave previous room", "error", unsubErr)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to game %s: %w", gameID, err)
	}

	log.Debug("connection joined room", "clients", size)

	return nil
}

// Leave - removes connID from its room, dropping the room and its subscription when it empties.
// The connection is detached even when the unsubscribe fails.
func (that *Manager) Leave(ctx context.Context, connID string) (string, bool, error) {
	that.mu.Lock()

	gameID, ok := that.members[connID]
	if !ok {
		that.mu.Unlock()
		return "", false, nil
	}

	stale := that.removeLocked(connID)
	that.mu.Unlock()

	that.logger.Debug("connection left room", "gameID", gameID, "connID", connID)

	if err := that.unsubscribe(ctx, stale); err != nil {
		return gameID, true, fmt.Errorf("failed to unsubscribe from game %s: %w", gameID, err)
	}

	return gameID, true, nil
}

// GameOf - returns the game connID is currently associated with.
func (that *Manager) GameOf(connID string) (string, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	gameID, ok := that.members[connID]
	return gameID, ok
}

// Broadcast - sends payload to every connection in the room; failed sends are skipped.
func (that *Manager) Broadcast(gameID string, payload []byte) {
	that.roomsMu.RLock()
	conns := make([]Conn, 0, len(that.rooms[gameID]))
	for _, conn := range that.rooms[gameID] {
		conns = append(conns, conn)
	}
	that.roomsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			that.logger.Debug("skipping connection", "gameID", gameID, "connID", conn.ID(), "error", err)
		}
	}
}

// Size - number of local connections in the room of gameID.
func (that *Manager) Size(gameID string) int {
	that.roomsMu.RLock()
	defer that.roomsMu.RUnlock()

	return len(that.rooms[gameID])
}

// Subscribed - reports whether the process holds a subscription for gameID.
func (that *Manager) Subscribed(gameID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.subs[gameID]
	return ok
}

// Close - drops every room and tears down all subscriptions.
func (that *Manager) Close(ctx context.Context) error {
	that.mu.Lock()
	subs := that.subs
	that.roomsMu.Lock()
	that.rooms = make(map[string]map[string]Conn)
	that.roomsMu.Unlock()
	that.members = make(map[string]string)
	that.subs = make(map[string]store.Subscription)
	that.mu.Unlock()

	var errs []error
	for gameID, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe from game %s: %w", gameID, err))
		}
	}

	return errors.Join(errs...)
}

func (that *Manager) ensureSubscribedLocked(ctx context.Context, gameID string) error {
	if _, ok := that.subs[gameID]; ok {
		return nil
	}

	sub, err := that.pubsub.Subscribe(ctx, that.channel(gameID), func(payload []byte) {
		that.onUpdate(gameID, payload)
	})
	if err != nil {
		return err
	}

	that.subs[gameID] = sub

	return nil
}

// removeLocked detaches connID and returns the subscription to tear down if its room emptied.
func (that *Manager) removeLocked(connID string) store.Subscription {
	gameID, ok := that.members[connID]
	if !ok {
		return nil
	}

	delete(that.members, connID)

	that.roomsMu.Lock()
	members := that.rooms[gameID]
	delete(members, connID)

	empty := len(members) == 0
	if empty {
		delete(that.rooms, gameID)
	}
	that.roomsMu.Unlock()

	if !empty {
		return nil
	}

	sub := that.subs[gameID]
	delete(that.subs, gameID)

	return sub
}

func (that *Manager) unsubscribe(ctx context.Context, sub store.Subscription) error {
	if sub == nil {
		return nil
	}

	return sub.Unsubscribe(ctx)
}

// onUpdate decodes a published game state and fans it out as an update message.
// States of any other game are dropped.
func (that *Manager) onUpdate(gameID string, payload []byte) {
	var game entity.Game
	if err := json.Unmarshal(payload, &game); err != nil {
		that.logger.Warn("dropping malformed update", "gameID", gameID, "error", err)
		return
	}

	if game.ID != gameID {
		that.logger.Warn("dropping update for another game", "gameID", gameID, "payloadGameID", game.ID)
		return
	}

	message, err := json.Marshal(UpdateMessage{Type: TypeUpdate, Game: &game})
	if err != nil {
		that.logger.Error("failed to marshal update", "gameID", gameID, "error", err)
		return
	}

	that.Broadcast(gameID, message)
}
