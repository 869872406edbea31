package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// subjectPrefix scopes update subjects; the channel name follows as one encoded token.
const subjectPrefix = "updates."

type NATSOptions struct {
	URL  string
	Name string
}

// NATS is a PubSub broker backed by a NATS connection. It carries update
// events only; the game state itself still lives in the KV store.
type NATS struct {
	logger *slog.Logger
	conn   *nats.Conn
}

func NewNATS(logger *slog.Logger, opts NATSOptions) (*NATS, error) {
	log := logger.With("component", "nats")

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATS{logger: log, conn: conn}, nil
}

// Subject - maps a channel name onto a NATS subject. The name is base64url encoded,
// so distinct channels never share a subject and no id can inject wildcards or tokens.
func Subject(channel string) string {
	return subjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(channel))
}

func (that *NATS) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := that.conn.Publish(Subject(channel), payload); err != nil {
		return fmt.Errorf("%w: failed to publish to %s: %w", ErrUnavailable, channel, err)
	}

	if err := that.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: failed to flush publish to %s: %w", ErrUnavailable, channel, err)
	}

	return nil
}

// Subscribe - registers handler and flushes so the server has processed SUB before returning.
func (that *NATS) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	sub, err := that.conn.Subscribe(Subject(channel), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe to %s: %w", ErrUnavailable, channel, err)
	}

	if err = that.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: failed to confirm subscription to %s: %w", ErrUnavailable, channel, err)
	}

	return &natsSubscription{sub: sub}, nil
}

func (that *NATS) Close() error {
	if err := that.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (that *natsSubscription) Unsubscribe(_ context.Context) error {
	if err := that.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", that.sub.Subject, err)
	}

	return nil
}
