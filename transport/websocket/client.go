package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Client is one live WebSocket connection. Reads happen on the goroutine serving the
// upgrade request; all writes go through the send queue drained by writePump.
type Client struct {
	id     string
	logger *slog.Logger
	ws     *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(logger *slog.Logger, id string, ws *websocket.Conn) *Client {
	return &Client{
		id:     id,
		logger: logger.With("connID", id),
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (that *Client) ID() string { return that.id }

// Send - queues payload for delivery without blocking the caller.
func (that *Client) Send(payload []byte) error {
	select {
	case <-that.done:
		return ErrConnClosed
	default:
	}

	select {
	case that.send <- payload:
		return nil
	case <-that.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// Close - stops the write pump, which closes the socket.
func (that *Client) Close() {
	that.closeOnce.Do(func() {
		close(that.done)
	})
}

func (that *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		that.ws.Close()
	}()

	for {
		select {
		case payload := <-that.send:
			_ = that.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				that.logger.Debug("write failed", "error", err)
				that.Close()
				return
			}
		case <-ticker.C:
			_ = that.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				that.Close()
				return
			}
		case <-that.done:
			_ = that.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
