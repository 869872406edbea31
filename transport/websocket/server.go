package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
	"github.com/rocketscienceinc/tictactoe-sync/internal/room"
)

type gameUseCase interface {
	Join(ctx context.Context, conn room.Conn, gameID string) (*entity.Game, string, error)
	Move(ctx context.Context, connID, gameID string, index int) (*entity.Game, error)
	Disconnect(ctx context.Context, connID string)
}

type Server struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
	upgrader    websocket.Upgrader
	serverPort  int

	handlers map[string]func(ctx context.Context, client *Client, message *Message) error

	clientsMutex sync.Mutex
	clients      map[string]*Client
	active       sync.WaitGroup
}

// New - serverPort is echoed in hello so clients can tell processes apart.
func New(logger *slog.Logger, gameUseCase gameUseCase, serverPort int) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameUseCase: gameUseCase,
		serverPort:  serverPort,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handlers: make(map[string]func(context.Context, *Client, *Message) error),
		clients:  make(map[string]*Client),
	}

	server.handlers[TypeJoin] = server.handleJoin
	server.handlers[TypeMove] = server.handleMove

	return server
}

// ServeHTTP - upgrades the request and serves the connection until it goes away.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	that.active.Add(1)
	defer that.active.Done()

	client := newClient(that.logger, uuid.NewString(), ws)
	that.register(client)

	go client.writePump()

	log = log.With("connID", client.ID())
	log.Info("WebSocket connection established")

	if err = that.sendMessage(client, HelloMessage{Type: TypeHello, ConnID: client.ID(), ServerPort: that.serverPort}); err != nil {
		log.Error("failed to send hello", "error", err)
	}

	that.handleMessages(req.Context(), client)

	that.unregister(client)
	client.Close()

	// the request context is gone once the peer hangs up
	that.gameUseCase.Disconnect(context.WithoutCancel(req.Context()), client.ID())

	log.Info("WebSocket connection closed")
}

// handleMessages - processes messages from the client one at a time.
func (that *Server) handleMessages(ctx context.Context, client *Client) {
	log := that.logger.With("method", "handleMessages", "connID", client.ID())

	client.ws.SetReadLimit(maxMessageSize)
	_ = client.ws.SetReadDeadline(time.Now().Add(pongWait))
	client.ws.SetPongHandler(func(string) error {
		return client.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		if err = that.dispatch(ctx, client, data); err != nil {
			that.replyError(client, err)
		}
	}
}

func (that *Server) dispatch(ctx context.Context, client *Client, data []byte) error {
	message, err := parseMessage(data)
	if err != nil {
		return err
	}

	handler, ok := that.handlers[message.Type]
	if !ok {
		return fmt.Errorf("%w: unknown message type %q", apperror.ErrMalformedRequest, message.Type)
	}

	return handler(ctx, client, message)
}

// replyError - reports err to the originating connection only.
func (that *Server) replyError(client *Client, err error) {
	log := that.logger.With("method", "replyError", "connID", client.ID())

	switch {
	case apperror.IsBusinessRule(err):
		log.Debug("request rejected", "error", err)
	case errors.Is(err, apperror.ErrMalformedRequest):
		log.Warn("malformed request", "error", err)
	default:
		log.Error("request failed", "error", err)
	}

	if sendErr := that.sendErrorResponse(client, apperror.ClientMessage(err)); sendErr != nil {
		log.Debug("failed to send error", "error", sendErr)
	}
}

func (that *Server) register(client *Client) {
	that.clientsMutex.Lock()
	defer that.clientsMutex.Unlock()

	that.clients[client.ID()] = client
}

func (that *Server) unregister(client *Client) {
	that.clientsMutex.Lock()
	defer that.clientsMutex.Unlock()

	delete(that.clients, client.ID())
}

// Shutdown - closes every live connection and waits until each has run its disconnect path.
// The HTTP server must already have stopped accepting upgrades.
func (that *Server) Shutdown(ctx context.Context) error {
	that.closeClients()

	done := make(chan struct{})
	go func() {
		that.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain connections: %w", ctx.Err())
	}
}

func (that *Server) closeClients() {
	that.clientsMutex.Lock()
	clients := make([]*Client, 0, len(that.clients))
	for _, client := range that.clients {
		clients = append(clients, client)
	}
	that.clientsMutex.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
