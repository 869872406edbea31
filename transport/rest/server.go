package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// NewRouter - routes the HTTP surface; ws serves the WebSocket upgrade.
// An upgrade request is accepted on any path, plain requests to /ws still reach ws.
func NewRouter(handlers Handlers, ws http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.Methods(http.MethodGet).MatcherFunc(isUpgrade).Handler(ws)

	router.HandleFunc("/ping", handlers.PingHandler).Methods(http.MethodGet)
	router.HandleFunc("/games/{id}", handlers.GameHandler).Methods(http.MethodGet)
	router.Handle("/ws", ws).Methods(http.MethodGet)

	return router
}

func isUpgrade(r *http.Request, _ *mux.RouteMatch) bool {
	return websocket.IsWebSocketUpgrade(r)
}

func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
