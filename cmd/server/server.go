package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/typerace/internal/gateway"
	"github.com/mcdev12/typerace/internal/results"
	"github.com/mcdev12/typerace/internal/room"
)

func setupServer(cfg Config, hub *gateway.Hub, wsHandler *gateway.Handler, coord *room.Coordinator, resultsHandler *results.HTTPHandler) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.Handle("/ws", wsHandler)
	resultsHandler.Register(mux)
	setupHealthCheck(mux, hub, coord)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux, hub *gateway.Hub, coord *room.Coordinator) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, err := fmt.Fprintf(w, `{"status":"ok","rooms":%d,"connections":%d}`,
			coord.RoomCount(), hub.ConnectionCount())
		if err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
