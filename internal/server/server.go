// Package server exposes the page websocket, the registry and the operator
// actions over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/geoarkit/placer/internal/app"
	"github.com/geoarkit/placer/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Dependencies holds what the routes serve.
type Dependencies struct {
	App *app.App
	// Hub serves the page websocket at /ws.
	Hub http.Handler
	// Clients reports connected pages for the healthcheck.
	Clients func() int
	// Backend serves /api/exports/latest when it implements storage.Loader.
	Backend   storage.Backend
	StaticDir string
	Logger    zerolog.Logger
}

// Server is the HTTP listener.
type Server struct {
	deps   Dependencies
	router *mux.Router
	server *http.Server
}

// New builds the router. Nothing listens until Start.
func New(addr string, deps Dependencies) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestLogger(s.deps.Logger))

	if s.deps.Hub != nil {
		s.router.Handle("/ws", s.deps.Hub)
	}
	s.router.HandleFunc("/healthcheck", s.HandleHealthcheck).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/places", s.HandlePlaces).Methods(http.MethodGet)
	api.HandleFunc("/places.geojson", s.HandlePlacesGeoJSON).Methods(http.MethodGet)
	api.HandleFunc("/places/{name}", s.HandlePlace).Methods(http.MethodGet)
	api.HandleFunc("/session", s.HandleSession).Methods(http.MethodGet)
	api.HandleFunc("/actions", s.HandleActions).Methods(http.MethodGet)
	api.HandleFunc("/actions/{action}", s.HandleAction).Methods(http.MethodPost)
	api.HandleFunc("/exports/latest", s.HandleLatestExport).Methods(http.MethodGet)

	if s.deps.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.deps.StaticDir)))
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens in the background. Errors other than a clean shutdown are
// sent on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server started")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
