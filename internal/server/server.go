package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/bridge"
	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/hoststore"
	"github.com/termgate/termgate/internal/server/handlers"
	"github.com/termgate/termgate/internal/server/middleware"
)

// Server is the HTTP front of the gateway: the bridge WebSocket endpoint,
// the SFTP surface, and health checks.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	httpServer *http.Server
}

// New assembles the router. gateway serves the bridge socket traffic; store
// gates access and resolves hosts for the SFTP surface.
func New(cfg *config.Config, gateway *bridge.Gateway, store *hoststore.Client) *Server {
	s := &Server{cfg: cfg}
	s.setupRouter(gateway, store)
	return s
}

func (s *Server) setupRouter(gateway *bridge.Gateway, store *hoststore.Client) {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks
	r.Get("/health", handlers.Health(s.cfg.Version))
	r.Get("/ready", handlers.Ready)

	// Bridge WebSocket. The path segment keeps this traffic apart from the
	// REST API on the same host; the existing client connects here. No
	// request timeout on this subtree: sessions are long-lived.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(store))
		r.Get("/ssh.io/socket.io", gateway.ServeHTTP)
	})

	// SFTP REST surface
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(store))
		r.Use(chimiddleware.Timeout(60 * time.Second))

		sftp := handlers.NewSFTP(store)
		r.Route("/sftp/{hostId}", func(r chi.Router) {
			r.Get("/list", sftp.List)
			r.Get("/stat", sftp.Stat)
			r.Get("/download", sftp.Download)
			r.Post("/upload", sftp.Upload)
			r.Delete("/delete", sftp.Delete)
			r.Get("/read", sftp.Read)
			r.Post("/write", sftp.Write)
		})
	})

	s.router = r
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// No global read/write timeouts: the bridge endpoint holds
		// WebSocket connections open indefinitely.
		IdleTimeout: 60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
