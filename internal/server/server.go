package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

//go:embed public
var embedded embed.FS

// DefaultPublic returns the built-in public assets.
func DefaultPublic() fs.FS {
	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		panic(err)
	}
	return sub
}

// Config configures a Server.
type Config struct {
	// Addr to listen on, defaults to 127.0.0.1:3000.
	Addr string

	// PublicDir overrides the built-in static assets.
	PublicDir string

	// RequestsPerMinute and Burst bound each client IP.
	RequestsPerMinute int
	Burst             int

	// Logger defaults to the package logger.
	Logger *log.Logger
}

// Server serves /api/chat, /healthz and the public assets.
type Server struct {
	cfg     Config
	handler http.Handler
	server  *http.Server
	started time.Time
}

// New builds a Server around chat.
func New(cfg Config, chat http.Handler) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	public := DefaultPublic()
	if cfg.PublicDir != "" {
		info, err := os.Stat(cfg.PublicDir)
		if err != nil {
			return nil, fmt.Errorf("public dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("public dir %s is not a directory", cfg.PublicDir)
		}
		public = os.DirFS(cfg.PublicDir)
	}

	s := &Server{cfg: cfg, started: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/api/chat", chat)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/", staticHandler(public))

	s.handler = Chain(
		RequestIDMiddleware(),
		RecoveryMiddleware(cfg.Logger),
		LoggingMiddleware(cfg.Logger),
		RateLimitMiddleware(NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst)),
	)(mux)
	return s, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.cfg.Logger.Info("server starting", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.cfg.Logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func staticHandler(public fs.FS) http.Handler {
	files := http.FileServerFS(public)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
