package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/runner"
	"github.com/hewlab/hew/internal/agent/session"
	"github.com/hewlab/hew/internal/config"
	"github.com/hewlab/hew/internal/logging"
)

// Options holds optional server behavior
type Options struct {
	Quiet bool // Suppress startup messages for clean CLI output
}

// Server is the HTTP/WebSocket boundary of the host. It exposes the
// runner and provider router to local clients only.
type Server struct {
	cfg      *config.Config
	runner   *runner.Runner
	router   *ai.Router
	sessions *session.Manager
	opts     Options
}

// New creates a server around an initialized runner
func New(cfg *config.Config, r *runner.Runner, aiRouter *ai.Router, sessions *session.Manager, opts ...Options) *Server {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return &Server{
		cfg:      cfg,
		runner:   r,
		router:   aiRouter,
		sessions: sessions,
		opts:     o,
	}
}

// Run starts the server and blocks until the context is cancelled or an
// error occurs.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := checkPortAvailable(addr); err != nil {
		return fmt.Errorf("port %d is already in use, only one hew instance allowed per computer", s.cfg.Port)
	}

	if !s.opts.Quiet {
		fmt.Printf("Starting server on http://%s\n", addr)
	}

	r := s.routes()

	// ReadTimeout/WriteTimeout are intentionally omitted. They set
	// deadlines on the underlying net.Conn, which breaks hijacked
	// WebSocket connections mid-run.
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: 120 * time.Second,
	}

	if !s.opts.Quiet {
		fmt.Printf("Server ready at http://%s\n", addr)
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("[server] http server error: %v", err)
		}
	}()

	<-ctx.Done()

	if !s.opts.Quiet {
		fmt.Println("\nShutting down server gracefully...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.runner.Cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// routes builds the chi router with all handlers mounted
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	if !s.opts.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware())

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", s.handleListModels)

		r.Get("/agent/sessions", s.handleListSessions)
		r.Delete("/agent/sessions/{id}", s.handleDeleteSession)
		r.Get("/agent/sessions/{id}/messages", s.handleSessionMessages)

		r.Post("/agent/cancel", s.handleCancel)
		r.Get("/agent/ws", s.handleAgentWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.router.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.DeleteSession(id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := s.sessions.GetMessages(id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleCancel aborts the in-flight run, if any. Always succeeds.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.runner.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorf("[server] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// corsMiddleware handles CORS. Hew is a local app, so only localhost
// origins get CORS headers; everything else is blocked by the browser.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin == "" || isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isLocalhostOrigin reports whether origin points at this machine
// (localhost, 127.0.0.1 or [::1], any port).
func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}

// checkPortAvailable checks if the address is free for binding
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
