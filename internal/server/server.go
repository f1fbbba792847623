// Package server exposes the dispatcher to local front ends over HTTP and
// websockets: /ws carries a chat session, /events streams every bus event.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/bus"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
	shutdownWait   = 5 * time.Second
)

// Dispatcher is the part of *dispatch.Dispatcher the server drives.
type Dispatcher interface {
	Dispatch(utterance, sessionID string, sink dispatch.Sink) (*dispatch.Task, error)
	AnalyzeFile(path string, sink dispatch.Sink) (*dispatch.Task, error)
	SimilarQueries(ctx context.Context, query string, limit int) ([]memory.QueryMemory, error)
}

// Stopper interrupts speech.
type Stopper interface {
	Stop()
}

// Config wires a Server.
type Config struct {
	Dispatcher Dispatcher
	Settings   *config.Settings
	Speech     Stopper
	Bus        *bus.Bus
	Logger     *logging.Logger

	// DocumentsDir confines analyze frames. Empty rejects them.
	DocumentsDir string
}

// Server is the websocket presentation bridge.
type Server struct {
	cfg      Config
	log      *logging.Logger
	upgrader websocket.Upgrader
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg: cfg,
		log: cfg.Logger.WithComponent("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
	}
}

// sameHostOrigin accepts non-browser clients and pages served from this
// host or from localhost.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch u.Hostname() {
	case host, "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/similar", s.handleSimilar)
	r.Get("/ws", s.handleChat)
	r.Get("/events", s.handleEvents)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close disconnects every websocket client and waits for their goroutines.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

type healthResponse struct {
	Status        string `json:"status"`
	SpeechEnabled bool   `json:"speech_enabled"`
	Clients       int    `json:"clients"`
	Uptime        string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Clients: s.ClientCount(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.cfg.Settings != nil {
		resp.SpeechEnabled = s.cfg.Settings.SpeechEnabled()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	rows, err := s.cfg.Dispatcher.SimilarQueries(r.Context(), q, limit)
	if err != nil {
		s.log.Warn("similar queries: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if rows == nil {
		rows = []memory.QueryMemory{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.wg.Done()
}

// documentPath resolves name inside the documents directory.
func (s *Server) documentPath(name string) (string, error) {
	if s.cfg.DocumentsDir == "" {
		return "", errors.New("document analysis is disabled (set server.documents_dir)")
	}
	root, err := filepath.Abs(s.cfg.DocumentsDir)
	if err != nil {
		return "", fmt.Errorf("documents dir: %w", err)
	}

	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	checkRoot, checkPath := root, p
	if r, err := filepath.EvalSymlinks(root); err == nil {
		if q, err := filepath.EvalSymlinks(p); err == nil {
			checkRoot, checkPath = r, q
		}
	}
	rel, err := filepath.Rel(checkRoot, checkPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the documents directory", name)
	}
	return p, nil
}
