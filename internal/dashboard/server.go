// Package dashboard serves the training overview page, a read-only JSON API
// over the synchronized documents, on-demand sync, and WebSocket live
// updates.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/observability"
	"github.com/nametoa/ai-sport-training/internal/store"
	trainsync "github.com/nametoa/ai-sport-training/internal/sync"
)

// Syncer runs a sync on demand. *sync.Engine satisfies it.
type Syncer interface {
	TryRun(ctx context.Context) (*trainsync.Report, bool)
	LastReport() *trainsync.Report
}

// Server is the dashboard HTTP server.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   http.Handler

	store    *store.Store
	index    *index.Index
	syncer   Syncer
	autoSync bool
	cacheTTL time.Duration
	sessions *SessionStore

	hub     *hub
	origins []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// stopMu orders wg.Add in maybeAutoSync against wg.Wait in Stop.
	stopMu   sync.Mutex
	stopping bool

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	Store *store.Store
	Index *index.Index

	// Syncer backs POST /api/sync and the per-session automatic sync.
	// Nil disables both.
	Syncer Syncer
	// AutoSync starts one background sync for each new session.
	AutoSync bool

	// CacheTTL bounds how long a session reuses loaded documents (default: 60s)
	CacheTTL time.Duration
	// SessionTTL discards sessions idle this long (default: 24h)
	SessionTTL time.Duration

	// AllowedOrigins for CORS and WebSocket upgrades (default: any)
	AllowedOrigins []string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:       8080,
		CacheTTL:   60 * time.Second,
		SessionTTL: 24 * time.Hour,
		Logger:     log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server over config.Store and config.Index.
func NewServer(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Index == nil {
		return nil, errors.New("index is required")
	}

	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaults.SessionTTL
	}
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     fmt.Sprintf(":%d", config.Port),
		store:    config.Store,
		index:    config.Index,
		syncer:   config.Syncer,
		autoSync: config.AutoSync && config.Syncer != nil,
		cacheTTL: config.CacheTTL,
		sessions: NewSessionStore(config.SessionTTL),
		hub:      newHub(config.Logger),
		origins:  origins,
		ctx:      ctx,
		cancel:   cancel,
		logger:   config.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// routes builds the chi router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/activities", s.handleActivities)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/summary", s.handleSummary)
		r.Post("/sync", s.handleSync)
	})
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())
	return r
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// POST /api/sync holds the request for a whole run.
		WriteTimeout: 10 * time.Minute,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on http://%s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects clients, shuts the HTTP server down and waits for
// background syncs started by sessions.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")
	s.stopMu.Lock()
	s.stopping = true
	s.stopMu.Unlock()
	s.cancel()
	s.hub.closeAll("Server shutting down")

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if e := s.server.Shutdown(ctx); e != nil {
			err = fmt.Errorf("server shutdown error: %w", e)
		}
	}
	s.wg.Wait()
	s.logger.Println("Dashboard server stopped")
	return err
}

// Broadcast queues msg for every connected client.
func (s *Server) Broadcast(msg Message) {
	s.hub.publish(s.ctx, msg)
}

// handleWebSocket accepts a client and greets it with the current stats.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	s.hub.add(conn)

	stats, err := s.Stats(r.Context())
	if err != nil {
		s.logger.Printf("Failed to read stats: %v", err)
	}
	if welcome, err := newMessage(MessageTypeStats, stats); err == nil {
		if data, err := json.Marshal(welcome); err == nil {
			_ = write(s.ctx, conn, data)
		}
	}

	go s.hub.serve(s.ctx, conn)
}

// Stats returns index statistics and the client count.
func (s *Server) Stats(ctx context.Context) (StatsData, error) {
	stats, err := indexStats(ctx, s.index)
	stats.Clients = s.ClientCount()
	return stats, err
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":   "ok",
		"clients":  s.ClientCount(),
		"sessions": s.sessions.Len(),
	}
	if s.syncer != nil {
		if last := s.syncer.LastReport(); last != nil {
			health["last_sync"] = last.Finished
			health["last_sync_ok"] = last.Err() == nil
		}
	}
	respondJSON(w, http.StatusOK, health)
}

// maybeAutoSync starts the session's one background sync.
func (s *Server) maybeAutoSync(sess *Session) {
	if !s.autoSync || !sess.claimAutoSync() {
		return
	}
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopping {
		sess.finishAutoSync("")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report, ran := s.syncer.TryRun(s.ctx)
		switch {
		case !ran:
			sess.finishAutoSync("")
		case report.Err() != nil:
			s.logger.Printf("Session sync failed: %v", report.Err())
			sess.finishAutoSync(fmt.Sprintf("Sync failed, showing the last saved data: %v", report.Err()))
		default:
			sess.finishAutoSync("")
		}
	}()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}
