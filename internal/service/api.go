package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lynx-chain/compwatch/config"
	"github.com/lynx-chain/compwatch/internal/chain"
	"github.com/lynx-chain/compwatch/internal/watcher"
	"github.com/lynx-chain/compwatch/pkg/logger"
)

// Server exposes the watch manager over HTTP.
type Server struct {
	mgr       *Manager
	log       *logger.Logger
	router    *gin.Engine
	srv       *http.Server
	jwtSecret string
}

// NewServer builds the API server for a manager.
func NewServer(cfg config.APIConfig, mgr *Manager, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		mgr:       mgr,
		log:       log,
		router:    router,
		jwtSecret: cfg.JWTSecret,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.GET("/watches", s.handleListWatches)
	v1.GET("/watches/:id", s.handleGetWatch)

	// Reads stay open; mutations require a bearer token when a secret is
	// configured.
	mutating := v1.Group("")
	if s.jwtSecret != "" {
		mutating.Use(authMiddleware(s.jwtSecret))
	}
	mutating.POST("/watches", s.handleCreateWatch)
	mutating.DELETE("/watches/:id", s.handleCancelWatch)
}

// Start serves until shutdown.
func (s *Server) Start() error {
	s.log.Info("API server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type createWatchRequest struct {
	// Handle accepts decimal or 0x-prefixed hex; it is a string because
	// JSON numbers cannot carry a full uint64.
	Handle  string               `json:"handle" binding:"required"`
	Emitter string               `json:"emitter" binding:"required"`
	Options *watchOptionsRequest `json:"options"`
}

// watchOptionsRequest overrides the service-wide watch defaults for one
// watch. Omitted or zero fields keep the defaults.
type watchOptionsRequest struct {
	MaxAttempts  int    `json:"max_attempts"`
	PollInterval string `json:"poll_interval"`
	WindowSize   int    `json:"window_size"`
	Commitment   string `json:"commitment"`
}

func (r *watchOptionsRequest) toOptions() (*watcher.Options, error) {
	if r.MaxAttempts < 0 {
		return nil, fmt.Errorf("max_attempts must not be negative")
	}
	if r.WindowSize < 0 {
		return nil, fmt.Errorf("window_size must not be negative")
	}

	opts := watcher.Options{
		MaxAttempts: r.MaxAttempts,
		WindowSize:  r.WindowSize,
	}
	if r.PollInterval != "" {
		d, err := time.ParseDuration(r.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("poll_interval must be positive")
		}
		opts.PollInterval = d
	}
	if r.Commitment != "" {
		level := chain.CommitmentLevel(r.Commitment)
		if !level.Valid() {
			return nil, fmt.Errorf("commitment %q is not one of processed, confirmed, finalized", r.Commitment)
		}
		opts.Commitment = level
	}
	return &opts, nil
}

type watchResponse struct {
	ID              string `json:"id"`
	Handle          string `json:"handle"`
	Emitter         string `json:"emitter"`
	State           string `json:"state"`
	ContainerID     string `json:"container_id,omitempty"`
	Attempts        int    `json:"attempts"`
	EmptyScans      int    `json:"empty_scans"`
	TransientErrors int    `json:"transient_errors"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

func toResponse(w Watch) watchResponse {
	resp := watchResponse{
		ID:              w.ID,
		Handle:          fmt.Sprintf("%#x", w.Handle),
		Emitter:         w.Emitter.String(),
		State:           string(w.State),
		ContainerID:     w.ContainerID,
		Attempts:        w.Counters.Attempts,
		EmptyScans:      w.Counters.EmptyScans,
		TransientErrors: w.Counters.TransientErrors,
		CreatedAt:       w.CreatedAt.Format(time.RFC3339),
	}
	if !w.CompletedAt.IsZero() {
		resp.CompletedAt = w.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateWatch(c *gin.Context) {
	var req createWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h, err := strconv.ParseUint(req.Handle, 0, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid handle: %v", err)})
		return
	}

	emitter, err := chain.ParseAddress(req.Emitter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts *watcher.Options
	if req.Options != nil {
		opts, err = req.Options.toOptions()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// Watches outlive the HTTP request that created them; cancellation is
	// explicit via DELETE or manager shutdown.
	watch, err := s.mgr.Create(context.Background(), h, emitter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toResponse(watch))
}

func (s *Server) handleListWatches(c *gin.Context) {
	watches := s.mgr.List()
	out := make([]watchResponse, 0, len(watches))
	for _, w := range watches {
		out = append(out, toResponse(w))
	}
	c.JSON(http.StatusOK, gin.H{"watches": out})
}

func (s *Server) handleGetWatch(c *gin.Context) {
	watch, ok := s.mgr.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "watch not found"})
		return
	}
	c.JSON(http.StatusOK, toResponse(watch))
}

func (s *Server) handleCancelWatch(c *gin.Context) {
	if !s.mgr.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "watch not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
