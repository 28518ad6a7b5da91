package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logserver/internal/archive"
	"github.com/tinytelemetry/logserver/internal/model"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 1000
)

// StatusSource is the collector state exposed by the API.
type StatusSource interface {
	Sources() []model.SourceStatus
	JournalBuffered() int
	Running() bool
}

// MessageStore is the narrow archive contract required by the API.
type MessageStore interface {
	Recent(ctx context.Context, limit int, opts archive.QueryOpts) ([]archive.Entry, error)
	SeverityCounts(ctx context.Context, opts archive.QueryOpts) (map[string]int64, error)
	Count(ctx context.Context, opts archive.QueryOpts) (int64, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// Server provides a read-only HTTP API over the collector's state.
type Server struct {
	addr      string
	status    StatusSource
	store     MessageStore
	metrics   http.Handler
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the API server. store and metrics may be nil, in which
// case their endpoints answer 503 and 404 respectively.
func NewServer(addr string, status StatusSource, store MessageStore, metrics http.Handler) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		status:    status,
		store:     store,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/sources", s.handleSources)
	r.GET("/api/messages", s.handleMessages)
	r.GET("/api/severity", s.handleSeverity)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	state := "running"
	if !s.status.Running() {
		state = "shutting-down"
	}
	body := gin.H{
		"status":           "ok",
		"state":            state,
		"uptime":           time.Since(s.startTime).String(),
		"sources":          len(s.status.Sources()),
		"journal_buffered": s.status.JournalBuffered(),
	}
	if s.store != nil {
		n, err := s.store.Count(c.Request.Context(), archive.QueryOpts{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read archive count"})
			return
		}
		body["archived"] = n
		v, err := s.store.SchemaVersion(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read archive schema"})
			return
		}
		body["archive_schema"] = v
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.status.Sources()})
}

func queryOpts(c *gin.Context) (archive.QueryOpts, bool) {
	opts := archive.QueryOpts{Source: c.Query("source")}
	if lv := c.Query("level"); lv != "" {
		for _, l := range strings.Split(lv, ",") {
			if l = strings.TrimSpace(l); l != "" {
				opts.Levels = append(opts.Levels, strings.ToUpper(l))
			}
		}
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
			return opts, false
		}
		opts.Since = t
	}
	return opts, true
}

func (s *Server) handleMessages(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive disabled"})
		return
	}
	limit := defaultMessageLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMessageLimit)
	}
	opts, ok := queryOpts(c)
	if !ok {
		return
	}

	entries, err := s.store.Recent(c.Request.Context(), limit, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read messages"})
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": entries,
		"count":    len(entries),
	})
}

func (s *Server) handleSeverity(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive disabled"})
		return
	}
	opts, ok := queryOpts(c)
	if !ok {
		return
	}
	counts, err := s.store.SeverityCounts(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read severity counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}
