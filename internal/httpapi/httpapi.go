// Package httpapi serves the MCP server over HTTP: plain JSON-RPC POSTs, an SSE
// stream with a paired message endpoint, health and saved map sessions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dhenenjay/Axion-MCP/internal/server"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
)

// Backend is the part of the MCP server the HTTP layer needs.
type Backend interface {
	HandleMessage(ctx context.Context, data []byte) *server.MCPResponse
	Health(ctx context.Context) map[string]interface{}
	Map(id string) (*store.MapSession, bool, error)
}

const (
	// maxBodyBytes bounds one JSON-RPC message.
	maxBodyBytes = 4 << 20

	sessionBuffer     = 32
	keepAliveInterval = 25 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// API routes HTTP requests to a Backend.
type API struct {
	backend Backend
	logger  zerolog.Logger
	router  *gin.Engine

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is one open SSE stream. Responses to messages posted for it are
// delivered as events.
type session struct {
	id     string
	events chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the router.
func New(backend Backend, logger zerolog.Logger) *API {
	a := &API{
		backend:  backend,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		sessions: make(map[string]*session),
	}

	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger(), cors())

	router.POST("/mcp", a.handleMCP)
	router.GET("/sse", a.handleSSE)
	router.POST("/messages", a.handleMessages)
	router.GET("/health", a.handleHealth)
	router.GET("/api/maps/:id", a.handleMap)

	a.router = router
	return a
}

// Handler returns the HTTP handler.
func (a *API) Handler() http.Handler { return a.router }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("http transport listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.closeSessions()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return nil, false
	}
	return body, true
}

func (a *API) handleMCP(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	resp := a.backend.HandleMessage(c.Request.Context(), body)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleSSE(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	sess := &session{
		id:     uuid.NewString(),
		events: make(chan []byte, sessionBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	a.mu.Lock()
	a.sessions[sess.id] = sess
	a.mu.Unlock()
	a.logger.Info().Str("session_id", sess.id).Msg("sse session opened")

	defer func() {
		a.mu.Lock()
		delete(a.sessions, sess.id)
		a.mu.Unlock()
		cancel()
		a.logger.Info().Str("session_id", sess.id).Msg("sse session closed")
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("endpoint", "/messages?sessionId="+sess.id)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg := <-sess.events:
			c.SSEvent("message", string(msg))
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

func (a *API) handleMessages(c *gin.Context) {
	id := c.Query("sessionId")
	a.mu.RLock()
	sess, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or closed"})
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}

	c.Status(http.StatusAccepted)
	go a.deliver(sess, body)
}

// deliver handles one message for sess and queues the response on its stream.
// Work stops when the stream closes.
func (a *API) deliver(sess *session, body []byte) {
	resp := a.backend.HandleMessage(sess.ctx, body)
	if resp == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error().Err(err).Str("session_id", sess.id).Msg("failed to encode response")
		return
	}
	select {
	case sess.events <- data:
	case <-sess.ctx.Done():
		a.logger.Warn().Str("session_id", sess.id).Msg("response dropped, stream closed")
	}
}

func (a *API) closeSessions() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.sessions {
		s.cancel()
	}
}

func (a *API) handleHealth(c *gin.Context) {
	health := a.backend.Health(c.Request.Context())
	code := http.StatusOK
	if health["status"] == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

func (a *API) handleMap(c *gin.Context) {
	id := c.Param("id")
	sess, ok, err := a.backend.Map(id)
	switch {
	case err != nil:
		a.logger.Error().Err(err).Str("map_id", id).Msg("map session unreadable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": "map not found: " + id})
	default:
		c.JSON(http.StatusOK, sess)
	}
}
