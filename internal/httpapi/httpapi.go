// Package httpapi serves the browser surface: the portfolio document, its
// live update stream, terminal sessions over JSON and websocket, and the
// contact relay.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"termfolio/internal/contact"
	"termfolio/internal/logging"
	"termfolio/internal/portfolio"
	"termfolio/internal/router"
	"termfolio/internal/shell"
)

const (
	maxExecBodyBytes    = 8 * 1024
	maxContactBodyBytes = 16 * 1024
	streamBuffer        = 8
)

// Options wires the API to the rest of the process. Shells builds the
// per-visitor terminals; Registry holds the live ones.
type Options struct {
	Loader         *portfolio.Loader
	Shells         shell.Factory
	Registry       *shell.Registry
	Contact        *contact.Relay
	ContactLimiter *router.Limiter
	// SessionLimiter throttles session creation, command execution and
	// websocket frames per client IP.
	SessionLimiter *router.Limiter
}

type API struct {
	loader         *portfolio.Loader
	shells         shell.Factory
	registry       *shell.Registry
	contact        *contact.Relay
	contactLimiter *router.Limiter
	sessionLimiter *router.Limiter
	upgrader       websocket.Upgrader
	logger         *log.Logger
}

// New builds the gin engine.
func New(opts Options) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	api := &API{
		loader:         opts.Loader,
		shells:         opts.Shells,
		registry:       opts.Registry,
		contact:        opts.Contact,
		contactLimiter: opts.ContactLimiter,
		sessionLimiter: opts.SessionLimiter,
		// The browser front end may be served from another origin.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logging.For("http"),
	}
	if api.loader == nil {
		api.loader = portfolio.NewLoader(nil, "")
	}
	if api.registry == nil {
		api.registry = shell.NewRegistry(0, 0)
	}
	if api.contact == nil {
		api.contact = contact.NewRelay(nil)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), api.requestLogger())
	r.NoRoute(func(c *gin.Context) {
		writeErr(c, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
	})
	r.NoMethod(func(c *gin.Context) {
		writeErr(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes := r.Group("/api")
	{
		routes.GET("/portfolio", api.getPortfolio)
		routes.GET("/portfolio/stream", api.streamPortfolio)

		sessions := routes.Group("/sessions")
		{
			sessions.POST("", api.throttle("open_session"), api.openSession)
			sessions.DELETE("/:id", api.closeSession)
			sessions.POST("/:id/exec", api.throttle("exec"), api.execLine)
			sessions.GET("/:id/complete", api.complete)
			sessions.GET("/:id/history", api.history)
			sessions.POST("/:id/cancel", api.cancelLogin)
		}

		routes.Any("/contact", api.relayContact)
	}

	r.GET("/ws/sessions/:id", api.throttle("socket"), api.sessionSocket)

	return r
}

// requestLogger logs one line per request in the gateway's event vocabulary.
func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		kv := []any{
			"event", "http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
			"remote", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			a.logger.Error("http request", append(kv, "err", c.Errors.String())...)
			return
		}
		a.logger.Info("http request", kv...)
	}
}

// throttle answers 429 once the client IP has spent its session budget.
func (a *API) throttle(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.allowSession(c.ClientIP()) {
			logRejection(c, operation, "rate_limited", "")
			writeErr(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		c.Next()
	}
}

func (a *API) allowSession(ip string) bool {
	return a.sessionLimiter == nil || a.sessionLimiter.Allow(ip, time.Now())
}

func (a *API) getPortfolio(c *gin.Context) {
	doc, source := a.loader.Current(c.Request.Context())
	c.Header("X-Portfolio-Source", string(source))
	c.JSON(http.StatusOK, doc)
}

type snapshotPayload struct {
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	Document  portfolio.Document `json:"document"`
}

// streamPortfolio sends a ready event once subscribed, then one portfolio
// event per stored write.
func (a *API) streamPortfolio(c *gin.Context) {
	store := a.loader.Store()
	if store == nil {
		logRejection(c, "portfolio_stream", "no_store", "")
		writeErr(c, http.StatusServiceUnavailable, "STREAM_UNAVAILABLE", "portfolio streaming is not available")
		return
	}

	updates := make(chan portfolio.Snapshot, streamBuffer)
	unsubscribe, err := store.Subscribe(a.loader.Key(), updates)
	if err != nil {
		logRejection(c, "portfolio_stream", "subscribe_failed", err.Error())
		writeErr(c, http.StatusInternalServerError, "STREAM_UNAVAILABLE", "failed to subscribe")
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("ready", gin.H{"key": a.loader.Key()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap := <-updates:
			c.SSEvent("portfolio", snapshotPayload{Version: snap.Version, UpdatedAt: snap.UpdatedAt, Document: snap.Doc})
			return true
		}
	})
}

func logRejection(c *gin.Context, operation, reason, details string) {
	logging.For("http").Warn("request rejected",
		"event", "http_request_rejected",
		"operation", operation,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"reason", reason,
		"details", details,
		"remote", c.ClientIP(),
	)
}

// decodeJSONBody reads exactly one JSON object with no unknown fields,
// writing the error response itself when it fails.
func decodeJSONBody(c *gin.Context, maxBytes int64, target any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(target); err != nil {
		var syntaxErr *json.SyntaxError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			writeErr(c, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		case errors.As(err, &maxBytesErr):
			writeErr(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds max size")
		case strings.Contains(err.Error(), "unknown field"):
			writeErr(c, http.StatusBadRequest, "BAD_JSON", "request contains unknown fields")
		default:
			writeErr(c, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeErr(c, http.StatusBadRequest, "BAD_JSON", "request body must contain exactly one JSON object")
		if err == nil {
			err = errors.New("trailing JSON value")
		}
		return err
	}
	return nil
}

func writeErr(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message, "status": strconv.Itoa(status)})
}
