// Package httpapi exposes one viewer's session over HTTP: the feed, unread
// counts, mark-seen, cancel and a websocket relay of change events.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/guest-services/internal/badge"
	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
)

// Session is the part of a viewer session the API serves.
type Session interface {
	Viewer() model.Viewer
	GetFeed(ctx context.Context) (feed.Feed, error)
	Refresh(ctx context.Context) (feed.Feed, error)
	GetUnreadCounts(ctx context.Context) (badge.Counts, error)
	MarkSectionSeen(section string) error
	MarkAllSeen(ctx context.Context) error
	Cancel(ctx context.Context, typ model.ItemType, id string) (model.NotificationItem, error)
	Badge(n int) string
}

// Server is the HTTP server of one session.
type Server struct {
	router  *gin.Engine
	session Session
	logger  logging.Logger
	ws      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithWebsocket mounts h at /ws for clients that want change events pushed.
func WithWebsocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

// NewServer builds the router for sess.
func NewServer(sess Session, opts ...Option) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		session: sess,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	router.Use(s.requestLogger())
	s.setupRoutes()

	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/feed", s.handleFeed())
		api.GET("/unread", s.handleUnread())
		api.POST("/seen", s.handleMarkAllSeen())
		api.POST("/sections/:section/seen", s.handleMarkSectionSeen())
		api.POST("/items/:type/:id/cancel", s.handleCancel())
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "viewer": s.session.Viewer().ID()})
	})

	if s.ws != nil {
		s.router.GET("/ws", gin.WrapH(s.ws))
	}
}

// requestLogger logs one line per request at debug level and failures at warn.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", args...)
			return
		}
		s.logger.Debug("request", args...)
	}
}

type feedResponse struct {
	Items      []model.NotificationItem `json:"items"`
	Failures   map[string]string        `json:"failures,omitempty"`
	FetchedAt  time.Time                `json:"fetched_at"`
	Generation uint64                   `json:"generation"`
}

func toFeedResponse(f feed.Feed) feedResponse {
	resp := feedResponse{
		Items:      f.Items,
		FetchedAt:  f.FetchedAt,
		Generation: f.Generation,
	}
	if resp.Items == nil {
		resp.Items = []model.NotificationItem{}
	}
	if len(f.Failures) > 0 {
		resp.Failures = make(map[string]string, len(f.Failures))
		for typ, err := range f.Failures {
			resp.Failures[string(typ)] = err.Error()
		}
	}
	return resp
}

// handleFeed returns the merged feed. ?refresh=true bypasses the cache.
func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		get := s.session.GetFeed
		if c.Query("refresh") == "true" {
			get = s.session.Refresh
		}

		f, err := get(c.Request.Context())
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "loading feed", err)
			return
		}
		c.JSON(http.StatusOK, toFeedResponse(f))
	}
}

type unreadResponse struct {
	Sections map[string]int    `json:"sections"`
	Total    int               `json:"total"`
	Badges   map[string]string `json:"badges"`
	Badge    string            `json:"badge"`
}

func (s *Server) handleUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := s.session.GetUnreadCounts(c.Request.Context())
		if err != nil {
			s.fail(c, http.StatusInternalServerError, "computing unread counts", err)
			return
		}

		resp := unreadResponse{
			Sections: counts.Sections,
			Total:    counts.Total,
			Badges:   make(map[string]string, len(counts.Sections)),
			Badge:    s.session.Badge(counts.Total),
		}
		for section, n := range counts.Sections {
			resp.Badges[section] = s.session.Badge(n)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleMarkSectionSeen() gin.HandlerFunc {
	return func(c *gin.Context) {
		section := c.Param("section")
		if err := s.session.MarkSectionSeen(section); err != nil {
			s.fail(c, http.StatusInternalServerError, "marking section seen", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleMarkAllSeen() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.session.MarkAllSeen(c.Request.Context()); err != nil {
			s.fail(c, http.StatusInternalServerError, "marking all seen", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type cancelResponse struct {
	Item    model.NotificationItem `json:"item"`
	Outcome string                 `json:"outcome"`
	Reason  string                 `json:"reason,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// handleCancel cancels one item. Rejections map to 409 and backend failures
// to 502; the body always carries the item as the caller should now show it.
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		typ := model.ItemType(c.Param("type"))
		it, err := s.session.Cancel(c.Request.Context(), typ, c.Param("id"))
		if err == nil {
			c.JSON(http.StatusOK, cancelResponse{Item: it, Outcome: "cancelled"})
			return
		}

		ce, ok := source.AsCancelError(err)
		if !ok {
			s.fail(c, http.StatusInternalServerError, "cancelling item", err)
			return
		}

		status := http.StatusBadGateway
		if ce.Kind == source.CancelRejected {
			status = http.StatusConflict
		}
		c.JSON(status, cancelResponse{
			Item:    it,
			Outcome: string(ce.Kind),
			Reason:  ce.Reason,
			Error:   err.Error(),
		})
	}
}

func (s *Server) fail(c *gin.Context, status int, what string, err error) {
	s.logger.Error(what, "err", err)
	c.JSON(status, gin.H{"error": what + ": " + err.Error()})
}
