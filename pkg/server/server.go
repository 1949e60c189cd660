// Package server exposes the compositor over HTTP: template listing,
// one-shot renders, uploads, banner records and a live editor session over
// a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/cache"
	"github.com/mrt-jh/smart-image-editor/pkg/catalog"
	"github.com/mrt-jh/smart-image-editor/pkg/compose"
	"github.com/mrt-jh/smart-image-editor/pkg/records"
	"github.com/mrt-jh/smart-image-editor/pkg/storage"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// Defaults for Options fields left zero.
const (
	defaultPreviewMaxWidth  = 600
	defaultPreviewMaxHeight = 400
	defaultThumbnailWidth   = 320
)

// Options wires a Server to its collaborators. Catalog, Pool, Loader and
// Storage are required; Records and Frames may be nil, which disables the
// records routes and render caching.
type Options struct {
	Catalog *catalog.Catalog
	Pool    *compose.Pool
	Loader  *asset.Loader
	Fonts   *text.FontBook
	Storage *storage.Store
	Records *records.Store
	Frames  *cache.Store
	Logger  *slog.Logger

	AllowedOrigins   []string
	JPEGQuality      int
	PreviewMaxWidth  float64
	PreviewMaxHeight float64
	ThumbnailWidth   int
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	log    *slog.Logger
	engine *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = compose.DefaultJPEGQuality
	}
	if opts.PreviewMaxWidth <= 0 || opts.PreviewMaxHeight <= 0 {
		opts.PreviewMaxWidth, opts.PreviewMaxHeight = defaultPreviewMaxWidth, defaultPreviewMaxHeight
	}
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = defaultThumbnailWidth
	}
	s := &Server{opts: opts, log: opts.Logger}
	s.engine = s.routes()
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Type", "X-Cache", "X-Render-Generation"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.handleHealth)
	r.Static(storage.MediaPrefix, s.opts.Storage.Dir())

	api := r.Group("/api")
	api.GET("/templates", s.handleTemplates)
	api.GET("/templates/:key", s.handleTemplate)
	api.POST("/render", s.handleRender)
	api.POST("/uploads/:kind", s.handleUpload)
	api.DELETE("/uploads/:bucket/:name", s.handleDeleteUpload)
	api.GET("/editor", s.handleEditor)

	if s.opts.Records != nil {
		api.GET("/teams", s.handleListTeams)
		api.POST("/teams", s.handleCreateTeam)
		api.DELETE("/teams/:id", s.handleDeleteTeam)
		api.GET("/teams/:id/projects", s.handleListProjects)

		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects/:id", s.handleGetProject)
		api.DELETE("/projects/:id", s.handleDeleteProject)

		api.GET("/banners", s.handleListBanners)
		api.POST("/banners", s.handleCreateBanner)
		api.GET("/banners/:id", s.handleGetBanner)
		api.PUT("/banners/:id", s.handleUpdateBanner)
		api.PATCH("/banners/:id/status", s.handleUpdateStatus)
		api.DELETE("/banners/:id", s.handleDeleteBanner)
		api.POST("/banners/:id/publish", s.handlePublish)

		api.GET("/banners/:id/history", s.handleListHistory)
		api.POST("/banners/:id/history", s.handleCreateHistory)
		api.GET("/banners/:id/comments", s.handleListComments)
		api.POST("/banners/:id/comments", s.handleCreateComment)
		api.DELETE("/comments/:id", s.handleDeleteComment)
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("server: shutting down")
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.opts.Records != nil {
		body["database"] = s.opts.Records.Backend()
	}
	if s.opts.Frames != nil {
		body["cache"] = s.opts.Frames.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// requestLogger logs one line per request at Debug, or Warn for server
// errors.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *storage.ValidationError
	switch {
	case errors.As(err, &verr) && errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrInvalid), errors.Is(err, catalog.ErrUnknownTemplate),
		errors.Is(err, storage.ErrInvalidObject), errors.Is(err, errBadForm):
		return http.StatusBadRequest
	case errors.Is(err, compose.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body. Validation errors carry their
// human-readable message.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	var verr *storage.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Message
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
