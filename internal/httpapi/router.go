package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"levi/internal/logger"
)

// NewRouter registers every route on a new engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/upload", h.Upload)
	r.GET("/search", h.Search)

	sessions := r.Group("/sessions/:id")
	{
		sessions.GET("/verifier", h.Verifier)
		sessions.GET("/briefings", h.Briefings)
		sessions.POST("/reset", h.Reset)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/reindex", h.Reindex)
	}
	return r
}

// RequestLogger logs one structured line per request through the
// application logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		l := logger.With(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
		switch {
		case status >= 500:
			l.Error("request failed")
		case status >= 400:
			l.Warn("request rejected")
		default:
			l.Info("request")
		}
	}
}
