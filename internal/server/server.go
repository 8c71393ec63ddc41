// Package server exposes the crowd time series and its statistics over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iori73/crowd-data-dashboard-v2/internal/analytics"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
	"github.com/iori73/crowd-data-dashboard-v2/internal/queue"
	"github.com/iori73/crowd-data-dashboard-v2/internal/storage"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 50
)

// RunLister returns recent batch runs, newest first
type RunLister interface {
	Recent(ctx context.Context, n int) ([]queue.BatchEvent, error)
}

// Server serves the dashboard API
type Server struct {
	loader *analytics.Loader
	runs   RunLister
	logger *logging.Logger
	now    func() time.Time
}

// New creates a server. runs may be nil when Redis is not configured.
func New(loader *analytics.Loader, runs RunLister, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger("API")
	}
	return &Server{loader: loader, runs: runs, logger: logger, now: time.Now}
}

// Handler builds the gin engine with all routes
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes(r)
	return r
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", s.healthHandler)

	api := r.Group("/api")
	api.GET("/records", s.recordsHandler)
	api.GET("/stats/weekly", s.weeklyHandler)
	api.GET("/stats/overall", s.overallHandler)
	api.GET("/stats/hourly", s.hourlyHandler)
	api.GET("/insights", s.insightsHandler)
	api.POST("/cache/refresh", s.refreshHandler)
	api.GET("/runs", s.runsHandler)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// filteredRows loads the CSV and applies the period query. It writes the
// error response itself and returns false on failure.
func (s *Server) filteredRows(c *gin.Context) ([]storage.CrowdRow, analytics.Filter, bool) {
	filter, err := analytics.ParseFilter(c.Query("period"), c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, analytics.Filter{}, false
	}

	rows, err := s.loader.Load(false)
	if err != nil {
		s.logger.Error("Failed to load data", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data unavailable"})
		return nil, analytics.Filter{}, false
	}

	return analytics.FilterRows(rows, filter, s.now()), filter, true
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "csv": s.loader.Path()})
}

func (s *Server) recordsHandler(c *gin.Context) {
	rows, filter, ok := s.filteredRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": filter.Period, "count": len(rows), "records": rows})
}

func (s *Server) weeklyHandler(c *gin.Context) {
	rows, _, ok := s.filteredRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.Weekly(rows))
}

func (s *Server) overallHandler(c *gin.Context) {
	rows, _, ok := s.filteredRows(c)
	if !ok {
		return
	}
	// null when the period holds no records
	c.JSON(http.StatusOK, analytics.Overall(rows))
}

func (s *Server) hourlyHandler(c *gin.Context) {
	rows, _, ok := s.filteredRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"hours": analytics.HourlyTrends(rows)})
}

func (s *Server) insightsHandler(c *gin.Context) {
	rows, _, ok := s.filteredRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.Insights(rows))
}

func (s *Server) refreshHandler(c *gin.Context) {
	s.loader.Clear()
	rows, err := s.loader.Load(true)
	if err != nil {
		s.logger.Error("Failed to reload data", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": len(rows), "loadedAt": s.now().Format(time.RFC3339)})
}

func (s *Server) runsHandler(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history requires REDIS_URL"})
		return
	}

	limit := defaultRunsLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
