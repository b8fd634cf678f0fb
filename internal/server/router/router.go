package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/foodcost/internal/metrics"
	"github.com/mamadbah2/foodcost/internal/server/handlers"
)

// Options carries the optional router collaborators.
type Options struct {
	// Metrics records request latency when set.
	Metrics *metrics.Metrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.WorksheetHandler, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/restaurants", handler.ListRestaurants)
		api.POST("/restaurants", handler.CreateRestaurant)
		api.PATCH("/restaurants/:rid", handler.RenameRestaurant)
		api.DELETE("/restaurants/:rid", handler.ArchiveRestaurant)
		api.GET("/restaurants/:rid/days", handler.ListRecentDays)

		day := api.Group("/restaurants/:rid/days/:date")
		day.GET("", handler.GetDay)
		day.GET("/stream", handler.StreamDay)
		day.PUT("/settings", handler.UpdateSettings)
		day.POST("/items", handler.UpsertItem)
		day.DELETE("/items", handler.ClearDay)
		day.DELETE("/items/:id", handler.DeleteItem)
		day.POST("/import", handler.Import)
		day.GET("/export", handler.Export)
		day.POST("/recompute", handler.Recompute)

		api.GET("/reports/daily", handler.DailyReport)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
