package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"udf_backend_project/config"
	"udf_backend_project/controllers"
	"udf_backend_project/metrics"
	"udf_backend_project/middleware"
	"udf_backend_project/web"
)

// Dependencies are the handlers and collaborators the router is built from.
type Dependencies struct {
	UDF         *controllers.UDFController
	Health      *controllers.HealthController
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter // nil disables limiting
	Static      config.StaticConfig
	Log         *zap.Logger
}

// NewRouter creates the gin engine with middleware and every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(deps.Log))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes sets up all routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Probes and metrics are never rate limited
	router.GET("/healthz", deps.Health.Healthz)
	router.GET("/readyz", deps.Health.Readyz)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// UDF datafeed
	udf := router.Group("/udf")
	if deps.RateLimiter != nil {
		udf.Use(middleware.RateLimit(deps.RateLimiter))
	}
	{
		udf.GET("/config", deps.UDF.GetConfig)
		udf.GET("/time", deps.UDF.GetTime)
		udf.GET("/search", deps.UDF.Search)
		udf.GET("/symbols", deps.UDF.ResolveSymbol)
		udf.GET("/history", deps.UDF.GetHistory)
		udf.GET("/symbols_list", deps.UDF.GetSymbolsList)
	}

	// Charting library bundle and datafeed adapter
	router.Static("/charting_library", filepath.Join(deps.Static.Dir, "charting_library"))
	router.Static("/datafeeds", filepath.Join(deps.Static.Dir, "datafeeds"))

	// Test page: static/index.html when present, else the built-in one
	router.GET("/", func(c *gin.Context) {
		page := filepath.Join(deps.Static.Dir, "index.html")
		if _, err := os.Stat(page); err == nil {
			c.File(page)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
	})
}
