package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rateguard/internal/infra/config"
	"rateguard/internal/infra/obs"
)

type ProposalHTTP interface {
	Submit(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
	Execute(c *gin.Context)
	Impact(c *gin.Context)
	BulkApprove(c *gin.Context)
	BulkReject(c *gin.Context)
	Calendar(c *gin.Context)
}

type Handlers struct {
	Proposals ProposalHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", reviewerHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Proposals != nil {
		group := api.Group("/proposals")
		group.POST("", h.Proposals.Submit)
		group.GET("", h.Proposals.List)
		group.POST("/bulk-approve", h.Proposals.BulkApprove)
		group.POST("/bulk-reject", h.Proposals.BulkReject)
		group.GET("/:id", h.Proposals.Get)
		group.POST("/:id/approve", h.Proposals.Approve)
		group.POST("/:id/reject", h.Proposals.Reject)
		group.POST("/:id/execute", h.Proposals.Execute)
		group.GET("/:id/impact", h.Proposals.Impact)
		api.GET("/listings/:id/calendar", h.Proposals.Calendar)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
