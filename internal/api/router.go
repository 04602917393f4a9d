package api

import (
	"net/http"

	"mfgcore/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services - сервисы ядра, которые обслуживает HTTP API
type Services struct {
	Requirements *services.RequirementService
	FEFO         *services.FEFOService
	Staging      *services.StagingService
	Batches      *services.BatchService
	Recall       *services.RecallService
	Lots         *services.LotService
}

// RouterOptions - настройки маршрутизатора
type RouterOptions struct {
	JWTSecret         string
	ExpiryWarningDays int
	Feed              *ProductionFeed // nil - без WebSocket ленты
}

// NewRouter собирает gin движок со всеми маршрутами /api/v1
func NewRouter(svc Services, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(Recovery())

	// Health check до CORS и логирования
	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "mfgcore",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(RequestLogger())
	r.Use(CORS())

	apiGroup := r.Group("/api/v1")
	apiGroup.Use(ManufacturerIdentity(opts.JWTSecret))

	production := NewProductionController(svc.Requirements, svc.FEFO, svc.Staging, svc.Batches)
	apiGroup.GET("/recipes/:id/requirements", production.GetRequirements)

	stagingGroup := apiGroup.Group("/staging")
	{
		stagingGroup.POST("/sessions", production.NewSession)
		stagingGroup.GET("/:token", production.ListStaging)
		stagingGroup.DELETE("/:token", production.DiscardStaging)
		stagingGroup.POST("/:token/fefo", production.SelectFEFO)
		stagingGroup.POST("/:token/items", production.AddStaging)
		stagingGroup.PUT("/:token/items/:id", production.UpdateStaging)
		stagingGroup.DELETE("/:token/items/:id", production.RemoveStaging)
	}

	batchGroup := apiGroup.Group("/batches")
	{
		batchGroup.POST("", production.CommitBatch)
		batchGroup.POST("/legacy", production.CommitLegacyBatch)
		batchGroup.GET("", production.ListBatches)
		batchGroup.GET("/:id", production.GetBatch)
	}

	reportGroup := apiGroup.Group("/reports")
	{
		reportGroup.GET("/inventory", production.GetInventoryReport)
		reportGroup.GET("/low-stock", production.GetLowStockReport)
	}

	recall := NewRecallController(svc.Recall)
	apiGroup.GET("/recall", recall.TraceRecall)
	apiGroup.GET("/recall/export", recall.ExportRecall)

	lots := NewLotController(svc.Lots, opts.ExpiryWarningDays)
	lotGroup := apiGroup.Group("/lots")
	{
		lotGroup.POST("", lots.ReceiveLot)
		lotGroup.POST("/import", lots.ImportLots)
		lotGroup.GET("", lots.ListLots)
		lotGroup.GET("/expiring", lots.GetExpiringLots)
	}
	apiGroup.GET("/ingredients/:id/materials", lots.GetMaterials)

	if opts.Feed != nil {
		apiGroup.GET("/production/ws", opts.Feed.ServeWS)
	}

	return r
}
