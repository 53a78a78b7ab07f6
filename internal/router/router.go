package router

import (
	"net/http"
	"time"

	"github.com/zhy0504/star-savings/internal/config"
	"github.com/zhy0504/star-savings/internal/handler"
	"github.com/zhy0504/star-savings/internal/middleware"
	"github.com/zhy0504/star-savings/internal/star"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter configures Gin engine and API routes.
func SetupRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 上传的头像和奖励图片直接静态托管
	r.Static("/uploads", cfg.Upload.Dir)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "Star Savings API",
		})
	})

	ledger := star.NewLedger(db)
	engine := star.NewEngine(db)

	// ====== API ======
	api := r.Group("/api")
	api.Use(middleware.AuditMiddleware(db))

	childHandler := handler.NewChildHandler(db, ledger, cfg.Upload.Dir, cfg.Upload.MaxSizeMB)
	api.GET("/children", childHandler.List)
	api.POST("/children", childHandler.Create)
	api.GET("/children/:id", childHandler.Get)
	api.PUT("/children/:id", childHandler.Update)
	api.DELETE("/children/:id", childHandler.Delete)

	starHandler := handler.NewStarHandler(db, ledger)
	api.GET("/stars/recent", starHandler.Recent)
	api.GET("/children/:id/stars", starHandler.History)
	api.POST("/children/:id/stars/add", starHandler.Add)
	api.POST("/children/:id/stars/subtract", starHandler.Subtract)

	rewardHandler := handler.NewRewardHandler(db, engine, cfg.Upload.Dir, cfg.Upload.MaxSizeMB)
	api.GET("/rewards", rewardHandler.List)
	api.POST("/rewards", rewardHandler.Create)
	api.PUT("/rewards/:id", rewardHandler.Update)
	api.DELETE("/rewards/:id", rewardHandler.Delete)
	api.POST("/rewards/:id/redeem", rewardHandler.Redeem)
	api.GET("/rewards/:id/default-deductions", rewardHandler.DefaultDeductions)

	settingHandler := handler.NewSettingHandler(db)
	api.GET("/settings", settingHandler.List)
	api.GET("/settings/:key", settingHandler.Get)
	api.PUT("/settings/:key", settingHandler.Update)

	logHandler := handler.NewLogHandler(db)
	api.GET("/logs", logHandler.List)

	exportHandler := handler.NewExportHandler(db)
	api.GET("/export/records.csv", exportHandler.ExportCSV)
	api.GET("/export/records.xlsx", exportHandler.ExportXLSX)

	return r
}
