package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docproc/internal/bootstrap"
	"docproc/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, dependencyChecks(app))
	router.GET("/healthz", healthHandler.Check)

	registerAPI(router.Group("/api/v1"),
		handler.NewDocumentHandler(app.Documents),
		handler.NewProcessingHandler(app.Processing),
		handler.NewSearchHandler(app.Search),
	)
	return router
}

func registerAPI(v1 *gin.RouterGroup, documents *handler.DocumentHandler, processing *handler.ProcessingHandler, search *handler.SearchHandler) {
	docGroup := v1.Group("/documents")
	docGroup.POST("/upload", documents.Upload)
	docGroup.POST("", documents.Create)
	docGroup.GET("", documents.List)
	docGroup.GET("/:id", documents.Get)
	docGroup.PATCH("/:id", documents.Update)
	docGroup.DELETE("/:id", documents.Delete)
	docGroup.POST("/:id/reprocess", documents.Reprocess)

	v1.POST("/processing/sync/:id", processing.Sync)
	v1.POST("/search", search.Search)
}

func dependencyChecks(app *bootstrap.App) map[string]handler.DependencyCheck {
	return map[string]handler.DependencyCheck{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}
}
