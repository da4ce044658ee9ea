package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth      *handler.AuthHandler
	teachers  *handler.TeacherHandler
	subjects  *handler.SubjectHandler
	timetable *handler.TimetableHandler
	exports   *handler.ExportHandler
	metrics   *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth middleware.TokenValidator, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	authGroup := api.Group("/auth")
	authGroup.POST("/login", h.auth.Login)
	authGroup.POST("/refresh", h.auth.Refresh)
	authGroup.POST("/logout", middleware.JWT(auth), h.auth.Logout)

	if h.exports != nil {
		// The signed token authorises the download on its own.
		api.GET("/exports/download/:token", h.exports.Download)
	}

	secured := api.Group("", middleware.JWT(auth))
	editors := middleware.RequireRoles(models.RoleAdmin)

	teachers := secured.Group("/teachers")
	teachers.GET("", h.teachers.List)
	teachers.GET("/:id", h.teachers.Get)
	teachers.POST("", editors, h.teachers.Create)
	teachers.PUT("/:id", editors, h.teachers.Update)
	teachers.DELETE("/:id", editors, h.teachers.Delete)

	subjects := secured.Group("/subjects")
	subjects.GET("", h.subjects.List)
	subjects.GET("/:id", h.subjects.Get)
	subjects.POST("", editors, h.subjects.Create)
	subjects.PUT("/:id", editors, h.subjects.Update)
	subjects.DELETE("/:id", editors, h.subjects.Delete)

	tt := secured.Group("/timetable")
	tt.GET("", h.timetable.Get)
	tt.GET("/grid", h.timetable.Grid)
	tt.GET("/conflicts", h.timetable.Conflicts)
	tt.POST("/conflicts/check", h.timetable.Check)
	tt.GET("/export", h.timetable.Export)
	tt.POST("/generate", editors, h.timetable.Generate)
	tt.POST("/entries", editors, h.timetable.AddEntry)
	tt.DELETE("/entries/:id", editors, h.timetable.RemoveEntry)

	if h.exports != nil {
		secured.POST("/exports", h.exports.Create)
		secured.GET("/exports/:id", h.exports.Get)
	}

	secured.GET("/metrics/summary", editors, h.metrics.Summary)

	return r
}
