package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/uniops/clearance-api/internal/handler"
	"github.com/uniops/clearance-api/internal/middleware"
	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/internal/service"
	"github.com/uniops/clearance-api/pkg/config"
	"github.com/uniops/clearance-api/pkg/logger"
	"github.com/uniops/clearance-api/pkg/middleware/cors"
	"github.com/uniops/clearance-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler wired into the router.
type Handlers struct {
	Auth          *handler.AuthHandler
	Clearance     *handler.ClearanceHandler
	Departments   *handler.DepartmentHandler
	FinalApproval *handler.FinalApprovalHandler
	Certificates  *handler.CertificateHandler
}

// Dependencies carries the cross-cutting collaborators the router needs.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    *service.AuthService
	Metrics *service.MetricsService
	Health  gin.HandlerFunc
	Ready   gin.HandlerFunc
}

// New assembles the gin engine with middleware, route groups, and the
// role-based guards for each surface.
func New(deps Dependencies, handlers Handlers) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestid.Middleware())
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(cors.New(deps.Config.CORS.AllowedOrigins))
	if deps.Metrics != nil {
		engine.Use(middleware.Metrics(deps.Metrics))
	}

	if deps.Health != nil {
		engine.GET("/health", deps.Health)
	}
	if deps.Ready != nil {
		engine.GET("/ready", deps.Ready)
	}
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := engine.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/refresh", handlers.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(deps.Auth), handlers.Auth.Logout)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	clearance := authed.Group("/clearance")
	{
		clearance.POST("", middleware.RequireRoles(models.RoleStudent), handlers.Clearance.Submit)
		clearance.GET("", handlers.Clearance.List)
		clearance.GET("/:id", handlers.Clearance.Get)
		clearance.GET("/:id/status", handlers.Clearance.Status)
		clearance.POST("/:id/resubmit", middleware.RequireRoles(models.RoleStudent), handlers.Clearance.Resubmit)
		clearance.POST("/:id/resubmit/:department", middleware.RequireRoles(models.RoleStudent), handlers.Clearance.ResubmitTrack)
		clearance.POST("/:id/final-approval",
			middleware.RequireRoles(models.RoleHOD, models.RoleAdmin), handlers.FinalApproval.Approve)
	}

	departments := authed.Group("/departments")
	departments.Use(middleware.RequireRoles(models.RoleDepartmentStaff, models.RoleHOD, models.RoleAdmin))
	{
		departments.GET("/:department/queue", handlers.Departments.Queue)
	}

	records := authed.Group("/records")
	records.Use(middleware.RequireRoles(models.RoleDepartmentStaff, models.RoleHOD, models.RoleAdmin))
	{
		records.POST("/:id/decision", handlers.Departments.Decide)
	}

	certificates := api.Group("/certificates")
	{
		certificates.GET("/:id/verify", handlers.Certificates.Verify)
		certificates.GET("/:id/pdf", middleware.JWT(deps.Auth), handlers.Certificates.Download)
	}

	return engine
}
