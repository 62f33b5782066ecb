package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/uniops/clearance-api/api/swagger"
	"github.com/uniops/clearance-api/internal/handler"
	"github.com/uniops/clearance-api/internal/repository"
	"github.com/uniops/clearance-api/internal/router"
	"github.com/uniops/clearance-api/internal/service"
	"github.com/uniops/clearance-api/pkg/cache"
	"github.com/uniops/clearance-api/pkg/config"
	"github.com/uniops/clearance-api/pkg/database"
	"github.com/uniops/clearance-api/pkg/export"
	"github.com/uniops/clearance-api/pkg/logger"
)

// @title Student Clearance API
// @version 1.0.0
// @description Multi-department student clearance workflow
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, status cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewClearanceRequestRepository(db)
	recordRepo := repository.NewDepartmentRecordRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	statusCache := service.NewCacheService(cacheRepo, cfg.Clearance, metrics, logr)

	notifications := service.NewNotificationService(cfg.Notifications, logr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifications.Start(ctx)
	defer notifications.Stop()

	authService := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	aggregation := service.NewAggregationService(requestRepo, notifications, statusCache, metrics, logr)
	submissions := service.NewSubmissionService(requestRepo, recordRepo, userRepo, userRepo,
		notifications, statusCache, metrics, validate, logr)
	departments := service.NewDepartmentService(recordRepo, requestRepo, aggregation, userRepo,
		statusCache, metrics, validate, logr)
	finalApproval := service.NewFinalApprovalService(requestRepo, certRepo, userRepo, notifications,
		statusCache, metrics, cfg.Clearance, logr)
	certificates := service.NewCertificateService(certRepo, requestRepo, export.NewCertificatePDFExporter(), logr)

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Clearance:     handler.NewClearanceHandler(submissions, departments),
		Departments:   handler.NewDepartmentHandler(departments),
		FinalApproval: handler.NewFinalApprovalHandler(finalApproval),
		Certificates:  handler.NewCertificateHandler(certificates),
	}

	engine := router.New(router.Dependencies{
		Config:  cfg,
		Logger:  logr,
		Auth:    authService,
		Metrics: metrics,
		Health: func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		},
		Ready: func(c *gin.Context) {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		},
	}, handlers)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logr.Info("server stopped")
}
