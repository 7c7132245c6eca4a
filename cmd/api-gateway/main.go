package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/presence-api/api/swagger"
	"github.com/noah-isme/presence-api/internal/handler"
	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/repository"
	"github.com/noah-isme/presence-api/internal/service"
	"github.com/noah-isme/presence-api/pkg/cache"
	"github.com/noah-isme/presence-api/pkg/config"
	"github.com/noah-isme/presence-api/pkg/database"
	"github.com/noah-isme/presence-api/pkg/jobs"
	"github.com/noah-isme/presence-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/presence-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/presence-api/pkg/middleware/requestid"
	"github.com/noah-isme/presence-api/pkg/storage"
)

// @title Presence API
// @version 0.1.0
// @description Continuous location verification for class attendance
// @BasePath /api/v1
// @schemes http

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	logRepo := repository.NewLocationLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Geofence.ResolutionCacheTTL, logr, redisClient != nil)

	lifecycleSvc := service.NewSessionLifecycleService(sessionRepo, attendanceRepo, metrics, cfg.Sessions.AutoEndAfter, logr)
	geofenceSvc := service.NewGeofenceService(sessionRepo, cacheSvc, cfg.Geofence.ResolutionCacheTTL, logr)
	heartbeatSvc := service.NewHeartbeatService(
		attendanceRepo, logRepo, geofenceSvc, lifecycleSvc, metrics,
		cfg.Geofence.AccuracySkipMeters, cfg.Geofence.ViolationWindow, cfg.Geofence.ViolationThreshold,
		validate, logr,
	)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:         cfg.JWT.Secret,
		CheckInCodeTTL: cfg.JWT.CheckInCodeTTL,
		Issuer:         "presence-api",
	}, logr)
	attendanceSvc := service.NewAttendanceService(
		attendanceRepo, tokenSvc, geofenceSvc, lifecycleSvc,
		cfg.Sessions.LateAfter, validate, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		localStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter := service.NewExportService(attendanceRepo, lifecycleSvc, localStore, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil, nil)
		reportSvc = service.NewReportService(cacheSvc, nil, exporter, lifecycleSvc, logr, service.ReportServiceConfig{
			ResultTTL: cfg.Reports.SignedURLTTL,
		})
		reportQueue = jobs.NewQueue("attendance-reports", reportSvc.ProcessJob, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(reportQueue)
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		reportSvc.StartCleanup(ctx, time.Hour)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	heartbeatHandler := handler.NewHeartbeatHandler(heartbeatSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	sessionHandler := handler.NewSessionHandler(lifecycleSvc, geofenceSvc, tokenSvc)

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/snapshot", metricsHandler.Snapshot)

	authed := api.Group("")
	authed.Use(middleware.JWT(tokenSvc))

	students := authed.Group("")
	students.Use(middleware.RBAC(models.RoleStudent))
	students.POST("/attendance/check-in", attendanceHandler.CheckIn)
	students.POST("/attendance/heartbeat", heartbeatHandler.Process)
	students.POST("/attendance/:id/check-out", attendanceHandler.CheckOut)

	authed.GET("/sessions/:id/status", sessionHandler.Status)

	staff := authed.Group("")
	staff.Use(middleware.RBAC(models.RoleProfessor, models.RoleAdmin))
	staff.POST("/sessions/:id/end", sessionHandler.End)
	staff.POST("/sessions/:id/check-in-code", sessionHandler.CheckInCode)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		staff.POST("/sessions/:id/report", reportHandler.Create)
		staff.GET("/reports/:id", reportHandler.Status)
		api.GET("/export/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}
}
