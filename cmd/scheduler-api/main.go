package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/examdesk/exam-scheduler-api/api/swagger"
	"github.com/examdesk/exam-scheduler-api/internal/handler"
	"github.com/examdesk/exam-scheduler-api/internal/middleware"
	"github.com/examdesk/exam-scheduler-api/internal/repository"
	"github.com/examdesk/exam-scheduler-api/internal/service"
	"github.com/examdesk/exam-scheduler-api/pkg/cache"
	"github.com/examdesk/exam-scheduler-api/pkg/config"
	"github.com/examdesk/exam-scheduler-api/pkg/database"
	"github.com/examdesk/exam-scheduler-api/pkg/logger"
	corsmiddleware "github.com/examdesk/exam-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/examdesk/exam-scheduler-api/pkg/middleware/requestid"
)

// @title Exam Scheduler API
// @version 0.1.0
// @description Randomized search engine for university exam timetables
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()

	var history *repository.RunRepository
	if cfg.History.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		history = repository.NewRunRepository(db)
	}

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
	}

	scheduleSvc := service.NewScheduleService(historyOrNil(history), cacheSvc, metricsSvc, nil, logr, service.ScheduleServiceConfig{
		DefaultTries:   cfg.Scheduler.DefaultTries,
		MaxTries:       cfg.Scheduler.MaxTries,
		DefaultMinGap:  cfg.Scheduler.DefaultMinGap,
		Workers:        cfg.Scheduler.Workers,
		RunTTL:         cfg.Scheduler.RunTTL,
		RequestTimeout: cfg.Scheduler.RequestTimeout,
		QueueWorkers:   cfg.Scheduler.QueueWorkers,
		QueueSize:      cfg.Scheduler.QueueSize,
	})
	scheduleSvc.StartQueue(context.Background())
	defer scheduleSvc.StopQueue()

	authSvc := service.NewAuthService(nil, logr, service.AuthConfig{
		AdminEmail:   cfg.Auth.AdminEmail,
		PasswordHash: cfg.Auth.PasswordHash,
		TokenSecret:  cfg.JWT.Secret,
		TokenExpiry:  cfg.JWT.Expiration,
	})

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	sched := api.Group("/schedule")
	if cfg.Auth.Enabled {
		sched.Use(middleware.JWT(authSvc))
	}
	sched.POST("/run", scheduleHandler.Run)
	sched.POST("/runs", scheduleHandler.EnqueueRun)
	sched.GET("/runs", scheduleHandler.ListRuns)
	sched.GET("/runs/:id", scheduleHandler.GetRun)
	sched.DELETE("/runs/:id", scheduleHandler.DeleteRun)
	sched.GET("/runs/:id/export", scheduleHandler.ExportRun)
	sched.POST("/validate", scheduleHandler.Validate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// historyOrNil keeps a typed nil *RunRepository from masquerading as a
// non-nil interface inside the service.
func historyOrNil(repo *repository.RunRepository) service.RunHistory {
	if repo == nil {
		return nil
	}
	return repo
}
