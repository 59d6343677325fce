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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/screentime-api/api/swagger"
	"github.com/noah-isme/screentime-api/internal/handler"
	"github.com/noah-isme/screentime-api/internal/middleware"
	"github.com/noah-isme/screentime-api/internal/repository"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/internal/service"
	"github.com/noah-isme/screentime-api/pkg/cache"
	"github.com/noah-isme/screentime-api/pkg/config"
	"github.com/noah-isme/screentime-api/pkg/database"
	"github.com/noah-isme/screentime-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/screentime-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/screentime-api/pkg/middleware/requestid"
)

// @title Screen-time Compliance API
// @version 1.0.0
// @description Classroom screen-time policies, daily usage evaluation and score ledgers.
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	app := buildApp(cfg, db, redisClient, logr)
	app.sweep.Start(ctx)
	defer app.sweep.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	metrics    *service.MetricsService
	sweep      *service.SweepService
	classes    *handler.ClassHandler
	students   *handler.StudentHandler
	usage      *handler.UsageHandler
	dashboard  *handler.DashboardHandler
	reports    *handler.ReportHandler
	monitoring *handler.MetricsHandler
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *application {
	validate := validator.New()
	metrics := service.NewMetricsService()

	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	monitoring := handler.NewMetricsHandler(metrics, db)
	if redisClient != nil {
		monitoring.WithCache(cacheRepo)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	rules := scoring.Rules{
		StartingPoints:    cfg.Scoring.StartingPoints,
		PointStep:         cfg.Scoring.PointStep,
		StreakBonus:       cfg.Scoring.StreakBonus,
		StreakBonusPeriod: cfg.Scoring.StreakBonusPeriod,
		ResetStreakOnGap:  cfg.Scoring.ResetStreakOnGap,
	}

	classSvc := service.NewClassService(classRepo, cacheSvc, service.ClassDefaults{
		DailyLimitMinutes: cfg.Scoring.DefaultDailyLimit,
		WeekendMode:       true,
	}, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, classRepo, rules, cacheSvc, validate, logr)
	scoringSvc := service.NewScoringService(studentRepo, classRepo, ledgerRepo, service.ScoringConfig{
		Rules:                 rules,
		UsageToleranceMinutes: cfg.Scoring.UsageToleranceMinutes,
		LedgerCacheTTL:        cfg.Cache.TTL,
	}, cacheSvc, metrics, validate, logr)
	sweepSvc := service.NewSweepService(scoringSvc, service.SweepConfig{
		Enabled:    cfg.Sweep.Enabled,
		Workers:    cfg.Sweep.Workers,
		BufferSize: cfg.Sweep.BufferSize,
		Retries:    cfg.Sweep.Retries,
		RetryDelay: cfg.Sweep.RetryDelay,
	}, metrics, validate, logr)
	dashboardSvc := service.NewDashboardService(classRepo, studentRepo, ledgerRepo, cacheSvc, cfg.Cache.TTL, logr)
	reportSvc := service.NewReportService(dashboardSvc, cfg.Reports.Enabled, logr)

	return &application{
		metrics:    metrics,
		sweep:      sweepSvc,
		classes:    handler.NewClassHandler(classSvc, scoringSvc),
		students:   handler.NewStudentHandler(studentSvc),
		usage:      handler.NewUsageHandler(scoringSvc, sweepSvc),
		dashboard:  handler.NewDashboardHandler(dashboardSvc),
		reports:    handler.NewReportHandler(reportSvc),
		monitoring: monitoring,
	}
}

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))
	registerRoutes(r, cfg, app)
	return r
}

func registerRoutes(r *gin.Engine, cfg *config.Config, app *application) {
	r.GET("/health", app.monitoring.Health)
	r.GET("/ready", app.monitoring.Ready)
	r.GET("/metrics", app.monitoring.Prometheus)
	r.GET("/metrics/summary", app.monitoring.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	classes := api.Group("/classes")
	classes.GET("", app.classes.List)
	classes.POST("", app.classes.Create)
	classes.GET("/:id", app.classes.Get)
	classes.PUT("/:id", app.classes.Update)
	classes.DELETE("/:id", app.classes.Delete)
	classes.GET("/:id/policy", app.classes.Policy)
	classes.PUT("/:id/policy", app.classes.UpdatePolicy)
	classes.GET("/:id/apps", app.classes.ListApps)
	classes.POST("/:id/apps", app.classes.AddApp)
	classes.DELETE("/:id/apps/:appId", app.classes.RemoveApp)
	classes.GET("/:id/dashboard", app.dashboard.Class)
	classes.GET("/:id/report", app.reports.ClassReport)

	students := api.Group("/students")
	students.GET("", app.students.List)
	students.POST("", app.students.Enroll)
	students.GET("/:id", app.students.Get)
	students.PUT("/:id/class", app.students.AssignClass)
	students.POST("/:id/usage", app.usage.Submit)
	students.GET("/:id/ledger", app.usage.Ledger)
	students.GET("/:id/ledger/entries", app.usage.Entries)
	students.GET("/:id/milestones", app.usage.Milestones)

	api.POST("/usage/batch", app.usage.SubmitBatch)
}
