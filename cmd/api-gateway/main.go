package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/m5mds/ahmed-academy2/api/swagger"
	"github.com/m5mds/ahmed-academy2/internal/handler"
	"github.com/m5mds/ahmed-academy2/internal/middleware"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/repository"
	"github.com/m5mds/ahmed-academy2/internal/service"
	"github.com/m5mds/ahmed-academy2/pkg/cache"
	"github.com/m5mds/ahmed-academy2/pkg/config"
	"github.com/m5mds/ahmed-academy2/pkg/database"
	"github.com/m5mds/ahmed-academy2/pkg/jobs"
	"github.com/m5mds/ahmed-academy2/pkg/logger"
	"github.com/m5mds/ahmed-academy2/pkg/media"
	corsmiddleware "github.com/m5mds/ahmed-academy2/pkg/middleware/cors"
	reqidmiddleware "github.com/m5mds/ahmed-academy2/pkg/middleware/requestid"
	"github.com/m5mds/ahmed-academy2/pkg/storage"
)

// @title Ahmed Academy API
// @version 1.0.0
// @description Educational content platform with tiered subscription entitlements
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	chapterRepo := repository.NewChapterRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	lockRepo := repository.NewLockRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ahmed-academy",
		Audience:           []string{"ahmed-academy-api"},
	})

	entitlementSvc := service.NewEntitlementService(lessonRepo, enrollmentRepo, lockRepo, logr)
	streamSigner := media.NewStreamSigner(cfg.Media.StreamAccountID, cfg.Media.StreamSecret, cfg.Media.PlaybackTTL)
	contentSvc := service.NewContentService(courseRepo, chapterRepo, lessonRepo, enrollmentRepo, entitlementSvc, streamSigner, cacheRepo, cfg.Catalog.CacheTTL, logr)

	courseSvc := service.NewCourseService(courseRepo, contentSvc, validate, logr)
	chapterSvc := service.NewChapterService(chapterRepo, contentSvc, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, contentSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, validate, logr)
	lockSvc := service.NewLockService(lockRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportSvc *service.AuditExportService
	if cfg.Exports.Enabled {
		exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init export storage", zap.Error(err))
		}
		downloadSigner := storage.NewDownloadSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewAuditExportService(lockRepo, exportRepo, exportStorage, downloadSigner, service.AuditExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, nil, nil)

		exportQueue := jobs.NewQueue("lock-audit-exports", exportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc.SetQueue(exportQueue)
		exportQueue.Start(ctx)
		defer exportQueue.Stop()

		go cleanupLoop(ctx, exportSvc, cfg.Exports.CleanupInterval, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	contentHandler := handler.NewContentHandler(contentSvc, metricsSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	chapterHandler := handler.NewChapterHandler(chapterSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	lockHandler := handler.NewLockHandler(lockSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	content := api.Group("/content", middleware.JWT(authSvc))
	{
		content.GET("/chapters", contentHandler.Chapters)
		content.GET("/video/:lessonId", contentHandler.Video)
		content.GET("/enrollments", enrollmentHandler.Mine)
	}

	// Download is authenticated by the signed token itself.
	api.GET("/export/:token", lockHandler.DownloadExport)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		catalogAudit := middleware.Audit(userRepo, models.AuditActionCatalogMutation, "catalog")

		admin.GET("/courses", courseHandler.List)
		admin.GET("/courses/:id", courseHandler.Get)
		admin.POST("/courses", catalogAudit, courseHandler.Create)
		admin.PUT("/courses/:id", catalogAudit, courseHandler.Update)
		admin.DELETE("/courses/:id", catalogAudit, courseHandler.Delete)

		admin.GET("/chapters", chapterHandler.ListByCourse)
		admin.POST("/chapters", catalogAudit, chapterHandler.Create)
		admin.POST("/chapters/reorder", catalogAudit, chapterHandler.Reorder)
		admin.PUT("/chapters/:id", catalogAudit, chapterHandler.Update)
		admin.DELETE("/chapters/:id", catalogAudit, chapterHandler.Delete)

		admin.GET("/lessons", lessonHandler.ListByChapter)
		admin.POST("/lessons", catalogAudit, lessonHandler.Create)
		admin.PUT("/lessons/:id", catalogAudit, lessonHandler.Update)
		admin.DELETE("/lessons/:id", catalogAudit, lessonHandler.Delete)

		admin.GET("/enrollments", enrollmentHandler.List)
		admin.POST("/enrollments", enrollmentHandler.Assign)

		admin.GET("/locks", lockHandler.List)
		admin.POST("/locks", lockHandler.Set)
		admin.GET("/locks/audit", lockHandler.Audits)
		admin.POST("/locks/audit/export", lockHandler.EnqueueExport)
		admin.GET("/locks/audit/export/:id", lockHandler.ExportStatus)

		admin.GET("/metrics", metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func cleanupLoop(ctx context.Context, exports *service.AuditExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup()
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
