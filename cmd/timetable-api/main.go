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

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly timetable allocation, conflict detection and export for school sections
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	grid, err := timetable.BuildGrid(cfg.Grid.Days, cfg.Grid.Periods, cfg.Grid.FirstPeriodStart, cfg.Grid.PeriodLength)
	if err != nil {
		return fmt.Errorf("build week grid: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	// A missing Redis only disables the read cache.
	var cacheRepo service.CacheRepository
	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if cfg.Timetable.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			redisRepo := repository.NewCacheRepository(client, "sma")
			cacheRepo = redisRepo
			checks["redis"] = redisRepo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetable.CacheTTL, logr, cfg.Timetable.CacheEnabled)

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	entryRepo := repository.NewScheduleEntryRepository(db)
	jobRepo := repository.NewExportJobRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sma-timetable-api",
	})
	teacherSvc := service.NewTeacherService(teacherRepo, subjectRepo, cacheSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, teacherRepo, cacheSvc, validate, logr)
	timetableSvc := service.NewTimetableService(subjectRepo, teacherRepo, entryRepo, grid, cacheSvc, metrics, service.TimetableConfig{
		ReserveTeachers: cfg.Timetable.ReserveTeachers,
		CacheTTL:        cfg.Timetable.CacheTTL,
	}, validate, logr)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(timetableSvc, subjectRepo, teacherRepo, grid, files, signer, metrics, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		worker := service.NewExportWorker(jobRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		queue := jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		jobSvc := service.NewExportJobService(jobRepo, queue, exportSvc, validate, logr, service.ExportJobConfig{
			CleanupInterval: cfg.Exports.CleanupInterval,
		})
		jobSvc.RecoverPendingJobs(ctx)
		jobSvc.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(jobSvc)
	}

	router := newRouter(cfg, logr, metrics, authSvc, routeHandlers{
		auth:      handler.NewAuthHandler(authSvc),
		teachers:  handler.NewTeacherHandler(teacherSvc),
		subjects:  handler.NewSubjectHandler(subjectSvc),
		timetable: handler.NewTimetableHandler(timetableSvc, exportSvc),
		exports:   exportHandler,
		metrics:   handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
