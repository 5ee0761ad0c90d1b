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

	_ "github.com/PhmVu/EBN-Besu/api/swagger"
	"github.com/PhmVu/EBN-Besu/internal/handler"
	"github.com/PhmVu/EBN-Besu/internal/ledger"
	"github.com/PhmVu/EBN-Besu/internal/middleware"
	"github.com/PhmVu/EBN-Besu/internal/repository"
	"github.com/PhmVu/EBN-Besu/internal/service"
	"github.com/PhmVu/EBN-Besu/internal/wallet"
	"github.com/PhmVu/EBN-Besu/pkg/cache"
	"github.com/PhmVu/EBN-Besu/pkg/config"
	"github.com/PhmVu/EBN-Besu/pkg/database"
	"github.com/PhmVu/EBN-Besu/pkg/logger"
	corsmiddleware "github.com/PhmVu/EBN-Besu/pkg/middleware/cors"
	reqidmiddleware "github.com/PhmVu/EBN-Besu/pkg/middleware/requestid"
)

// @title EBN Besu API
// @version 1.0.0
// @description Class enrollment and grading backed by a Hyperledger Besu ledger
// @BasePath /api
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	evm, err := ledger.NewEVM(cfg.Ledger, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to besu node", "error", err)
	}
	defer evm.Close()

	users := repository.NewUserRepository(db)
	classes := repository.NewClassRepository(db)
	approvals := repository.NewApprovalRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	scores := repository.NewScoreRepository(db)
	walletKeys := repository.NewWalletKeyRepository(db)
	divergences := repository.NewDivergenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metrics := service.NewMetricsService()
	coordinator := service.NewCoordinator(divergences, metrics, logr)

	keyParams := wallet.Params{
		N: cfg.Wallet.ScryptN,
		R: cfg.Wallet.ScryptR,
		P: cfg.Wallet.ScryptP,
	}
	adminKey := cfg.Ledger.AdminPrivateKey

	walletSvc := service.NewWalletService(walletKeys, keyParams, users, logr)
	authSvc := service.NewAuthService(users, walletSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ebn-besu",
	})
	classSvc := service.NewClassService(classes, users, enrollments, approvals, evm, walletSvc, coordinator, adminKey, validate, logr)
	approvalSvc := service.NewApprovalService(approvals, classes, users, enrollments, evm, coordinator, adminKey, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignments, classes, enrollments, validate, logr)
	submissionSvc := service.NewSubmissionService(assignments, submissions, scores, enrollments, classes, users, evm, walletSvc, cacheRepo, coordinator, metrics, adminKey, cfg.Ledger.ScoreCacheTTL, validate, logr)
	exportSvc := service.NewExportService(classes, scores, logr)
	userSvc := service.NewUserService(users, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reconciler.Enabled {
		reconciler := service.NewReconcilerService(divergences, classes, users, scores, evm, adminKey, cfg.Reconciler.Interval, cfg.Reconciler.Workers, logr)
		reconciler.Start(ctx)
		defer reconciler.Stop()
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

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Classes:     handler.NewClassHandler(classSvc, exportSvc),
		Approvals:   handler.NewApprovalHandler(approvalSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Submissions: handler.NewSubmissionHandler(submissionSvc),
		Wallet:      handler.NewWalletHandler(walletSvc),
		Users:       handler.NewUserHandler(userSvc),
		Metrics:     handler.NewMetricsHandler(metrics),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
