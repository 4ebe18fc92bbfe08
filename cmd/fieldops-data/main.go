package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops-data/internal/config"
	httpapi "fieldops-data/internal/http"
	"fieldops-data/internal/repository"
	"fieldops-data/internal/service"
	"fieldops-data/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()

	db, err := repository.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)
	publisher := store.NewStreamPublisher(redisClient)

	// repositories
	usersRepo := repository.NewPostgresUsersRepo(db, logger)
	ordersRepo := repository.NewPostgresWorkOrdersRepo(db, logger)
	commentsRepo := repository.NewPostgresCommentsRepo(db, logger)
	timeLogsRepo := repository.NewPostgresTimeLogsRepo(db, logger)
	notificationsRepo := repository.NewPostgresNotificationsRepo(db, logger)
	attachmentsRepo := repository.NewPostgresAttachmentsRepo(db, logger)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db, logger)

	// services
	tokens := service.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.RefreshSecret)
	blobs := service.NewBlobClient(&cfg.Blob, logger)
	authSvc := service.NewAuthService(usersRepo, tokens, logger)
	userSvc := service.NewUserService(usersRepo, logger)
	orderSvc := service.NewWorkOrderService(ordersRepo, usersRepo, logger)
	commentSvc := service.NewCommentService(commentsRepo, ordersRepo, logger)
	timeLogSvc := service.NewTimeLogService(timeLogsRepo, ordersRepo, logger)
	notificationSvc := service.NewNotificationService(notificationsRepo, logger)
	attachmentSvc := service.NewAttachmentService(attachmentsRepo, ordersRepo, blobs, logger)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, kv, logger)
	exportSvc := service.NewExportService(analyticsRepo, logger)

	// outbox dispatcher
	dispatcher := service.NewDispatcher(notificationsRepo, publisher, logger)
	dispatcher.Start()

	// HTTP
	router := httpapi.NewRouter(logger)
	router.RegisterRoutes(&httpapi.Handlers{
		Auth:          httpapi.NewAuthHandler(authSvc, logger),
		WorkOrders:    httpapi.NewWorkOrderHandler(orderSvc, commentSvc, logger),
		TimeLogs:      httpapi.NewTimeLogHandler(timeLogSvc, logger),
		Users:         httpapi.NewUserHandler(userSvc, logger),
		Notifications: httpapi.NewNotificationHandler(notificationSvc, logger),
		Attachments:   httpapi.NewAttachmentHandler(attachmentSvc, logger),
		Analytics:     httpapi.NewAnalyticsHandler(analyticsSvc, exportSvc, logger),
	}, httpapi.NewAuthMiddleware(tokens, logger))

	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server exited", zap.Error(err))
	}

	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.Log.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
