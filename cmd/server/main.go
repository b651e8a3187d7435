/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payment schedule engine.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Build the zap logger
  3. Open the SQLite store
  4. Wire optional backends (Redis, RabbitMQ, MinIO, SMTP)
  5. Create the service, handler and router
  6. Start the overdue sweeper and the HTTP server

OPTIONAL BACKENDS:
  REDIS_ADDR       per-activity write lock shared across instances
                   (otherwise in-process)
  AMQP_URL         schedule events to RabbitMQ (otherwise dropped)
  MINIO_ENDPOINT   schedule snapshots to object storage (otherwise skipped)
  SMTP_HOST        reminder digests by email (otherwise logged)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper, waiting for a running sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close backends and the database

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Overdue sweep
*/
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

	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/api"
	"github.com/tailfire/payment-engine/archive"
	"github.com/tailfire/payment-engine/config"
	"github.com/tailfire/payment-engine/events"
	"github.com/tailfire/payment-engine/lock"
	"github.com/tailfire/payment-engine/logging"
	"github.com/tailfire/payment-engine/notify"
	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/store/sqlite"
	"github.com/tailfire/payment-engine/tico"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.DB.Path), zap.Error(err))
	}
	defer store.Close()

	validator := tico.NewValidator(cfg.Rules, schedule.SystemClock{})
	svc := schedule.NewService(store, validator, cfg.Rules.Limits(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	closers := wireBackends(ctx, cfg, svc, logger)
	cancel()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	// Reminders
	var reminder notify.Reminder
	if cfg.SMTP.Host != "" && cfg.SMTP.Recipient != "" {
		reminder = notify.NewEmailReminder(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Sender:   cfg.SMTP.Sender,
		}, cfg.SMTP.Recipient, logger)
		logger.Info("email reminders enabled", zap.String("smtp_host", cfg.SMTP.Host))
	}

	sweeper := api.NewOverdueSweeper(svc, reminder, logger)
	sweeper.Spec = cfg.Scheduler.SweepSchedule
	sweeper.ReminderDaysAhead = cfg.Scheduler.ReminderDaysAhead
	sweeper.Enabled = cfg.Scheduler.Enabled
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start overdue sweeper", zap.Error(err))
	}

	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:     cfg.App.AllowedOrigins,
		RateLimitPerMinute: cfg.App.RateLimitPerMinute,
		EnableScenarios:    cfg.App.Env != "production",
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// wireBackends replaces the service's in-process defaults with the backends
// that are configured. A backend that fails to connect is logged and left
// on its default. The returned funcs release what was opened.
func wireBackends(ctx context.Context, cfg *config.Config, svc *schedule.Service, logger *zap.Logger) []func() {
	var closers []func()

	if cfg.Redis.Addr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, using in-process activity locks", zap.Error(err))
		} else {
			svc.Locker = lock.NewRedisLocker(client, logger)
			closers = append(closers, func() { _ = client.Close() })
			logger.Info("redis activity locks enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := events.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, schedule events disabled", zap.Error(err))
		} else if pub, err := events.NewAMQPPublisher(conn, cfg.RabbitMQ.Queue, logger); err != nil {
			logger.Warn("rabbitmq channel setup failed, schedule events disabled", zap.Error(err))
			_ = conn.Close()
		} else {
			svc.Events = pub
			closers = append(closers, func() {
				_ = pub.Close()
				_ = conn.Close()
			})
			logger.Info("schedule events enabled", zap.String("queue", cfg.RabbitMQ.Queue))
		}
	}

	if cfg.Minio.Endpoint != "" {
		client, err := archive.NewMinioClient(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
		if err != nil {
			logger.Warn("minio unavailable, schedule archive disabled", zap.Error(err))
		} else {
			svc.Archive = archive.NewMinioArchiver(client, cfg.Minio.Bucket)
			logger.Info("schedule archive enabled", zap.String("bucket", cfg.Minio.Bucket))
		}
	}

	return closers
}
