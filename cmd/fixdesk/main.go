package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fixdesk/fixdesk/internal/app"
	"github.com/fixdesk/fixdesk/internal/audit"
	"github.com/fixdesk/fixdesk/internal/billing"
	"github.com/fixdesk/fixdesk/internal/inventory"
	"github.com/fixdesk/fixdesk/internal/jobcards"
	"github.com/fixdesk/fixdesk/internal/masterdata/branches"
	"github.com/fixdesk/fixdesk/internal/masterdata/customers"
	"github.com/fixdesk/fixdesk/internal/notify"
	"github.com/fixdesk/fixdesk/internal/otp"
	"github.com/fixdesk/fixdesk/internal/platform/db"
	"github.com/fixdesk/fixdesk/internal/rbac"
	"github.com/fixdesk/fixdesk/internal/scope"
	"github.com/fixdesk/fixdesk/internal/secrets"
	"github.com/fixdesk/fixdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	box, err := secrets.NewBox(cfg.SecretsKey)
	if err != nil {
		logger.Error("init secrets box", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	branchRepo := branches.NewRepository(pool)
	guard := scope.NewGuard(branchRepo)
	dispatcher := notify.NewQueueDispatcher(queueClient, logger)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, guard)

	branchService := branches.NewService(branchRepo, guard)
	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo, guard)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, guard, auditService, dispatcher)

	otpStore := otp.NewStore(redisClient, cfg.OTPTTL)

	jobRepo := jobcards.NewRepository(pool)
	jobService := jobcards.NewService(jobRepo, guard, branchRepo, customerRepo,
		inventoryService, otpStore, auditService, box, dispatcher)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, guard, branchRepo, customerRepo,
		jobService, auditService, dispatcher)

	mw := rbac.NewMiddleware()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RBACMiddleware:   mw,
		BranchHandler:    branches.NewHandler(logger, branchService, mw),
		CustomerHandler:  customers.NewHandler(logger, customerService, mw),
		InventoryHandler: inventory.NewHandler(logger, inventoryService, mw),
		JobHandler:       jobcards.NewHandler(logger, jobService, mw),
		BillingHandler:   billing.NewHandler(logger, billingService, mw),
		AuditHandler:     audit.NewHandler(logger, auditService, mw),
		QueueHandler:     jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
