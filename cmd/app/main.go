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

	"UD_milestone_rewards/internal/api"
	"UD_milestone_rewards/internal/lock"
	"UD_milestone_rewards/internal/metrics"
	"UD_milestone_rewards/internal/middleware"
	"UD_milestone_rewards/internal/repository"
	"UD_milestone_rewards/internal/service"
	"UD_milestone_rewards/pkg/clock"
	"UD_milestone_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.InitializeWithFile(cfg.LogLevel, cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	if envErr != nil {
		zapLogger.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	checks := map[string]api.HealthCheck{"database": repo.Ping}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Host != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()

		locker = lock.NewRedisLocker(client, cfg.Redis.Key, cfg.Scheduler.LeaseTTL)
		checks["redis"] = redisCheck(client)
	} else {
		zapLogger.Warn("redis not configured, pass lease is process-local")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		zapLogger.Fatal("Failed to register metrics", zap.Error(err))
	}

	wallets, err := cfg.WalletFields()
	if err != nil {
		zapLogger.Fatal("Invalid wallet configuration", zap.Error(err))
	}
	tracker, err := service.NewProgressTracker(service.DefaultSources(), service.NewRewardLedger(), wallets)
	if err != nil {
		zapLogger.Fatal("Failed to initialize progress tracker", zap.Error(err))
	}

	runner := service.NewSchedulerRunner(service.NewRepositoryTransactor(repo), tracker, clock.Real{}, m)
	scheduler := service.NewScheduler(runner, locker, m, service.SchedulerConfig{
		Interval:   cfg.Scheduler.Interval,
		RunOnStart: cfg.Scheduler.RunOnStart,
	})
	queryService := service.NewMilestoneQueryService(repo)

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{http.MethodHead, http.MethodGet}
	config.AllowHeaders = []string{"*"}
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	api.NewOpsRoutes(router, reg, checks)
	a := router.Group("/api/v1")
	if cfg.Server.APIToken != "" {
		a.Use(middleware.NewAuthorization(cfg.Server.APIToken).OperatorOnly())
	} else {
		zapLogger.Warn("server.apiToken not set, read API is unauthenticated")
	}
	api.NewMilestoneRoutes(a, queryService)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	scheduler.Start(ctx)

	go func() {
		zapLogger.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down server", zap.Error(err))
	}

	scheduler.Stop()
}

func redisCheck(client *redis.Client) api.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
