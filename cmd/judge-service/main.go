package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/common/cache"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/controller"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/config"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/observer"
	"codejudge/internal/judge/sandbox/runner"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	redisCache, err := cache.NewRedisCache(appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	eng, err := engine.New(appCfg.Sandbox)
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}
	if err := eng.Ping(ctx); err != nil {
		logger.Warn(ctx, "sandbox runtime not ready", zap.String("backend", appCfg.Sandbox.Backend), zap.Error(err))
	}

	langRepo := config.NewLocalRepository(appCfg.Languages)
	supervisor := runner.NewSupervisorWithObserver(eng, observer.LogMetricsRecorder{})
	slots := sandbox.NewSlotPool(appCfg.Worker.PoolSize, appCfg.Worker.AcquireTimeout)
	worker := sandbox.NewWorker(supervisor, langRepo, slots)
	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)

	deps := map[string]service.Pinger{
		"sandbox": eng,
		"redis":   redisCache,
	}
	svcCfg := service.Config{
		Worker:         worker,
		StatusRepo:     statusRepo,
		SourceBucket:   appCfg.Source.Bucket,
		JudgeTimeout:   appCfg.Worker.JudgeTimeout,
		StorageTimeout: appCfg.Source.Timeout,
		StatusTimeout:  appCfg.Status.Timeout,
		Dependencies:   deps,
	}

	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		svcCfg.Storage = objStorage
		deps["minio"] = objStorage
	}

	var queue *mq.KafkaQueue
	if appCfg.Kafka.enabled() {
		queue, err = mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = queue.Close()
		}()
		svcCfg.Publisher = repository.NewMQVerdictEventPublisher(queue, appCfg.Kafka.VerdictTopic)
		deps["kafka"] = queue
	}

	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	if queue != nil {
		opts := appCfg.Kafka.subscribeOptions(appCfg.Worker.PoolSize)
		opts.Retryable = appErr.IsRetryable
		if err := queue.SubscribeWithOptions(ctx, appCfg.Kafka.TaskTopic, judgeSvc.HandleMessage, opts); err != nil {
			return fmt.Errorf("subscribe kafka failed: %w", err)
		}
		if err := queue.Start(); err != nil {
			return fmt.Errorf("start kafka consumer failed: %w", err)
		}
		logger.Info(ctx, "judge task consumer started", zap.String("topic", appCfg.Kafka.TaskTopic))
	}

	limiter := commonmw.NewRateLimiter(redisCache, appCfg.Status.Timeout)
	httpServer := buildHTTPServer(appCfg.Server, judgeSvc, limiter)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("backend", appCfg.Sandbox.Backend),
			zap.Strings("languages", langRepo.Languages()),
			zap.Int("pool_size", appCfg.Worker.PoolSize),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if queue != nil {
		if err := queue.Stop(); err != nil {
			logger.Error(ctx, "kafka consumer stop failed", zap.Error(err))
		}
	}
	return serveErr
}

func buildHTTPServer(cfg ServerConfig, svc controller.JudgeService, limiter *commonmw.RateLimiter) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())
	controller.NewJudgeController(svc).RegisterRoutes(router,
		commonmw.RateLimitMiddleware(limiter, "submit", cfg.SubmitRateLimit),
	)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
