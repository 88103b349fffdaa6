package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"campusevents/internal/activity"
	"campusevents/internal/campus"
	"campusevents/internal/config"
	"campusevents/internal/handler"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/logging"
	"campusevents/internal/memstore"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
	"campusevents/internal/reportcache"
	"campusevents/internal/seed"
	"campusevents/internal/store"
)

// quietPaths are polled by infrastructure and skip request logging and rate limiting.
var quietPaths = []string{"/healthz", "/metrics"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, cfg.Production())
	slog.SetDefault(logger)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var st campus.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		ms, err := memstore.Open(ctx, m)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer ms.Close()
		st = ms
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st = campus.NewRepository(db.Client, m)
	}

	var redisClient *store.Redis
	if cfg.NeedsRedis() {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr)
		}
	}

	var q queue.Queue
	if cfg.QueueBackend == config.BackendMemory {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var cache *reportcache.Cache
	if cfg.ReportCacheTTL > 0 {
		cache = reportcache.New(redisClient.Client, cfg.ReportCacheTTL, logger, m)
	}

	if cfg.SeedDemo {
		if _, err := seed.Demo(ctx, st, logger); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	svc := campus.NewService(st, campus.WithDefaultCollege(cfg.DefaultCollegeID))

	opts := []handler.Option{
		handler.WithMetrics(m),
		handler.WithPublisher(activity.NewPublisher(q, logger, m)),
		handler.WithReportCache(cache),
	}
	if redisClient != nil {
		opts = append(opts, handler.WithRedisHealth(redisClient.Healthy))
	}
	h := handler.New(svc, logger, opts...)

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == config.BackendRedis {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: quietPaths,
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(m.GinMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.RateLimit(limiter, httpmiddleware.RateLimitConfig{
			Logger:    logger,
			OnLimited: m.RecordRateLimited,
			SkipPaths: quietPaths,
		}))
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	h.RegisterRoutes(r)

	if index := filepath.Join(cfg.WebDir, "index.html"); fileExists(index) {
		r.StaticFile("/", index)
		if static := filepath.Join(cfg.WebDir, "static"); fileExists(static) {
			r.Static("/static", static)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// The in-memory queue only exists in this process, so its consumer runs here.
	if cfg.QueueBackend == config.BackendMemory {
		consumer := activity.NewConsumer(q, cache, logger, m)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
