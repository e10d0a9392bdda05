package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cskovec22/test-sarafan/internal/cache"
	"github.com/cskovec22/test-sarafan/internal/catalog"
	"github.com/cskovec22/test-sarafan/internal/config"
	"github.com/cskovec22/test-sarafan/internal/health"
	h "github.com/cskovec22/test-sarafan/internal/http"
	"github.com/cskovec22/test-sarafan/internal/publisher"
	"github.com/cskovec22/test-sarafan/internal/repository"
	"github.com/cskovec22/test-sarafan/internal/service"
	"github.com/cskovec22/test-sarafan/pkg/logger"
	"github.com/cskovec22/test-sarafan/pkg/tracing"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Service: "shop", Env: cfg.AppEnv})
	slog.SetDefault(log)

	tp := tracing.New(tracing.Config{Service: "shop", Env: cfg.AppEnv, SampleRatio: cfg.TraceSampleRatio})
	tracing.Install(tp)

	err = run(cfg, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if e2 := tp.Shutdown(shutdownCtx); e2 != nil {
		log.Error("tracer provider shutdown failed", slog.Any("error", e2))
	}
	cancel()

	if err != nil {
		log.Error("shop stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()
	var wg sync.WaitGroup

	healthServer := grpchealth.NewServer()
	checker := health.NewChecker(healthServer, 10*time.Second, log)

	// Catalog
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer catalogRepo.Close()

	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return fmt.Errorf("catalog migrations: %w", err)
	}
	checker.Add("catalog", catalogRepo)
	catalogStore := catalog.NewBreakerStore(catalogRepo, log)

	// Cart store
	store, err := openCartStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	checker.Add(cfg.CartStore, store)

	// Line cache
	var lineCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		redisCache := cache.NewRedisCache(redisClient)
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", slog.String("addr", cfg.RedisAddr))
		checker.Add("redis", redisCache)
		lineCache = redisCache
	}

	cartService := service.NewCartService(store, catalogStore, lineCache, log)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	// Outbox publisher
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(store,
			publisher.NewKafkaWriter(cfg.CartEventsTopic, cfg.KafkaBrokers...), log)
		defer poller.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(bgCtx)
		}()
		log.Info("outbox publisher started", slog.String("topic", cfg.CartEventsTopic))
	} else {
		log.Warn("KAFKA_BROKERS not set, cart events stay in the outbox")
	}

	// gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Run(bgCtx)
	}()

	go func() {
		log.Info("grpc health listening", slog.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server error", slog.Any("error", err))
		}
	}()

	// HTTP
	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(cartService, cfg.RequestTimeout, log),
		Catalog:        h.NewCatalogHandler(catalogStore, cfg.RequestTimeout, log),
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
		TracerProvider: otel.GetTracerProvider(),
		Propagator:     otel.GetTextMapPropagator(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("shop starting", slog.String("port", cfg.HTTPPort), slog.String("cart_store", cfg.CartStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		log.Error("http server error", slog.Any("error", err))
	}

	log.Info("shutting down shop...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", slog.Any("error", err))
	}
	grpcServer.GracefulStop()
	bgCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers did not stop in time")
	}

	log.Info("shop exited")
	return nil
}

func openCartStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.Store, error) {
	if cfg.CartStore == config.StoreMongo {
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		store := repository.NewMongoStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Info("connected to MongoDB", slog.String("db", cfg.MongoDBName))
		return store, nil
	}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}

	store, err := repository.NewPostgresStore(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.RunMigrations(creds); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")
	return store, nil
}
