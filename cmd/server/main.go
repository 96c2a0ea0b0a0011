package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
	"github.com/rl1809/storefront/internal/tracing"
)

// repositories is everything the services need from the storage layer.
type repositories interface {
	port.CatalogRepository
	port.CartRepository
	port.OrderRepository
	port.UnitOfWork
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	shutdownTracing := tracing.Setup(log, "storefront-server", cfg.TraceSampleRatio)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repos, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		log.Error("storage init failed", "storage", cfg.Storage, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// Idempotency keys live in Redis when configured, in process otherwise
	var idem port.IdempotencyStore = storage.NewMemoryIdempotency()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect redis", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		idem = storage.NewRedisAdapter(rdb)
		log.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	renderer := notify.NewRenderer()
	var notifier port.Notifier = notify.NewLogNotifier(log, renderer)
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewWriter(cfg.KafkaBrokers, cfg.NotifyTopic)
		defer writer.Close()
		notifier = notify.NewKafkaNotifier(log, writer, renderer)
		log.Info("publishing confirmations", "brokers", cfg.KafkaBrokers, "topic", cfg.NotifyTopic)
	}

	m := metrics.NewServerMetrics("storefront-server")

	svc := handler.Services{
		Checkout: service.NewCheckoutService(log, repos, repos, notifier,
			service.WithIdempotency(idem),
			service.WithRecorder(m),
			service.WithNotifyTimeout(cfg.NotifyTimeout),
		),
		Orders:  service.NewOrderService(log, repos),
		Carts:   service.NewCartService(log, repos, repos),
		Catalog: service.NewCatalogService(log, repos),
	}
	identity := auth.NewJWTProvider(cfg.JWTSecret)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(identity)))
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(log, svc.Checkout, svc.Orders))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to listen", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", "err", err)
			cancel()
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(log, svc, identity, handler.WithMetrics(m, m.Handler()))
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpHandler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "err", err)
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (repositories, func(), error) {
	if cfg.Storage == "memory" {
		log.Warn("using in-memory storage; data is lost on exit")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	store := storage.NewMySQLAdapter(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to mysql")
	return store, func() { db.Close() }, nil
}
