package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/order-lifecycle/internal/adapter/handler"
	"github.com/rl1809/order-lifecycle/internal/adapter/messaging"
	"github.com/rl1809/order-lifecycle/internal/adapter/storage"
	"github.com/rl1809/order-lifecycle/internal/config"
	"github.com/rl1809/order-lifecycle/internal/core/service"
	"github.com/rl1809/order-lifecycle/internal/port"
	"github.com/rl1809/order-lifecycle/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", err)
	}
	telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		fatal("failed to set up tracing", err)
	}

	// Initialize database
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		fatal("failed to open database", err)
	}
	slog.Info("connected to database", "driver", cfg.DBDriver)

	// Initialize Redis
	var idempotency port.IdempotencyCache
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal("failed to connect redis", err)
		}
		idempotency = storage.NewRedisIdempotencyCache(rdb)
		slog.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		fatal("failed to create publisher", err)
	}

	// Initialize service
	orderService := service.NewOrderService(
		storage.NewSQLTxManager(db),
		storage.NewOrderRepository(db),
		storage.NewOrderItemRepository(db),
		storage.NewHistoryRepository(db),
		publisher,
	)

	// Start processing consumer
	source, err := messaging.NewKafkaSource(messaging.KafkaSourceConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.KafkaGroupID,
		Topic:     cfg.KafkaProcessingTopic,
		BatchSize: cfg.KafkaBatchSize,
	})
	if err != nil {
		fatal("failed to create consumer", err)
	}
	consumer := messaging.NewBatchConsumer(source, messaging.NewProcessingHandler(orderService), cfg.KafkaBatchSize, cfg.KafkaPollInterval)

	healthServer := health.NewServer()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthServer.SetServingStatus(handler.ConsumerHealthService, healthpb.HealthCheckResponse_SERVING)
		slog.Info("processing consumer started", "topic", cfg.KafkaProcessingTopic, "group", cfg.KafkaGroupID)
		consumer.Run(ctx)
		healthServer.SetServingStatus(handler.ConsumerHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
		slog.Info("processing consumer stopped")
	}()

	// Start gRPC server
	grpcServer := handler.NewGRPCServer(healthServer, orderService)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal("failed to listen", err)
	}
	go func() {
		slog.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(orderService, idempotency).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	slog.Info("HTTP server stopped")

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	slog.Info("gRPC server stopped")

	wg.Wait()

	closePublisher()
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Error("tracer shutdown", "error", err)
	}
	slog.Info("connections closed")
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	dialect := storage.Dialect(cfg.DBDriver)
	switch dialect {
	case storage.DialectSQLite:
		db, err = storage.OpenSQLite(cfg.DBDSN)
	default:
		db, err = storage.OpenMySQL(ctx, cfg.DBDSN)
	}
	if err != nil {
		return nil, err
	}

	if err := storage.ApplySchema(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newPublisher(ctx context.Context, cfg config.Config) (port.EventPublisher, func(), error) {
	if cfg.Publisher == "sqs" {
		awsCfg, err := messaging.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL), func() {}, nil
	}

	publisher, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaCreationTopic)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
