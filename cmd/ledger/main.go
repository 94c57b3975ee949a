package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledger/internal/app/ledger"
	"ledger/internal/config"
	accounts_http "ledger/internal/handler/http/accounts"
	kafka_handler "ledger/internal/handler/kafka"
	"ledger/internal/infrastructure/database"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/accounts_repo/breaker"
	"ledger/internal/repository/accounts_repo/dynamo"
	"ledger/internal/repository/accounts_repo/memory"
	"ledger/internal/repository/accounts_repo/postgres"
	redis_repo "ledger/internal/repository/accounts_repo/redis"
)

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = atomicLevel
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	return zapConfig.Build()
}

// newStore builds the configured backend. The returned cleanup releases its
// connections.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (accounts_repo.AccountStore, func(), error) {
	storeLogger := logger.With(zap.String("component", "AccountStore"), zap.String("store", cfg.Store))

	switch cfg.Store {
	case config.StoreMemory:
		storeLogger.Warn("Using in-memory account store; balances are lost on restart.")
		return memory.NewAccountRepository(), func() {}, nil

	case config.StorePostgres:
		storeLogger.Info("Waiting for database to be available...")
		db, err := database.ConnectWithRetry(ctx, cfg.GetDBConnectionString(),
			cfg.DBConfig.ConnectRetries, cfg.DBConfig.RetryDelay, storeLogger)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				storeLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				storeLogger.Info("Database connection closed.")
			}
		}

		storeLogger.Info("Running database migrations...")
		if err := database.RunMigrations("file://"+cfg.DBConfig.MigrationsDir, cfg.GetDBMigrationConnectionString(), storeLogger); err != nil {
			closeDB()
			return nil, nil, err
		}
		return postgres.NewAccountRepository(db), closeDB, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisConfig.Addr, err)
		}
		storeLogger.Info("Connected to Redis.", zap.String("addr", cfg.RedisConfig.Addr))

		closeClient := func() {
			if err := client.Close(); err != nil {
				storeLogger.Error("Error closing Redis client", zap.Error(err))
			}
		}
		repo := redis_repo.NewAccountRepository(client, cfg.RedisConfig.KeyPrefix, cfg.RedisConfig.MaxTxAttempts, storeLogger)
		return repo, closeClient, nil

	case config.StoreDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:        cfg.DynamoDBConfig.Region,
			Local:         cfg.UseLocalDynamoDB(),
			LocalEndpoint: cfg.DynamoDBConfig.LocalEndpoint,
		}, storeLogger)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.NewAccountRepository(client, cfg.DynamoDBConfig.Table), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Ledger Service starting...", zap.String("store", cfg.Store))

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	store, closeStore, err := newStore(ctxMain, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize account store", zap.Error(err))
	}
	defer closeStore()

	if cfg.BreakerConfig.Enabled {
		store = breaker.NewAccountRepository(store, breaker.Config{
			Name:                "account-store",
			ConsecutiveFailures: uint32(cfg.BreakerConfig.ConsecutiveFailures),
			Timeout:             cfg.BreakerConfig.Timeout,
		}, appLogger.With(zap.String("component", "StoreBreaker")))
	}

	ledgerService := ledger.NewLedgerService(store, appLogger.With(zap.String("component", "LedgerService")))
	appLogger.Info("Ledger Service initialized.")

	router := accounts_http.NewRouter(accounts_http.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}, ledgerService, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	appLogger.Info("HTTP server configured.")

	var (
		consumer     *kafka_infra.Consumer
		consumerDone = make(chan struct{})
	)
	if cfg.KafkaEnabled {
		kafkaBrokers := cfg.GetKafkaBrokers()
		topicsCtx, cancelTopics := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, []string{
			cfg.KafkaAdjustmentsTopic,
			cfg.KafkaResultsTopic,
		}, appLogger)
		cancelTopics()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		producer := kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() {
			if err := producer.Close(); err != nil {
				appLogger.Error("Error closing Kafka producer", zap.Error(err))
			} else {
				appLogger.Info("Kafka producer closed.")
			}
		}()

		adjustmentHandler := kafka_handler.AdjustmentMessageHandler(
			ledgerService,
			producer,
			cfg.KafkaResultsTopic,
			appLogger.With(zap.String("component", "AdjustmentHandler")),
		)
		consumer = kafka_infra.NewConsumer(
			kafkaBrokers,
			cfg.KafkaAdjustmentsTopic,
			cfg.KafkaConsumerGroup,
			cfg.KafkaHandlerAttempts,
			adjustmentHandler,
			appLogger.With(zap.String("component", "AdjustmentsConsumer")),
		)

		go func() {
			defer close(consumerDone)
			appLogger.Info("Starting Adjustments Kafka Consumer...")
			if err := consumer.Consume(ctxMain); err != nil {
				appLogger.Error("Adjustments Kafka Consumer failed", zap.Error(err))
			}
			appLogger.Info("Adjustments Kafka Consumer stopped.")
		}()
	} else {
		close(consumerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLogger.Info("Shutting down application...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("HTTP server failed", zap.Error(err))
	}

	cancelMain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Adjustments Kafka Consumer did not stop before the shutdown deadline.")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			appLogger.Error("Error closing Adjustments Kafka Consumer", zap.Error(err))
		} else {
			appLogger.Info("Adjustments Kafka Consumer closed.")
		}
	}

	appLogger.Info("Application gracefully shut down.")
}
