package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docproc/internal/ai"
	appsvc "docproc/internal/app"
	"docproc/internal/cache"
	"docproc/internal/config"
	"docproc/internal/model"
	"docproc/internal/pkg/retry"
	mysqlClient "docproc/internal/platform/mysql"
	"docproc/internal/platform/objectstore"
	rabbitmqClient "docproc/internal/platform/rabbitmq"
	redisClient "docproc/internal/platform/redis"
	"docproc/internal/repository"
	"docproc/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Storage    *objectstore.Store
	Embedder   *ai.EmbeddingClient
	Publisher  *rabbitmqClient.JobPublisher
	Documents  *appsvc.DocumentService
	Processing *appsvc.ProcessingService
	Search     *appsvc.SearchService

	DocumentWorker *worker.DocumentProcessWorker

	StartedAt time.Time
}

// New connects every backend, migrates the tables and wires the services. The queue consumer is
// built but not started; see StartWorker.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := NewLogger(cfg.App)

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.PoolOptions{
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		LogSQL:       cfg.MySQL.LogSQL,
	})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Document{}, &model.DocumentChunk{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.App.Name)
	if err != nil {
		return err
	}

	a.Storage, err = objectstore.New(cfg.Storage.BaseURL)
	if err != nil {
		return err
	}

	a.Embedder, err = ai.NewEmbeddingClient(
		ai.EmbeddingConfig{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
		},
		ai.WithRetry(cfg.Embedding.MaxAttempts, cfg.Embedding.RetryBaseDelay()),
		ai.WithSubBatch(cfg.Embedding.SubBatchSize, cfg.Embedding.SubBatchDelay()),
		ai.WithRateLimit(cfg.Embedding.RateLimitRPS, cfg.Embedding.RateLimitBurst),
		ai.WithHTTPClient(&http.Client{Timeout: cfg.Embedding.RequestTimeout()}),
		ai.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("create embedding client failed: %w", err)
	}

	docRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewDocumentChunkRepository(mysqlDB)
	a.Publisher = rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.DocumentQueue)

	a.Documents = appsvc.NewDocumentService(docRepo, chunkRepo, a.Storage, a.Publisher, a.Logger)
	a.Search = appsvc.NewSearchService(docRepo, chunkRepo, a.Embedder)
	a.Processing = appsvc.NewProcessingService(docRepo, chunkRepo, a.Storage, a.Embedder,
		appsvc.WithProcessingConfig(appsvc.ProcessingConfig{
			ChunkSize:    cfg.Processing.ChunkSize,
			ChunkOverlap: cfg.Processing.ChunkOverlap,
			BatchSize:    cfg.Processing.BatchSize,
			BatchDelay:   cfg.Processing.BatchDelay(),
		}),
		appsvc.WithPersistRetry(retry.Policy{
			MaxAttempts: appsvc.DefaultPersistAttempts,
			BaseDelay:   cfg.Embedding.RetryBaseDelay(),
		}),
		appsvc.WithDocumentLocker(cache.NewDocumentLock(a.Redis, cfg.Processing.LockTTL())),
		appsvc.WithProcessingLogger(a.Logger),
	)

	a.DocumentWorker = worker.NewDocumentProcessWorker(
		a.MQConn,
		a.Processing,
		cache.NewDeliveryCounter(a.Redis, cfg.Redis.DeliveryCounterTTL()),
		cfg.RabbitMQ.DocumentQueue,
		worker.Options{
			Prefetch:         cfg.RabbitMQ.Prefetch,
			MaxDeliveries:    cfg.RabbitMQ.MaxDeliveries,
			BusyRequeueDelay: cfg.RabbitMQ.BusyRequeueDelay(),
			Logger:           a.Logger,
		},
	)
	return nil
}

func (a *App) StartWorker(ctx context.Context) error {
	if err := a.DocumentWorker.Start(ctx); err != nil {
		return fmt.Errorf("start document worker failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.DocumentWorker != nil {
		a.DocumentWorker.Close()
	}
	if a.Embedder != nil {
		a.Embedder.Release()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

// NewLogger builds the process logger: JSON outside dev, text in dev.
func NewLogger(cfg config.AppConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if cfg.Env == "dev" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("app", cfg.Name)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
