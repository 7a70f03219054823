package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sashabaranov/go-openai"

	"github.com/selivandex/advisor/internal/adapters/clickhouse"
	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/internal/adapters/database"
	embeddingsRepo "github.com/selivandex/advisor/internal/adapters/embeddings"
	"github.com/selivandex/advisor/internal/adapters/marketfeed"
	"github.com/selivandex/advisor/internal/adapters/outcomes"
	redisAdapter "github.com/selivandex/advisor/internal/adapters/redis"
	"github.com/selivandex/advisor/internal/adapters/telegram"
	"github.com/selivandex/advisor/internal/calibration"
	"github.com/selivandex/advisor/internal/engine"
	"github.com/selivandex/advisor/internal/health"
	"github.com/selivandex/advisor/internal/insight"
	"github.com/selivandex/advisor/internal/learning"
	"github.com/selivandex/advisor/internal/ledger"
	"github.com/selivandex/advisor/internal/recommend"
	"github.com/selivandex/advisor/internal/regime"
	"github.com/selivandex/advisor/internal/retrieval"
	"github.com/selivandex/advisor/pkg/embeddings"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/metrics"
	"github.com/selivandex/advisor/pkg/models"
	"github.com/selivandex/advisor/pkg/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Advisor engine starting...")

	db, redisClient, err := initInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer redisClient.Close()

	buffer := initMetrics(ctx, cfg)
	if buffer != nil {
		defer buffer.Close(context.Background())
	}

	embedder := initEmbeddings(cfg, db.DB())

	notifier := initNotifier(cfg)

	// Domain wiring
	regimeRepo := regime.NewRepository(db.DB())
	classifier := regime.NewClassifier(&cfg.Regime, regimeRepo)

	insightRepo := insight.NewRepository(db.DB())
	ledgerRepo := ledger.NewRepository(db.DB())
	calibrationRepo := calibration.NewRepository(db.DB())
	recRepo := recommend.NewRepository(db.DB())
	learningRepo := learning.NewRepository(db.DB())

	retriever := retrieval.NewRetriever(cfg.Retrieval, insightRepo, ledgerRepo, buffer)
	generator := recommend.NewGenerator(cfg.Recommend, retriever, calibrationRepo, recRepo, buffer)
	recorder := learning.NewRecorder(recRepo)

	adv := engine.New(classifier, generator, recorder, calibrationRepo, learningRepo)

	healthServer := health.NewServer(cfg.Server.HealthPort, db, redisClient, adv)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)
	}()

	// Background workers
	var cycleNotifier learning.Notifier
	var driftNotifier calibration.Notifier
	if notifier != nil {
		cycleNotifier = notifier
		driftNotifier = notifier
	}

	cycle := learning.NewCycle(
		cfg.Learning,
		recRepo,
		ledgerRepo,
		insightRepo,
		embedder,
		learningRepo,
		redisClient.NewCycleLock("learning_cycle", cfg.Learning.LockTTL),
		buffer,
		cycleNotifier,
	)

	analyzer := calibration.NewAnalyzer(
		cfg.Calibration,
		recRepo,
		calibrationRepo,
		redisClient.NewCycleLock("calibration", cfg.Calibration.LockTTL),
		buffer,
		driftNotifier,
	)

	workers := worker.NewWorkerGroup(ctx)
	workers.Add(cycle, cfg.Learning.Interval, true)
	workers.Add(analyzer, cfg.Calibration.Interval, false)

	if cfg.Outcomes.Enabled {
		poller, err := outcomes.NewPoller(cfg.Outcomes, recorder)
		if err != nil {
			return fmt.Errorf("failed to init outcome poller: %w", err)
		}
		workers.Add(poller, cfg.Outcomes.PollInterval, true)
	}

	workers.Start()
	defer workers.Stop(30 * time.Second)

	if cfg.MarketFeed.Enabled {
		feed := marketfeed.NewFeed(cfg.MarketFeed, func(ctx context.Context, snapshot models.MarketSnapshot) {
			if _, err := classifier.Classify(ctx, snapshot); err != nil {
				logger.Warn("Regime classification failed", zap.Error(err))
			}
		})
		go feed.Start(ctx)
	}

	logger.Info("✅ Advisor engine started")

	<-ctx.Done()
	logger.Info("Advisor engine shutting down...")
	return nil
}

// initConfig loads configuration and initializes the logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initInfrastructure connects Postgres (running migrations) and Redis
func initInfrastructure(cfg *config.Config) (*database.DB, *redisAdapter.Client, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("✅ Infrastructure initialized")
	return db, redisClient, nil
}

// initMetrics connects the optional ClickHouse sink. A missing sink disables
// metrics without failing startup.
func initMetrics(ctx context.Context, cfg *config.Config) metrics.Buffer {
	if !cfg.ClickHouse.Enabled {
		return nil
	}

	chDB, err := sqlx.ConnectContext(ctx, "clickhouse", cfg.ClickHouse.DSN)
	if err != nil {
		logger.Warn("ClickHouse not available, metrics disabled", zap.Error(err))
		return nil
	}

	logger.Info("✅ ClickHouse metrics sink connected")
	return metrics.NewBufferedMetrics(metrics.BufferConfig{
		Writer: clickhouse.NewWriter(chDB),
	})
}

// initEmbeddings builds the embedding client with Postgres-backed dedup
func initEmbeddings(cfg *config.Config, db *sqlx.DB) *embeddings.Client {
	var openaiClient *openai.Client
	if cfg.Embeddings.OpenAIAPIKey != "" {
		openaiClient = openai.NewClient(cfg.Embeddings.OpenAIAPIKey)
		logger.Info("✅ OpenAI embeddings client initialized")
	} else {
		logger.Warn("⚠️ OpenAI API key not set - insight extraction will fail until configured")
	}

	return embeddings.NewClient(embeddings.Config{
		OpenAIClient: openaiClient,
		Repository:   embeddingsRepo.NewRepository(db),
		Model:        openai.EmbeddingModel(cfg.Embeddings.Model),
	})
}

// initNotifier builds the optional Telegram notifier
func initNotifier(cfg *config.Config) *telegram.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	notifier, err := telegram.NewNotifier(cfg.Telegram)
	if err != nil {
		logger.Warn("Telegram notifier unavailable", zap.Error(err))
		return nil
	}
	return notifier
}
