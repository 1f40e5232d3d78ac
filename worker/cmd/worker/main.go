package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"imagecurator/worker/acquire"
	"imagecurator/worker/cache"
	"imagecurator/worker/catalog"
	"imagecurator/worker/config"
	"imagecurator/worker/kafka"
	"imagecurator/worker/normalize"
	"imagecurator/worker/pool"
	"imagecurator/worker/publish"
	"imagecurator/worker/repository"
	"imagecurator/worker/search"
	"imagecurator/worker/service"
	"imagecurator/worker/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Curation worker starting",
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.Int("workers", cfg.WorkerCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping postgres", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	catalogClient := catalog.NewClient(
		cfg.CatalogStoreURL,
		cfg.CatalogAdminURL,
		cfg.PublishableKey,
		cfg.CatalogAdminEmail,
		cfg.CatalogAdminPass,
		cfg.CatalogTimeout,
		logger,
	)

	searcher := search.NewHTTPSearcher(cfg.SearchURL, cfg.SearchAPIKey, cfg.SearchTimeout, logger)
	normalizer := normalize.NewNormalizer(logger)
	orchestrator := acquire.NewOrchestrator(catalogClient, searcher, normalizer, cfg.WorkDir, cfg.TargetImages, cfg.StoreDomains, logger)

	store, err := storage.New(storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create storage client", zap.Error(err))
	}

	coordinator := publish.NewCoordinator(store, catalogClient, normalizer, logger)

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisClient)
	processor := service.NewProcessor(repo, statusCache, orchestrator, coordinator, logger)

	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("Failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	workers := pool.NewWorkerPool(cfg.WorkerCount)

	handler := func(ctx context.Context, msg *kafka.CurationMessage) error {
		workers.Submit(ctx, msg, processor.Process)
		return nil
	}

	for ctx.Err() == nil {
		if err := consumer.Consume(ctx, cfg.KafkaTopic, handler); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("Consumer session ended", zap.Error(err))
		}
	}

	logger.Info("Shutting down, draining in-flight jobs")
	workers.Wait()
	logger.Info("Worker stopped")
}
