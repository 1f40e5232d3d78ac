package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"imagecurator/api/cache"
	"imagecurator/api/catalog"
	"imagecurator/api/config"
	"imagecurator/api/database"
	"imagecurator/api/handlers"
	"imagecurator/api/kafka"
	"imagecurator/api/middleware"
	"imagecurator/api/repository"
	"imagecurator/api/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	if cfg.Env == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("Curation API starting", zap.String("port", cfg.Port))

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	catalogClient := catalog.NewClient(cfg.CatalogAdminURL, cfg.CatalogAdminEmail, cfg.CatalogAdminPass, cfg.CatalogTimeout, logger)

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisCache)
	taskService := service.NewTaskService(repo, statusCache, producer, catalogClient, cfg.KafkaTopic, cfg.PageSize, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger)

	apiMux := http.NewServeMux()
	taskHandler.Register(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/", middleware.Identity(apiMux))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.TraceID(handler)

	logger.Info("Server started", zap.String("address", ":"+cfg.Port))
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
