package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/dashboard"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/lib/logger"
	"github.com/asquebay/storefront-service/internal/lib/metrics"
	"github.com/asquebay/storefront-service/internal/ratelimit"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
	"github.com/asquebay/storefront-service/internal/service"
	"github.com/asquebay/storefront-service/internal/storage"
	httptransport "github.com/asquebay/storefront-service/internal/transport/http"
	"github.com/asquebay/storefront-service/internal/transport/kafka"
)

func main() {
	// 1. Инициализация конфигурации
	cfg := config.MustLoad(config.Path())

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting storefront-service", slog.String("log_level", cfg.Logger.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Инициализация репозиториев (БД)
	dbpool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbpool.Close()
	log.Info("successfully connected to postgres")

	orderRepo := postgres.NewOrderRepository(dbpool)
	catalogRepo := postgres.NewCatalogRepository(dbpool)
	adminRepo := postgres.NewAdminRepository(dbpool)

	// 4. Хранилище картинок товаров
	images, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to init image storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("image storage ready", slog.Any("storage", images))

	// 5. Метрики, права, лимитер
	collector := metrics.New()
	authn := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer, adminRepo, log)
	limiter := ratelimit.New(ratelimit.WithSweepThreshold(cfg.RateLimit.SweepThreshold))

	// 6. События об изменениях заказов
	publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)

	// 7. Сервисный слой
	orderSvc := service.NewOrderService(orderRepo, authn, limiter, cfg.RateLimit, cfg.Search, log).
		WithEvents(publisher).
		WithRateObserver(collector)
	catalogSvc := service.NewCatalogService(catalogRepo, authn, images, log)

	// 8. Кэш админки; повторяются только внутренние ошибки
	queryCache := cache.New(log,
		cache.WithObserver(collector),
		cache.WithRetryPolicy(func(err error) bool { return apperr.Is(err, apperr.Internal) }),
	)
	go queryCache.Run(ctx, cfg.Cache.SweepInterval)
	dash := dashboard.New(queryCache, orderSvc, catalogSvc, cfg.Cache, cfg.Search, log)

	// 9. Инициализация и запуск Kafka-консьюмера
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, orderSvc, dash, log)
	go consumer.Run(ctx)

	// 10. Инициализация и запуск HTTP-сервера
	opts := []httptransport.Option{}
	if cfg.Metrics.Enabled {
		opts = append(opts, httptransport.WithMetrics(cfg.Metrics.Path, collector.Handler(), collector))
	}
	if cfg.Storage.Driver == "local" {
		opts = append(opts, httptransport.WithUploads(cfg.Storage.LocalURL, cfg.Storage.LocalDir))
	}
	handler := httptransport.NewHandler(orderSvc, dash, authn, log, opts...)
	httpServer := httptransport.NewServer(cfg.HTTPServer, handler)
	log.Info("starting http server", slog.String("port", httpServer.Addr()))

	go func() {
		if err := httpServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// 11. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down application")
	cancel() // консьюмер и чистка кэша завершаются по контексту

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
	if err := consumer.Close(); err != nil {
		log.Error("error closing kafka consumer", slog.String("error", err.Error()))
	}
	if err := publisher.Close(); err != nil {
		log.Error("error closing kafka publisher", slog.String("error", err.Error()))
	}
	queryCache.Wait()

	log.Info("application stopped")
}
