// консоль администратора: список заказов с поиском, фильтром и догрузкой страниц,
// смена статусов и удаление через общий кэш
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/dashboard"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/lib/logger"
	"github.com/asquebay/storefront-service/internal/ratelimit"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/repository/memory"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
	"github.com/asquebay/storefront-service/internal/service"
	"github.com/asquebay/storefront-service/internal/storage"
)

// repos — источники данных консоли (postgres или память в демо-режиме)
type repos struct {
	orders  service.OrderRepository
	catalog service.CatalogRepository
	admins  auth.AdminStore
	images  storage.Storage
}

func main() {
	var (
		configPath = flag.String("config", config.Path(), "path to config file")
		demo       = flag.Bool("demo", false, "use in-memory demo data instead of postgres")
		adminID    = flag.String("admin-id", "", "admin user id to act as (postgres mode)")
	)
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	// логи консоли идут в stderr, чтобы не мешать выводу списка
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if cfg.Logger.Level == "debug" {
		log = logger.New(cfg.Logger.Level, cfg.Logger.Format)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var r repos
	userID := *adminID
	if *demo {
		store := memory.New()
		userID = seedDemo(store)
		r = repos{orders: store, catalog: store, admins: store, images: storage.NewLocal(os.TempDir(), "/uploads")}
	} else {
		if userID == "" {
			fmt.Fprintln(os.Stderr, "-admin-id is required without -demo")
			os.Exit(2)
		}
		pool, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			log.Error("failed to connect to postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		images, err := storage.FromConfig(ctx, cfg.Storage)
		if err != nil {
			log.Error("failed to init image storage", slog.String("error", err.Error()))
			os.Exit(1)
		}
		r = repos{
			orders:  postgres.NewOrderRepository(pool),
			catalog: postgres.NewCatalogRepository(pool),
			admins:  postgres.NewAdminRepository(pool),
			images:  images,
		}
	}

	authn := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer, r.admins, log)
	ctx, err := signIn(ctx, authn, userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, apperr.Message(err))
		os.Exit(1)
	}

	d, c := newDashboard(cfg, r, authn, log)
	go c.Run(ctx, cfg.Cache.SweepInterval)
	defer c.Wait()

	con := newConsole(ctx, d, cfg.Search.Debounce, os.Stdout)
	defer con.Close()

	con.printf("%s", helpText)
	con.printView(con.b.View(ctx))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !con.exec(ctx, line) {
				return
			}
		}
	}
}

// signIn выпускает токен для userID и проверяет, что это администратор
func signIn(ctx context.Context, authn *auth.Authenticator, userID string) (context.Context, error) {
	token, err := authn.IssueToken(userID, "", 12*time.Hour)
	if err != nil {
		return ctx, err
	}
	ctx, res := authn.Authenticate(auth.WithToken(ctx, token))
	return ctx, res.Err()
}

func newDashboard(cfg *config.Config, r repos, authz service.Authorizer, log *slog.Logger) (*dashboard.Dashboard, *cache.Client) {
	orders := service.NewOrderService(r.orders, authz, ratelimit.New(ratelimit.WithSweepThreshold(cfg.RateLimit.SweepThreshold)), cfg.RateLimit, cfg.Search, log)
	catalog := service.NewCatalogService(r.catalog, authz, r.images, log)

	c := cache.New(log, cache.WithRetryPolicy(func(err error) bool { return apperr.Is(err, apperr.Internal) }))
	return dashboard.New(c, orders, catalog, cfg.Cache, cfg.Search, log), c
}
