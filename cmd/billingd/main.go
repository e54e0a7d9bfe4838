package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/seatshare/internal/db"
	"github.com/dmitrymomot/seatshare/pkg/analytics"
	"github.com/dmitrymomot/seatshare/pkg/config"
	"github.com/dmitrymomot/seatshare/pkg/coupon"
	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/httpserver"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/order"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/pg"
	"github.com/dmitrymomot/seatshare/pkg/purchase"
	"github.com/dmitrymomot/seatshare/pkg/redis"
	"github.com/dmitrymomot/seatshare/pkg/renewal"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

type appConfig struct {
	Env                  string        `env:"APP_ENV" envDefault:"development"`
	Name                 string        `env:"APP_NAME" envDefault:"billingd"`
	Currency             string        `env:"CREDITS_CURRENCY" envDefault:"USD"`
	CatalogPath          string        `env:"CATALOG_PATH" envDefault:"catalog.yaml"`
	CouponClaimRulesPath string        `env:"COUPON_CLAIM_RULES_PATH"`
	AnalyticsStream      string        `env:"ANALYTICS_STREAM"`
	StartupTimeout       time.Duration `env:"APP_STARTUP_TIMEOUT" envDefault:"30s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg      appConfig
		pgCfg       pg.Config
		redisCfg    redis.Config
		outboxCfg   outbox.Config
		purchaseCfg purchase.Config
		renewalCfg  renewal.Config
		opsCfg      httpserver.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&appCfg) },
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&outboxCfg) },
		func() error { return config.Load(&purchaseCfg) },
		func() error { return config.Load(&renewalCfg) },
		func() error { return config.Load(&opsCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	log := logger.New(logger.WithEnvironment(appCfg.Env, appCfg.Name))
	logger.SetAsDefault(log)

	startCtx, cancelStart := context.WithTimeout(ctx, appCfg.StartupTimeout)
	defer cancelStart()

	pool, err := pg.Connect(startCtx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(startCtx, pool, pgCfg, db.Migrations, db.MigrationsDir, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	checks := []httpserver.Check{pg.Healthcheck(pool)}
	emitters := analytics.Multi{analytics.NewLogEmitter(log)}
	if appCfg.AnalyticsStream != "" {
		rdb, err := redis.Connect(startCtx, redisCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis client", logger.Error(err))
			}
		}()
		emitters = append(emitters, analytics.NewRedisStreamEmitter(rdb, appCfg.AnalyticsStream))
		checks = append(checks, redis.Healthcheck(rdb))
	}

	catalog, err := subscription.NewCatalog(startCtx, subscription.NewYAMLSource(appCfg.CatalogPath))
	if err != nil {
		return err
	}

	couponOpts := []coupon.Option{coupon.WithLogger(log)}
	if appCfg.CouponClaimRulesPath != "" {
		rules, err := loadClaimRules(appCfg.CouponClaimRulesPath)
		if err != nil {
			return err
		}
		couponOpts = append(couponOpts, coupon.WithClaimRules(rules))
	}

	orders := order.NewPGStore(pool)
	subs := subscription.NewPGStore(pool)
	intentStore := outbox.NewPGStore(pool)

	ledger := credits.NewService(credits.NewPGStore(pool),
		credits.WithCurrency(appCfg.Currency),
		credits.WithLogger(log),
		credits.WithMetrics(credits.NewMetrics(reg)),
	)
	coupons := coupon.NewEngine(coupon.NewPGStore(pool), orders, couponOpts...)

	intents, err := outbox.New(intentStore, outboxCfg)
	if err != nil {
		return err
	}

	orchestrator, err := purchase.New(purchase.Deps{
		Ledger:        ledger,
		Coupons:       coupons,
		Orders:        orders,
		Subscriptions: subs,
		Catalog:       catalog,
		Intents:       intents,
	},
		purchase.WithConfig(purchaseCfg),
		purchase.WithLogger(log),
		purchase.WithMetrics(purchase.NewMetrics(reg)),
		purchase.WithAnalytics(emitters),
	)
	if err != nil {
		return err
	}

	renewals, err := renewal.New(renewal.Deps{
		Ledger:        ledger,
		Subscriptions: subs,
		Intents:       intents,
	},
		renewal.WithConfig(renewalCfg),
		renewal.WithLogger(log),
		renewal.WithMetrics(renewal.NewMetrics(reg)),
		renewal.WithAnalytics(emitters),
	)
	if err != nil {
		return err
	}

	sweeper, err := outbox.NewSweeper(intentStore, outboxCfg,
		outbox.WithSweeperLogger(log),
		outbox.WithSweeperMetrics(outbox.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}
	if err := sweeper.Register(orchestrator.ReconcileHandler(), renewals.RefundHandler()); err != nil {
		return err
	}
	cancelStart()

	ops := httpserver.NewFromConfig(opsCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "billingd started",
		slog.String("currency", ledger.Currency()),
		slog.Int("products", len(catalog.List())),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return renewals.Run(ctx) })
	g.Go(func() error { return ops.Run(ctx, httpserver.Handler(reg, log, checks...)) })
	g.Go(func() error { return reloadCatalogOnHangup(ctx, catalog, log) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("billingd stopped")
	return nil
}

func loadClaimRules(path string) (*coupon.ClaimRules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claim rules: %w", err)
	}
	defer f.Close()
	return coupon.LoadClaimRules(f)
}

// reloadCatalogOnHangup re-reads the product catalog on SIGHUP. A failed
// reload keeps the previous products.
func reloadCatalogOnHangup(ctx context.Context, catalog *subscription.Catalog, log *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := catalog.Reload(ctx); err != nil {
				log.ErrorContext(ctx, "catalog reload failed", logger.Error(err))
				continue
			}
			log.InfoContext(ctx, "catalog reloaded", slog.Int("products", len(catalog.List())))
		}
	}
}
