package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/modules/recovery"
	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

type appConfig struct {
	PlansPath   string        `env:"BILLING_PLANS_PATH" envDefault:"plans.yml"`
	RedisURL    string        `env:"REDIS_URL"`
	AlertWindow time.Duration `env:"BILLING_ALERT_WINDOW" envDefault:"15m"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg)
	logger.SetAsDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("billingd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	catalog, err := plan.NewCatalog(ctx, plan.NewYAMLSource(appCfg.PlansPath))
	if err != nil {
		return err
	}

	store := billing.NewPGStore(pool)

	// Operator alerts and user notices go out through Postmark when
	// configured, otherwise to the structured log. Alert dedup rides on
	// Redis when a URL is present.
	var (
		alerts notifier.AlertNotifier
		users  notifier.UserNotifier
	)
	if os.Getenv("POSTMARK_SERVER_TOKEN") != "" {
		var pmCfg notifier.PostmarkConfig
		config.MustLoad(&pmCfg)
		postmark, err := notifier.NewPostmarkNotifier(pmCfg)
		if err != nil {
			return err
		}
		alerts, users = postmark, postmark
	} else {
		ln := notifier.NewLogNotifier(log)
		alerts, users = ln, ln
	}
	if appCfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			return err
		}
		alerts = notifier.NewAlertThrottle(alerts, redis.NewClient(redisOpts), appCfg.AlertWindow, log)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	events := billingevent.NewLogger(
		billing.EventStorage{S: store},
		billingevent.WithAlerts(alerts),
		billingevent.WithLogger(log),
		billingevent.WithMetrics(m),
	)
	defer events.Wait()

	engine := billing.NewEngine(store, catalog, events,
		billing.WithAlerts(alerts),
		billing.WithUserNotifier(users),
		billing.WithMetrics(m),
		billing.WithLogger(log),
	)
	if err := registerVerifiers(ctx, engine, log); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, pg.Healthcheck(pool)))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/internal/billing", recovery.NewService(engine, recovery.WithLogger(log)).Handle())

	var srvCfg httpserver.Config
	config.MustLoad(&srvCfg)
	return httpserver.New(srvCfg, httpserver.WithLogger(log)).Run(ctx, r)
}

// registerVerifiers wires every payment platform that has credentials in
// the environment. At least one platform must be configured.
func registerVerifiers(ctx context.Context, engine *billing.Engine, log *slog.Logger) error {
	registered := 0

	if key := os.Getenv("PAYSTACK_SECRET_KEY"); key != "" {
		var cfg verifier.PaystackConfig
		config.MustLoad(&cfg)
		v, err := verifier.NewPaystackVerifier(cfg)
		if err != nil {
			return err
		}
		billing.WithVerifier(verifier.PlatformPaystack, v)(engine)
		registered++
	}

	if secret := os.Getenv("APPSTORE_SHARED_SECRET"); secret != "" {
		var cfg verifier.AppStoreConfig
		config.MustLoad(&cfg)
		v, err := verifier.NewAppStoreVerifier(cfg)
		if err != nil {
			return err
		}
		billing.WithVerifier(verifier.PlatformAppStore, v)(engine)
		registered++
	}

	var gpCfg verifier.GooglePlayConfig
	config.MustLoad(&gpCfg)
	if gpCfg.CredentialsJSON != "" || gpCfg.AllowUnverified {
		v, err := verifier.NewGooglePlayVerifier(ctx, gpCfg, log)
		if err != nil {
			return err
		}
		billing.WithVerifier(verifier.PlatformGooglePlay, v)(engine)
		registered++
	}

	if key := os.Getenv("PADDLE_API_KEY"); key != "" {
		var cfg verifier.PaddleConfig
		config.MustLoad(&cfg)
		v, err := verifier.NewPaddleVerifier(cfg)
		if err != nil {
			return err
		}
		billing.WithVerifier(verifier.PlatformPaddle, v)(engine)
		registered++
	}

	if registered == 0 {
		log.Warn("no payment platforms configured, reconciliation will reject everything")
	}
	return nil
}
