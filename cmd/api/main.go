package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/expenseflow/internal/blob"
	"github.com/geocoder89/expenseflow/internal/config"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	httpx "github.com/geocoder89/expenseflow/internal/http"
	"github.com/geocoder89/expenseflow/internal/http/middlewares"
	"github.com/geocoder89/expenseflow/internal/identity"
	"github.com/geocoder89/expenseflow/internal/notifications"
	"github.com/geocoder89/expenseflow/internal/observability"
	"github.com/geocoder89/expenseflow/internal/redisclient"
	"github.com/geocoder89/expenseflow/internal/repo/memory"
	"github.com/geocoder89/expenseflow/internal/service"
	"github.com/geocoder89/expenseflow/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
			ServiceName: "expenseflow",
			Env:         cfg.Env,
			Endpoint:    cfg.OTELEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				sctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(sctx)
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	users, err := identity.NewDirectory(identity.DemoSeeds(), cfg.BcryptCost)
	if err != nil {
		log.Error("identity directory init failed", "err", err)
		os.Exit(1)
	}

	// session persistence
	var (
		sessionStore session.Store = session.NewMemoryStore(cfg.SessionTTL)
		ping         func(context.Context) error
	)
	if cfg.SessionBackend == "redis" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		pctx, cancel := config.WithTimeout(2 * time.Second)
		if err := rc.Ping(pctx); err != nil {
			// sessions degrade to signed-out until redis is reachable
			log.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()

		sessionStore = session.NewRedisStore(rc.Raw(), cfg.SessionTTL)
		ping = rc.Ping
	}

	sessions := session.NewManager(sessionStore, users, log, session.Options{AllowSwitchUser: cfg.EnableSwitchUser})
	go sessions.RunSweeper(ctx, time.Minute, cfg.SessionIdle)

	repo := memory.NewExpensesRepo()
	if cfg.SeedSampleData {
		// sample claims belong to the first demo employee
		for _, u := range users.All(ctx) {
			if u.Role == user.RoleEmployee {
				repo.Seed(memory.SampleExpenses(u.ID)...)
				log.Info("sample expenses seeded", "owner_id", u.ID)
				break
			}
		}
	}

	blobs := blob.NewRetryingStore(
		blob.NewLocalStore(cfg.UploadDir, blob.DefaultURLPrefix),
		blob.RetryConfig{Attempts: cfg.UploadRetryAttempts, Timeout: cfg.UploadTimeout},
		log,
	)

	var notifier notifications.Notifier = notifications.NewLogNotifier(log)
	if cfg.Email.Enabled {
		notifier = notifications.NewEmailNotifier(notifications.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}
	notifier = notifications.NewProtectedNotifier(notifier, notifications.ProtectedNotifierConfig{
		OnStateChange: func(from, to notifications.BreakerState) {
			log.Warn("notification breaker state changed", "from", from, "to", to)
		},
	})

	expenses := service.NewExpenses(service.Deps{
		Repo:             repo,
		Blobs:            blobs,
		Users:            users,
		Notifier:         notifier,
		Prom:             prom,
		Log:              log,
		ReceiptURLPrefix: blob.DefaultURLPrefix,
		CacheTTL:         cfg.CacheTTL,
	})

	loginLimiter := middlewares.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	go pruneLoop(ctx, loginLimiter, cfg.LoginRateWindow)

	var shuttingDown atomic.Bool

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:              cfg.Env,
		Log:              log,
		Prom:             prom,
		Gatherer:         reg,
		Sessions:         sessions,
		Expenses:         expenses,
		Ping:             ping,
		ShuttingDown:     shuttingDown.Load,
		UploadDir:        cfg.UploadDir,
		ReceiptURLPrefix: blob.DefaultURLPrefix,
		CORSOrigins:      cfg.CORSAllowedOrigins,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		LoginLimiter:     loginLimiter,
		SessionTTL:       cfg.SessionTTL,
		CookieSecure:     cfg.CookieSecure,
		AllowSwitchUser:  cfg.EnableSwitchUser,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"session_backend", cfg.SessionBackend,
			"switch_user", cfg.EnableSwitchUser,
		)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shuttingDown.Store(true)
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func pruneLoop(ctx context.Context, rl *middlewares.RateLimiter, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Prune()
		}
	}
}
