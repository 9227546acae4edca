package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/larriantoniy/tg_license_bot/internal/adapters/exchange"
	"github.com/larriantoniy/tg_license_bot/internal/adapters/neuro"
	"github.com/larriantoniy/tg_license_bot/internal/adapters/ops"
	"github.com/larriantoniy/tg_license_bot/internal/adapters/registry"
	"github.com/larriantoniy/tg_license_bot/internal/adapters/tg"
	"github.com/larriantoniy/tg_license_bot/internal/config"
	"github.com/larriantoniy/tg_license_bot/internal/metrics"
	"github.com/larriantoniy/tg_license_bot/internal/ports"
	"github.com/larriantoniy/tg_license_bot/internal/useCases"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// разбирается вместе с -config внутри config.Load
var authMode = flag.Bool("auth", false, "authorize sessions interactively and exit")

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.Env)
	cfgRepo := config.NewJSONSessionConfigRepo(cfg.BaseDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if *authMode {
		if err := authorize(ctx, cfg, cfgRepo, logger); err != nil {
			logger.Error("auth failed", "error", err)
			os.Exit(1)
		}
		logger.Info("auth done")
		return
	}

	if err := run(ctx, cfg, cfgRepo, logger); err != nil {
		logger.Error("run error", "error", err)
		os.Exit(1)
	}

	logger.Info("exit")
}

func run(ctx context.Context, cfg *config.AppConfig, cfgRepo ports.SessionConfigRepo, logger *slog.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	flowMetrics := metrics.NewFlow(promReg)

	sessions, checks, closeRegistry, err := setupRegistry(ctx, cfg.Registry, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	exchanger := exchange.NewClient(cfg.Exchange.APIURL, cfg.Exchange.Timeout(), logger)

	var neuroProc ports.NeuroProcessor
	if cfg.AutoReply.Enabled {
		neuroProc = neuro.NewNeuro(cfg.AutoReply, logger)
		logger.Info("auto reply enabled", "model", cfg.AutoReply.Model)
	}

	factory := func(sc *ports.SessionConfig, l *slog.Logger) (ports.ChatClient, error) {
		cli, err := tg.NewClient(cfg.ApiID, cfg.ApiHash, cfg.BaseDir, sc, l, tg.ClientModeRuntime)
		if err != nil {
			return nil, err
		}
		return cli, nil
	}

	triggers := useCases.TriggerConfig{
		Keyword:           cfg.Exchange.Keyword,
		Aliases:           cfg.Exchange.Aliases,
		AllowPlainTrigger: cfg.Exchange.PlainTriggerAllowed(),
	}
	flowCfg := useCases.FlowConfig{
		MaxDays:     cfg.Exchange.MaxDays,
		WaitTimeout: cfg.Exchange.WaitPeriod(),
	}

	// у каждого клиента свой роутер ожиданий, реестр сессий общий
	newDispatcher := func(cli ports.ChatClient, l *slog.Logger) *useCases.Dispatcher {
		router := useCases.NewRouter()
		flows := useCases.NewController(l, cli, exchanger, sessions, router, flowMetrics, flowCfg)

		var handlers []useCases.Handler
		if neuroProc != nil {
			handlers = append(handlers, useCases.NewAutoReplier(l, cli, neuroProc, cfg.AutoReply.MinInterval))
		}
		return useCases.NewDispatcher(l, router, flows, triggers, handlers...)
	}

	runner := useCases.NewRunner(cfgRepo, logger, factory, newDispatcher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runner.StartAll(gctx); err != nil {
			return fmt.Errorf("runner.StartAll: %w", err)
		}
		if gctx.Err() == nil {
			return errors.New("all sessions stopped")
		}
		return nil
	})

	if cfg.Ops.Addr != "" {
		srv := ops.NewServer(cfg.Ops.Addr, promReg, logger, checks)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return g.Wait()
}

func setupRegistry(ctx context.Context, cfg config.RegistryConfig, logger *slog.Logger) (ports.SessionRegistry, map[string]ops.Check, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		reg := registry.NewRedisRegistry(rdb, cfg.Prefix, cfg.LockTTL, logger)
		if err := reg.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}

		logger.Info("session registry: redis", "addr", cfg.RedisAddr, "lock_ttl", cfg.LockTTL)
		checks := map[string]ops.Check{"redis": reg.Ping}
		return reg, checks, func() { _ = rdb.Close() }, nil
	default:
		logger.Info("session registry: memory")
		return registry.NewMemoryRegistry(), nil, func() {}, nil
	}
}

// authorize поднимает TDLib для каждой сессии с промптами в консоли
func authorize(ctx context.Context, cfg *config.AppConfig, cfgRepo ports.SessionConfigRepo, logger *slog.Logger) error {
	names, err := cfgRepo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l := logger.With("session", name)
		sc, err := cfgRepo.GetSessionConfig(ctx, name)
		if err != nil {
			l.Error("GetSessionConfig failed", "error", err)
			continue
		}

		cli, err := tg.NewClient(cfg.ApiID, cfg.ApiHash, cfg.BaseDir, sc, l, tg.ClientModeAuth)
		if err != nil {
			return fmt.Errorf("session %s: %w", name, err)
		}
		cli.Close()
	}
	return nil
}

func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case config.EnvDev:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		logger = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return logger
}
