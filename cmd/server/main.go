package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/opentalk/internal/adapters/http"
	wsignal "github.com/dkeye/opentalk/internal/adapters/signal"
	"github.com/dkeye/opentalk/internal/app"
	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/config"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/report"
	"github.com/dkeye/opentalk/internal/runner"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/storage/memory"
	"github.com/dkeye/opentalk/internal/storage/redisstore"
	"github.com/dkeye/opentalk/internal/ticket"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config loading can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context) error {
	loader, err := config.NewLoader(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	loader.Watch(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Log.ZerologLevel())
		log.Info().Str("level", next.Log.ZerologLevel().String()).Msg("log level reloaded")
	})

	clk := clock.New()
	hub := exchange.NewHub(0)

	var (
		backend storage.Backend
		client  *redis.Client
		relay   *exchange.RedisRelay
	)
	if cfg.Redis.URL != "" {
		store, err := redisstore.Open(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		client = store.Client()
		defer client.Close()
		backend = storage.WithReadRetry(store)
		relay = exchange.NewRedisRelay(client, hub)
	} else {
		log.Warn().Msg("no redis configured, state is kept in process")
		backend = memory.New(clk)
	}

	var assetStore assets.Store = assets.NewMemory(clk)
	if cfg.Assets.Dir != "" {
		dir, err := assets.NewDir(cfg.Assets.Dir, clk)
		if err != nil {
			return fmt.Errorf("open asset dir: %w", err)
		}
		assetStore = dir
	}

	pool := report.NewPool(cfg.Report.Workers, cfg.Report.Queue)
	defer pool.Close()

	builders, err := app.Builders(cfg.Modules, app.ModuleDeps{
		Redis:     client,
		Generator: report.NewHTMLGenerator(),
		Assets:    assetStore,
		Clock:     clk,
	})
	if err != nil {
		return err
	}

	tickets := ticket.NewService(backend, ticket.Options{
		TicketTTL:     cfg.Signaling.TicketTTL,
		ResumptionTTL: cfg.Signaling.ResumptionTTL,
	})
	directory := app.NewDirectory(cfg.Directory)
	sessions := app.NewRegistry(runner.Deps{
		Storage:   backend,
		Exchange:  hub,
		Resumer:   tickets,
		Directory: directory,
		Builders:  builders,
		Clock:     clk,
		Spawner:   pool,
		Options:   app.RunnerOptions(cfg.Signaling, runner.DefaultOptions),
	})

	var startLimit *wsignal.KeyedLimiter
	if cfg.Signaling.StartLimit > 0 && cfg.Signaling.StartInterval > 0 {
		startLimit = wsignal.NewKeyedLimiter(clk, cfg.Signaling.StartLimit, cfg.Signaling.StartInterval)
	}

	r := router.SetupRouter(ctx, cfg, &router.Server{
		Auth:      app.NewAuthenticator(cfg.Directory.Users, cfg.Auth),
		Tickets:   tickets,
		Directory: directory,
		Storage:   backend,
		Exchange:  hub,
		Sessions:  sessions,
		Policy:    app.ThresholdPolicy{Limit: cfg.Signaling.SlowClientLimit},
		Conn: wsignal.Options{
			ReadLimit:    cfg.Signaling.ReadLimit,
			PingPeriod:   cfg.Signaling.PingPeriod,
			SendBuffer:   cfg.Signaling.SendBuffer,
			InboundRate:  cfg.Signaling.InboundRate,
			InboundBurst: cfg.Signaling.InboundBurst,
		},
		StartLimit: startLimit,
		Clock:      clk,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("OpenTalk signaling started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.DefaultSessionTimeout)
		defer shutdownCancel()
		if err := sessions.CancelAll(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("sessions did not finish in time")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Str("level", cfg.Log.ZerologLevel().String()).Msg("config loaded")
}
