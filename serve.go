package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gluk-w/boxterm/internal/auth"
	"github.com/gluk-w/boxterm/internal/config"
	"github.com/gluk-w/boxterm/internal/database"
	"github.com/gluk-w/boxterm/internal/engine"
	"github.com/gluk-w/boxterm/internal/execbridge"
	"github.com/gluk-w/boxterm/internal/handlers"
	"github.com/gluk-w/boxterm/internal/history"
	"github.com/gluk-w/boxterm/internal/logging"
	"github.com/gluk-w/boxterm/internal/metrics"
	"github.com/gluk-w/boxterm/internal/orchestrator"
	"github.com/gluk-w/boxterm/internal/server"
	"github.com/gluk-w/boxterm/internal/terminal"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	cfg := &config.Cfg

	logging.Init(cfg.LogFile(), cfg.LogLevel)
	defer logging.Close()

	spec, err := cfg.CreateSpec()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := engine.NewCLI(cfg.EngineBinary, nil)
	var eng engine.Engine = cli
	if cfg.Engine == "docker" {
		d, err := engine.NewDocker(ctx, cfg.DockerHost)
		if err != nil {
			return fmt.Errorf("docker engine: %w", err)
		}
		defer d.Close()
		eng = d
	}
	log.Info().Str("engine", eng.Name()).Str("image", spec.Image).Msg("container engine ready")

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var reg *prometheus.Registry
	var mt *metrics.Metrics
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mt = metrics.New(reg)
	}

	mode, err := terminal.ParseMode(cfg.TerminalMode)
	if err != nil {
		return err
	}
	terminals := terminal.NewManager(
		terminal.NewSpawner(cli, eng, mode),
		terminal.WithLimit(cfg.MaxTerminalSessions),
		terminal.WithMetrics(mt),
	)

	sessions := auth.NewSessionStore(cfg.SessionTTL)
	h := handlers.New(handlers.Handler{
		Sessions:       sessions,
		Credentials:    auth.Credentials{Username: cfg.Username, Password: cfg.Password},
		History:        store,
		Orchestrator:   orchestrator.New(eng, orchestrator.WithMetrics(mt)),
		Exec:           execbridge.New(eng, store, execbridge.WithMetrics(mt), execbridge.WithWorkers(cfg.ExecWorkers), execbridge.WithOutputLimit(cfg.ExecOutputLimit)),
		Terminals:      terminals,
		CreateSpec:     spec,
		DefaultCommand: cfg.DefaultCommand,
		OriginPatterns: cfg.AllowedOrigins,
	})

	sched := cron.New()
	if _, err := sched.AddFunc("@every 10m", func() {
		if n := sessions.Cleanup(); n > 0 {
			log.Info().Int("expired", n).Msg("auth sessions pruned")
		}
	}); err != nil {
		return fmt.Errorf("schedule session cleanup: %w", err)
	}
	sched.Start()

	opts := server.Options{}
	if reg != nil {
		opts.Metrics = reg
	}
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(h, opts),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("history", cfg.HistoryBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	log.Info().Msg("shutting down")

	<-sched.Stop().Done()
	terminals.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

func openHistory(cfg *config.Settings) (history.Store, error) {
	switch history.StoreType(cfg.HistoryBackend) {
	case history.StoreTypeSQLite:
		db, err := database.Open(cfg.DatabaseFile())
		if err != nil {
			return nil, err
		}
		return history.New(history.StoreTypeSQLite, history.WithDB(db))
	case history.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return history.New(history.StoreTypeRedis, history.WithRedisClient(client))
	default:
		return history.New(history.StoreTypeFile, history.WithDir(cfg.HistoryPath()))
	}
}
