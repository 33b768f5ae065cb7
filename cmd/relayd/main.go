// relayd runs the relay dispatch loops as a standalone daemon: it opens
// the configured store, wires an engine, and polls the outbox until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/lsendel/relay/engine"
	"github.com/lsendel/relay/sender"
	"github.com/lsendel/relay/store"
	bunstore "github.com/lsendel/relay/store/bun"
	"github.com/lsendel/relay/store/memory"
	"github.com/lsendel/relay/store/postgres"
	redisstore "github.com/lsendel/relay/store/redis"
)

func main() {
	configPath := flag.String("config", "relayd.yaml", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.logger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("relayd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("close store", slog.String("error", closeErr.Error()))
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	logger.Info("store ready", slog.String("backend", cfg.Store.Backend))

	opts := []engine.Option{
		engine.WithConfig(cfg.dispatchConfig()),
		engine.WithLogger(logger),
	}
	if cfg.Email.APIKey != "" {
		opts = append(opts, engine.WithEmailSender(
			sender.NewEmailAPI(cfg.Email.Endpoint, cfg.Email.APIKey, cfg.Email.From),
		))
	}

	eng, err := engine.New(st, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Info("relayd started",
		slog.String("worker_id", eng.Pool().WorkerID().String()),
		slog.Duration("poll_interval", eng.Config().PollInterval),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// The signal context is already done; give shutdown its own deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), eng.Config().ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop engine: %w", err)
	}

	logger.Info("graceful shutdown complete")
	return nil
}

// openStore builds the configured storage backend. postgres is the
// authoritative production backend; bun is the ORM flavor over the same
// schema; redis suits high-throughput ephemeral workloads; memory is for
// local development.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return postgres.New(ctx, cfg.Store.DSN, postgres.WithLogger(logger))

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Store.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr: cfg.Store.RedisAddr,
			DB:   cfg.Store.RedisDB,
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil

	case "memory":
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
