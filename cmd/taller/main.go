package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/taller-erp/taller/cmd/taller/cli"
	"github.com/taller-erp/taller/internal/app"
	"github.com/taller-erp/taller/internal/observability"
	"github.com/taller-erp/taller/internal/platform/cache"
	"github.com/taller-erp/taller/internal/platform/db"
	"github.com/taller-erp/taller/internal/shared"
)

const usage = `usage: taller <command> [flags]

commands:
  serve          run the HTTP API (default)
  migrate        apply database migrations
  catalog-sync   compare or upsert the shipped permission catalog
  resync         clear permission overrides for users
  jobs           enqueue or inspect background jobs
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		return exitCode(logger, serve(ctx, cfg, logger))
	case "migrate":
		return exitCode(logger, migrate(ctx, cfg))
	case "catalog-sync":
		return catalogSync(ctx, cfg, logger, args)
	case "resync":
		return resync(ctx, cfg, logger, args)
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func exitCode(logger *slog.Logger, err error) int {
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	svc, err := buildServices(cfg, logger, pool, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	sessions := shared.NewSessionManager(redisClient, "taller_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	router := app.NewRouter(*buildRouter(cfg, logger, pool, svc, sessions, inspector, metrics))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrate(ctx context.Context, cfg *app.Config) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool)
}

func catalogSync(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	flags := pflag.NewFlagSet("catalog-sync", pflag.ContinueOnError)
	apply := flags.Bool("apply", false, "upsert the shipped definitions")
	jsonOut := flags.Bool("json", false, "print the summary as JSON")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	svc, err := buildServices(cfg, logger, pool, nil)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer func() { _ = svc.close() }()

	mode := cli.CatalogSyncModeDry
	if *apply {
		mode = cli.CatalogSyncModeApply
	}
	return cli.NewCatalogCLI(svc.catalog).SyncCommand(ctx, cli.CatalogSyncOptions{Mode: mode, JSONOutput: *jsonOut})
}

func resync(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	flags := pflag.NewFlagSet("resync", pflag.ContinueOnError)
	userIDs := flags.Int64Slice("user", nil, "user id to resync (repeatable)")
	keepManual := flags.Bool("keep-manual", false, "keep EXTRA overrides granted by administrators")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	svc, err := buildServices(cfg, logger, pool, nil)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer func() { _ = svc.close() }()

	return cli.ResyncCommand(ctx, svc.rbac, cli.ResyncOptions{UserIDs: *userIDs, KeepManual: *keepManual})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: taller jobs enqueue <task> | taller jobs stats")
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "enqueue":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: taller jobs enqueue audit:prune [--days N]")
			return 2
		}
		flags := pflag.NewFlagSet("jobs enqueue", pflag.ContinueOnError)
		days := flags.Int("days", 0, "audit retention in days (default: worker setting)")
		if err := flags.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], cli.TriggerOptions{RetentionDays: *days})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}
