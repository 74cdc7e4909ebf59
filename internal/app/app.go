package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/otogram/backend/internal/config"
	"github.com/otogram/backend/internal/handlers"
	"github.com/otogram/backend/internal/httpserver"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/models"
)

const usage = "usage: otogram [--config file] <serve | migrate [up|status] | promote <username> <role> | sweep>"

// Run bootstraps the Otogram backend application.
func Run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("otogram", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}

	switch rest[0] {
	case "serve", "migrate", "promote", "sweep":
	default:
		return fmt.Errorf("unknown command %q\n%s", rest[0], usage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch rest[0] {
	case "serve":
		return serve(ctx, cfg)
	case "migrate":
		return runMigrations(ctx, cfg, rest[1:], os.Stdout)
	case "promote":
		return withRuntime(ctx, cfg, func(rt *runtime) error {
			return runPromote(ctx, rt, rest[1:], os.Stdout)
		})
	default:
		return withRuntime(ctx, cfg, func(rt *runtime) error {
			return runSweep(ctx, rt, os.Stdout)
		})
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Sweep.Enabled {
		go rt.sweeper().Run(ctx, cfg.Sweep.Interval)
	}

	deps, err := rt.dependencies(logger)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(deps))

	logger.Info("starting http server",
		slog.Int("port", cfg.AppPort),
		slog.String("database", cfg.Database.Driver),
		slog.String("storage", cfg.Storage.Backend),
		slog.Bool("redis_lock", cfg.Redis.Enabled),
	)

	return srv.ListenAndServe(ctx)
}

func withRuntime(ctx context.Context, cfg config.Config, fn func(rt *runtime) error) error {
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// runPromote sets a user's role from the command line, which is how the
// first admin account is created.
func runPromote(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: otogram promote <username> <role>")
	}

	role, err := models.ParseRole(args[1])
	if err != nil {
		return err
	}

	user, err := rt.users.FindByUsername(ctx, args[0])
	if err != nil {
		return fmt.Errorf("find user %q: %w", args[0], err)
	}

	updated, err := rt.users.UpdateRole(ctx, user.ID, role)
	if err != nil {
		return fmt.Errorf("update role for %q: %w", args[0], err)
	}

	fmt.Fprintf(out, "%s is now %s\n", updated.Username, updated.Role)
	return nil
}

func runSweep(ctx context.Context, rt *runtime, out io.Writer) error {
	removed, err := rt.sweeper().SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %d orphaned blobs\n", removed)
	return nil
}
