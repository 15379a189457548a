// Package main implements the bookrender server, which renders book
// collections into downloadable documents in the background and serves
// their status and artifacts over HTTP.
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

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/phrazzld/bookrender/internal/config"
	"github.com/phrazzld/bookrender/internal/platform/logger"
	"github.com/phrazzld/bookrender/internal/platform/postgres"
)

// cliFlags holds the command-line flags.
type cliFlags struct {
	configFile string
	envFile    string
	migrate    string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("bookrender", flag.ContinueOnError)
	fs.StringVarP(&f.configFile, "config", "c", "", "path to the YAML config file (default ./config.yaml if present)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	fs.StringVar(&f.migrate, "migrate", "", "run a database migration command (up, down, status, version) and exit")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("bookrender failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", flags.envFile, err)
		}
	}

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	// maxprocs.Set only fails for an invalid GOMAXPROCS, in which case the
	// runtime default stays in effect.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.migrate != "" {
		return runMigrations(ctx, cfg, flags.migrate, log)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"formats", len(cfg.Render.Formats))

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

// runMigrations applies a goose command to the configured database.
func runMigrations(ctx context.Context, cfg *config.Config, command string, log *slog.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations require the postgres driver, configured driver is %q", cfg.Database.Driver)
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	log.Info("running database migrations", "command", command)
	return postgres.Migrate(ctx, db, command, log)
}
