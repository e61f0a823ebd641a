package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// needsDB reports whether the command talks to postgres. create and validate only touch files.
func (o options) needsDB() bool {
	return o.cmd != "create" && o.cmd != "validate"
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	fs.StringVar(&o.dir, "dir", "", "migrations directory on disk; empty uses the migrations compiled into the binary")
	fs.StringVar(&o.name, "name", "", "migration name (for create)")
	fs.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.cmd {
	case "up", "down", "status", "validate":
	case "create":
		if o.name == "" {
			return o, errors.New("missing -name for create")
		}
	case "version":
		if o.version == "" {
			return o, errors.New("missing -version for version command")
		}
	default:
		return o, fmt.Errorf("unknown -cmd value: %s", o.cmd)
	}
	return o, nil
}

func main() {
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := run(ctx, cfg, opts, logg); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logg *logger.Logger) error {
	if !opts.needsDB() {
		return runOffline(ctx, opts, logg)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql database: %w", err)
	}

	logg.Info(ctx, "migrate ready")
	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
}

func runOffline(ctx context.Context, opts options, logg *logger.Logger) error {
	switch opts.cmd {
	case "create":
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		if err := migrate.CreateSQLMigration(dir, opts.name); err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		logg.Info(logg.WithField(ctx, "name", opts.name), "migration created")
		return nil
	case "validate":
		validate := migrate.ValidateEmbedded
		if opts.dir != "" {
			validate = func() error { return migrate.ValidateDir(opts.dir) }
		}
		if err := validate(); err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		logg.Info(ctx, "migration validation passed")
		return nil
	}
	return fmt.Errorf("command %s needs a database", opts.cmd)
}
