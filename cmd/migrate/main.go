package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/migrate"
)

type flags struct {
	cmd     string
	dir     string
	name    string
	version string
}

// fileCommands only touch the migrations directory.
var fileCommands = map[string]func(flags) error{
	"create": func(f flags) error {
		if f.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(f.dir, f.name, time.Now())
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(f flags) error {
		versions, err := migrate.ValidateDir(f.dir)
		if err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Printf("migration validation passed (%s)\n", strings.Join(versions, ", "))
		return nil
	},
}

// dbCommands run goose against the postgres document store.
var dbCommands = map[string]func(context.Context, *sql.DB, flags) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, sqlDB *sql.DB, f flags) error {
		if f.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, f.dir, f.version)
	},
}

func gooseCommand(name string) func(context.Context, *sql.DB, flags) error {
	return func(ctx context.Context, sqlDB *sql.DB, f flags) error {
		if err := migrate.Run(ctx, sqlDB, f.dir, name); err != nil {
			return fmt.Errorf("goose %s: %w", name, err)
		}
		return nil
	}
}

func main() {
	var f flags
	flag.StringVar(&f.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&f.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&f.name, "name", "", "migration name (for create)")
	flag.StringVar(&f.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.OptionsFor("migrate", cfg.App))
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": f.cmd,
		"dir": f.dir,
	})

	if err := run(ctx, cfg, logg, f); err != nil {
		logg.Error(ctx, "migrate failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, f flags) error {
	if fn, ok := fileCommands[f.cmd]; ok {
		return fn(f)
	}
	fn, ok := dbCommands[f.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value: %s", f.cmd)
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return errors.New("migrations only apply to the postgres document store")
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	logg.Info(ctx, "migrate ready")
	return fn(ctx, sqlDB, f)
}
