package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/atelier-erp/atelier/internal/app"
	"github.com/atelier-erp/atelier/migrations"
)

func main() {
	flag.Parse()
	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	sqlDB, err := goose.OpenDBWithDriver("pgx", cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.RunContext(context.Background(), command, sqlDB, ".", flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logger.Error("migrate", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied", slog.String("command", command))
}
