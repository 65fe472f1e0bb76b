// Command migrate applies the embedded goose migrations to the configured database.
//
//	migrate [up|down|status|version|reset|up-to VERSION]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories/postgres"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall migration timeout")
	flag.Parse()

	command := "up"
	args := flag.Args()
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	env, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(env["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("migrate")
	goose.SetLogger(observability.NewPrintfAdapter(logger))

	url := strings.TrimSpace(env["API_DATABASE_URL"])
	if url == "" {
		logger.Fatal("API_DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := postgres.Open(ctx, postgres.Config{URL: url, MaxConns: 2})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	if err := postgres.MigrateCommand(ctx, store.Pool(), command, args...); err != nil {
		logger.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("migration finished", zap.String("command", command))
}
