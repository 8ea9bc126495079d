package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/raphi011/testops/internal/collector"
	"github.com/raphi011/testops/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("unable to load .env file", "error", err)
	}

	config := collector.DefaultConfig()

	dbFile := flag.String("d", "testops.db", "sqlite database file, empty for an in-memory database")
	flag.IntVar(&config.Port, "p", config.Port, "port used by the server")
	flag.DurationVar(&config.Retention, "retention", config.Retention, "how long runs are kept, 0 keeps them forever")
	flag.StringVar(&config.RetentionSchedule, "retention-schedule", config.RetentionSchedule, "cron schedule of the retention job")

	flag.Parse()

	if err := run(config, *dbFile); err != nil {
		slog.Error(err.Error())
		os.Exit(-1)
	}
}

func run(config collector.Config, dbFile string) error {
	log := slog.Default()

	s, err := storage.New(dbFile, log)
	if err != nil {
		return err
	}
	defer s.Close()

	c := collector.New(config, s, log)

	if err := c.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.Shutdown(shutdownCtx); err != nil {
			log.Error("shutting down", "error", err)
		}
	}()

	return c.Serve()
}
