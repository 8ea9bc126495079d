// Package collector receives the results of test runs from remote workers
// and persists them.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/raphi011/testops/internal/metric"
	"github.com/raphi011/testops/internal/storage"
	"github.com/robfig/cron/v3"
)

type Config struct {
	// Port the http server listens on, 0 picks a random port.
	Port int
	// Retention is how long runs are kept, 0 keeps them forever.
	Retention time.Duration
	// RetentionSchedule defines how often old runs are deleted. For the format see
	// https://pkg.go.dev/github.com/robfig/cron#hdr-CRON_Expression_Format
	RetentionSchedule string
}

func DefaultConfig() Config {
	return Config{
		Port:              1337,
		Retention:         30 * 24 * time.Hour,
		RetentionSchedule: "@daily",
	}
}

type Server struct {
	config  Config
	storage *storage.SQLite
	cron    *cron.Cron
	now     func() time.Time

	httpServer *http.Server
	listener   net.Listener

	log *slog.Logger
}

func New(config Config, s *storage.SQLite, log *slog.Logger) *Server {
	return &Server{
		config:  config,
		storage: s,
		now:     time.Now,
		log:     log,
	}
}

// Listen opens the listener of the http server and starts the retention
// schedule, Serve must be called afterwards.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.config.Port, err)
	}

	if err := s.startSchedules(); err != nil {
		l.Close()
		return err
	}

	s.listener = l
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve serves http requests until Shutdown is called.
func (s *Server) Serve() error {
	s.log.Info("listening", "port", s.Port())

	if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) startSchedules() error {
	if s.config.Retention == 0 {
		return nil
	}

	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.config.RetentionSchedule, s.pruneRuns)
	if err != nil {
		return fmt.Errorf("adding retention schedule %q: %w", s.config.RetentionSchedule, err)
	}

	s.cron.Start()

	return nil
}

// pruneRuns deletes all runs older than the configured retention.
func (s *Server) pruneRuns() {
	before := s.now().Add(-s.config.Retention)

	deleted, err := s.storage.DeleteRunsBefore(context.Background(), before)
	if err != nil {
		s.log.Error("deleting old runs failed", "error", err)
		return
	}

	metric.CollectorRunsPruned.Add(float64(deleted))

	s.log.Info("deleted old runs", "runs", deleted, "before", before)
}
