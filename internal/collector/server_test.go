package collector

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/raphi011/testops/internal/model"
	"github.com/raphi011/testops/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneRunsDeletesRunsOutsideRetention(t *testing.T) {
	s, err := storage.New("", slog.Default())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertRun(ctx, model.Run{ID: "old", Start: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, s.InsertRun(ctx, model.Run{ID: "recent", Start: now.Add(-24 * time.Hour)}))

	c := New(DefaultConfig(), s, slog.Default())
	c.now = func() time.Time { return now }

	c.pruneRuns()

	runs, err := s.LoadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].ID)
}

func TestServeAndShutdown(t *testing.T) {
	s, err := storage.New("", slog.Default())
	require.NoError(t, err)
	defer s.Close()

	config := DefaultConfig()
	config.Port = 0

	c := New(config, s, slog.Default())
	require.NoError(t, c.Listen())
	assert.NotZero(t, c.Port())

	done := make(chan error)
	go func() {
		done <- c.Serve()
	}()

	require.NoError(t, c.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestInvalidRetentionScheduleFailsListen(t *testing.T) {
	s, err := storage.New("", slog.Default())
	require.NoError(t, err)
	defer s.Close()

	config := DefaultConfig()
	config.Port = 0
	config.RetentionSchedule = "not a schedule"

	c := New(config, s, slog.Default())

	assert.Error(t, c.Listen())
	assert.NoError(t, c.Shutdown(context.Background()))
}
