package config_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/config"
)

func TestWatchForChangesAppliesNewLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".deptqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- config.WatchForChanges(ctx, dir, level, slog.Default()) }()

	// Give the watcher time to start before editing the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	require.Eventually(t, func() bool {
		return level.Level() == slog.LevelDebug
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
