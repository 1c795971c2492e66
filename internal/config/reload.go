package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/northbound/deptqa/internal/logging"
	"github.com/northbound/deptqa/internal/watcher"
)

// WatchForChanges watches dir for edits to .deptqa.yaml/.deptqa.yml and
// applies a changed logging.level to level immediately, so an operator can
// turn on debug logging on a running `deptqa serve` process without a
// restart. Every other setting was already baked into the services built
// at startup and isn't hot-swappable; reloading those would mean rebuilding
// the storage, index, and provider clients mid-request, which is out of
// scope for an admin convenience feature. Runs until ctx is cancelled.
func WatchForChanges(ctx context.Context, dir string, level *slog.LevelVar, logger *slog.Logger) error {
	w := watcher.NewFSWatcher(watcher.DefaultOptions())
	if err := w.Start(ctx, dir); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("config watch error", slog.Any("error", err))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if touchesConfigFile(batch) {
				applyLevelFromDisk(dir, level, logger)
			}
		}
	}
}

func touchesConfigFile(batch []watcher.FileEvent) bool {
	for _, ev := range batch {
		name := filepath.Base(ev.Path)
		if name == ".deptqa.yaml" || name == ".deptqa.yml" {
			return true
		}
	}
	return false
}

func applyLevelFromDisk(dir string, level *slog.LevelVar, logger *slog.Logger) {
	cfg, err := Load(dir)
	if err != nil {
		logger.Warn("config reload failed, keeping previous settings", slog.Any("error", err))
		return
	}
	level.Set(logging.LevelFromString(cfg.Logging.Level))
	logger.Info("config reloaded", slog.String("level", cfg.Logging.Level))
}
