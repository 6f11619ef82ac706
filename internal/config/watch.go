// Reloads the configuration when the file changes.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle absorbs the burst of events editors produce for one save.
const settle = 100 * time.Millisecond

// Watch calls onChange with the reloaded configuration whenever
// dataDir/insertd.yaml is written, created or replaced. Invalid edits are
// logged and ignored. The watch stops when ctx is done.
func Watch(ctx context.Context, dataDir string, onChange func(*ServerConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file by rename.
	if err := w.Add(dataDir); err != nil {
		_ = w.Close()
		return err
	}
	target := filepath.Clean(Path(dataDir))
	go func() {
		defer func() { _ = w.Close() }()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(settle)
				} else {
					timer.Reset(settle)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				cfg, err := Load(dataDir)
				if err != nil {
					slog.WarnContext(ctx, "Ignoring invalid configuration", "path", target, "err", err)
					continue
				}
				slog.InfoContext(ctx, "Configuration reloaded", "path", target)
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching configuration", "err", err)
			}
		}
	}()
	return nil
}
