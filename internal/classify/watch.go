package classify

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the lexicon at path into c whenever the file changes, until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file on save are picked up. A lexicon that fails to load or
// compile is logged and the previous one is kept.
func Watch(ctx context.Context, path string, c *Classifier, logger *slog.Logger) error {
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("lexicon watcher: started", slog.String("path", path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("lexicon watcher: stopped")
			return nil

		case <-reloadCh:
			reload(path, c, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("lexicon watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(path string, c *Classifier, logger *slog.Logger) {
	lex, err := LoadLexicon(path)
	if err != nil {
		logger.Warn("lexicon watcher: load failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := c.Swap(lex); err != nil {
		logger.Warn("lexicon watcher: compile failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Info("lexicon watcher: reloaded",
		slog.String("path", path),
		slog.Int("decision", len(lex.Decision)),
		slog.Int("speculative", len(lex.Speculative)),
		slog.Int("active", len(lex.Active)),
	)
}
