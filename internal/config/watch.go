package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/mathiser/inference-server-dicom-node/internal/log"
)

// WatchTrustBundle watches the PEM file at path (the CERT_FILE the
// TrustRootPath trust root was built from) and invokes onChange with a
// freshly-built TrustRoot whenever the file is written or recreated, so a
// rotated ops-managed trust bundle is picked up without a restart
// (spec.md §6). It blocks until ctx is cancelled.
func WatchTrustBundle(ctx context.Context, path string, onChange func(TrustRoot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create trust bundle watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	logger := log.WithComponent("config")
	logger.Info().Str("path", path).Msg("watching trust bundle for changes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Info().Str("path", path).Str("op", event.Op.String()).Msg("trust bundle changed, reloading")
			onChange(TrustRoot{Kind: TrustRootPath, Path: path})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("trust bundle watcher error")
		}
	}
}
