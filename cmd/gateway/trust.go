package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mathiser/inference-server-dicom-node/internal/config"
	"github.com/mathiser/inference-server-dicom-node/internal/inference"
)

// watchTrustBundle reloads the inference client's TLS trust configuration
// whenever the CERT_FILE bundle changes on disk, so rotating the
// certificate doesn't require restarting the gateway. Runs until ctx is
// cancelled.
func watchTrustBundle(ctx context.Context, logger zerolog.Logger, path string, client *inference.Client) {
	err := config.WatchTrustBundle(ctx, path, func(trust config.TrustRoot) {
		if err := client.ReloadTrust(trust); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to reload trust bundle")
			return
		}
		logger.Info().Str("path", path).Msg("reloaded trust bundle")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("path", path).Msg("trust bundle watcher stopped")
	}
}
