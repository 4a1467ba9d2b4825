package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
	"github.com/mathiser/inference-server-dicom-node/internal/config"
	"github.com/mathiser/inference-server-dicom-node/internal/coordinator"
	"github.com/mathiser/inference-server-dicom-node/internal/daemon"
	"github.com/mathiser/inference-server-dicom-node/internal/inference"
	"github.com/mathiser/inference-server-dicom-node/internal/log"
	"github.com/mathiser/inference-server-dicom-node/internal/scp"
	"github.com/mathiser/inference-server-dicom-node/internal/seed"
)

// handoffBound is the max number of StudyGroups the SCP Receiver may hold
// before Send blocks, applying backpressure to incoming associations
// when the Coordinator falls behind (spec.md §4.2).
const handoffBound = 64

func newServeCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: SCP Receiver, Coordinator, and ops server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), seedPath)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "optional YAML file of Fingerprints/Triggers/Destinations to load on startup")

	return cmd
}

func runServe(ctx context.Context, seedPath string) error {
	cfg := config.Load()

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "gateway",
		Version: version,
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(cfg.DBBaseDir)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close catalog")
		}
	}()

	if seedPath != "" {
		if err := seed.Apply(ctx, store, seedPath); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
	}

	infClient, err := inference.New(inference.Config{
		Trust:             cfg.TrustRoot,
		RequestTimeout:    cfg.TaskTimeout,
		RequestsPerSecond: 5,
		Burst:             10,
	})
	if err != nil {
		return fmt.Errorf("build inference client: %w", err)
	}

	handoff := scp.NewHandoff(handoffBound)
	receiver := scp.NewReceiver(cfg.TemporaryStorage, handoff)
	coord := coordinator.New(store, handoff, infClient, cfg.RunInterval, cfg.TaskTimeout)

	deps := daemon.Deps{
		Logger:         logger,
		Receiver:       receiver,
		SCPAddr:        fmt.Sprintf("%s:%d", cfg.SCPIP, cfg.SCPPort),
		AETitle:        cfg.SCPAETitle,
		Coordinator:    coord,
		MetricsHandler: newOpsHandler(),
		MetricsAddr:    cfg.MetricsAddr,
	}

	mgr, err := daemon.NewManager(deps)
	if err != nil {
		return fmt.Errorf("build daemon manager: %w", err)
	}

	if cfg.TrustRoot.Kind == config.TrustRootPath {
		go watchTrustBundle(ctx, logger, cfg.TrustRoot.Path, infClient)
	}

	logger.Info().
		Str("scp_addr", deps.SCPAddr).
		Str("ae_title", deps.AETitle).
		Str("metrics_addr", deps.MetricsAddr).
		Msg("starting gateway")

	return mgr.Start(ctx)
}
