// Package coordinator implements the Coordinator (spec.md §4.6): the
// periodic loop that drives Tasks through Retire, Fingerprint, Post, Get,
// Forward, and Cleanup in order, once per iteration.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mathiser/inference-server-dicom-node/internal/archive"
	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
	"github.com/mathiser/inference-server-dicom-node/internal/inference"
	"github.com/mathiser/inference-server-dicom-node/internal/log"
	"github.com/mathiser/inference-server-dicom-node/internal/matcher"
	"github.com/mathiser/inference-server-dicom-node/internal/metrics"
	"github.com/mathiser/inference-server-dicom-node/internal/scp"
	"github.com/mathiser/inference-server-dicom-node/internal/sender"
	"github.com/mathiser/inference-server-dicom-node/internal/telemetry"
)

// getFanOut bounds Phase D's concurrent `get` polls (spec.md §5).
const getFanOut = 4

// Coordinator runs the six-phase loop against one Catalog, one Handoff
// queue, and one Inference Client.
type Coordinator struct {
	store     *catalog.Store
	handoff   *scp.Handoff
	inference *inference.Client
	matcher   *matcher.Matcher

	interval time.Duration
	timeout  time.Duration
}

// New builds a Coordinator. interval is both the loop period and the
// bounded wait Phase B gives the handoff queue (spec.md §4.6 Phase B).
func New(store *catalog.Store, handoff *scp.Handoff, infClient *inference.Client, interval, taskTimeout time.Duration) *Coordinator {
	return &Coordinator{
		store:     store,
		handoff:   handoff,
		inference: infClient,
		matcher:   matcher.New(),
		interval:  interval,
		timeout:   taskTimeout,
	}
}

// Run loops until ctx is cancelled, finishing the current phase before
// stopping (spec.md §4.6 Cancellation).
func (c *Coordinator) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "coordinator")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.runIteration(ctx)

		select {
		case <-ctx.Done():
			logger.Info().Msg("coordinator stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) runIteration(ctx context.Context) {
	tracer := telemetry.Tracer("gateway.coordinator")
	ctx, span := tracer.Start(ctx, "coordinator.iteration")
	defer span.End()

	logger := log.WithComponentFromContext(ctx, "coordinator")

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"retire", c.phaseRetire},
		{"fingerprint", c.phaseFingerprint},
		{"post", c.phasePost},
		{"get", c.phaseGet},
		{"forward", c.phaseForward},
		{"cleanup", c.phaseCleanup},
	}

	for _, p := range phases {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := p.fn(ctx); err != nil {
			logger.Error().Err(err).Str(log.FieldPhase, p.name).Msg("phase failed")
		}
		metrics.PhaseDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	}

	c.refreshTasksByStatus(ctx)
}

// refreshTasksByStatus updates the gauge vec the metrics package documents
// as being refreshed at the end of every iteration.
func (c *Coordinator) refreshTasksByStatus(ctx context.Context) {
	statuses := []catalog.TaskStatus{
		catalog.StatusPending, catalog.StatusPosted, catalog.StatusRetrieved,
		catalog.StatusForwarded, catalog.StatusSucceeded, catalog.StatusFailedCleaned,
		catalog.StatusFailed,
	}
	for _, status := range statuses {
		tasks, err := c.store.ListTasksByStatus(ctx, status)
		if err != nil {
			continue
		}
		metrics.TasksByStatus.WithLabelValues(status.String()).Set(float64(len(tasks)))
	}
}

// phaseRetire implements spec.md §4.6 Phase A.
func (c *Coordinator) phaseRetire(ctx context.Context) error {
	tasks, err := c.store.ListOpenTasks(ctx)
	if err != nil {
		return fmt.Errorf("retire: list open tasks: %w", err)
	}

	failed := catalog.StatusFailed
	for _, t := range tasks {
		if time.Since(t.CreatedAt) <= c.timeout {
			continue
		}
		if err := c.store.UpdateTask(ctx, t.ID, catalog.TaskUpdate{Status: &failed}); err != nil {
			log.WithComponentFromContext(ctx, "coordinator").Warn().Err(err).Str(log.FieldTaskID, t.ID).Msg("failed to retire task")
		}
	}
	return nil
}

// phaseFingerprint implements spec.md §4.6 Phase B.
func (c *Coordinator) phaseFingerprint(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	fingerprints, err := c.store.ListFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("fingerprint: list fingerprints: %w", err)
	}

	for {
		groups := c.handoff.Receive(waitCtx, 1)
		if len(groups) == 0 {
			return nil
		}
		for _, group := range groups {
			if err := c.fingerprintOneGroup(ctx, group, fingerprints); err != nil {
				log.WithComponentFromContext(ctx, "coordinator").Error().Err(err).
					Str(log.FieldAssociationID, group.AssociationID).Msg("failed to fingerprint study group")
			}
		}
	}
}

func (c *Coordinator) fingerprintOneGroup(ctx context.Context, group *scp.StudyGroup, fingerprints []catalog.Fingerprint) error {
	matches := c.matcher.Match(group, fingerprints)
	metrics.FingerprintMatchesTotal.Add(float64(len(matches)))

	for fingerprintID, dirs := range matches {
		task, err := c.store.AddTask(ctx, fingerprintID)
		if err != nil {
			return fmt.Errorf("create task for fingerprint %s: %w", fingerprintID, err)
		}
		if err := archive.Pack(task.InputArchivePath, dirs); err != nil {
			return fmt.Errorf("pack input archive for task %s: %w", task.ID, err)
		}
	}
	return nil
}

// phasePost implements spec.md §4.6 Phase C.
func (c *Coordinator) phasePost(ctx context.Context) error {
	tasks, err := c.store.ListTasksByStatus(ctx, catalog.StatusPending)
	if err != nil {
		return fmt.Errorf("post: list pending tasks: %w", err)
	}

	for _, t := range tasks {
		c.postOne(ctx, t)
	}
	return nil
}

func (c *Coordinator) postOne(ctx context.Context, t catalog.Task) {
	logger := log.WithComponentFromContext(ctx, "coordinator").With().Str(log.FieldTaskID, t.ID).Logger()

	fp, err := c.store.GetFingerprint(ctx, t.FingerprintID)
	if err != nil {
		logger.Error().Err(err).Msg("post: fingerprint lookup failed")
		c.failTask(ctx, t.ID)
		return
	}

	uid, err := c.inference.Post(ctx, fp.InferenceServerURL, fp.HumanReadableID, t.InputArchivePath)
	if err != nil {
		logger.Warn().Err(err).Msg("post: inference server rejected task")
		metrics.CatalogErrorsTotal.WithLabelValues("post").Inc()
		c.failTask(ctx, t.ID)
		return
	}

	posted := catalog.StatusPosted
	if err := c.store.UpdateTask(ctx, t.ID, catalog.TaskUpdate{InferenceServerUID: &uid, Status: &posted}); err != nil {
		logger.Error().Err(err).Msg("post: failed to persist posted status")
	}
}

// phaseGet implements spec.md §4.6 Phase D, fanning out over distinct
// Tasks with a bound of getFanOut (spec.md §5).
func (c *Coordinator) phaseGet(ctx context.Context) error {
	tasks, err := c.store.ListTasksByStatus(ctx, catalog.StatusPosted)
	if err != nil {
		return fmt.Errorf("get: list posted tasks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(getFanOut)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			c.getOne(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) getOne(ctx context.Context, t catalog.Task) {
	logger := log.WithComponentFromContext(ctx, "coordinator").With().Str(log.FieldTaskID, t.ID).Logger()

	fp, err := c.store.GetFingerprint(ctx, t.FingerprintID)
	if err != nil {
		logger.Error().Err(err).Msg("get: fingerprint lookup failed")
		return
	}

	result, body, err := c.inference.Get(ctx, fp.InferenceServerURL, t.InferenceServerUID)
	if err != nil {
		logger.Debug().Err(err).Msg("get: transient error, will retry")
		return
	}

	switch result {
	case inference.GetPending:
		return
	case inference.GetFailed:
		c.failTask(ctx, t.ID)
	case inference.GetOK:
		if err := os.WriteFile(t.OutputArchivePath, body, 0o644); err != nil {
			logger.Error().Err(err).Msg("get: failed to write output archive")
			c.failTask(ctx, t.ID)
			return
		}
		retrieved := catalog.StatusRetrieved
		if err := c.store.UpdateTask(ctx, t.ID, catalog.TaskUpdate{Status: &retrieved}); err != nil {
			logger.Error().Err(err).Msg("get: failed to persist retrieved status")
		}
	case inference.GetError:
		// logged above; no state change, retried next iteration.
	}
}

// phaseForward implements spec.md §4.6 Phase E.
func (c *Coordinator) phaseForward(ctx context.Context) error {
	tasks, err := c.store.ListTasksByStatus(ctx, catalog.StatusRetrieved)
	if err != nil {
		return fmt.Errorf("forward: list retrieved tasks: %w", err)
	}

	for _, t := range tasks {
		c.forwardOne(ctx, t)
	}
	return nil
}

func (c *Coordinator) forwardOne(ctx context.Context, t catalog.Task) {
	logger := log.WithComponentFromContext(ctx, "coordinator").With().Str(log.FieldTaskID, t.ID).Logger()

	fp, err := c.store.GetFingerprint(ctx, t.FingerprintID)
	if err != nil {
		logger.Error().Err(err).Msg("forward: fingerprint lookup failed")
		c.failTask(ctx, t.ID)
		return
	}

	if len(fp.Destinations) == 0 {
		// Policy: output with nowhere to go is a failure (spec.md §4.6 Phase E).
		c.failTask(ctx, t.ID)
		return
	}

	scratchDir := filepath.Join(filepath.Dir(t.OutputArchivePath), "output-unpacked")
	if err := archive.Unpack(t.OutputArchivePath, scratchDir); err != nil {
		logger.Error().Err(err).Msg("forward: failed to unpack output archive")
		c.failTask(ctx, t.ID)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, dest := range fp.Destinations {
		dest := dest
		g.Go(func() error {
			ok, err := sender.Send(gctx, dest.Host, dest.Port, dest.AETitle, scratchDir)
			if err != nil || !ok {
				logger.Warn().Err(err).Str(log.FieldDestinationHost, dest.Host).Msg("forward: send to destination failed")
				metrics.DestinationSendTotal.WithLabelValues("error").Inc()
			} else {
				metrics.DestinationSendTotal.WithLabelValues("success").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	forwarded := catalog.StatusForwarded
	if err := c.store.UpdateTask(ctx, t.ID, catalog.TaskUpdate{Status: &forwarded}); err != nil {
		logger.Error().Err(err).Msg("forward: failed to persist forwarded status")
	}
}

// phaseCleanup implements spec.md §4.6 Phase F.
func (c *Coordinator) phaseCleanup(ctx context.Context) error {
	tasks, err := c.store.ListTasksByStatuses(ctx, catalog.StatusForwarded, catalog.StatusFailed)
	if err != nil {
		return fmt.Errorf("cleanup: list tasks: %w", err)
	}

	for _, t := range tasks {
		c.cleanupOne(ctx, t)
	}
	return nil
}

func (c *Coordinator) cleanupOne(ctx context.Context, t catalog.Task) {
	logger := log.WithComponentFromContext(ctx, "coordinator").With().Str(log.FieldTaskID, t.ID).Logger()

	fp, err := c.store.GetFingerprint(ctx, t.FingerprintID)
	if err != nil {
		logger.Error().Err(err).Msg("cleanup: fingerprint lookup failed")
		return
	}

	update := catalog.TaskUpdate{}

	if fp.DeleteLocally && !t.DeletedLocal {
		_ = os.Remove(t.InputArchivePath)
		_ = os.Remove(t.OutputArchivePath)
		_ = os.RemoveAll(filepath.Join(filepath.Dir(t.OutputArchivePath), "output-unpacked"))
		deletedLocal := true
		update.DeletedLocal = &deletedLocal
	}

	if fp.DeleteRemotely && !t.DeletedRemote && t.InferenceServerUID != "" {
		if err := c.inference.Delete(ctx, fp.InferenceServerURL, t.InferenceServerUID); err != nil {
			logger.Warn().Err(err).Msg("cleanup: failed to delete remote state")
		} else {
			deletedRemote := true
			update.DeletedRemote = &deletedRemote
		}
	}

	final := catalog.StatusFailedCleaned
	if t.Status == catalog.StatusForwarded {
		final = catalog.StatusSucceeded
	}
	update.Status = &final

	if err := c.store.UpdateTask(ctx, t.ID, update); err != nil {
		logger.Error().Err(err).Msg("cleanup: failed to persist final status")
	}
}

func (c *Coordinator) failTask(ctx context.Context, taskID string) {
	failed := catalog.StatusFailed
	if err := c.store.UpdateTask(ctx, taskID, catalog.TaskUpdate{Status: &failed}); err != nil {
		log.WithComponentFromContext(ctx, "coordinator").Error().Err(err).Str(log.FieldTaskID, taskID).Msg("failed to mark task failed")
	}
}
