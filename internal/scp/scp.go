// Package scp implements the DICOM Service Class Provider Receiver
// (spec.md §4.1): it accepts inbound associations, accumulates C-STOREd
// instances into association-scoped StudyGroups, and hands each StudyGroup
// off to the Coordinator on association release.
package scp

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/caio-sobreiro/dicomnet/interfaces"
	"github.com/caio-sobreiro/dicomnet/server"
	"github.com/caio-sobreiro/dicomnet/types"
	"go.opentelemetry.io/otel/codes"

	"github.com/mathiser/inference-server-dicom-node/internal/log"
	"github.com/mathiser/inference-server-dicom-node/internal/metrics"
	"github.com/mathiser/inference-server-dicom-node/internal/telemetry"
)

// absentTag is the literal default the original source used for missing
// DICOM tags (spec.md §4.1 step 1, confirmed against
// dicom_networking/scp.py's `.get(tag, "None")`); preserved verbatim rather
// than "fixed" into an empty string.
const absentTag = "None"

var (
	studyInstanceUIDTag  = dicom.Tag{Group: 0x0020, Element: 0x000D}
	seriesInstanceUIDTag = dicom.Tag{Group: 0x0020, Element: 0x000E}
	sopClassUIDTag       = dicom.Tag{Group: 0x0008, Element: 0x0016}
	sopInstanceUIDTag    = dicom.Tag{Group: 0x0008, Element: 0x0018}
	studyDescriptionTag  = dicom.Tag{Group: 0x0008, Element: 0x1030}
	seriesDescriptionTag = dicom.Tag{Group: 0x0008, Element: 0x103E}
)

// Handoff is the bounded single-producer/single-consumer FIFO between the
// Receiver and the Coordinator (spec.md §5). The Receiver blocks on Send
// when the queue is full so that the remote peer's association release only
// completes once the receiver has committed the handoff (backpressure,
// spec.md §4.1).
type Handoff struct {
	ch chan *StudyGroup
}

// NewHandoff creates a handoff queue with the given bound.
func NewHandoff(bound int) *Handoff {
	h := &Handoff{ch: make(chan *StudyGroup, bound)}
	return h
}

// Send publishes a completed StudyGroup, blocking if the queue is full.
func (h *Handoff) Send(ctx context.Context, g *StudyGroup) error {
	select {
	case h.ch <- g:
		metrics.HandoffQueueDepth.Set(float64(len(h.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive drains up to max StudyGroups, waiting up to the context's deadline
// for the first one, then draining non-blockingly. Returns an empty slice
// (not an error) if nothing arrives before ctx is done, matching spec.md
// §4.6 Phase B's "bounded wait" semantics.
func (h *Handoff) Receive(ctx context.Context, max int) []*StudyGroup {
	var groups []*StudyGroup

	select {
	case g := <-h.ch:
		groups = append(groups, g)
	case <-ctx.Done():
		return groups
	}

	for len(groups) < max {
		select {
		case g := <-h.ch:
			groups = append(groups, g)
		default:
			metrics.HandoffQueueDepth.Set(float64(len(h.ch)))
			return groups
		}
	}
	metrics.HandoffQueueDepth.Set(float64(len(h.ch)))
	return groups
}

// Receiver is the DICOM SCP implementing spec.md §4.1.
type Receiver struct {
	storageRoot string
	handoff     *Handoff

	mu     sync.Mutex
	active map[string]*StudyGroup // keyed by association id
}

// NewReceiver creates a Receiver that stores instances under storageRoot and
// publishes completed StudyGroups to handoff.
func NewReceiver(storageRoot string, handoff *Handoff) *Receiver {
	return &Receiver{
		storageRoot: storageRoot,
		handoff:     handoff,
		active:      make(map[string]*StudyGroup),
	}
}

// ListenAndServe accepts associations on addr under aeTitle until ctx is
// cancelled, matching dicomnet's server.ListenAndServe contract (blocking,
// returns context.Canceled on cooperative shutdown).
func (r *Receiver) ListenAndServe(ctx context.Context, addr, aeTitle string) error {
	return server.ListenAndServe(ctx, addr, aeTitle, r, server.WithLogger(log.Base()))
}

// HandleDIMSE implements dicomnet's Handler interface for non-streaming
// DIMSE operations: C-ECHO (verification, spec.md §6) and C-STORE
// (spec.md §4.1).
func (r *Receiver) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	switch msg.CommandField {
	case types.CEchoRQ:
		return &types.Message{
			CommandField:              types.CEchoRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    types.StatusSuccess,
		}, nil, nil

	case types.CStoreRQ:
		status := r.handleCStore(ctx, msg, data, meta)
		return &types.Message{
			CommandField:              types.CStoreRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    status,
		}, nil, nil

	default:
		return &types.Message{
			CommandField:              types.ResponseCommandFor(msg.CommandField),
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    types.StatusFailure,
		}, nil, nil
	}
}

// handleCStore implements spec.md §4.1 steps 1-5.
func (r *Receiver) handleCStore(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) uint16 {
	tracer := telemetry.Tracer("gateway.scp")
	ctx, span := tracer.Start(ctx, "scp.c_store")
	defer span.End()

	assocID := meta.AssociationID
	logger := log.WithComponentFromContext(ctx, "scp").With().
		Str(log.FieldAssociationID, assocID).
		Logger()

	dataset := meta.Dataset
	if dataset == nil {
		var err error
		dataset, err = dicom.ParseDatasetWithTransferSyntax(data, meta.TransferSyntaxUID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to parse C-STORE dataset")
			span.RecordError(err)
			span.SetStatus(codes.Error, "parse dataset")
			metrics.CStoreTotal.WithLabelValues("parse_error").Inc()
			return types.StatusFailure
		}
	}

	seriesUID := stringOrDefault(dataset.GetString(seriesInstanceUIDTag))
	studyDesc := stringOrDefault(dataset.GetString(studyDescriptionTag))
	seriesDesc := stringOrDefault(dataset.GetString(seriesDescriptionTag))
	sopClassUID := stringOrDefault(dataset.GetString(sopClassUIDTag))
	sopInstanceUID := stringOrDefault(dataset.GetString(sopInstanceUIDTag))

	span.SetAttributes(telemetry.CStoreAttributes(sopClassUID, seriesUID, stringOrDefault(dataset.GetString(studyInstanceUIDTag)), types.StatusSuccess)...)

	group := r.studyGroupFor(assocID)

	dir := filepath.Join(r.storageRoot, assocID, sopClassUID, seriesUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error().Err(err).Str(log.FieldSeriesInstanceUID, seriesUID).Msg("failed to create series directory")
		span.RecordError(err)
		metrics.CStoreTotal.WithLabelValues("storage_error").Inc()
		return types.StatusFailure
	}

	r.registerSeries(group, seriesUID, studyDesc, seriesDesc, sopClassUID, dir)

	instancePath := filepath.Join(dir, sopInstanceUID+".dcm")
	// spec.md §4.1 step 4 requires non-implicit-VR encoding while preserving
	// the original transfer syntax semantics: promote Implicit VR LE to
	// Explicit VR LE, but leave any already-explicit transfer syntax as is.
	writeTransferSyntax := meta.TransferSyntaxUID
	if writeTransferSyntax == "" || writeTransferSyntax == types.ImplicitVRLittleEndian {
		writeTransferSyntax = dicom.TransferSyntaxExplicitVRLittleEndian
	}
	if err := dicom.WriteFile(instancePath, dataset, writeTransferSyntax); err != nil {
		logger.Error().Err(err).Str(log.FieldSOPInstanceUID, sopInstanceUID).Msg("failed to persist instance")
		span.RecordError(err)
		metrics.CStoreTotal.WithLabelValues("write_error").Inc()
		return types.StatusFailure
	}

	logger.Debug().
		Str(log.FieldSeriesInstanceUID, seriesUID).
		Str(log.FieldSOPInstanceUID, sopInstanceUID).
		Str(log.FieldSOPClassUID, sopClassUID).
		Msg("instance persisted")
	metrics.CStoreTotal.WithLabelValues("success").Inc()
	return types.StatusSuccess
}

func (r *Receiver) studyGroupFor(assocID string) *StudyGroup {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.active[assocID]
	if !ok {
		group = &StudyGroup{
			AssociationID: assocID,
			Root:          filepath.Join(r.storageRoot, assocID),
			Series:        make(map[string]*SeriesInstance),
		}
		r.active[assocID] = group
	}
	return group
}

func (r *Receiver) registerSeries(group *StudyGroup, seriesUID, studyDesc, seriesDesc, sopClassUID, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := group.Series[seriesUID]; !ok {
		group.Series[seriesUID] = &SeriesInstance{
			SeriesInstanceUID: seriesUID,
			StudyDescription:  studyDesc,
			SeriesDescription: seriesDesc,
			SOPClassUID:       sopClassUID,
			Path:              dir,
		}
	}
}

// HandleAssociationReleased implements the release-hook extension dicomnet
// exposes alongside the streaming-responder extensions (interfaces.CGetResponder):
// the server type-asserts the Handler for this interface and invokes it when
// an association completes normally. It finalizes the StudyGroup for assocID
// and publishes it to the handoff queue (spec.md §4.1 "On association
// release"), removing the in-memory entry first so the Receiver and the
// Coordinator never share the same namespace concurrently (spec.md §5).
func (r *Receiver) HandleAssociationReleased(ctx context.Context, assocID string) {
	r.mu.Lock()
	group, ok := r.active[assocID]
	if ok {
		delete(r.active, assocID)
	}
	r.mu.Unlock()

	if !ok || len(group.Series) == 0 {
		return
	}

	logger := log.WithComponentFromContext(ctx, "scp")
	if err := r.handoff.Send(ctx, group); err != nil {
		logger.Warn().Err(err).Str(log.FieldAssociationID, assocID).Msg("handoff cancelled before study group was published")
	}
}

func stringOrDefault(v string) string {
	if v == "" {
		return absentTag
	}
	return v
}
