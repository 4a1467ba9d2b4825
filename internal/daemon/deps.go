package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mathiser/inference-server-dicom-node/internal/coordinator"
	"github.com/mathiser/inference-server-dicom-node/internal/scp"
)

// Deps contains the dependencies required by the daemon Manager. It keeps
// the Manager bound to the three long-running components spec.md §1
// names (SCP Receiver, Coordinator, ops surface) rather than to their
// concrete construction, mirroring the teacher's dependency-injection
// style for its own Manager.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// Receiver is the DICOM SCP Receiver (spec.md §4.1); its
	// ListenAndServe call blocks until ctx is cancelled.
	Receiver *scp.Receiver
	SCPAddr  string
	AETitle  string

	// Coordinator is the Task pipeline driver (spec.md §4.6); its Run
	// call blocks until ctx is cancelled.
	Coordinator *coordinator.Coordinator

	// MetricsHandler serves /metrics (Prometheus) and /healthz. Empty
	// MetricsAddr disables the ops server entirely.
	MetricsHandler http.Handler
	MetricsAddr    string
}

// Validate checks that the dependencies are sufficient to start the
// daemon.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.Receiver == nil {
		return ErrMissingReceiver
	}
	if d.Coordinator == nil {
		return ErrMissingCoordinator
	}
	if d.SCPAddr == "" {
		return ErrMissingSCPAddr
	}
	return nil
}
