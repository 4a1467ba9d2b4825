package daemon

import "errors"

var (
	// ErrMissingLogger is returned when logger is not provided.
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingReceiver is returned when the daemon is built without an
	// SCP Receiver.
	ErrMissingReceiver = errors.New("scp receiver is required")

	// ErrMissingCoordinator is returned when the daemon is built without
	// a Coordinator.
	ErrMissingCoordinator = errors.New("coordinator is required")

	// ErrMissingSCPAddr is returned when no SCP listen address is configured.
	ErrMissingSCPAddr = errors.New("scp listen address is required")

	// ErrManagerNotStarted is returned when trying to shut down a manager
	// that hasn't started.
	ErrManagerNotStarted = errors.New("manager not started")
)
