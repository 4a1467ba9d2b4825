package catalog

import "errors"

var (
	// ErrNotFound is returned when a get/update/delete targets a missing row.
	ErrNotFound = errors.New("catalog: entity not found")

	// ErrFingerprintInUse is returned when deleting a fingerprint referenced
	// by a non-terminal task; spec.md has no explicit rule here, so deletion
	// of fingerprints with open tasks is simply refused to avoid orphaning
	// a task the coordinator is still driving.
	ErrFingerprintInUse = errors.New("catalog: fingerprint has non-terminal tasks")

	// ErrInvalidUpdate is returned when TaskUpdate has no fields set.
	ErrInvalidUpdate = errors.New("catalog: update has no fields set")
)
