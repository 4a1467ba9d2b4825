// Package catalog persists Fingerprints, Triggers, Destinations, and Tasks
// (spec.md §3/§4.2) behind a transactional SQLite-backed store.
package catalog

import "time"

// TaskStatus is the Task state-machine's persisted status code (spec.md §4.6).
// Named per spec.md §9's redesign directive, replacing magic integers with an
// explicit enumeration.
type TaskStatus int

const (
	// StatusPending: created, input archive present, not yet posted.
	StatusPending TaskStatus = 0
	// StatusPosted: posted to inference server; InferenceServerUID set.
	StatusPosted TaskStatus = 1
	// StatusRetrieved: output archive present on disk.
	StatusRetrieved TaskStatus = 2
	// StatusForwarded: output dispatched to all destinations (a Task whose
	// Fingerprint has no destinations fails instead of reaching this status).
	StatusForwarded TaskStatus = 3
	// StatusSucceeded: cleanup complete, terminal.
	StatusSucceeded TaskStatus = 10
	// StatusFailedCleaned: failed and cleanup complete, terminal.
	StatusFailedCleaned TaskStatus = 11
	// StatusFailed: failed, cleanup pending.
	StatusFailed TaskStatus = -1
)

// String renders the status the way log lines and metrics labels expect it.
func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPosted:
		return "posted"
	case StatusRetrieved:
		return "retrieved"
	case StatusForwarded:
		return "forwarded"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailedCleaned:
		return "failed_cleaned"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is one the Coordinator never revisits.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedCleaned
}

// Fingerprint is an immutable-ish rule binding a classification criterion to
// a remote inference endpoint and a set of forwarding destinations
// (spec.md §3). Never mutated by the pipeline; only the catalog API
// (out of scope per spec.md §1) creates and deletes them.
type Fingerprint struct {
	ID                  string
	HumanReadableID     string
	InferenceServerURL  string
	Version             string
	Description         string
	DeleteLocally       bool
	DeleteRemotely      bool
	Triggers            []Trigger
	Destinations        []Destination
}

// Trigger is one pattern-match row belonging to a Fingerprint (spec.md §3/§4.3).
// Optional fields are modeled as explicit empty strings with an
// "absent passes" rule at match time, per spec.md §9's redesign directive —
// never as null-pointer sentinels.
type Trigger struct {
	ID                       string
	FingerprintID            string
	StudyDescriptionPattern  string
	SeriesDescriptionPattern string
	SOPClassUIDExact         string
	ExcludePattern           string
}

// Destination is a downstream DICOM peer (spec.md §3).
type Destination struct {
	ID      string
	Host    string
	Port    int
	AETitle string
}

// Task is the persistent unit of work produced by a (StudyGroup x matching
// Fingerprint) pair (spec.md §3).
type Task struct {
	ID                 string
	FingerprintID      string
	InputArchivePath   string
	OutputArchivePath  string
	Status             TaskStatus
	InferenceServerUID string
	DeletedLocal       bool
	DeletedRemote      bool
	CreatedAt          time.Time
}

// TaskUpdate carries the optional fields update_task may change; absent
// fields (nil) leave the corresponding column untouched (spec.md §4.2).
type TaskUpdate struct {
	InferenceServerUID *string
	Status             *TaskStatus
	DeletedLocal       *bool
	DeletedRemote      *bool
}
