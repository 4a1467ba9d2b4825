// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPhase     = "phase"

	// Catalog entity fields
	FieldTaskID            = "task_id"
	FieldFingerprintID      = "fingerprint_id"
	FieldDestinationID      = "destination_id"
	FieldInferenceServerUID = "inference_server_uid"

	// DICOM fields
	FieldAssociationID    = "association_id"
	FieldStudyInstanceUID = "study_instance_uid"
	FieldSeriesInstanceUID = "series_instance_uid"
	FieldSOPInstanceUID   = "sop_instance_uid"
	FieldSOPClassUID      = "sop_class_uid"
	FieldAETitle          = "ae_title"

	// Network fields
	FieldDestinationHost = "destination_host"
	FieldDestinationPort = "destination_port"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Path fields
	FieldPath        = "path"
	FieldArchivePath = "archive_path"
)
