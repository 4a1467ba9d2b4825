// Package telemetry provides OpenTelemetry tracing utilities for the gateway.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// DICOM association attributes
	AssociationIDKey = "dicom.association_id"
	AETitleKey       = "dicom.ae_title"
	SOPClassUIDKey   = "dicom.sop_class_uid"
	SeriesUIDKey     = "dicom.series_instance_uid"
	StudyUIDKey      = "dicom.study_instance_uid"
	CStoreStatusKey  = "dicom.c_store_status"

	// Task / pipeline attributes
	TaskIDKey            = "task.id"
	FingerprintIDKey      = "task.fingerprint_id"
	TaskStatusKey         = "task.status"
	InferenceServerUIDKey = "task.inference_server_uid"
	DestinationHostKey    = "task.destination_host"

	// HTTP attributes (inference client)
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPURLKey        = "http.url"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// AssociationAttributes creates span attributes for an SCP association.
func AssociationAttributes(assocID, aeTitle string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AssociationIDKey, assocID),
		attribute.String(AETitleKey, aeTitle),
	}
}

// CStoreAttributes creates span attributes for one received C-STORE.
func CStoreAttributes(sopClassUID, seriesUID, studyUID string, status uint16) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SOPClassUIDKey, sopClassUID),
		attribute.String(SeriesUIDKey, seriesUID),
		attribute.String(StudyUIDKey, studyUID),
		attribute.Int64(CStoreStatusKey, int64(status)),
	}
}

// TaskAttributes creates span attributes describing a Task undergoing a phase transition.
func TaskAttributes(taskID string, fingerprintID string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskIDKey, taskID),
		attribute.String(FingerprintIDKey, fingerprintID),
		attribute.Int(TaskStatusKey, status),
	}
}

// HTTPAttributes creates common HTTP span attributes for inference client calls.
func HTTPAttributes(method, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
