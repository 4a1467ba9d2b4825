package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mathiser/inference-server-dicom-node/internal/log"
)

// newOpsHandler builds the ops HTTP surface mounted at METRICS_ADDR:
// Prometheus /metrics plus a liveness /healthz, the two ambient endpoints
// the coordinator's metrics package and the operator's monitoring stack
// both expect.
func newOpsHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
