package log

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigureWritesJSONWithServiceName(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "gateway-test", Version: "0.0.0-test"})

	WithComponent("catalog").Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log line: %v", err)
	}
	if entry["service"] != "gateway-test" {
		t.Errorf("expected service=gateway-test, got %v", entry["service"])
	}
	if entry[FieldComponent] != "catalog" {
		t.Errorf("expected component=catalog, got %v", entry[FieldComponent])
	}

	Configure(Config{})
}

func TestMiddlewareSetsRequestIDHeader(t *testing.T) {
	Configure(Config{})
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}
