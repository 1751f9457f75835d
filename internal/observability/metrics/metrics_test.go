package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "AgentVault/internal/errors"
)

func TestRenderIncludesAllCollectors(t *testing.T) {
	ObserveHTTPRequest("/api/v1/decisions", http.MethodPost, http.StatusCreated, 30*time.Millisecond)
	ObserveHTTPRequest("/api/v1/decisions", http.MethodPost, http.StatusInternalServerError, 3*time.Second)
	ObserveOperation("decisions.log", nil)
	ObserveOperation("decisions.log", xerrors.New(xerrors.CodeConflict, ""))
	RegisterGauge(Gauge{Name: "agentvault_test_gauge", Help: "test", Value: func() float64 { return 3 }})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	for _, want := range []string{
		`agentvault_http_requests_total{route="/api/v1/decisions",method="POST",code="201"} 1`,
		`agentvault_http_request_errors_total{route="/api/v1/decisions",method="POST"} 1`,
		`agentvault_http_request_duration_seconds_bucket{route="/api/v1/decisions",method="POST",le="0.05"} 1`,
		`agentvault_http_request_duration_seconds_bucket{route="/api/v1/decisions",method="POST",le="+Inf"} 2`,
		`agentvault_ledger_operations_total{operation="decisions.log",code="OK"} 1`,
		`agentvault_ledger_operations_total{operation="decisions.log",code="CONFLICT"} 1`,
		"agentvault_test_gauge 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
}

func TestOperationCount(t *testing.T) {
	before := OperationCount("vault.pause", "UNAUTHORIZED")
	ObserveOperation("vault.pause", xerrors.New(xerrors.CodeUnauthorized, ""))
	if got := OperationCount("vault.pause", "UNAUTHORIZED"); got != before+1 {
		t.Fatalf("expected %d, got %d", before+1, got)
	}
}
