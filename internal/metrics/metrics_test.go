package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersWithoutPanic(t *testing.T) {
	m := New()
	m.BlocksProduced.Inc()
	m.BlockHeight.Set(42)
	m.TxsRejected.WithLabelValues("bad_signature").Inc()

	if got := testutil.ToFloat64(m.BlocksProduced); got != 1 {
		t.Fatalf("blocks produced = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BlockHeight); got != 42 {
		t.Fatalf("block height = %v, want 42", got)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.TxsAdmitted.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kernel_mempool_txs_admitted_total") {
		t.Fatalf("expected exported metric in response body, got: %s", rec.Body.String())
	}
}
