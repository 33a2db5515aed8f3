package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordExecution(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.ExecutionsTotal.WithLabelValues("sol_to_usdc"))

	RecordExecution("sol_to_usdc", 1704067200)

	after := testutil.ToFloat64(DefaultMetrics.ExecutionsTotal.WithLabelValues("sol_to_usdc"))
	if after-before != 1 {
		t.Errorf("executions delta = %v, want 1", after-before)
	}
	if got := testutil.ToFloat64(DefaultMetrics.LastSuccessfulExecution); got != 1704067200 {
		t.Errorf("last execution = %v", got)
	}
}

func TestRecordEventPublished(t *testing.T) {
	okBefore := testutil.ToFloat64(DefaultMetrics.EventsPublished.WithLabelValues("kafka", "ok"))
	errBefore := testutil.ToFloat64(DefaultMetrics.EventsPublished.WithLabelValues("kafka", "error"))

	RecordEventPublished("kafka", nil)
	RecordEventPublished("kafka", errors.New("broker down"))

	if d := testutil.ToFloat64(DefaultMetrics.EventsPublished.WithLabelValues("kafka", "ok")) - okBefore; d != 1 {
		t.Errorf("ok delta = %v", d)
	}
	if d := testutil.ToFloat64(DefaultMetrics.EventsPublished.WithLabelValues("kafka", "error")) - errBefore; d != 1 {
		t.Errorf("error delta = %v", d)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordRejection("execute", "DailyLimitExceeded")
	RecordVenueLatency("ok", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"keeper_vault_engine_guard_rejections_total",
		"keeper_vault_venue_swap_latency_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
