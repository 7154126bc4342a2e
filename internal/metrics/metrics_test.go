package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bidline/internal/domain"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Transition("project", domain.ProjectOpen, domain.ProjectPendingContract)
	m.Observe("accept_bid", time.Now(), nil)
	m.Observe("accept_bid", time.Now(), domain.NewStateError("project", "p1", domain.ProjectOpen, domain.ProjectPendingContract))
	m.Retry()
	m.Relayed("webhook:a", errors.New("down"))

	if got := testutil.ToFloat64(m.operations.WithLabelValues("accept_bid", "invalid_state")); got != 1 {
		t.Fatalf("invalid_state count = %v", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Fatalf("retries = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `bidline_transitions_total{entity="project",from="open",to="pending_contract"} 1`) {
		t.Fatalf("transition metric missing:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("bid", "pending", "accepted")
	m.Observe("x", time.Now(), nil)
	m.Retry()
	m.Relayed("kafka", nil)
}
