package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(nil)
	if first.Registry() == second.Registry() {
		t.Fatal("expected distinct registries")
	}
}

func TestTurnLifecycle(t *testing.T) {
	m := NewMetrics(nil)

	m.TurnStarted()
	m.TurnStarted()
	if got := testutil.ToFloat64(m.ActiveRequests); got != 2 {
		t.Fatalf("active requests = %v, want 2", got)
	}

	m.TurnFinished(OutcomeCompleted, 3, 2*time.Second)
	m.TurnFinished(OutcomeCancelled, 1, time.Second)

	if got := testutil.ToFloat64(m.ActiveRequests); got != 0 {
		t.Fatalf("active requests = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ModelTurnCounter); got != 4 {
		t.Fatalf("model turns = %v, want 4", got)
	}

	expected := `
		# HELP turnstream_turns_total Total number of turn streams by outcome
		# TYPE turnstream_turns_total counter
		turnstream_turns_total{outcome="cancelled"} 1
		turnstream_turns_total{outcome="completed"} 1
	`
	if err := testutil.CollectAndCompare(m.TurnCounter, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metric value: %v", err)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordToolExecution("read_file", "success", 10*time.Millisecond)
	m.RecordToolExecution("read_file", "error", 5*time.Millisecond)
	m.RecordToolExecution("list_directory", "success", time.Millisecond)

	if count := testutil.CollectAndCount(m.ToolExecutionCounter); count != 3 {
		t.Fatalf("expected 3 label combinations, got %d", count)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("read_file", "error")); got != 1 {
		t.Fatalf("read_file errors = %v, want 1", got)
	}
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics(nil)

	m.SessionCreated()
	m.SessionCreated()
	m.SessionCreated()
	m.SessionDeleted()
	m.SessionsSwept(2)
	m.SessionsSwept(0)

	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Fatalf("active sessions = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionsExpired); got != 2 {
		t.Fatalf("sessions expired = %v, want 2", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordHTTPRequest("POST", "/api/chat/stream", "200", 50*time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestCounter.WithLabelValues("POST", "/api/chat/stream", "200")); got != 1 {
		t.Fatalf("http requests = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordError("gateway", "bad_request")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `turnstream_errors_total{component="gateway",type="bad_request"} 1`) {
		t.Fatalf("expected error counter in exposition, got:\n%s", body)
	}
}

func TestConcurrentMetrics(t *testing.T) {
	m := NewMetrics(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TurnStarted()
			m.RecordToolExecution("read_file", "success", time.Millisecond)
			m.TurnFinished(OutcomeCompleted, 1, time.Millisecond)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.TurnCounter.WithLabelValues(OutcomeCompleted)); got != 50 {
		t.Fatalf("completed turns = %v, want 50", got)
	}
	if got := testutil.ToFloat64(m.ActiveRequests); got != 0 {
		t.Fatalf("active requests = %v, want 0", got)
	}
}
