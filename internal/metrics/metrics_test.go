package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("no_alert"))

	started := time.Date(2024, 10, 15, 7, 0, 0, 0, time.UTC)
	ObserveRun("no_alert", started, started.Add(3*time.Second))

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("no_alert")); got != before+1 {
		t.Errorf("expected runs counter %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(LastRunTimestamp); got != float64(started.Add(3*time.Second).Unix()) {
		t.Errorf("unexpected last run timestamp %v", got)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	WaterLevelMeters.Set(12.34)
	if err := Push(server.URL, "river_alert"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if gotPath != "/metrics/job/river_alert" {
		t.Errorf("unexpected push path %q", gotPath)
	}
	if !strings.Contains(gotBody, "riveralert_water_level_meters") {
		t.Error("pushed body does not contain the water level gauge")
	}
}

func TestHandler(t *testing.T) {
	DistanceToBankMeters.Set(0.35)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "riveralert_distance_to_bank_meters 0.35") {
		t.Errorf("metrics output missing distance gauge:\n%s", rec.Body.String())
	}
}
