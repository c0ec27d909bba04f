package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry_CountersWire(t *testing.T) {
	r := NewRegistry()

	r.AnalysesTotal.WithLabelValues("upload").Inc()
	r.AnalysesTotal.WithLabelValues("upload").Inc()
	r.RingsDetected.WithLabelValues("cycle").Add(3)
	r.WebsocketClients.Set(2)

	if got := testutil.ToFloat64(r.AnalysesTotal.WithLabelValues("upload")); got != 2 {
		t.Errorf("Expected 2 upload analyses. Got: %v", got)
	}
	if got := testutil.ToFloat64(r.RingsDetected.WithLabelValues("cycle")); got != 3 {
		t.Errorf("Expected 3 cycle rings. Got: %v", got)
	}
	if got := testutil.ToFloat64(r.WebsocketClients); got != 2 {
		t.Errorf("Expected 2 websocket clients. Got: %v", got)
	}
}

func TestNewRegistry_GathersEngineMetrics(t *testing.T) {
	r := NewRegistry()
	r.AnalysesTotal.WithLabelValues("scan").Inc()
	r.AnalysisDuration.Observe(0.25)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"muling_analyses_total", "muling_analysis_duration_seconds"} {
		if !names[want] {
			t.Errorf("Expected gathered metric %s. Got families: %v", want, names)
		}
	}
}
