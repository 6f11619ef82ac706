package prom

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maruel/insertd/internal/metrics"
)

func TestBackend_Handler(t *testing.T) {
	b := NewBackend()
	b.IncCounter(metrics.WritesTotal, 1, metrics.Labels{"verb": "insert", "outcome": "ok"})
	b.IncCounter(metrics.WritesTotal, 1, metrics.Labels{"verb": "insert", "outcome": "ok"})
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"verb": "upsert"})
	b.IncCounter("unknown", 1, nil)
	b.ObserveHistogram(metrics.WriteDurationSeconds, 0.002, metrics.Labels{"verb": "insert"})

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`insertd_writes_total{outcome="ok",verb="insert"} 2`,
		`insertd_rows_total{verb="upsert"} 3`,
		`insertd_write_duration_seconds_count{verb="insert"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition lacks %q", want)
		}
	}
}
