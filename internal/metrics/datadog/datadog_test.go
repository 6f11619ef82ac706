package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/maruel/insertd/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		Tags:       []string{"region:test"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{"ENV wins", "prod", "stage", "env:prod"},
		{"DD_ENV fallback", "", "stage", "env:stage"},
		{"whitespace ignored", "   ", "\t", "env:unknown"},
		{"default", "", "", "env:unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("DD_ENV", tt.dd)
			if got := resolveEnvTag(); got != tt.want {
				t.Errorf("resolveEnvTag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricName(t *testing.T) {
	tests := []struct{ in, want string }{
		{metrics.WritesTotal, "insertd.writes.total"},
		{metrics.RowsTotal, "insertd.rows.total"},
		{metrics.WriteDurationSeconds, "insertd.write_duration_seconds"},
		{"other", "other"},
	}
	for _, tt := range tests {
		if got := metricName(tt.in); got != tt.want {
			t.Errorf("metricName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSeriesKey(t *testing.T) {
	k := seriesKey("m", metrics.Labels{"verb": "insert", "outcome": ""})
	name, tags := splitSeriesKey(k)
	if name != "m" {
		t.Errorf("name = %q, want m", name)
	}
	if want := []string{"outcome:unknown", "verb:insert"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
	if _, tags := splitSeriesKey(seriesKey("m", nil)); tags != nil {
		t.Errorf("tags without labels = %v, want nil", tags)
	}
}

func TestBackend_Flush(t *testing.T) {
	t.Setenv("ENV", "test")
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("empty Flush() = %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("empty Flush() submitted %d payloads", sub.count())
	}

	b.IncCounter(metrics.WritesTotal, 1, metrics.Labels{"verb": "insert", "outcome": "ok"})
	b.IncCounter(metrics.WritesTotal, 2, metrics.Labels{"verb": "insert", "outcome": "ok"})
	b.IncCounter(metrics.WritesTotal, 0, metrics.Labels{"verb": "insert", "outcome": "ok"})
	b.ObserveHistogram(metrics.WriteDurationSeconds, 0.5, metrics.Labels{"verb": "insert"})
	b.ObserveHistogram(metrics.WriteDurationSeconds, 0.1, metrics.Labels{"verb": "insert"})
	b.ObserveHistogram(metrics.WriteDurationSeconds, -1, metrics.Labels{"verb": "insert"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("submitted %d payloads, want 1", sub.count())
	}
	series := sub.payloads[0].Series
	// One counter plus p50, p90, p99, max and samples.
	if len(series) != 6 {
		t.Fatalf("len(series) = %d, want 6", len(series))
	}
	c := series[0]
	if c.Metric != "insertd.writes.total" {
		t.Errorf("Metric = %q", c.Metric)
	}
	if *c.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Errorf("Type = %v, want COUNT", *c.Type)
	}
	if v := *c.Points[0].Value; v != 3 {
		t.Errorf("counter value = %v, want 3", v)
	}
	if ts := *c.Points[0].Timestamp; ts != 1700000000 {
		t.Errorf("Timestamp = %d", ts)
	}
	wantTags := []string{"env:test", "service:insertd", "region:test", "outcome:ok", "verb:insert"}
	if !reflect.DeepEqual(c.Tags, wantTags) {
		t.Errorf("Tags = %v, want %v", c.Tags, wantTags)
	}
	byName := map[string]float64{}
	for _, s := range series[1:] {
		byName[s.Metric] = *s.Points[0].Value
	}
	if byName["insertd.write_duration_seconds.max"] != 0.5 {
		t.Errorf("max = %v, want 0.5", byName["insertd.write_duration_seconds.max"])
	}
	if byName["insertd.write_duration_seconds.samples"] != 2 {
		t.Errorf("samples = %v, want 2", byName["insertd.write_duration_seconds.samples"])
	}

	// Buffers were reset.
	if err := b.Flush(); err != nil || sub.count() != 1 {
		t.Errorf("second Flush() = %v with %d payloads, want nothing submitted", err, sub.count())
	}
}

func TestBackend_FlushError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("boom")}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()
	b.IncCounter(metrics.RowsTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatal("Flush() succeeded, want error")
	}
	sub.err = nil
	if err := b.Flush(); err != nil || sub.count() != 1 {
		t.Errorf("Flush() after failure = %v with %d payloads, want the buffer dropped", err, sub.count())
	}
}

func TestBackend_CloseFlushes(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"verb": "upsert"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if sub.count() != 1 {
		t.Errorf("Close() submitted %d payloads, want 1", sub.count())
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestNewBackend_BadTag(t *testing.T) {
	if _, err := NewBackend(context.Background(), Options{Tags: []string{"nocolon"}, submitter: &fakeSubmitter{}}); err == nil {
		t.Error("NewBackend() accepted a tag without a colon")
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod, ,region:eu ")
	if want := []string{"env:prod", "region:eu"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTagsCSV() = %v, want %v", got, want)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Errorf("ParseTagsCSV(\"\") = %v, want nil", got)
	}
}
