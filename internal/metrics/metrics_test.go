package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	flushed  int
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, samples: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"/"+labels["verb"]+"/"+labels["outcome"]] += delta
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name+"/"+labels["verb"]] = append(r.samples[name+"/"+labels["verb"]], value)
}

func (r *recorder) Flush() error {
	r.flushed++
	return errors.New("flushed")
}

func TestNoopBackend(t *testing.T) {
	SetBackend(nil)
	IncCounter(WritesTotal, 1, nil)
	ObserveHistogram(WriteDurationSeconds, 1, nil)
	if err := Flush(); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
}

func TestRecordWrite(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordWrite("insert", "ok", 3, 250*time.Millisecond)
	RecordWrite("insert", "missing_table", 0, time.Millisecond)

	if got := r.counters[WritesTotal+"/insert/ok"]; got != 1 {
		t.Errorf("writes ok = %v, want 1", got)
	}
	if got := r.counters[WritesTotal+"/insert/missing_table"]; got != 1 {
		t.Errorf("writes missing_table = %v, want 1", got)
	}
	if got := r.counters[RowsTotal+"/insert/"]; got != 3 {
		t.Errorf("rows = %v, want 3", got)
	}
	if got := r.samples[WriteDurationSeconds+"/insert"]; len(got) != 2 || got[0] != 0.25 {
		t.Errorf("durations = %v, want [0.25 0.001]", got)
	}
	if err := Flush(); err == nil || r.flushed != 1 {
		t.Errorf("Flush() = %v after %d flushes, want the backend's error", err, r.flushed)
	}
}
