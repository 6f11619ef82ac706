// Package metrics is the process-wide metrics facade.
//
// Write handlers record through the package functions; a backend selected at
// startup (Prometheus or Datadog) receives them. Until SetBackend is called
// every call is a no-op.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metric names recorded by the write path.
const (
	WritesTotal          = "insertd_writes_total"
	RowsTotal            = "insertd_rows_total"
	WriteDurationSeconds = "insertd_write_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type holder struct{ b Backend }

var current atomic.Pointer[holder]

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		current.Store(nil)
		return
	}
	current.Store(&holder{b: b})
}

func backend() Backend {
	if h := current.Load(); h != nil {
		return h.b
	}
	return nil
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	if b := backend(); b != nil {
		b.IncCounter(name, delta, labels)
	}
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	if b := backend(); b != nil {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush pushes buffered observations when the backend buffers them.
func Flush() error {
	if f, ok := backend().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordWrite records one write request.
func RecordWrite(verb, outcome string, rows int, d time.Duration) {
	IncCounter(WritesTotal, 1, Labels{"verb": verb, "outcome": outcome})
	if rows > 0 {
		IncCounter(RowsTotal, float64(rows), Labels{"verb": verb})
	}
	ObserveHistogram(WriteDurationSeconds, d.Seconds(), Labels{"verb": verb})
}
