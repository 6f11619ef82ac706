// Package datadog implements a Datadog backend for the metrics package.
//
// Observations are buffered in memory and submitted on a ticker (once a minute
// by default) and one last time on Close, so a long-running server produces a
// time series rather than a single point at exit. Flush snapshots and resets
// the buffers under the lock, then submits outside it.
package datadog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/maruel/insertd/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// Service becomes tag "service:<name>". Defaults to "insertd".
	Service string
	// Tags are extra Datadog tags, e.g. "region:eu".
	Tags []string
	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams.
	now       func() time.Time
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api        metricsSubmitter
	ctx        context.Context
	flushEvery time.Duration
	baseTags   []string
	now        func() time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

// NewBackend constructs a Datadog backend using the official client. The API
// key and site are read by the client from DD_API_KEY and DD_SITE.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	service := opts.Service
	if service == "" {
		service = "insertd"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}
	for _, tag := range opts.Tags {
		if !strings.Contains(tag, ":") {
			return nil, wrapInitErr(fmt.Errorf("tag %q is not key:value", tag))
		}
	}
	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "service:"+service)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		baseTags:   baseTags,
		now:        nowFn,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counters:   make(map[string]float64),
		samples:    make(map[string][]float64),
	}
	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := b.Flush(); err != nil {
				slog.Warn("Datadog flush failed", "err", err)
			}
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits what is left.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := seriesKey(name, labels)
	b.mu.Lock()
	b.counters[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := seriesKey(name, labels)
	b.mu.Lock()
	b.samples[k] = append(b.samples[k], value)
	b.mu.Unlock()
}

type snapshot struct {
	counters map[string]float64
	samples  map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[string]float64)
	b.samples = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails. It returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if len(snap.counters) == 0 && len(snap.samples) == 0 {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	if _, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters()); err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a snapshot into Datadog series at one timestamp. Counters
// become COUNT points; each histogram becomes percentile GAUGE points.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+6*len(s.samples))
	for _, k := range sortedKeys(s.counters) {
		name, tags := splitSeriesKey(k)
		series = append(series, point(metricName(name), datadogV2.METRICINTAKETYPE_COUNT, s.counters[k], withTags(b.baseTags, tags...), nowUnix))
	}
	for _, k := range sortedKeys(s.samples) {
		name, tags := splitSeriesKey(k)
		cp := slices.Clone(s.samples[k])
		sort.Float64s(cp)
		prefix := metricName(name)
		all := withTags(b.baseTags, tags...)
		for _, p := range []struct {
			suffix string
			q      float64
		}{{".p50", 0.50}, {".p90", 0.90}, {".p99", 0.99}} {
			series = append(series, point(prefix+p.suffix, datadogV2.METRICINTAKETYPE_GAUGE, percentileNearestRank(cp, p.q), all, nowUnix))
		}
		series = append(series, point(prefix+".max", datadogV2.METRICINTAKETYPE_GAUGE, cp[len(cp)-1], all, nowUnix))
		series = append(series, point(prefix+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(cp)), all, nowUnix))
	}
	return series
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// metricName maps "insertd_writes_total" to "insertd.writes.total".
func metricName(name string) string {
	if rest, ok := strings.CutPrefix(name, "insertd_"); ok {
		if base, ok := strings.CutSuffix(rest, "_total"); ok {
			return "insertd." + base + ".total"
		}
		return "insertd." + rest
	}
	return name
}

// seriesKey encodes a name and its labels, sorted, as one map key.
func seriesKey(name string, labels metrics.Labels) string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return name + "\x00" + strings.Join(tags, "\x00")
}

func splitSeriesKey(k string) (string, []string) {
	parts := strings.Split(k, "\x00")
	if len(parts) == 2 && parts[1] == "" {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	idx := min(max(int(p*float64(n-1)+0.5), 0), n-1)
	return s[idx]
}

func wrapInitErr(err error) error {
	return fmt.Errorf("datadog metrics init: %w", err)
}

// ParseTagsCSV parses comma-separated tags like "env:prod,region:eu".
func ParseTagsCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
