package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	quotaRejectedTotal      atomic.Uint64
	usageLogFailedTotal     atomic.Uint64
	roundTripDegradedTotal  atomic.Uint64
	extractionFallbackTotal atomic.Uint64

	providerCalls  = newCounterVec()
	providerErrors = newCounterVec()

	providerDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// ObserveProviderCall records one upstream call for op ("chat", "transcribe", "synthesize").
func ObserveProviderCall(op string, d time.Duration, err error) {
	providerCalls.Inc(op)
	if err != nil {
		providerErrors.Inc(op)
	}
	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	providerDuration.Observe(ms)
}

// IncQuotaRejected counts admission gate rejections.
func IncQuotaRejected() {
	quotaRejectedTotal.Add(1)
}

// IncUsageLogFailed counts usage events that could not be persisted.
func IncUsageLogFailed() {
	usageLogFailedTotal.Add(1)
}

// IncRoundTripDegraded counts audio round trips that returned without audio.
func IncRoundTripDegraded() {
	roundTripDegradedTotal.Add(1)
}

// IncExtractionFallback counts PDFs that needed a non-primary strategy.
func IncExtractionFallback() {
	extractionFallbackTotal.Add(1)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounterVec(&buf, "provider_calls_total", "Upstream provider calls", "op", providerCalls.Snapshot())
	writeCounterVec(&buf, "provider_errors_total", "Upstream provider calls that failed", "op", providerErrors.Snapshot())
	writeCounter(&buf, "quota_rejected_total", "Chat creations rejected by the usage gate", quotaRejectedTotal.Load())
	writeCounter(&buf, "usage_log_failed_total", "Usage events dropped after a logger failure", usageLogFailedTotal.Load())
	writeCounter(&buf, "audio_roundtrip_degraded_total", "Audio round trips returned without synthesized audio", roundTripDegradedTotal.Load())
	writeCounter(&buf, "extraction_pdf_fallback_total", "PDF extractions served by a fallback strategy", extractionFallbackTotal.Load())
	writeHistogram(&buf, "provider_duration_ms", "Upstream provider latency in milliseconds", providerDuration.Snapshot())
	return buf.String()
}

type counterVec struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec() *counterVec {
	return &counterVec{values: make(map[string]uint64)}
}

func (v *counterVec) Inc(label string) {
	v.mu.Lock()
	v.values[label]++
	v.mu.Unlock()
}

func (v *counterVec) Snapshot() map[string]uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]uint64, len(v.values))
	for k, n := range v.values {
		out[k] = n
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe puts value in the first bucket whose bound covers it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
