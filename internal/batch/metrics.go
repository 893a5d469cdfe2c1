package batch

import (
	"encoding/json"
	"sync"
	"time"
)

// Metrics captures timing and outcome aggregates for a batch run.
// Lightweight and aggregated (no per-document data stored).
type Metrics struct {
	mu sync.Mutex

	Total   int
	OK      int
	Skipped int
	Errors  int

	SkipReasonCounts map[string]int

	ReadDuration    time.Duration
	ExtractDuration time.Duration
	WriteDuration   time.Duration
	OverallDuration time.Duration

	NativePages int
	OCRPages    int
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		SkipReasonCounts: make(map[string]int),
	}
}

// DocumentEvent captures a single document's timing and outcome.
type DocumentEvent struct {
	Read    time.Duration
	Extract time.Duration
	Write   time.Duration
	Overall time.Duration

	Outcome    string // "ok" | "skipped" | "error"
	SkipReason string

	NativePages int
	OCRPages    int
}

// Record folds one document's event into the aggregates. Safe to call
// on a nil receiver.
func (m *Metrics) Record(ev DocumentEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Total++
	switch ev.Outcome {
	case "ok":
		m.OK++
	case "skipped":
		m.Skipped++
		if ev.SkipReason != "" {
			m.SkipReasonCounts[ev.SkipReason]++
		}
	default:
		m.Errors++
	}

	m.ReadDuration += ev.Read
	m.ExtractDuration += ev.Extract
	m.WriteDuration += ev.Write
	m.OverallDuration += ev.Overall

	m.NativePages += ev.NativePages
	m.OCRPages += ev.OCRPages
}

// Snapshot returns a JSON-serializable snapshot of current aggregates.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	div := func(d time.Duration, n int) float64 {
		if n <= 0 {
			return 0
		}
		return float64(d.Milliseconds()) / float64(n)
	}

	return map[string]any{
		"documents": map[string]any{
			"total":   m.Total,
			"ok":      m.OK,
			"skipped": m.Skipped,
			"error":   m.Errors,
		},
		"pages": map[string]any{
			"native": m.NativePages,
			"ocr":    m.OCRPages,
		},
		"avg_ms": map[string]any{
			"read":    div(m.ReadDuration, m.Total),
			"extract": div(m.ExtractDuration, m.Total),
			"write":   div(m.WriteDuration, m.Total),
			"overall": div(m.OverallDuration, m.Total),
		},
		"skip_reasons": m.SkipReasonCounts,
	}
}

// SnapshotJSON returns a JSON representation of the aggregates.
func (m *Metrics) SnapshotJSON() json.RawMessage {
	if m == nil {
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(m.Snapshot())
	return b
}
