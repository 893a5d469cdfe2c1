package batch

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.Record(DocumentEvent{
		Read:        10 * time.Millisecond,
		Extract:     100 * time.Millisecond,
		Write:       5 * time.Millisecond,
		Overall:     120 * time.Millisecond,
		Outcome:     "ok",
		NativePages: 3,
		OCRPages:    1,
	})
	m.Record(DocumentEvent{
		Read:       20 * time.Millisecond,
		Overall:    20 * time.Millisecond,
		Outcome:    "skipped",
		SkipReason: "extract",
	})

	if m.Total != 2 {
		t.Errorf("Total = %d, want 2", m.Total)
	}
	if m.OK != 1 {
		t.Errorf("OK = %d, want 1", m.OK)
	}
	if m.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", m.Skipped)
	}
	if m.SkipReasonCounts["extract"] != 1 {
		t.Errorf("SkipReasonCounts = %v", m.SkipReasonCounts)
	}
	if m.NativePages != 3 || m.OCRPages != 1 {
		t.Errorf("pages = %d native, %d ocr", m.NativePages, m.OCRPages)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Record(DocumentEvent{
		Extract: 100 * time.Millisecond,
		Overall: 100 * time.Millisecond,
		Outcome: "ok",
	})
	m.Record(DocumentEvent{
		Extract: 300 * time.Millisecond,
		Overall: 300 * time.Millisecond,
		Outcome: "ok",
	})

	snap := m.Snapshot()
	docs := snap["documents"].(map[string]any)
	if docs["total"] != 2 || docs["ok"] != 2 {
		t.Errorf("documents = %v", docs)
	}
	avg := snap["avg_ms"].(map[string]any)
	if avg["extract"] != 200.0 {
		t.Errorf("avg extract = %v, want 200", avg["extract"])
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Record(DocumentEvent{Outcome: "ok"})
	if snap := m.Snapshot(); snap != nil {
		t.Errorf("nil snapshot = %v", snap)
	}
	if got := string(m.SnapshotJSON()); got != "null" {
		t.Errorf("nil json = %s", got)
	}
}

func TestMetricsSnapshotJSON(t *testing.T) {
	m := NewMetrics()
	m.Record(DocumentEvent{Outcome: "ok", NativePages: 2})

	var decoded map[string]any
	if err := json.Unmarshal(m.SnapshotJSON(), &decoded); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	pages := decoded["pages"].(map[string]any)
	if pages["native"] != 2.0 {
		t.Errorf("native pages = %v, want 2", pages["native"])
	}
}
