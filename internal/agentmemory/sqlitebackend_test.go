package agentmemory

import (
	"path/filepath"
	"testing"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentmemory.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackend_ModificationRoundTrip(t *testing.T) {
	b := newTestSQLiteBackend(t)
	r := ModificationRecord{
		ID:            "m1",
		Description:   "widen cache",
		AffectedFiles: []string{"cache.go"},
		Outcome:       OutcomeSuccess,
		MetricDeltas:  map[string]float64{"p95_1m_us": -0.12},
		TimestampMS:   42,
	}
	b.PutModification(r)

	got, ok := b.GetModification("m1")
	if !ok {
		t.Fatal("GetModification(m1) not found")
	}
	if got.Description != r.Description || got.Outcome != r.Outcome || len(got.AffectedFiles) != 1 {
		t.Fatalf("round-tripped record = %+v, want %+v", got, r)
	}
	if got.MetricDeltas["p95_1m_us"] != -0.12 {
		t.Fatalf("MetricDeltas = %v", got.MetricDeltas)
	}
}

func TestSQLiteBackend_OldestModificationID(t *testing.T) {
	b := newTestSQLiteBackend(t)
	b.PutModification(ModificationRecord{ID: "a", TimestampMS: 5})
	b.PutModification(ModificationRecord{ID: "b", TimestampMS: 1})

	oldest, ok := b.OldestModificationID()
	if !ok || oldest != "b" {
		t.Fatalf("OldestModificationID() = (%q, %v), want (b, true)", oldest, ok)
	}
}

func TestSQLiteBackend_PatternTagsRoundTrip(t *testing.T) {
	b := newTestSQLiteBackend(t)
	p := CodePattern{
		ID:       "p1",
		Title:    "retry with backoff",
		Tags:     map[string]struct{}{"go": {}, "resilience": {}},
		UseCount: 3,
	}
	b.PutPattern(p)

	got, ok := b.GetPattern("p1")
	if !ok {
		t.Fatal("GetPattern(p1) not found")
	}
	if !got.HasAllTags([]string{"go", "resilience"}) {
		t.Fatalf("tags not round-tripped: %+v", got.Tags)
	}
}

func TestSQLiteBackend_LeastUsedPatternID(t *testing.T) {
	b := newTestSQLiteBackend(t)
	b.PutPattern(CodePattern{ID: "p1", UseCount: 5})
	b.PutPattern(CodePattern{ID: "p2", UseCount: 1})

	least, ok := b.LeastUsedPatternID()
	if !ok || least != "p2" {
		t.Fatalf("LeastUsedPatternID() = (%q, %v), want (p2, true)", least, ok)
	}
}

func TestSQLiteBackend_BaselineRoundTripPreservesM2(t *testing.T) {
	b := newTestSQLiteBackend(t)
	var bl PerformanceBaseline
	bl.Metric = "latency_us"
	bl.incorporate(10, 10, 10, 10, 1)
	bl.incorporate(20, 15, 18, 19, 2)
	b.PutBaseline(bl)

	got, ok := b.GetBaseline("latency_us")
	if !ok {
		t.Fatal("GetBaseline(latency_us) not found")
	}
	got.incorporate(30, 20, 28, 29, 3)
	bl.incorporate(30, 20, 28, 29, 3)
	if got.Mean != bl.Mean || got.StdDev != bl.StdDev {
		t.Fatalf("baseline diverged after round-trip: got %+v, want %+v", got, bl)
	}
}

func TestSQLiteBackend_DeadEndRoundTrip(t *testing.T) {
	b := newTestSQLiteBackend(t)
	b.PutDeadEnd(DeadEnd{Key: "k1", RelatedSignals: []string{"anomaly:p95_1m_us:Warn"}, RecordedAtMS: 7})

	got, ok := b.GetDeadEnd("k1")
	if !ok {
		t.Fatal("GetDeadEnd(k1) not found")
	}
	if len(got.RelatedSignals) != 1 || got.RelatedSignals[0] != "anomaly:p95_1m_us:Warn" {
		t.Fatalf("RelatedSignals = %v", got.RelatedSignals)
	}

	b.DeleteDeadEnd("k1")
	if _, ok := b.GetDeadEnd("k1"); ok {
		t.Fatal("GetDeadEnd(k1) found after delete")
	}
}

func TestSQLiteBackend_CountsAndMemoryWrapper(t *testing.T) {
	b := newTestSQLiteBackend(t)
	cfg := DefaultConfig()
	cfg.MaxModifications = 1
	m := New(cfg, b)

	m.Record(ModificationRecord{ID: "a", TimestampMS: 1})
	m.Record(ModificationRecord{ID: "b", TimestampMS: 2})

	if b.CountModifications() != 1 {
		t.Fatalf("CountModifications() = %d, want 1", b.CountModifications())
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("'a' should have been evicted via SQLiteBackend")
	}
}
