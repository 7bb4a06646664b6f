package signal

import "testing"

func TestDedupKeyStable(t *testing.T) {
	a := NewAnomaly("p95_latency", SeverityWarn, 1.0, 2.0)
	if a.DedupKey() != a.DedupKey() {
		t.Fatalf("dedup key not stable across calls")
	}
	b := NewAnomaly("p95_latency", SeverityWarn, 9.0, 9.0)
	if a.DedupKey() != b.DedupKey() {
		t.Fatalf("expected same dedup key for semantically equivalent anomalies, got %q vs %q", a.DedupKey(), b.DedupKey())
	}
	c := NewAnomaly("p95_latency", SeverityCritical, 1.0, 2.0)
	if a.DedupKey() == c.DedupKey() {
		t.Fatalf("expected distinct dedup key for different severity")
	}
}

func TestDedupKeyManualTruncatesByRune(t *testing.T) {
	long := "日本語" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	s := NewManual(long, nil)
	key := s.DedupKey()
	runes := []rune(key)
	// "manual:" prefix (7 runes) + 40 truncated description runes.
	if len(runes) != 7+40 {
		t.Fatalf("expected dedup key of 47 runes, got %d (%q)", len(runes), key)
	}
}

func TestPriorityTable(t *testing.T) {
	cases := []struct {
		name string
		sig  Signal
		want Priority
	}{
		{"anomaly info", NewAnomaly("m", SeverityInfo, 0, 0), PriorityLow},
		{"anomaly warn", NewAnomaly("m", SeverityWarn, 0, 0), PriorityMedium},
		{"anomaly critical", NewAnomaly("m", SeverityCritical, 0, 0), PriorityCritical},
		{"degradation high fraction", NewMetricDegradation("m", 0, 0, 0.6), PriorityCritical},
		{"degradation mid fraction", NewMetricDegradation("m", 0, 0, 0.3), PriorityHigh},
		{"degradation low fraction", NewMetricDegradation("m", 0, 0, 0.15), PriorityMedium},
		{"degradation negligible fraction", NewMetricDegradation("m", 0, 0, 0.01), PriorityLow},
		{"error spike high", NewErrorSpike("s", 0.2), PriorityCritical},
		{"error spike mid", NewErrorSpike("s", 0.06), PriorityHigh},
		{"error spike low", NewErrorSpike("s", 0.01), PriorityMedium},
		{"budget exceeded", NewBudgetExceeded("b", 10, 5), PriorityHigh},
		{"manual", NewManual("d", nil), PriorityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sig.Priority(); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPriorityOrdering(t *testing.T) {
	if !(PriorityCritical > PriorityHigh && PriorityHigh > PriorityMedium && PriorityMedium > PriorityLow) {
		t.Fatalf("expected Critical > High > Medium > Low")
	}
}

func TestComplexityManualByFileCount(t *testing.T) {
	cases := []struct {
		files []string
		want  Complexity
	}{
		{nil, ComplexityTrivial},
		{[]string{"a"}, ComplexityTrivial},
		{[]string{"a", "b"}, ComplexityModerate},
		{[]string{"a", "b", "c"}, ComplexityModerate},
		{[]string{"a", "b", "c", "d"}, ComplexityComplex},
	}
	for _, tc := range cases {
		got := NewManual("d", tc.files).Complexity()
		if got != tc.want {
			t.Fatalf("files=%d: got %v want %v", len(tc.files), got, tc.want)
		}
	}
}

func TestMetricName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"p95_latency: exceeded threshold", "p95_latency"},
		{"no colon here", "no colon here"},
		{"", "unknown"},
		{"  : leading space", "unknown"},
	}
	for _, tc := range cases {
		got := MetricName(tc.in)
		if tc.in == "  : leading space" {
			if got != "unknown" {
				t.Fatalf("expected unknown for blank token, got %q", got)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("MetricName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
