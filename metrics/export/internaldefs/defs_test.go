package internaldefs

import (
	"testing"

	authclient "github.com/versini-org/auth-client"
)

func TestDefsCoverEveryMetric(t *testing.T) {
	snap := authclient.NewMetrics(authclient.MetricsConfig{Enabled: true, EnableLatencyHistograms: true}).Snapshot()

	counters := map[authclient.MetricID]bool{}
	for _, def := range CounterDefs {
		counters[def.ID] = true
	}
	for id := range snap.Counters {
		if !counters[id] {
			t.Fatalf("counter %s has no export definition", id)
		}
	}

	histograms := map[authclient.MetricID]bool{}
	for _, def := range HistogramDefs {
		histograms[def.ID] = true
	}
	for id := range snap.Histograms {
		if !histograms[id] {
			t.Fatalf("histogram %s has no export definition", id)
		}
	}
}

func TestBucketTablesAgree(t *testing.T) {
	labels := BucketLabels()
	if len(labels) != BucketCount {
		t.Fatalf("expected %d labels, got %d", BucketCount, len(labels))
	}
	if labels[0] != "0.005" || labels[len(labels)-1] != "+Inf" {
		t.Fatalf("unexpected bucket labels %v", labels)
	}
	if len(UpperBoundsSeconds()) != BucketCount-1 {
		t.Fatalf("expected %d finite bounds", BucketCount-1)
	}
	if got := UpperBoundsSeconds()[0]; got != 0.005 {
		t.Fatalf("expected first bound 0.005, got %v", got)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := []uint64{1, 3, 6, 6, 6, 6, 6, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}
