package observability

import (
	"errors"
	"testing"
	"time"
)

func TestOpWindowSnapshot(t *testing.T) {
	w := newOpWindow(8)
	w.Observe("search", 10, false)
	w.Observe("search", 30, true)
	w.Observe("search", 20, false)
	w.Observe("add", 1, false)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Ops) != 2 {
		t.Fatalf("len(Ops) = %d, want 2", len(snap.Ops))
	}
	if snap.Ops[0].Op != "add" {
		t.Fatalf("Ops[0].Op = %q, want sorted %q first", snap.Ops[0].Op, "add")
	}
	s := snap.Ops[1]
	if s.Samples != 3 || s.Errors != 1 {
		t.Fatalf("Samples/Errors = %d/%d, want 3/1", s.Samples, s.Errors)
	}
	if s.LastMS != 20 {
		t.Fatalf("LastMS = %.2f, want 20", s.LastMS)
	}
	if s.P50MS != 20 {
		t.Fatalf("P50MS = %.2f, want 20", s.P50MS)
	}
	if s.P95MS != 30 || s.MaxMS != 30 {
		t.Fatalf("P95MS/MaxMS = %.2f/%.2f, want 30/30", s.P95MS, s.MaxMS)
	}
}

func TestOpWindowSingleOp(t *testing.T) {
	w := newOpWindow(4)
	if _, ok := w.Op("get"); ok {
		t.Fatalf("Op(get) ok = true before any sample")
	}
	w.Observe("get", 5, false)

	s, ok := w.Op("get")
	if !ok {
		t.Fatalf("Op(get) ok = false after a sample")
	}
	if s.Samples != 1 || s.P99MS != 5 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestOpWindowWrapsAround(t *testing.T) {
	w := newOpWindow(2)
	w.Observe("get", 100, true)
	w.Observe("get", 1, false)
	w.Observe("get", 3, false)

	s := w.Snapshot().Ops[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 2 {
		t.Fatalf("AvgMS = %.2f, want 2 (oldest sample evicted)", s.AvgMS)
	}
	if s.Errors != 0 {
		t.Fatalf("Errors = %d, want 0 once the failed sample is evicted", s.Errors)
	}
	if s.LastMS != 3 {
		t.Fatalf("LastMS = %.2f, want 3", s.LastMS)
	}
}

func TestOpWindowIgnoresInvalidSamples(t *testing.T) {
	w := newOpWindow(4)
	w.Observe("", 1, false)
	w.Observe("add", -1, false)
	if got := len(w.Snapshot().Ops); got != 0 {
		t.Fatalf("len(Ops) = %d, want 0", got)
	}
}

func TestNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := map[float64]float64{0: 1, 10: 1, 50: 5, 95: 10, 100: 10}
	for pct, want := range cases {
		if got := nearestRank(sorted, pct); got != want {
			t.Fatalf("nearestRank(%v) = %v, want %v", pct, got, want)
		}
	}
}

func TestObserveOperationFeedsWindow(t *testing.T) {
	m := NewMetrics("test_observability_"+time.Now().Format("150405")+"_"+time.Now().Format("000000000"), 4)
	m.ObserveOperation("add", 2*time.Millisecond, nil)
	m.ObserveOperation("add", 4*time.Millisecond, errors.New("boom"))

	snap := m.SnapshotOperations()
	if len(snap.Ops) != 1 || snap.Ops[0].Samples != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Ops[0].AvgMS != 3 {
		t.Fatalf("AvgMS = %.2f, want 3", snap.Ops[0].AvgMS)
	}
	if snap.Ops[0].Errors != 1 {
		t.Fatalf("Errors = %d, want 1", snap.Ops[0].Errors)
	}
}
