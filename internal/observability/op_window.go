package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// OpStats summarizes the retained latency samples of one store operation.
type OpStats struct {
	Op      string  `json:"op"`
	Samples int     `json:"samples"`
	Errors  int     `json:"errors"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
	MaxMS   float64 `json:"max_ms"`
}

type OpSnapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	WindowSize  int       `json:"window_size"`
	Ops         []OpStats `json:"ops"`
}

// opWindow holds one latencyRing per operation name. The map lock is only
// taken for write the first time an operation is seen.
type opWindow struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*latencyRing
}

// latencyRing retains the last len(samples) observations of one operation.
type latencyRing struct {
	mu      sync.Mutex
	samples []sample
	count   int
	head    int
}

type sample struct {
	ms     float64
	failed bool
}

func newOpWindow(size int) *opWindow {
	if size <= 0 {
		size = 256
	}
	return &opWindow{size: size, rings: make(map[string]*latencyRing)}
}

func (w *opWindow) Observe(op string, ms float64, failed bool) {
	if op == "" || ms < 0 {
		return
	}
	w.ringFor(op).push(sample{ms: ms, failed: failed})
}

func (w *opWindow) ringFor(op string) *latencyRing {
	w.mu.RLock()
	r, ok := w.rings[op]
	w.mu.RUnlock()
	if ok {
		return r
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok = w.rings[op]; !ok {
		r = &latencyRing{samples: make([]sample, w.size)}
		w.rings[op] = r
	}
	return r
}

// Snapshot summarizes every operation, ordered by name.
func (w *opWindow) Snapshot() OpSnapshot {
	w.mu.RLock()
	names := make([]string, 0, len(w.rings))
	for op := range w.rings {
		names = append(names, op)
	}
	w.mu.RUnlock()
	slices.Sort(names)

	out := make([]OpStats, 0, len(names))
	for _, op := range names {
		if st, ok := w.Op(op); ok {
			out = append(out, st)
		}
	}
	return OpSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Ops:         out,
	}
}

// Op summarizes a single operation. ok is false when nothing was recorded.
func (w *opWindow) Op(op string) (OpStats, bool) {
	w.mu.RLock()
	r, ok := w.rings[op]
	w.mu.RUnlock()
	if !ok {
		return OpStats{}, false
	}
	latencies, errs, last := r.copyOut()
	if len(latencies) == 0 {
		return OpStats{}, false
	}
	slices.Sort(latencies)

	var sum float64
	for _, v := range latencies {
		sum += v
	}
	return OpStats{
		Op:      op,
		Samples: len(latencies),
		Errors:  errs,
		LastMS:  round2(last),
		AvgMS:   round2(sum / float64(len(latencies))),
		P50MS:   round2(nearestRank(latencies, 50)),
		P95MS:   round2(nearestRank(latencies, 95)),
		P99MS:   round2(nearestRank(latencies, 99)),
		MaxMS:   round2(latencies[len(latencies)-1]),
	}, true
}

func (r *latencyRing) push(s sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.head] = s
	r.head = (r.head + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

func (r *latencyRing) copyOut() (latencies []float64, errs int, last float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, 0, 0
	}
	latencies = make([]float64, 0, r.count)
	for _, s := range r.samples[:r.count] {
		latencies = append(latencies, s.ms)
		if s.failed {
			errs++
		}
	}
	last = r.samples[(r.head-1+len(r.samples))%len(r.samples)].ms
	return latencies, errs, last
}

// nearestRank returns the smallest sample with at least pct percent of the
// samples at or below it. sorted must be ascending and non-empty.
func nearestRank(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
