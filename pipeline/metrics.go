package pipeline

import "sync/atomic"

// Metrics are the only process-wide mutable state besides the LLM rate
// bucket; counters use atomic adds.
type Metrics struct {
	documents int64
	fallbacks int64
	failures  int64
	chunks    int64
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics { return &Metrics{} }

// DocumentProcessed records one successful document.
func (m *Metrics) DocumentProcessed(chunks int, fellBack bool) {
	atomic.AddInt64(&m.documents, 1)
	atomic.AddInt64(&m.chunks, int64(chunks))
	if fellBack {
		atomic.AddInt64(&m.fallbacks, 1)
	}
}

// DocumentFailed records one failed document.
func (m *Metrics) DocumentFailed() {
	atomic.AddInt64(&m.documents, 1)
	atomic.AddInt64(&m.failures, 1)
}

// Snapshot is a point-in-time counter view.
type Snapshot struct {
	Documents int64 `json:"documents"`
	Fallbacks int64 `json:"fallbacks"`
	Failures  int64 `json:"failures"`
	Chunks    int64 `json:"chunks"`
}

// Snapshot reads the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Documents: atomic.LoadInt64(&m.documents),
		Fallbacks: atomic.LoadInt64(&m.fallbacks),
		Failures:  atomic.LoadInt64(&m.failures),
		Chunks:    atomic.LoadInt64(&m.chunks),
	}
}
