package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-memory/engine/containers"
)

// HeapType identifies where an allocation was served from.
type HeapType uint8

const (
	HeapTypePool HeapType = iota
	HeapTypeBacking
	HeapTypeFallback
	HEAP_TYPE_MAX
)

func (h HeapType) String() string {
	switch h {
	case HeapTypePool:
		return "pool"
	case HeapTypeBacking:
		return "backing"
	case HeapTypeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Source identifies a pool or allocator in telemetry. Names are only
// diagnostic and may repeat; the ID does not.
type Source struct {
	Name string
	ID   uuid.UUID
}

func NewSource(name string) Source {
	return Source{Name: name, ID: uuid.New()}
}

func (s Source) String() string {
	id := s.ID.String()
	return fmt.Sprintf("%s(%s)", s.Name, id[:8])
}

// AllocationSink receives allocator telemetry. Implementations must be safe
// for concurrent use; pools call them from any goroutine.
type AllocationSink interface {
	OnAlloc(src Source, heap HeapType, size int)
	OnFree(src Source, heap HeapType, size int)
	// OnFallback records a pooled request served by the backing heap.
	OnFallback(src Source, size int)
	// OnLeak reports blocks still outstanding when a pool was closed.
	OnLeak(src Source, outstanding int64)
	// OnFault reports a rejected caller-contract violation (double free,
	// size mismatch, foreign pointer) or a fatal condition.
	OnFault(src Source, err error)
}

type NopSink struct{}

func (NopSink) OnAlloc(Source, HeapType, int) {}
func (NopSink) OnFree(Source, HeapType, int)  {}
func (NopSink) OnFallback(Source, int)        {}
func (NopSink) OnLeak(Source, int64)          {}
func (NopSink) OnFault(Source, error)         {}

type DiagnosticKind uint8

const (
	DiagnosticFallback DiagnosticKind = iota
	DiagnosticLeak
	DiagnosticFault
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticFallback:
		return "fallback"
	case DiagnosticLeak:
		return "leak"
	default:
		return "fault"
	}
}

type Diagnostic struct {
	Time    time.Time
	Kind    DiagnosticKind
	Source  Source
	Message string
}

const DEFAULT_HISTORY_SIZE = 64

type heapCounters struct {
	allocs atomic.Int64
	frees  atomic.Int64
	bytes  atomic.Int64
}

// AllocationMetrics is the default AllocationSink: lock-free counters per
// heap type and a short history of diagnostics.
type AllocationMetrics struct {
	heaps     [HEAP_TYPE_MAX]heapCounters
	fallbacks atomic.Int64
	leaks     atomic.Int64
	faults    atomic.Int64

	mu      sync.Mutex
	history *containers.RingQueue[Diagnostic]
}

func NewAllocationMetrics(historySize int) *AllocationMetrics {
	if historySize <= 0 {
		historySize = DEFAULT_HISTORY_SIZE
	}
	return &AllocationMetrics{
		history: containers.NewRingQueue[Diagnostic](historySize),
	}
}

func (m *AllocationMetrics) OnAlloc(_ Source, heap HeapType, size int) {
	c := &m.heaps[heap]
	c.allocs.Add(1)
	c.bytes.Add(int64(size))
}

func (m *AllocationMetrics) OnFree(_ Source, heap HeapType, size int) {
	c := &m.heaps[heap]
	c.frees.Add(1)
	c.bytes.Add(-int64(size))
}

func (m *AllocationMetrics) OnFallback(src Source, size int) {
	m.fallbacks.Add(1)
	m.record(DiagnosticFallback, src, fmt.Sprintf("%d bytes served by backing heap", size))
}

func (m *AllocationMetrics) OnLeak(src Source, outstanding int64) {
	m.leaks.Add(outstanding)
	m.record(DiagnosticLeak, src, fmt.Sprintf("%d blocks outstanding at close", outstanding))
	LogWarn("%s leaked %d blocks", src, outstanding)
}

func (m *AllocationMetrics) OnFault(src Source, err error) {
	m.faults.Add(1)
	m.record(DiagnosticFault, src, err.Error())
	LogError("%s: %s", src, err)
}

func (m *AllocationMetrics) record(kind DiagnosticKind, src Source, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.Push(Diagnostic{
		Time:    time.Now(),
		Kind:    kind,
		Source:  src,
		Message: msg,
	})
}

type HeapStats struct {
	Allocs int64
	Frees  int64
	Bytes  int64
}

// Live is the number of allocations not yet freed.
func (s HeapStats) Live() int64 {
	return s.Allocs - s.Frees
}

type MetricsSnapshot struct {
	Heaps       [HEAP_TYPE_MAX]HeapStats
	Fallbacks   int64
	Leaks       int64
	Faults      int64
	Diagnostics []Diagnostic
}

// TotalAllocs sums allocations across every heap type.
func (s MetricsSnapshot) TotalAllocs() int64 {
	var n int64
	for _, h := range s.Heaps {
		n += h.Allocs
	}
	return n
}

func (m *AllocationMetrics) Snapshot() MetricsSnapshot {
	var s MetricsSnapshot
	for i := range m.heaps {
		s.Heaps[i] = HeapStats{
			Allocs: m.heaps[i].allocs.Load(),
			Frees:  m.heaps[i].frees.Load(),
			Bytes:  m.heaps[i].bytes.Load(),
		}
	}
	s.Fallbacks = m.fallbacks.Load()
	s.Leaks = m.leaks.Load()
	s.Faults = m.faults.Load()

	m.mu.Lock()
	s.Diagnostics = m.history.Items()
	m.mu.Unlock()
	return s
}

// Report logs the current counters at info level.
func (m *AllocationMetrics) Report() {
	s := m.Snapshot()
	for i, h := range s.Heaps {
		LogInfo("heap %-8s allocs=%d frees=%d live=%d bytes=%d", HeapType(i), h.Allocs, h.Frees, h.Live(), h.Bytes)
	}
	LogInfo("fallbacks=%d leaks=%d faults=%d", s.Fallbacks, s.Leaks, s.Faults)
}
