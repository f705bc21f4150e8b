package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType names a tracked pipeline operation.
type OperationType string

const (
	OpChunk     OperationType = "chunk"
	OpSortChunk OperationType = "sort_chunk"
	OpMerge     OperationType = "merge"
	OpSort      OperationType = "sort"
	OpVerify    OperationType = "verify"
	OpGenerate  OperationType = "generate"
)

// AtomicCollector gathers pipeline statistics with atomic counters. The
// maps are only locked when a new operation or error kind first appears.
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	recordsRead    atomic.Uint64
	recordsWritten atomic.Uint64
	chunksWritten  atomic.Uint64
	chunksSorted   atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // nanoseconds
	max   atomic.Uint64
	min   atomic.Uint64 // 0 until the first sample
}

// NewAtomicCollector creates an empty collector.
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for op.
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)
	c.touch(op)
}

// TrackOperationWithLatency tracks an operation and how long it took.
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latency time.Duration) {
	c.getOrCreateCounter(op).Add(1)
	c.touch(op)

	ns := uint64(max(latency, 0))
	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(ns)

	for {
		current := tracker.max.Load()
		if ns <= current || tracker.max.CompareAndSwap(current, ns) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current != 0 && ns >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, ns) {
			break
		}
	}
}

func (c *AtomicCollector) touch(op OperationType) {
	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackError increments the counter for an error kind.
func (c *AtomicCollector) TrackError(kind string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[kind]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[kind]; !exists {
			counter = &atomic.Uint64{}
			c.errors[kind] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackRecords adds n to the read or written record counter.
func (c *AtomicCollector) TrackRecords(isWrite bool, n uint64) {
	if isWrite {
		c.recordsWritten.Add(n)
	} else {
		c.recordsRead.Add(n)
	}
}

// TrackChunks records chunk files produced by the chunker.
func (c *AtomicCollector) TrackChunks(n uint64) {
	c.chunksWritten.Add(n)
}

// TrackChunkSorted records one chunk rewritten in order.
func (c *AtomicCollector) TrackChunkSorted() {
	c.chunksSorted.Add(1)
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["records_read"] = c.recordsRead.Load()
	stats["records_written"] = c.recordsWritten.Load()
	stats["chunks_written"] = c.chunksWritten.Load()
	stats["chunks_sorted"] = c.chunksSorted.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]uint64, len(c.errors))
	for kind, counter := range c.errors {
		errorStats[kind] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics whose key starts with prefix.
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for key, value := range c.GetStats() {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
