package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector is what the pipeline reports into.
type Collector interface {
	Provider

	TrackOperation(op OperationType)
	TrackOperationWithLatency(op OperationType, latency time.Duration)

	// TrackError counts a failure by error kind (config, io, parse, resource).
	TrackError(kind string)

	TrackRecords(isWrite bool, n uint64)
	TrackChunks(n uint64)
	TrackChunkSorted()
}

var _ Collector = (*AtomicCollector)(nil)
