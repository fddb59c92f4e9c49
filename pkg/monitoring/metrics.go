package monitoring

import (
	"sync"
	"time"
)

// MetricKind identifies a class of observed metric
type MetricKind string

const (
	MetricResponseTime MetricKind = "response-time"
	MetricErrorRate    MetricKind = "error-rate"
	MetricCPUUsage     MetricKind = "cpu-usage"
	MetricMemoryUsage  MetricKind = "memory-usage"
	MetricDiskUsage    MetricKind = "disk-usage"
	MetricAvailability MetricKind = "availability"
	MetricThroughput   MetricKind = "throughput"
	MetricAPILatency   MetricKind = "api-latency"
)

// DefaultSampleCapacity bounds the in-memory metric history
const DefaultSampleCapacity = 10000

// MetricSample is a single timestamped metric observation
type MetricSample struct {
	Kind        MetricKind `json:"kind"`
	Value       float64    `json:"value"`
	Timestamp   time.Time  `json:"timestamp"`
	Component   string     `json:"component"`
	Environment string     `json:"environment"`
}

// SampleStore is a bounded, thread-safe ring buffer of metric samples.
// Once capacity is exceeded the oldest samples are silently evicted.
type SampleStore struct {
	mu       sync.RWMutex
	samples  []MetricSample
	capacity int
	start    int
	count    int
}

// NewSampleStore creates a sample store with the given capacity.
// A non-positive capacity falls back to DefaultSampleCapacity.
func NewSampleStore(capacity int) *SampleStore {
	if capacity <= 0 {
		capacity = DefaultSampleCapacity
	}
	return &SampleStore{
		samples:  make([]MetricSample, capacity),
		capacity: capacity,
	}
}

// Append adds a sample, evicting the oldest entry when full
func (s *SampleStore) Append(sample MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := (s.start + s.count) % s.capacity
	s.samples[idx] = sample
	if s.count < s.capacity {
		s.count++
	} else {
		s.start = (s.start + 1) % s.capacity
	}
}

// Len returns the number of retained samples
func (s *SampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Capacity returns the fixed buffer capacity
func (s *SampleStore) Capacity() int {
	return s.capacity
}

// Latest returns the most recent sample of the given kind
func (s *SampleStore) Latest(kind MetricKind) (MetricSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := s.count - 1; i >= 0; i-- {
		sample := s.samples[(s.start+i)%s.capacity]
		if sample.Kind == kind {
			return sample, true
		}
	}
	return MetricSample{}, false
}

// LatestPerKind returns a snapshot of the most recent sample for every
// kind present in the store
func (s *SampleStore) LatestPerKind() map[MetricKind]MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[MetricKind]MetricSample)
	for i := 0; i < s.count; i++ {
		sample := s.samples[(s.start+i)%s.capacity]
		latest[sample.Kind] = sample
	}
	return latest
}

// Window returns a snapshot of all samples observed at or after since,
// in insertion order
func (s *SampleStore) Window(since time.Time) []MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := make([]MetricSample, 0, s.count)
	for i := 0; i < s.count; i++ {
		sample := s.samples[(s.start+i)%s.capacity]
		if !sample.Timestamp.Before(since) {
			window = append(window, sample)
		}
	}
	return window
}
