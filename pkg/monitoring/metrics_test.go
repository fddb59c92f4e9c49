package monitoring

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(kind MetricKind, value float64, ts time.Time) MetricSample {
	return MetricSample{Kind: kind, Value: value, Timestamp: ts, Component: "api", Environment: "staging"}
}

func TestSampleStoreAppendAndLatest(t *testing.T) {
	store := NewSampleStore(100)
	now := time.Now()

	store.Append(sampleAt(MetricCPUUsage, 0.10, now))
	store.Append(sampleAt(MetricCPUUsage, 0.20, now.Add(time.Second)))
	store.Append(sampleAt(MetricErrorRate, 0.01, now.Add(2*time.Second)))

	require.Equal(t, 3, store.Len())

	latest, ok := store.Latest(MetricCPUUsage)
	require.True(t, ok)
	assert.Equal(t, 0.20, latest.Value)

	_, ok = store.Latest(MetricThroughput)
	assert.False(t, ok)
}

func TestSampleStoreEvictsOldestFirst(t *testing.T) {
	store := NewSampleStore(5)
	now := time.Now()

	for i := 0; i < 12; i++ {
		store.Append(sampleAt(MetricResponseTime, float64(i), now.Add(time.Duration(i)*time.Second)))
	}

	require.Equal(t, 5, store.Len())
	require.Equal(t, 5, store.Capacity())

	window := store.Window(time.Time{})
	require.Len(t, window, 5)
	// Values 7..11 survive; 0..6 were evicted oldest-first.
	for i, s := range window {
		assert.Equal(t, float64(7+i), s.Value)
	}
}

func TestSampleStoreLatestPerKindIsSnapshot(t *testing.T) {
	store := NewSampleStore(10)
	now := time.Now()

	store.Append(sampleAt(MetricCPUUsage, 0.5, now))
	store.Append(sampleAt(MetricMemoryUsage, 0.6, now))
	store.Append(sampleAt(MetricCPUUsage, 0.7, now.Add(time.Second)))

	latest := store.LatestPerKind()
	require.Len(t, latest, 2)
	assert.Equal(t, 0.7, latest[MetricCPUUsage].Value)
	assert.Equal(t, 0.6, latest[MetricMemoryUsage].Value)

	// Mutating the store must not affect the snapshot.
	store.Append(sampleAt(MetricCPUUsage, 0.9, now.Add(2*time.Second)))
	assert.Equal(t, 0.7, latest[MetricCPUUsage].Value)
}

func TestSampleStoreWindowFiltersByTime(t *testing.T) {
	store := NewSampleStore(50)
	base := time.Now()

	for i := 0; i < 10; i++ {
		store.Append(sampleAt(MetricThroughput, float64(i), base.Add(time.Duration(i)*time.Minute)))
	}

	window := store.Window(base.Add(5 * time.Minute))
	require.Len(t, window, 5)
	assert.Equal(t, 5.0, window[0].Value)
}

func TestSampleStoreConcurrentAppends(t *testing.T) {
	store := NewSampleStore(1000)
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.Append(sampleAt(MetricKind(fmt.Sprintf("kind-%d", g)), float64(i), time.Now()))
				if i%50 == 0 {
					store.LatestPerKind()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 1000, store.Len())
}
