package analytics

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"
)

// latencyWindow bounds how many recent latencies feed the percentiles.
const latencyWindow = 10000

// AggregatedStats is the JSON body of /stats and of stored snapshots.
type AggregatedStats struct {
	TotalRequests     int64              `json:"total_requests"`
	ByEndpoint        map[Endpoint]int64 `json:"by_endpoint"`
	ByOutcome         map[Outcome]int64  `json:"by_outcome"`
	CacheHits         int64              `json:"cache_hits"`
	CacheMisses       int64              `json:"cache_misses"`
	InputBytes        int64              `json:"input_bytes"`
	OutputBytes       int64              `json:"output_bytes"`
	AvgLatencyMs      float64            `json:"avg_latency_ms"`
	P50LatencyMs      int64              `json:"p50_latency_ms"`
	P95LatencyMs      int64              `json:"p95_latency_ms"`
	P99LatencyMs      int64              `json:"p99_latency_ms"`
	TopAnnotators     []NameCount        `json:"top_annotators"`
	TopOutputFormats  []NameCount        `json:"top_output_formats"`
	RequestsPerMinute float64            `json:"requests_per_minute"`
	Since             time.Time          `json:"since"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator folds request events into running totals. It is safe for
// concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	byEndpoint  map[Endpoint]int64
	byOutcome   map[Outcome]int64
	cacheHits   int64
	cacheMisses int64
	inputBytes  int64
	outputBytes int64
	latencies   []int64
	next        int
	annotators  map[string]int64
	formats     map[string]int64
	start       time.Time
	now         func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byEndpoint: make(map[Endpoint]int64),
		byOutcome:  make(map[Outcome]int64),
		latencies:  make([]int64, 0, 1024),
		annotators: make(map[string]int64),
		formats:    make(map[string]int64),
		start:      time.Now(),
		now:        time.Now,
	}
}

// Record adds one event.
func (a *Aggregator) Record(e RequestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.byEndpoint[e.Endpoint]++
	a.byOutcome[e.Outcome]++
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.inputBytes += int64(e.InputBytes)
	a.outputBytes += int64(e.OutputBytes)
	for _, name := range e.Annotators {
		a.annotators[name]++
	}
	if e.OutputFormat != "" {
		a.formats[e.OutputFormat]++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
		return
	}
	a.latencies[a.next] = e.LatencyMs
	a.next = (a.next + 1) % latencyWindow
}

// Restore seeds the running totals from a previous snapshot so that counts
// survive a restart. Percentiles start fresh.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total += prev.TotalRequests
	for k, v := range prev.ByEndpoint {
		a.byEndpoint[k] += v
	}
	for k, v := range prev.ByOutcome {
		a.byOutcome[k] += v
	}
	a.cacheHits += prev.CacheHits
	a.cacheMisses += prev.CacheMisses
	a.inputBytes += prev.InputBytes
	a.outputBytes += prev.OutputBytes
	for _, nc := range prev.TopAnnotators {
		a.annotators[nc.Name] += nc.Count
	}
	for _, nc := range prev.TopOutputFormats {
		a.formats[nc.Name] += nc.Count
	}
	if !prev.Since.IsZero() && prev.Since.Before(a.start) {
		a.start = prev.Since
	}
}

// Stats returns a consistent copy of the current totals.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalRequests:    a.total,
		ByEndpoint:       maps.Clone(a.byEndpoint),
		ByOutcome:        maps.Clone(a.byOutcome),
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		InputBytes:       a.inputBytes,
		OutputBytes:      a.outputBytes,
		TopAnnotators:    topN(a.annotators, 10),
		TopOutputFormats: topN(a.formats, 10),
		Since:            a.start.UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.start).Minutes(); elapsed > 0 {
		stats.RequestsPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []NameCount {
	result := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NameCount{Name: name, Count: count})
	}
	slices.SortFunc(result, func(x, y NameCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
