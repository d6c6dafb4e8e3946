package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Texts       []string
	Targets     []Target
}

// Target is one request shape the workers cycle through.
type Target struct {
	Name string
	Path string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	byTarget      map[string]*atomic.Int64
	countsMu      sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
		byTarget:    make(map[string]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(target string, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.countsMu.Lock()
	counter(s.statusCodes, statusCode).Add(1)
	counter(s.byTarget, target).Add(1)
	s.countsMu.Unlock()
}

func counter[K comparable](m map[K]*atomic.Int64, k K) *atomic.Int64 {
	c, ok := m[k]
	if !ok {
		c = &atomic.Int64{}
		m[k] = c
	}
	return c
}

func main() {
	baseURL := flag.String("url", "http://localhost:9000", "base URL of the annotation server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	annotators := flag.String("annotators", "tokenize,ssplit,pos,lemma,ner,depparse", "annotators for / requests")
	flag.Parse()

	texts := []string{
		"The quick brown fox jumped over the lazy dog.",
		"Dr. Smith visited Paris on Monday. She met 3 engineers from Acme Corp.",
		"My old friend could not have seen the small red car yesterday.",
		"The children were running to the big house.",
		"Stanford University is located in California. It was founded in 1885.",
		"The cat sat on the mat. The dog ran away quickly!",
		"People often ask why the sky is blue.",
		"John gave Mary a book about distributed systems.",
	}

	properties := url.QueryEscape(fmt.Sprintf(`{"annotators":%q,"outputFormat":"json"}`, *annotators))
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Texts:       texts,
		Targets: []Target{
			{Name: "annotate", Path: "/?properties=" + properties},
			{Name: "annotate-conll", Path: "/?properties=" + url.QueryEscape(`{"annotators":"lemma","outputFormat":"conll"}`)},
			{Name: "tokensregex", Path: "/tokensregex?pattern=" + url.QueryEscape("[pos:DT]? [pos:/JJ.*/]* [pos:/NN.*/]+")},
			{Name: "tokensregex-filter", Path: "/tokensregex?filter=true&pattern=" + url.QueryEscape("[]* [ner:PERSON] []*")},
			{Name: "semgrex", Path: "/semgrex?pattern=" + url.QueryEscape("{pos:/VB.*/} >nsubj {}=subj")},
		},
	}

	fmt.Println("=== Annotation Server Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Texts:       %d unique\n", len(cfg.Texts))
	fmt.Printf("Endpoints:   %d\n", len(cfg.Targets))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := range cfg.Concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			i := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				target := cfg.Targets[i%len(cfg.Targets)]
				text := cfg.Texts[(i/len(cfg.Targets))%len(cfg.Texts)]
				i++

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, cfg.BaseURL+target.Path, text))
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(target.Name, duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(target.Name, duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL, body string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	stats.countsMu.Lock()
	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := slices.Sorted(maps.Keys(stats.statusCodes))
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}

	fmt.Println()
	fmt.Println("=== Completed By Endpoint ===")
	for _, name := range slices.Sorted(maps.Keys(stats.byTarget)) {
		fmt.Printf("  %-20s %d\n", name, stats.byTarget[name].Load())
	}
	stats.countsMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
