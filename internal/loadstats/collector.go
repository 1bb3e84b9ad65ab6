// Package loadstats aggregates client-side latencies from a relay load test
// and prints a summary with percentile distributions, optionally alongside
// server metrics scraped from the relay.
package loadstats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates measurements from many load test frontends and
// scripts. All methods are goroutine-safe.
type Collector struct {
	mu               sync.Mutex
	connectLatencies []time.Duration
	actionLatencies  []time.Duration
	failures         int // actions answered with success=false
	errors           int
	connections      int
	startTime        time.Time
	scraper          *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper attaches a metrics scraper whose report is appended to Report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records a frontend that connected and received its session ID.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectLatencies = append(c.connectLatencies, d)
	c.connections++
	c.mu.Unlock()
}

// AddAction records the round trip of one action. success is the frontend's
// verdict.
func (c *Collector) AddAction(d time.Duration, success bool) {
	c.mu.Lock()
	c.actionLatencies = append(c.actionLatencies, d)
	if !success {
		c.failures++
	}
	c.mu.Unlock()
}

// AddError counts a failed connect or a failed call.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// ConnectionCount returns the number of recorded connections.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections
}

// ActionCount returns the number of recorded actions.
func (c *Collector) ActionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actionLatencies)
}

// ErrorCount returns the number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report writes the summary to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(w, "Connections:  %d\n", c.connections)
	fmt.Fprintf(w, "Actions:      %d\n", len(c.actionLatencies))
	fmt.Fprintf(w, "Failures:     %d\n", c.failures)
	fmt.Fprintf(w, "Errors:       %d\n", c.errors)

	if attempts := len(c.actionLatencies) + c.errors; attempts > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(c.errors)/float64(attempts)*100)
	}
	if secs := elapsed.Seconds(); secs > 0 && len(c.actionLatencies) > 0 {
		fmt.Fprintf(w, "Throughput:   %.1f actions/s\n", float64(len(c.actionLatencies))/secs)
	}

	if len(c.connectLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Connect Latency ---")
		writePercentiles(w, c.connectLatencies)
	}

	if len(c.actionLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Action Latency ---")
		writePercentiles(w, c.actionLatencies)
	}

	if c.scraper != nil {
		c.scraper.Report(w)
	}

	fmt.Fprintln(w)
}

// Percentiles summarizes a latency sample.
type Percentiles struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// Summarize sorts durations in place and computes its percentiles.
func Summarize(durations []time.Duration) Percentiles {
	n := len(durations)
	if n == 0 {
		return Percentiles{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Percentiles{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}

func writePercentiles(w io.Writer, durations []time.Duration) {
	p := Summarize(durations)
	fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		p.Avg.Round(time.Microsecond),
		p.P50.Round(time.Microsecond),
		p.P95.Round(time.Microsecond),
		p.P99.Round(time.Microsecond),
		p.Max.Round(time.Microsecond),
		p.N,
	)
}
