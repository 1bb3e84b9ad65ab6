package loadstats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Snapshot holds the relay metrics at a point in time.
type Snapshot struct {
	Timestamp    time.Time
	Connections  float64
	Pending      float64
	ActionsTotal float64 // summed over result labels
	Forwarded    float64 // summed over direction labels
	LatencySum   float64
	LatencyCount float64
}

// Scraper periodically fetches the relay's Prometheus endpoint during a
// load test.
type Scraper struct {
	metricsURL string
	interval   time.Duration

	mu        sync.Mutex
	snapshots []Snapshot

	cancel context.CancelFunc
	done   chan struct{}
	client *http.Client
}

// NewScraper creates a Scraper that fetches metricsURL every interval.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start takes a snapshot immediately and then one per interval until ctx is
// done or Stop is called.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.scrapeOnce(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.scrapeOnce(final)
				cancel()
				return
			case <-ticker.C:
				s.scrapeOnce(ctx)
			}
		}
	}()
}

// Stop stops the scraper after a final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Snapshots returns a copy of the recorded snapshots.
func (s *Scraper) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}

func (s *Scraper) scrapeOnce(ctx context.Context) {
	snap, err := s.fetch(ctx)
	if err != nil {
		// The relay may not be up yet.
		return
	}

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *Scraper) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metricsURL, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("scrape %s: %s", s.metricsURL, resp.Status)
	}
	return ParseSnapshot(resp.Body)
}

// ParseSnapshot reads the Prometheus text exposition format and extracts
// the relay metrics.
func ParseSnapshot(r io.Reader) (Snapshot, error) {
	snap := Snapshot{Timestamp: time.Now()}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		name, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}

		switch name {
		case "carta_frontend_connections":
			snap.Connections = value
		case "carta_pending_actions":
			snap.Pending = value
		case "carta_actions_total":
			snap.ActionsTotal += value
		case "carta_forwarded_actions_total":
			snap.Forwarded += value
		case "carta_action_latency_seconds_sum":
			snap.LatencySum = value
		case "carta_action_latency_seconds_count":
			snap.LatencyCount = value
		}
	}

	return snap, scanner.Err()
}

// parseMetricLine splits "name{labels} value" into the bare name and value.
func parseMetricLine(line string) (string, float64, bool) {
	var name string
	raw := line
	if idx := strings.IndexByte(raw, '{'); idx != -1 {
		name = raw[:idx]
		closing := strings.IndexByte(raw[idx:], '}')
		if closing == -1 {
			return "", 0, false
		}
		raw = name + raw[idx+closing+1:]
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return "", 0, false
	}
	if name == "" {
		name = fields[0]
	}

	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, false
	}
	return name, v, true
}

// Report writes initial, final, delta and peak values of the relay gauges
// and counters, and the average action latency seen by the relay.
func (s *Scraper) Report(w io.Writer) {
	snaps := s.Snapshots()
	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Relay Metrics (no data collected) ---")
		return
	}

	first := snaps[0]
	last := snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Relay Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n",
		len(snaps), last.Timestamp.Sub(first.Timestamp).Round(time.Second))

	rows := []struct {
		label string
		get   func(Snapshot) float64
	}{
		{"Connections", func(s Snapshot) float64 { return s.Connections }},
		{"Pending", func(s Snapshot) float64 { return s.Pending }},
		{"Actions Total", func(s Snapshot) float64 { return s.ActionsTotal }},
		{"Forwarded", func(s Snapshot) float64 { return s.Forwarded }},
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta", "Peak")
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s\n", "------", "-------", "-----", "-----", "----")
	for _, row := range rows {
		initial, final := row.get(first), row.get(last)
		fmt.Fprintf(w, "  %-16s %10.0f %10.0f %10.0f %10.0f\n",
			row.label, initial, final, final-initial, peakValue(snaps, row.get))
	}

	fmt.Fprintln(w)
	if count := last.LatencyCount - first.LatencyCount; count > 0 {
		avg := (last.LatencySum - first.LatencySum) / count
		fmt.Fprintf(w, "  %-16s avg: %.4fs  (%.0f observations)\n", "Relay Latency", avg, count)
	} else {
		fmt.Fprintf(w, "  %-16s avg: N/A  (no observations)\n", "Relay Latency")
	}
}

func peakValue(snaps []Snapshot, get func(Snapshot) float64) float64 {
	peak := math.Inf(-1)
	for _, s := range snaps {
		if v := get(s); v > peak {
			peak = v
		}
	}
	return peak
}
