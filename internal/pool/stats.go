package pool

import (
	"context"
	"math"
	"time"
)

// periodSeconds maps the finite stats period tokens to their length. "all"
// is handled separately against the cumulative counters.
var periodSeconds = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
}

// statsRetention bounds how far back the timestamp store reaches; the
// cleanup loop trims everything older.
const statsRetention = 24 * time.Hour

// BackendStat is one backend's share of a stats period.
type BackendStat struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PeriodStats aggregates one period of traffic.
type PeriodStats struct {
	Total    int64                  `json:"total"`
	Backends map[string]BackendStat `json:"backends"`
}

// RecordRequest appends the current timestamp to the url's sliding window
// and bumps its cumulative counter. The url does not have to be a pool
// member; stats outlive membership.
func (p *Pool) RecordRequest(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requestTimes[url] = append(p.requestTimes[url], p.now())
	p.totalRequests[url]++
}

// GetStats returns traffic totals and per-backend shares for each requested
// period. Unknown period tokens are skipped. Percentages are computed against
// the period's final total, rounded to one decimal; backends with no traffic
// in a finite window are omitted.
func (p *Pool) GetStats(periods []string) map[string]PeriodStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	result := make(map[string]PeriodStats)

	for _, period := range periods {
		if period == "all" {
			result["all"] = p.cumulativeStatsLocked()
			continue
		}

		window, ok := periodSeconds[period]
		if !ok {
			continue
		}

		cutoff := now.Add(-window)
		counts := make(map[string]int64)
		var total int64
		for url, timestamps := range p.requestTimes {
			var count int64
			for _, ts := range timestamps {
				if !ts.Before(cutoff) {
					count++
				}
			}
			if count > 0 {
				counts[url] = count
				total += count
			}
		}

		stats := PeriodStats{Total: total, Backends: make(map[string]BackendStat, len(counts))}
		for url, count := range counts {
			stats.Backends[url] = BackendStat{
				Count:      count,
				Percentage: sharePercent(count, total),
			}
		}
		result[period] = stats
	}

	return result
}

func (p *Pool) cumulativeStatsLocked() PeriodStats {
	var total int64
	for _, count := range p.totalRequests {
		total += count
	}

	stats := PeriodStats{Total: total, Backends: make(map[string]BackendStat, len(p.totalRequests))}
	for url, count := range p.totalRequests {
		stats.Backends[url] = BackendStat{
			Count:      count,
			Percentage: sharePercent(count, total),
		}
	}
	return stats
}

func sharePercent(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

// StartStatsCleanup launches the hourly trim of the timestamp store. A
// second start while running is a no-op.
func (p *Pool) StartStatsCleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleanupStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cleanupStop = cancel
	p.cleanupDone = done
	go p.cleanupLoop(ctx, done)
}

// StopStatsCleanup cancels the cleanup loop and waits for it to exit.
// Stopping a stopped loop is a no-op.
func (p *Pool) StopStatsCleanup() {
	p.mu.Lock()
	stop, done := p.cleanupStop, p.cleanupDone
	p.cleanupStop, p.cleanupDone = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

func (p *Pool) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trimmed := p.cleanupOldRequests()
			p.log.Debug("stats_cleanup_pass", "trimmed", trimmed)
		}
	}
}

// cleanupOldRequests discards timestamps older than the retention window.
// Cumulative counters are never reset. Returns how many entries were dropped.
func (p *Pool) cleanupOldRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-statsRetention)
	trimmed := 0
	for url, timestamps := range p.requestTimes {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		trimmed += len(timestamps) - len(kept)
		p.requestTimes[url] = kept
	}
	return trimmed
}
