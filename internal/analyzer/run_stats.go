package analyzer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// RunStats holds counters across analysis runs. It is safe for concurrent use.
type RunStats struct {
	totalRuns     int64
	successes     int64
	failures      int64
	messages      int64
	droppedRows   int64
	chartsDrawn   int64
	mu            sync.Mutex
	failureByKind map[model.FailureKind]int
}

// NewRunStats creates a new RunStats instance
func NewRunStats() *RunStats {
	return &RunStats{
		failureByKind: make(map[model.FailureKind]int),
	}
}

// RecordSuccess counts a completed run.
func (rs *RunStats) RecordSuccess(messages, dropped, charts int) {
	atomic.AddInt64(&rs.totalRuns, 1)
	atomic.AddInt64(&rs.successes, 1)
	atomic.AddInt64(&rs.messages, int64(messages))
	atomic.AddInt64(&rs.droppedRows, int64(dropped))
	atomic.AddInt64(&rs.chartsDrawn, int64(charts))
}

// RecordFailure counts a failed run and its kind.
func (rs *RunStats) RecordFailure(kind model.FailureKind) {
	atomic.AddInt64(&rs.totalRuns, 1)
	atomic.AddInt64(&rs.failures, 1)

	rs.mu.Lock()
	rs.failureByKind[kind]++
	rs.mu.Unlock()
}

// GetStats returns the current counters and success rate
func (rs *RunStats) GetStats() (total, successes, failures int64, successRate float64) {
	total = atomic.LoadInt64(&rs.totalRuns)
	successes = atomic.LoadInt64(&rs.successes)
	failures = atomic.LoadInt64(&rs.failures)

	if total > 0 {
		successRate = float64(successes) / float64(total) * 100
	}

	return
}

// Totals returns the message, dropped row and chart counters.
func (rs *RunStats) Totals() (messages, dropped, charts int64) {
	return atomic.LoadInt64(&rs.messages), atomic.LoadInt64(&rs.droppedRows), atomic.LoadInt64(&rs.chartsDrawn)
}

// FailureCounts returns a copy of the failures per kind.
func (rs *RunStats) FailureCounts() map[model.FailureKind]int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make(map[model.FailureKind]int, len(rs.failureByKind))
	for k, v := range rs.failureByKind {
		out[k] = v
	}
	return out
}

// PrintFinalStats logs the totals and a summary of failure kinds
func (rs *RunStats) PrintFinalStats() {
	total, successes, failures, successRate := rs.GetStats()
	messages, dropped, charts := rs.Totals()

	util.LogInfof("Analysis statistics: %d runs, success rate %.1f%% (%d succeeded/%d failed), %s messages, %d dropped rows, %d charts",
		total, successRate, successes, failures, util.FormatNumber(int(messages)), dropped, charts)

	if failures > 0 {
		counts := rs.FailureCounts()
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)

		util.LogInfo("Failure kind summary:")
		for _, k := range kinds {
			util.LogInfof("  %s: %d runs", k, counts[model.FailureKind(k)])
		}
	}
}
