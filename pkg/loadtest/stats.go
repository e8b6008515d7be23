package loadtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// Result is what a single transactor reports once its connection has been
// finalized.
type Result struct {
	Sent     int // Requests successfully handed to the transport.
	Received int // Messages received from the proxy.
}

// AggregateResult summarizes all of the transactors' results for one
// concurrency level.
type AggregateResult struct {
	Level     int           // The number of concurrent connections.
	Sent      int           // Total requests sent across all connections.
	Succeeded int           // Total messages received across all connections.
	Failed    int           // Sent minus Succeeded.
	Missing   int           // Transactors that did not report before the level timed out.
	Elapsed   time.Duration // Wall-clock time taken by the level.
}

// Aggregate sums the given results for a concurrency level.
func Aggregate(level int, results []Result) AggregateResult {
	agg := AggregateResult{Level: level}
	for _, r := range results {
		agg.Sent += r.Sent
		agg.Succeeded += r.Received
	}
	// A misbehaving proxy may send more than one message per request.
	if agg.Failed = agg.Sent - agg.Succeeded; agg.Failed < 0 {
		agg.Failed = 0
	}
	return agg
}

// SuccessRate returns the fraction of sent requests that received a reply.
func (r AggregateResult) SuccessRate() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Sent)
}

// Throughput returns the number of replies received per second of the given
// measurement window.
func (r AggregateResult) Throughput(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(r.Succeeded) / window.Seconds()
}

func (r AggregateResult) String() string {
	return fmt.Sprintf("%d %d %d", r.Level, r.Succeeded, r.Failed)
}

// ResultsLog is an append-only text file holding one "level succeeded failed"
// line per concurrency level. Existing content is never truncated, so results
// from several runs accumulate.
type ResultsLog struct {
	mtx sync.Mutex
	f   *os.File
}

// OpenResultsLog opens (creating it if necessary) the results log at the
// given path for appending.
func OpenResultsLog(path string) (*ResultsLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, NewError(ErrFailedToOpenResultsLog, err, path)
	}
	return &ResultsLog{f: f}, nil
}

// Append writes the given result's line and flushes it to disk so that
// partial runs still leave complete lines behind.
func (l *ResultsLog) Append(r AggregateResult) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if _, err := fmt.Fprintf(l.f, "%s\n", r); err != nil {
		return NewError(ErrFailedToWriteResults, err, l.f.Name())
	}
	if err := l.f.Sync(); err != nil {
		return NewError(ErrFailedToWriteResults, err, l.f.Name())
	}
	return nil
}

func (l *ResultsLog) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.f.Close()
}

func writeAggregateStats(filename string, results []AggregateResult, window time.Duration) error {
	f, err := os.Create(filename)
	if err != nil {
		return NewError(ErrFailedToWriteStats, err, filename)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	records := [][]string{
		{"level", "succeeded", "failed", "sent", "missing", "success_rate", "throughput_per_sec"},
	}
	for _, r := range results {
		records = append(records, []string{
			fmt.Sprintf("%d", r.Level),
			fmt.Sprintf("%d", r.Succeeded),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("%d", r.Sent),
			fmt.Sprintf("%d", r.Missing),
			fmt.Sprintf("%.6f", r.SuccessRate()),
			fmt.Sprintf("%.6f", r.Throughput(window)),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return NewError(ErrFailedToWriteStats, err, filename)
	}
	return nil
}
