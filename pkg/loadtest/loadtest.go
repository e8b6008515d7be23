package loadtest

import (
	"context"
	"strings"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	uuid "github.com/satori/go.uuid"
)

// Summary allows us to summarize the results of a whole load testing run.
type Summary struct {
	RunID         string            // Unique ID of the run, attached to all of its log output.
	Results       []AggregateResult // One entry per completed concurrency level.
	TotalTestTime time.Duration     // How long the whole run took.
}

// Log will output the given test summary using the specified logger.
func (s *Summary) Log(logger logging.Logger) {
	for _, r := range s.Results {
		logger.Info(
			"Level summary",
			"concurrency", r.Level,
			"succeeded", r.Succeeded,
			"failed", r.Failed,
			"sent", r.Sent,
			"missing", r.Missing,
		)
	}
	logger.Info("Load test summary", "run", s.RunID, "levels", len(s.Results), "totalTestTime", s.TotalTestTime)
}

// ExecuteLoadTest builds the request payload once and then runs every
// configured concurrency level against the proxy, appending one line per level
// to the results log. Whatever was completed before a failure or cancellation
// is still reported in the returned summary.
func ExecuteLoadTest(ctx context.Context, cfg Config, opts ...GroupOption) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{RunID: makeRunID()}
	logger := logging.NewLogrusLogger("loadtest", "run", summary.RunID)
	defer func() { summary.TotalTestTime = time.Since(startTime) }()

	payload, err := BuildRequest(cfg.TargetURI)
	if err != nil {
		logger.Error("Failed to build request", "err", err)
		return summary, err
	}
	logger.Debug("Built request", "target", cfg.TargetURI, "bytes", len(payload))

	resultsLog, err := OpenResultsLog(cfg.Output)
	if err != nil {
		logger.Error("Failed to open results log", "err", err)
		return summary, err
	}
	defer func() {
		if err := resultsLog.Close(); err != nil {
			logger.Error("Failed to close results log", "err", err)
		}
	}()

	metrics := NewMetrics()
	if len(cfg.MetricsAddr) > 0 {
		stopMetrics, err := metrics.Serve(cfg.MetricsAddr, logger)
		if err != nil {
			logger.Error("Failed to start metrics server", "err", err)
			return summary, err
		}
		defer stopMetrics()
	}

	logger.Info("Initiating load test", "proxy", redactURL(cfg.ProxyURL), "levels", cfg.Levels)
	opts = append([]GroupOption{WithMetrics(metrics), WithRunID(summary.RunID)}, opts...)
	tg := NewTransactorGroup(cfg, payload, opts...)
	summary.Results, err = tg.Run(ctx, resultsLog)
	if err != nil {
		logger.Error("Failed to execute load test", "err", err)
	}

	if len(cfg.StatsOutput) > 0 {
		if statsErr := writeAggregateStats(cfg.StatsOutput, summary.Results, cfg.Window.Duration()); statsErr != nil {
			logger.Error("Failed to write summary statistics", "err", statsErr)
			if err == nil {
				err = statsErr
			}
		}
	}
	if err == nil {
		logger.Info("Load test complete!")
	}
	return summary, err
}

func makeRunID() string {
	return strings.ReplaceAll(uuid.NewV4().String(), "-", "")
}
