package loadtest

import (
	"context"
	"fmt"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/informalsystems/wsproxy-load-test/pkg/transport"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// ResultsWriter receives each concurrency level's aggregate result as soon as
// the level completes.
type ResultsWriter interface {
	Append(r AggregateResult) error
}

// TransactorGroup runs the configured concurrency levels one after the other.
// Each level gets its own fixed-size pool with one worker per connection.
type TransactorGroup struct {
	cfg     Config
	payload []byte
	factory transport.Factory
	logger  logging.Logger
	metrics *Metrics
	runID   string
}

// GroupOption overrides part of a TransactorGroup's default setup.
type GroupOption func(g *TransactorGroup)

// WithTransportFactory replaces the default WebSockets transport.
func WithTransportFactory(f transport.Factory) GroupOption {
	return func(g *TransactorGroup) {
		g.factory = f
	}
}

func WithMetrics(m *Metrics) GroupOption {
	return func(g *TransactorGroup) {
		g.metrics = m
	}
}

// WithRunID tags all of the group's log output with the given run ID.
func WithRunID(id string) GroupOption {
	return func(g *TransactorGroup) {
		g.runID = id
	}
}

// NewTransactorGroup creates a group that will send the given payload to the
// proxy configured in cfg.
func NewTransactorGroup(cfg Config, payload []byte, opts ...GroupOption) *TransactorGroup {
	g := &TransactorGroup{
		cfg:     cfg,
		payload: payload,
		factory: transport.WebSocketFactory(
			transport.HandshakeTimeout(cfg.ConnectTimeout.Duration()),
			transport.WriteTimeout(cfg.WriteTimeout.Duration()),
			transport.CloseTimeout(cfg.CloseTimeout.Duration()),
		),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewLogrusLogger("group", "run", g.runID)
	return g
}

// Run executes every configured level in order, pausing for the cool-down
// period between consecutive levels. Each level's result is handed to w before
// the next level starts. The results gathered so far are returned even on
// error.
func (g *TransactorGroup) Run(ctx context.Context, w ResultsWriter) ([]AggregateResult, error) {
	results := make([]AggregateResult, 0, len(g.cfg.Levels))
	for i, level := range g.cfg.Levels {
		if i > 0 && g.cfg.CoolDown > 0 {
			g.logger.Debug("Cooling down", "duration", g.cfg.CoolDown.String())
			select {
			case <-time.After(g.cfg.CoolDown.Duration()):
			case <-ctx.Done():
				return results, NewError(ErrKilled, ctx.Err())
			}
		}
		r, err := g.RunLevel(ctx, level)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		if err := w.Append(r); err != nil {
			return results, err
		}
		if ctx.Err() != nil {
			return results, NewError(ErrKilled, ctx.Err())
		}
	}
	return results, nil
}

// RunLevel runs level concurrent transactors and aggregates their results.
// Transactors that have not reported back within the level timeout are counted
// as having sent and received nothing.
func (g *TransactorGroup) RunLevel(ctx context.Context, level int) (AggregateResult, error) {
	if level <= 0 {
		return AggregateResult{Level: level}, nil
	}
	startTime := time.Now()
	g.logger.Info("Starting concurrency level", "concurrency", level)
	g.metrics.levelStarted(level)

	pool, err := ants.NewPool(
		level,
		ants.WithPanicHandler(func(p interface{}) {
			g.logger.Error("Transactor panicked", "panic", p)
		}),
		ants.WithLogger(logrus.WithField("ctx", "pool")),
	)
	if err != nil {
		return AggregateResult{}, NewError(ErrFailedToCreatePool, err, fmt.Sprintf("size %d", level))
	}
	defer pool.Release()

	// transactors still running once the level is over are told to close
	// their connections before the next level starts
	levelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so that late transactors never block once we've stopped
	// collecting
	resc := make(chan Result, level)
	for i := 0; i < level; i++ {
		t := NewTransactor(
			g.cfg,
			g.payload,
			g.factory,
			logging.NewLogrusLogger(fmt.Sprintf("transactor[%d/%d]", level, i), "run", g.runID),
			g.metrics,
		)
		if err := pool.Submit(func() {
			// a panicking transactor still reports (0, 0)
			var r Result
			defer func() { resc <- r }()
			r = t.Run(levelCtx)
		}); err != nil {
			return AggregateResult{}, NewError(ErrFailedToCreatePool, err, "failed to submit transactor")
		}
	}

	results := make([]Result, 0, level)
	timeout := time.NewTimer(g.cfg.EffectiveLevelTimeout())
	defer timeout.Stop()
collect:
	for len(results) < level {
		select {
		case r := <-resc:
			results = append(results, r)
		case <-timeout.C:
			g.logger.Warn(
				"Timed out waiting for transactors; counting missing ones as (0, 0)",
				"concurrency", level,
				"missing", level-len(results),
			)
			break collect
		}
	}

	agg := Aggregate(level, results)
	agg.Missing = level - len(results)
	agg.Elapsed = time.Since(startTime)
	g.metrics.levelCompleted(agg)
	g.logger.Info(
		"Concurrency level complete",
		"concurrency", level,
		"succeeded", agg.Succeeded,
		"failed", agg.Failed,
		"elapsed", agg.Elapsed.String(),
	)
	return agg, nil
}
