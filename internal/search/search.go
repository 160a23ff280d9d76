// Package search runs the exhaustive classification of a machine space
// across a pool of workers.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/metrics"
	"github.com/efebarandurmaz/bbsearch/internal/observability"
)

// ErrInvalidOptions is returned for a step bound or worker count that
// cannot be run.
var ErrInvalidOptions = errors.New("invalid search options")

// batchSize is how many machines a worker classifies between progress
// updates and cancellation checks.
const batchSize = 4096

// Options configures a search.
type Options struct {
	States   int
	MaxSteps uint32
	Workers  int

	// Generator selects the enumerated space. The zero value is the
	// canonical space.
	Generator enumerate.Generator

	// RunID identifies the run in logs, spans and the journal. A random
	// one is generated when empty.
	RunID string

	// Optional sinks. Nil disables each of them.
	Logger  *slog.Logger
	Metrics *observability.SearchMetrics
	Journal *observability.Journal
}

// Progress reports how far a search has come. It is safe to read from any
// goroutine while the search runs.
type Progress struct {
	done  atomic.Uint64
	total uint64
}

// Done returns the number of machines classified so far. Workers publish
// their count once per batch of 4096 machines and once more at the end of
// their range, so while a search runs Done trails the true count by less
// than one batch per worker. It equals Total once Run returns successfully.
func (p *Progress) Done() uint64 { return p.done.Load() }

// Total returns the number of machines in the space.
func (p *Progress) Total() uint64 { return p.total }

// Fraction returns Done/Total in [0, 1].
func (p *Progress) Fraction() float64 {
	if p.total == 0 {
		return 1
	}
	return float64(p.Done()) / float64(p.total)
}

// Search is one configured run.
type Search struct {
	opts     Options
	space    *enumerate.Space
	progress *Progress
	timing   *metrics.RunMetrics
	logger   *slog.Logger
}

// New validates opts and prepares a search.
func New(opts Options) (*Search, error) {
	space, err := enumerate.NewGeneratedSpace(opts.States, opts.Generator)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if opts.MaxSteps == 0 {
		return nil, fmt.Errorf("search: %w: max steps must be at least 1", ErrInvalidOptions)
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("search: %w: worker count %d, want at least 1", ErrInvalidOptions, opts.Workers)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Search{
		opts:     opts,
		space:    space,
		progress: &Progress{total: space.Size()},
		logger:   logger.With("run_id", opts.RunID),
	}
	if opts.Metrics != nil {
		opts.Metrics.TrackProgress(s.progress.Done, s.progress.Total)
	}
	return s, nil
}

// Progress returns the live progress counter.
func (s *Search) Progress() *Progress { return s.progress }

// Space returns the enumerated space.
func (s *Search) Space() *enumerate.Space { return s.space }

// RunID returns the run identifier.
func (s *Search) RunID() string { return s.opts.RunID }

// Timing returns the timing of the last Run, or nil before the first.
func (s *Search) Timing() *metrics.RunMetrics { return s.timing }

// Run classifies every machine of the space and returns the merged result.
// Cancelling ctx stops the workers at their next batch boundary; no
// partial result is returned.
func (s *Search) Run(ctx context.Context) (*aggregate.Result, error) {
	spans := s.space.Partition(s.opts.Workers)
	s.timing = metrics.New(s.opts.RunID, s.opts.States, s.opts.MaxSteps, len(spans))
	s.progress.done.Store(0)

	ctx, span := observability.StartRunSpan(ctx, s.opts.RunID, s.opts.States, s.opts.MaxSteps, len(spans))
	defer span.End()

	s.logger.Info("search started",
		"states", s.opts.States,
		"generator", s.space.Generator().String(),
		"max_steps", s.opts.MaxSteps,
		"workers", len(spans),
		"total", s.space.Size(),
	)
	s.journal(s.opts.Journal.LogRunStart(s.opts.States, s.opts.MaxSteps, len(spans), s.space.Size()))

	results := make([]*aggregate.Result, len(spans))
	durations := make([]time.Duration, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		g.Go(func() error {
			start := time.Now()
			r, err := s.work(gctx, i, sp)
			if err != nil {
				return err
			}
			results[i] = r
			durations[i] = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.timing.Finish(s.progress.Done())
		observability.RecordError(span, err)
		s.journal(s.opts.Journal.LogRunError(s.timing.Duration, err))
		s.logger.Warn("search aborted", "done", s.progress.Done(), "error", err)
		return nil, fmt.Errorf("search %d-state machines: %w", s.opts.States, err)
	}

	merged := aggregate.MergeAll(results...)
	for i, sp := range spans {
		s.timing.AddPartition(i, sp.Len(), durations[i])
	}
	s.timing.Finish(merged.Total())

	score, winners := merged.HighScore()
	observability.RecordRunResult(span, merged.Total(), score, winners, s.timing.Duration)
	if s.opts.Metrics != nil {
		counts := make(map[string]uint64, classify.NumCategories)
		for _, c := range merged.Counts() {
			counts[c.Category.String()] = c.Count
		}
		s.opts.Metrics.RecordRun(s.timing.Duration, score, counts)
	}
	s.journal(s.opts.Journal.LogRunComplete(s.timing.Duration, merged))
	s.logger.Info("search finished",
		"total", merged.Total(),
		"high_score", score,
		"winners", winners,
		"duration", s.timing.Duration,
	)
	return merged, nil
}

// work classifies the machines of one span into a private result.
func (s *Search) work(ctx context.Context, worker int, sp enumerate.Span) (*aggregate.Result, error) {
	ctx, span := observability.StartPartitionSpan(ctx, worker, sp.Start, sp.End)
	defer span.End()
	if m := s.opts.Metrics; m != nil {
		m.ActiveWorkers.Inc()
		defer m.ActiveWorkers.Dec()
	}
	start := time.Now()

	c := classify.New(s.opts.MaxSteps)
	r := aggregate.New()
	var pending uint64
	for index, m := range s.space.Range(sp.Start, sp.End) {
		r.Record(index, c.Classify(m))
		pending++
		if pending == batchSize {
			s.progress.done.Add(pending)
			pending = 0
			if err := ctx.Err(); err != nil {
				observability.RecordError(span, err)
				return nil, err
			}
		}
	}
	s.progress.done.Add(pending)

	elapsed := time.Since(start)
	observability.RecordPartitionResult(span, r.Total(), r.Halted())
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordPartition(elapsed)
	}
	s.journal(s.opts.Journal.LogPartition(worker, sp.Start, sp.End, elapsed))
	s.logger.Debug("partition finished", "worker", worker, "start", sp.Start, "end", sp.End, "duration", elapsed)
	return r, nil
}

func (s *Search) journal(err error) {
	if err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}

// Run is a convenience wrapper for New followed by Search.Run.
func Run(ctx context.Context, opts Options) (*aggregate.Result, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}
