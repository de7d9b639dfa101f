// Package scheduler orchestrates a batch run: it classifies every config
// source, executes all compute jobs and then all plot jobs, and reports a
// per-job summary.
//
// Jobs within a phase run concurrently under a bounded worker pool. Work on
// the same source id is serialized through the run's accumulator registry,
// and each compute job takes an exclusive lock on its output directory so a
// second concurrent run against the same directory fails fast instead of
// corrupting accumulator files. One failed job never stops the phase.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"specbatch/internal/accumulator"
	"specbatch/internal/classify"
	"specbatch/internal/config"
	"specbatch/internal/ledger"
	"specbatch/internal/logging"
	"specbatch/internal/naming"
	"specbatch/internal/preflight"
	"specbatch/internal/psd"
	"specbatch/internal/render"
	"specbatch/internal/services"
	"specbatch/internal/waveform"
)

// Options configures a Scheduler. Zero values select the defaults: one
// worker, the filesystem waveform source, the histogram estimator, the PNG
// renderer, and no ledger.
type Options struct {
	Logger           *slog.Logger
	Workers          int
	EstimatorTimeout time.Duration
	Ledger           *ledger.Store
	Source           waveform.Source
	Estimator        psd.Estimator
	Renderer         render.Renderer
}

// Scheduler runs classified config documents through the pipeline.
type Scheduler struct {
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	store    *ledger.Store
	source   waveform.Source
	est      psd.Estimator
	renderer render.Renderer
	names    *naming.Engine
}

// New constructs a Scheduler from opts.
func New(opts Options) *Scheduler {
	logger := logging.NewComponentLogger(opts.Logger, "scheduler")
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	source := opts.Source
	if source == nil {
		source = waveform.NewFilesystemSource()
	}
	est := opts.Estimator
	if est == nil {
		est = psd.NewEstimator()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.NewPNGRenderer()
	}
	return &Scheduler{
		logger:   logger,
		workers:  workers,
		timeout:  opts.EstimatorTimeout,
		store:    opts.Ledger,
		source:   source,
		est:      est,
		renderer: renderer,
		names:    naming.NewEngine(opts.Logger),
	}
}

type computeJob struct {
	source string
	cfg    *config.Compute
}

type plotJob struct {
	source string
	cfg    *config.Plot
}

// Run executes every source through classification, the compute phase, and
// the plot phase. A non-nil error means the run could not start (preflight
// or ledger failure); per-job failures land in the summary instead.
func (s *Scheduler) Run(ctx context.Context, sources []string) (*Summary, error) {
	summary := &Summary{RunID: uuid.New().String(), Started: time.Now().UTC()}
	logger := s.logger.With(slog.String(logging.FieldRunID, summary.RunID))

	var computes []computeJob
	var plots []plotJob
	for _, source := range sources {
		kind, err := classify.Classify(source)
		if err != nil {
			logger.Error("cannot classify job source",
				slog.String(logging.FieldJob, source),
				slog.String(logging.FieldReason, services.Reason(err)),
				slog.String("error", err.Error()),
			)
			summary.add(JobResult{Source: source, Kind: "unknown", Status: StatusFailed, Reason: services.Reason(err), Err: err})
			continue
		}
		switch kind {
		case classify.KindCompute:
			cfg, err := config.LoadCompute(source)
			if err != nil {
				summary.add(failedLoad(source, kind, err, logger))
				continue
			}
			computes = append(computes, computeJob{source: source, cfg: cfg})
		case classify.KindPlot:
			cfg, err := config.LoadPlot(source)
			if err != nil {
				summary.add(failedLoad(source, kind, err, logger))
				continue
			}
			plots = append(plots, plotJob{source: source, cfg: cfg})
		}
	}

	if err := s.checkPreflight(computes, plots, logger); err != nil {
		return summary, err
	}

	if s.store != nil {
		run, err := s.store.BeginRun(ctx, s.workers)
		if err != nil {
			return summary, fmt.Errorf("open run ledger: %w", err)
		}
		summary.RunID = run.ID
		logger = s.logger.With(slog.String(logging.FieldRunID, summary.RunID))
	}

	registry := accumulator.NewManager(s.est, logger, accumulator.WithAddTimeout(s.timeout))

	computeResults := s.runComputePhase(ctx, logger, registry, computes)
	for _, result := range computeResults {
		summary.add(result)
	}
	plotResults := s.runPlotPhase(ctx, logger, plots)
	for _, result := range plotResults {
		summary.add(result)
	}

	summary.Finished = time.Now().UTC()
	s.record(ctx, summary)

	logger.Info("run finished",
		slog.Int("jobs", len(summary.Results)),
		slog.Int("failed", summary.Failed()),
		slog.Int("accumulators", len(registry.Entries())),
		slog.Duration("elapsed", summary.Finished.Sub(summary.Started)),
	)
	return summary, nil
}

// runComputePhase executes compute jobs concurrently, bounded by the worker
// limit. Results come back in input order.
func (s *Scheduler) runComputePhase(ctx context.Context, logger *slog.Logger, registry *accumulator.Manager, jobs []computeJob) []JobResult {
	results := make([]JobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = s.runCompute(gctx, logger, registry, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runPlotPhase executes plot jobs concurrently after every compute job has
// finished.
func (s *Scheduler) runPlotPhase(ctx context.Context, logger *slog.Logger, jobs []plotJob) []JobResult {
	results := make([]JobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = s.runPlot(gctx, logger, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// checkPreflight fails the whole run before any job starts when an output
// directory or inventory file cannot possibly work.
func (s *Scheduler) checkPreflight(computes []computeJob, plots []plotJob, logger *slog.Logger) error {
	computeCfgs := make([]*config.Compute, len(computes))
	for i, job := range computes {
		computeCfgs[i] = job.cfg
	}
	plotCfgs := make([]*config.Plot, len(plots))
	for i, job := range plots {
		plotCfgs[i] = job.cfg
	}

	checks := preflight.RunAll(computeCfgs, plotCfgs)
	var failures []string
	for _, check := range checks {
		if check.Passed {
			logger.Debug("preflight check passed", slog.String("check", check.Name), slog.String("detail", check.Detail))
			continue
		}
		logger.Error("preflight check failed", slog.String("check", check.Name), slog.String("detail", check.Detail))
		failures = append(failures, fmt.Sprintf("%s: %s", check.Name, check.Detail))
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

// record writes the run and its job outcomes to the ledger, if one is open.
func (s *Scheduler) record(ctx context.Context, summary *Summary) {
	if s.store == nil {
		return
	}
	for _, result := range summary.Results {
		job := ledger.Job{
			RunID:      summary.RunID,
			Source:     result.Source,
			Kind:       result.Kind,
			Status:     ledger.JobStatusSucceeded,
			Reason:     result.Reason,
			Outputs:    result.Outputs,
			StartedAt:  result.Started,
			FinishedAt: result.Finished,
		}
		if result.Status == StatusFailed {
			job.Status = ledger.JobStatusFailed
			if result.Err != nil {
				job.Detail = result.Err.Error()
			}
		}
		if err := s.store.RecordJob(ctx, job); err != nil {
			s.logger.Error("cannot record job in ledger", slog.String(logging.FieldJob, result.Source), slog.String("error", err.Error()))
		}
	}
	status := ledger.RunStatusCompleted
	if summary.Failed() > 0 {
		status = ledger.RunStatusFailed
	}
	if err := s.store.FinishRun(ctx, summary.RunID, status); err != nil {
		s.logger.Error("cannot finish run in ledger", slog.String("error", err.Error()))
	}
}

func failedLoad(source string, kind classify.Kind, err error, logger *slog.Logger) JobResult {
	logger.Error("cannot load job config",
		slog.String(logging.FieldJob, source),
		slog.String(logging.FieldReason, services.Reason(err)),
		slog.String("error", err.Error()),
	)
	return JobResult{Source: source, Kind: kind.String(), Status: StatusFailed, Reason: services.Reason(err), Err: err}
}
