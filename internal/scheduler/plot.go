package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"specbatch/internal/fileutil"
	"specbatch/internal/groupmerge"
	"specbatch/internal/logging"
	"specbatch/internal/naming"
	"specbatch/internal/psd"
	"specbatch/internal/render"
	"specbatch/internal/services"
)

// runPlot executes one plot job: scan the input directory for accumulator
// files, merge them per the job's strategy, render one image per plot unit,
// and write each image under the output directory.
func (s *Scheduler) runPlot(ctx context.Context, logger *slog.Logger, job plotJob) JobResult {
	result := JobResult{Source: job.source, Kind: "plot", Started: time.Now().UTC()}
	log := logger.With(slog.String(logging.FieldJob, job.source))

	outputs, err := s.plotOutputs(ctx, log, job)
	result.Finished = time.Now().UTC()
	result.Outputs = outputs
	if err != nil {
		result.Status = StatusFailed
		result.Reason = services.Reason(err)
		result.Err = err
		log.Error("plot job failed",
			slog.String(logging.FieldReason, result.Reason),
			slog.String("error", err.Error()),
		)
		return result
	}
	result.Status = StatusSucceeded
	log.Info("plot job finished",
		slog.Int("outputs", len(outputs)),
		slog.Duration("elapsed", result.Finished.Sub(result.Started)),
	)
	return result
}

func (s *Scheduler) plotOutputs(ctx context.Context, log *slog.Logger, job plotJob) ([]string, error) {
	cfg := job.cfg
	if err := fileutil.EnsureDir(cfg.OutputDir); err != nil {
		return nil, services.Wrap(services.ErrPersistence, job.source, "prepare output dir", cfg.OutputDir, err)
	}

	paths, err := listAccumulatorFiles(cfg.InputNPZDir)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, job.source, "scan input dir", cfg.InputNPZDir, err)
	}
	if len(paths) == 0 {
		return nil, services.Wrap(services.ErrMergeGroupEmpty, job.source, "scan input dir",
			cfg.InputNPZDir+": no accumulator files found", nil)
	}

	merger := groupmerge.NewMerger(s.est, log)
	var units []groupmerge.Result
	var skipped []string
	if cfg.NPZMergeStrategy {
		units, skipped, err = merger.MergeGroups(ctx, paths)
	} else {
		units, skipped, err = merger.Singles(ctx, paths)
	}
	for _, path := range skipped {
		log.Warn("accumulator file was skipped", slog.String("path", path))
	}
	if err != nil {
		if errors.Is(err, services.ErrMergeGroupEmpty) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrPersistence, job.source, "merge accumulators", "", err)
	}

	params := render.Params{
		ShowCoverage:    cfg.Args.ShowCoverage,
		ShowPercentiles: cfg.Args.ShowPercentiles,
		Percentiles:     cfg.Args.Percentiles,
		PeriodLim:       cfg.Args.PeriodLim,
		CmapLimits:      cfg.Args.CmapLimits,
	}

	outputs := make([]string, 0, len(units))
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dist, ok := unit.Handle.(render.Distribution)
		if !ok {
			return nil, services.Wrap(services.ErrPersistence, job.source, "render", unit.ID.String()+": estimator handle is not renderable", nil)
		}
		image, err := s.renderer.Render(dist, cfg.Kind(), params)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, job.source, "render", unit.ID.String(), err)
		}

		coverage := unit.Handle.Coverage()
		name := s.names.Render(cfg.OutputPattern, naming.Context{
			ID:          unit.ID,
			Start:       coverage.Start,
			End:         coverage.End,
			ProductKind: cfg.Kind().String(),
		})
		path := filepath.Join(cfg.OutputDir, ensureExtension(name, ".png"))
		if err := fileutil.WriteFileExclusive(path, image, 0o644); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return outputs, services.Wrap(services.ErrPersistence, job.source, "write image",
					path+": output file already exists", err)
			}
			return outputs, services.Wrap(services.ErrPersistence, job.source, "write image", path, err)
		}
		outputs = append(outputs, path)
	}
	return outputs, nil
}

// listAccumulatorFiles returns the accumulator files directly under dir,
// sorted by name.
func listAccumulatorFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), psd.FileExtension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
