package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"specbatch/internal/accumulator"
	"specbatch/internal/admission"
	"specbatch/internal/calibration"
	"specbatch/internal/fileutil"
	"specbatch/internal/handling"
	"specbatch/internal/logging"
	"specbatch/internal/naming"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
	"specbatch/internal/services"
)

// lockFileName is the flock target inside each compute output directory.
const lockFileName = ".specbatch.lock"

// runCompute executes one compute job end to end: list and decode waveform
// files, merge per-source segments under the gap policy, filter through the
// admission gate, absorb admitted segments into the run's accumulator
// registry in start-time order, and persist one file per dirtied source.
func (s *Scheduler) runCompute(ctx context.Context, logger *slog.Logger, registry *accumulator.Manager, job computeJob) JobResult {
	result := JobResult{Source: job.source, Kind: "compute", Started: time.Now().UTC()}
	log := logger.With(slog.String(logging.FieldJob, job.source))

	outputs, err := s.computeOutputs(ctx, log, registry, job)
	result.Finished = time.Now().UTC()
	result.Outputs = outputs
	if err != nil {
		result.Status = StatusFailed
		result.Reason = services.Reason(err)
		result.Err = err
		log.Error("compute job failed",
			slog.String(logging.FieldReason, result.Reason),
			slog.String("error", err.Error()),
		)
		return result
	}
	result.Status = StatusSucceeded
	log.Info("compute job finished",
		slog.Int("outputs", len(outputs)),
		slog.Duration("elapsed", result.Finished.Sub(result.Started)),
	)
	return result
}

func (s *Scheduler) computeOutputs(ctx context.Context, log *slog.Logger, registry *accumulator.Manager, job computeJob) ([]string, error) {
	cfg := job.cfg
	if err := fileutil.EnsureDir(cfg.OutputDir); err != nil {
		return nil, services.Wrap(services.ErrPersistence, job.source, "prepare output dir", cfg.OutputDir, err)
	}

	lock := flock.New(filepath.Join(cfg.OutputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, job.source, "lock output dir", cfg.OutputDir, err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrPersistence, job.source, "lock output dir",
			cfg.OutputDir+": held by another run", nil)
	}
	defer func() { _ = lock.Unlock() }()

	inventory, err := calibration.Load(cfg.InventoryPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfigInvalid, job.source, "load inventory", cfg.InventoryPath, err)
	}
	log.Debug("inventory loaded",
		slog.String("path", cfg.InventoryPath),
		slog.Int("channels", len(inventory.IDs())),
	)

	paths, err := s.source.List(ctx, cfg.MseedPattern)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, job.source, "list waveforms", cfg.MseedPattern, err)
	}
	if len(paths) == 0 {
		return nil, services.Wrap(services.ErrNoDataAdmitted, job.source, "list waveforms",
			cfg.MseedPattern+": no waveform files matched", nil)
	}

	bySource := make(map[seed.ID][]segment.Segment)
	decodeFailures := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments, err := s.source.Decode(ctx, path)
		if err != nil {
			decodeFailures++
			log.Warn("skipping undecodable waveform file",
				slog.String("path", path),
				slog.String(logging.FieldReason, services.Reason(services.ErrDecode)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, seg := range segments {
			bySource[seg.ID] = append(bySource[seg.ID], seg)
		}
	}
	if len(bySource) == 0 {
		return nil, services.Wrap(services.ErrNoDataAdmitted, job.source, "decode waveforms",
			"every waveform file failed to decode", nil)
	}

	ids := make([]seed.ID, 0, len(bySource))
	for id := range bySource {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	params := cfg.PSDParams()
	rules := cfg.AdmissionRules()
	entries := make(map[seed.ID]*accumulator.Entry)
	admitted := 0

	for _, id := range ids {
		merged, err := segment.Merge(bySource[id], cfg.MergePolicy(), params.WindowLength)
		if err != nil {
			log.Warn("skipping source with unmergeable segments",
				slog.String(logging.FieldEntity, id.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Range.Start.Before(merged[j].Range.Start) })

		for _, seg := range merged {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			decision := rules.Admit(seg)
			if !decision.Admitted {
				log.Info("segment rejected",
					slog.String(logging.FieldEntity, id.String()),
					slog.String("segment", seg.Range.String()),
					slog.String(logging.FieldReason, string(decision.Reason)),
				)
				continue
			}

			cal, err := inventory.Resolve(id, seg.Range.Start)
			if err != nil {
				log.Warn("segment skipped without calibration",
					slog.String(logging.FieldEntity, id.String()),
					slog.String("segment", seg.Range.String()),
					slog.String("error", err.Error()),
				)
				continue
			}

			entry, ok := entries[id]
			if !ok {
				entry, err = registry.Acquire(job.source, id, params, "")
				if err != nil {
					return nil, err
				}
				entries[id] = entry
			}

			absorbed, err := entry.Add(ctx, seg, cal, handling.ModeFor(cfg.Special()))
			if err != nil {
				switch {
				case errors.Is(err, context.DeadlineExceeded):
					log.Warn("segment rejected",
						slog.String(logging.FieldEntity, id.String()),
						slog.String("segment", seg.Range.String()),
						slog.String(logging.FieldReason, string(admission.ReasonEstimatorTimeout)),
					)
					continue
				case ctx.Err() != nil:
					return nil, ctx.Err()
				default:
					// Estimator failures are per-segment, never job-fatal.
					log.Warn("segment skipped by estimator",
						slog.String(logging.FieldEntity, id.String()),
						slog.String("segment", seg.Range.String()),
						slog.String("error", err.Error()),
					)
					continue
				}
			}
			if !absorbed {
				log.Info("segment rejected",
					slog.String(logging.FieldEntity, id.String()),
					slog.String("segment", seg.Range.String()),
					slog.String(logging.FieldReason, string(admission.ReasonWindowUnderrun)),
				)
				continue
			}
			admitted++
		}
	}

	if admitted == 0 {
		return nil, services.Wrap(services.ErrNoDataAdmitted, job.source, "admit segments",
			"no segment survived admission filtering", nil)
	}
	if decodeFailures > 0 {
		log.Warn("some waveform files were skipped", slog.Int("skipped", decodeFailures))
	}

	outputs := make([]string, 0, len(entries))
	for _, id := range ids {
		entry, ok := entries[id]
		if !ok || entry.State() != accumulator.StateDirty {
			continue
		}
		coverage := entry.Handle().Coverage()
		name := s.names.Render(cfg.OutputNPZPattern, naming.Context{
			ID:    id,
			Start: coverage.Start,
			End:   coverage.End,
		})
		path := filepath.Join(cfg.OutputDir, ensureExtension(name, psd.FileExtension))
		if err := entry.Persist(path); err != nil {
			return outputs, err
		}
		outputs = append(outputs, path)
	}
	return outputs, nil
}

// ensureExtension appends ext unless name already ends with it.
func ensureExtension(name, ext string) string {
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}
