// Package groupmerge combines persisted accumulator files that describe the
// same source into one distribution before plotting.
//
// Grouping is by SEED id. Within one group files fold sequentially in
// coverage-start order, so the result is independent of the order files were
// discovered in. Independent groups merge concurrently. A file that cannot be
// read or decoded is skipped with a warning; a group in which every file was
// skipped reports ErrMergeGroupEmpty.
package groupmerge

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"specbatch/internal/logging"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/services"
)

// Result is one merged plot unit.
type Result struct {
	ID     seed.ID
	Handle psd.Handle
	// Sources lists the files folded into Handle, in fold order.
	Sources []string
}

// Merger folds accumulator files through an estimator.
type Merger struct {
	est    psd.Estimator
	logger *slog.Logger
}

// NewMerger constructs a Merger.
func NewMerger(est psd.Estimator, logger *slog.Logger) *Merger {
	return &Merger{est: est, logger: logging.NewComponentLogger(logger, "groupmerge")}
}

type loadedFile struct {
	path   string
	handle psd.Handle
}

// MergeGroups loads every path, groups by source id and folds each group into
// one distribution. Results come back sorted by id so runs are deterministic.
// The second return value lists files that failed to load; an unreadable file
// carries no source id, so skips are reported alongside the results rather
// than inside one of them.
func (m *Merger) MergeGroups(ctx context.Context, paths []string) ([]Result, []string, error) {
	groups := make(map[seed.ID][]loadedFile)
	var skipped []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		handle, err := m.est.Load(path)
		if err != nil {
			m.logger.Warn("skipping unreadable accumulator file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			skipped = append(skipped, path)
			continue
		}
		groups[handle.ID()] = append(groups[handle.ID()], loadedFile{path: path, handle: handle})
	}
	if len(groups) == 0 {
		return nil, skipped, services.Wrap(services.ErrMergeGroupEmpty, "", "merge", "no readable accumulator files", nil)
	}
	ids := make([]seed.ID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	results := make([]Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := m.foldGroup(id, groups[id])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, skipped, err
	}
	return results, skipped, nil
}

// Singles loads every path without grouping, one result per readable file.
// This is the merge-disabled path. Skipped files are reported like in
// MergeGroups.
func (m *Merger) Singles(ctx context.Context, paths []string) ([]Result, []string, error) {
	var results []Result
	var skipped []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		handle, err := m.est.Load(path)
		if err != nil {
			m.logger.Warn("skipping unreadable accumulator file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			skipped = append(skipped, path)
			continue
		}
		results = append(results, Result{ID: handle.ID(), Handle: handle, Sources: []string{path}})
	}
	if len(results) == 0 {
		return nil, skipped, services.Wrap(services.ErrMergeGroupEmpty, "", "merge", "no readable accumulator files", nil)
	}
	return results, skipped, nil
}

// foldGroup merges one group in coverage-start order. The first file seeds
// the result and the rest fold in sequentially.
func (m *Merger) foldGroup(id seed.ID, files []loadedFile) (Result, error) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i].handle.Coverage().Start, files[j].handle.Coverage().Start
		if a.Equal(b) {
			return files[i].path < files[j].path
		}
		return a.Before(b)
	})

	result := Result{ID: id, Handle: files[0].handle, Sources: []string{files[0].path}}
	for _, file := range files[1:] {
		if err := m.est.MergeInto(result.Handle, file.handle); err != nil {
			return Result{}, services.Wrap(services.ErrPersistence, "", "merge", file.path, err)
		}
		result.Sources = append(result.Sources, file.path)
	}
	m.logger.Info("merged accumulator group",
		slog.String(logging.FieldEntity, id.String()),
		slog.Int("files", len(result.Sources)),
		slog.Int("windows", result.Handle.WindowCount()),
	)
	return result, nil
}
