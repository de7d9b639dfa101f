// Package calibration loads instrument calibration metadata for recording
// sources.
//
// A Set maps SEED identifiers to calibration entries, each with an overall
// sensitivity and a validity time range. Lookups resolve by identifier and
// time so that re-calibrated instruments with multiple entries pick the one
// covering the data being processed.
package calibration

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"specbatch/internal/seed"
)

// Calibration carries the per-source correction values the estimator needs.
type Calibration struct {
	ID          seed.ID
	Sensitivity float64
	Validity    seed.TimeRange
}

// Set holds every calibration entry loaded from one inventory file.
type Set struct {
	entries map[seed.ID][]Calibration
}

type inventoryFile struct {
	Channels []channelEntry `toml:"channel"`
}

type channelEntry struct {
	ID          string    `toml:"id"`
	Sensitivity float64   `toml:"sensitivity"`
	ValidFrom   time.Time `toml:"valid_from"`
	ValidUntil  time.Time `toml:"valid_until"`
}

// Load reads a TOML inventory of channel calibrations.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var file inventoryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	if len(file.Channels) == 0 {
		return nil, fmt.Errorf("inventory %s: no channel entries", path)
	}

	set := &Set{entries: make(map[seed.ID][]Calibration, len(file.Channels))}
	for i, ch := range file.Channels {
		id, err := seed.ParseID(ch.ID)
		if err != nil {
			return nil, fmt.Errorf("inventory %s: channel %d: %w", path, i, err)
		}
		if ch.Sensitivity <= 0 {
			return nil, fmt.Errorf("inventory %s: channel %s: sensitivity must be positive", path, id)
		}
		validity := seed.TimeRange{}
		if !ch.ValidFrom.IsZero() || !ch.ValidUntil.IsZero() {
			until := ch.ValidUntil
			if until.IsZero() {
				// Open-ended validity.
				until = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
			}
			validity, err = seed.NewTimeRange(ch.ValidFrom, until)
			if err != nil {
				return nil, fmt.Errorf("inventory %s: channel %s: %w", path, id, err)
			}
		}
		set.entries[id] = append(set.entries[id], Calibration{
			ID:          id,
			Sensitivity: ch.Sensitivity,
			Validity:    validity,
		})
	}
	return set, nil
}

// Resolve finds the calibration covering the given source at the given time.
func (s *Set) Resolve(id seed.ID, at time.Time) (Calibration, error) {
	if s == nil {
		return Calibration{}, fmt.Errorf("calibration: nil set")
	}
	entries := s.entries[id]
	if len(entries) == 0 {
		return Calibration{}, fmt.Errorf("calibration: no entry for %s", id)
	}
	for _, cal := range entries {
		if cal.Validity.IsZero() || cal.Validity.Contains(at) {
			return cal, nil
		}
	}
	return Calibration{}, fmt.Errorf("calibration: no entry for %s valid at %s", id, at.UTC().Format(time.RFC3339))
}

// IDs lists every source the set covers, for diagnostics.
func (s *Set) IDs() []seed.ID {
	ids := make([]seed.ID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}
