package segment

import (
	"fmt"
	"strings"

	"specbatch/internal/services"
)

// GapFill selects how gaps between raw segments are bridged during merging.
type GapFill int

const (
	// GapFillNone keeps continuous runs separate; gapped data is never
	// bridged.
	GapFillNone GapFill = iota
	// GapFillZero bridges gaps with zero samples.
	GapFillZero
	// GapFillInterpolate bridges gaps with a linear ramp between the edge
	// samples.
	GapFillInterpolate
	// GapFillLatest repeats the last sample before the gap.
	GapFillLatest
)

// MergePolicy describes how raw overlapping or gapped segments of one source
// are concatenated before admission.
type MergePolicy struct {
	Fill GapFill
	// AllowPartialWindows keeps merged output shorter than one estimator
	// window. When false such output is dropped rather than zero-padded.
	AllowPartialWindows bool
}

// ResolvePolicy maps the gap-handling directives of a compute config to a
// policy. skipOnGaps forces GapFillNone regardless of the fill directive,
// reproducing the original tool's behavior.
func ResolvePolicy(fillValue string, skipOnGaps, allowPartialWindows bool) (MergePolicy, error) {
	fill, err := parseGapFill(fillValue)
	if err != nil {
		return MergePolicy{}, err
	}
	if skipOnGaps {
		fill = GapFillNone
	}
	return MergePolicy{Fill: fill, AllowPartialWindows: allowPartialWindows}, nil
}

func parseGapFill(value string) (GapFill, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "null":
		return GapFillNone, nil
	case "zero", "0":
		return GapFillZero, nil
	case "interpolate":
		return GapFillInterpolate, nil
	case "latest", "last":
		return GapFillLatest, nil
	default:
		return 0, services.Wrap(services.ErrConfigInvalid, "", "merge_fill_value", fmt.Sprintf("unrecognized value %q", value), nil)
	}
}

// String renders the config tag for a GapFill value.
func (g GapFill) String() string {
	switch g {
	case GapFillZero:
		return "zero"
	case GapFillInterpolate:
		return "interpolate"
	case GapFillLatest:
		return "latest"
	default:
		return "none"
	}
}
