package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"specbatch/internal/admission"
	"specbatch/internal/handling"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
	"specbatch/internal/services"
)

// Compute is a parsed and validated compute job document.
type Compute struct {
	MseedPattern     string      `toml:"mseed_pattern"`
	InventoryPath    string      `toml:"inventory_path"`
	OutputDir        string      `toml:"output_dir"`
	OutputNPZPattern string      `toml:"output_npz_filename_pattern"`
	Args             ComputeArgs `toml:"args"`

	// Resolved at load time from the string-valued Args fields.
	special handling.Special
	policy  segment.MergePolicy
	rules   admission.Rules
}

// ComputeArgs mirrors the [args] table of a compute document.
type ComputeArgs struct {
	PPSDLength          float64   `toml:"ppsd_length"`
	Overlap             float64   `toml:"overlap"`
	PeriodLimits        []float64 `toml:"period_limits"`
	PeriodStepOctaves   float64   `toml:"period_step_octaves"`
	DBBins              []float64 `toml:"db_bins"`
	SkipOnGaps          bool      `toml:"skip_on_gaps"`
	AllowPartialWindows bool      `toml:"allow_partial_windows"`
	MergeFillValue      string    `toml:"merge_fill_value"`
	SpecialHandling     string    `toml:"special_handling"`
	TimeOfWeekday       []int     `toml:"time_of_weekday"`
	AbsoluteWindow      []string  `toml:"absolute_window"`
	DailyWindow         []string  `toml:"daily_window"`
	EnableStalta        bool      `toml:"enable_stalta"`
	StaltaSTASeconds    float64   `toml:"stalta_sta_seconds"`
	StaltaLTASeconds    float64   `toml:"stalta_lta_seconds"`
	StaltaThreshOn      float64   `toml:"stalta_thresh_on"`
}

func defaultComputeArgs() ComputeArgs {
	p := psd.DefaultParams()
	return ComputeArgs{
		PPSDLength:        p.WindowLength.Seconds(),
		Overlap:           p.Overlap,
		PeriodLimits:      []float64{p.PeriodLimits[0], p.PeriodLimits[1]},
		PeriodStepOctaves: p.PeriodStepOctaves,
		DBBins:            []float64{p.DBBins.Low, p.DBBins.High, p.DBBins.Step},
		StaltaSTASeconds:  2,
		StaltaLTASeconds:  60,
		StaltaThreshOn:    2.5,
	}
}

// LoadCompute parses and validates a compute document. The source path is
// used in error messages only.
func LoadCompute(path string) (*Compute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg := &Compute{Args: defaultComputeArgs()}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, services.Wrap(services.ErrConfigInvalid, path, "parse", err.Error(), nil)
	}
	if err := cfg.finish(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish validates the raw fields and resolves the closed enums.
func (c *Compute) finish(path string) error {
	fail := func(op, msg string) error {
		return services.Wrap(services.ErrConfigInvalid, path, op, msg, nil)
	}

	if strings.TrimSpace(c.MseedPattern) == "" {
		return fail("mseed_pattern", "required")
	}
	if strings.TrimSpace(c.InventoryPath) == "" {
		return fail("inventory_path", "required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		c.OutputDir = "./ppsd_results"
	}

	args := c.Args
	if args.PPSDLength <= 0 {
		return fail("args.ppsd_length", "must be positive")
	}
	if args.Overlap < 0 || args.Overlap >= 1 {
		return fail("args.overlap", "must be in [0, 1)")
	}
	if len(args.PeriodLimits) != 2 || args.PeriodLimits[0] <= 0 || args.PeriodLimits[1] <= args.PeriodLimits[0] {
		return fail("args.period_limits", "need two increasing positive values")
	}
	if len(args.DBBins) != 3 || args.DBBins[1] <= args.DBBins[0] || args.DBBins[2] <= 0 {
		return fail("args.db_bins", "need [low, high, step] with high > low and step > 0")
	}
	if args.PeriodStepOctaves <= 0 {
		return fail("args.period_step_octaves", "must be positive")
	}

	special, err := handling.Parse(args.SpecialHandling)
	if err != nil {
		return services.Wrap(services.ErrConfigInvalid, path, "args.special_handling", fmt.Sprintf("unrecognized value %q", args.SpecialHandling), nil)
	}
	c.special = special

	policy, err := segment.ResolvePolicy(args.MergeFillValue, args.SkipOnGaps, args.AllowPartialWindows)
	if err != nil {
		return services.Wrap(services.ErrConfigInvalid, path, "args.merge_fill_value", fmt.Sprintf("unrecognized value %q", args.MergeFillValue), nil)
	}
	c.policy = policy

	rules, err := buildRules(args)
	if err != nil {
		return services.Wrap(services.ErrConfigInvalid, path, "args", err.Error(), nil)
	}
	c.rules = rules
	return nil
}

// Special returns the resolved instrument-handling mode.
func (c *Compute) Special() handling.Special { return c.special }

// MergePolicy returns the resolved gap-handling policy.
func (c *Compute) MergePolicy() segment.MergePolicy { return c.policy }

// AdmissionRules returns the resolved admission predicates.
func (c *Compute) AdmissionRules() admission.Rules { return c.rules }

// PSDParams returns the estimator parameters for this job.
func (c *Compute) PSDParams() psd.Params {
	return psd.Params{
		WindowLength:      time.Duration(c.Args.PPSDLength * float64(time.Second)),
		Overlap:           c.Args.Overlap,
		PeriodLimits:      [2]float64{c.Args.PeriodLimits[0], c.Args.PeriodLimits[1]},
		PeriodStepOctaves: c.Args.PeriodStepOctaves,
		DBBins:            psd.DBBins{Low: c.Args.DBBins[0], High: c.Args.DBBins[1], Step: c.Args.DBBins[2]},
	}
}

func buildRules(args ComputeArgs) (admission.Rules, error) {
	var rules admission.Rules

	if len(args.TimeOfWeekday) > 0 {
		rules.Weekdays = make(map[time.Weekday]bool, len(args.TimeOfWeekday))
		for _, day := range args.TimeOfWeekday {
			if day < 1 || day > 7 {
				return admission.Rules{}, fmt.Errorf("time_of_weekday: %d outside 1..7 (Monday=1)", day)
			}
			// ISO numbering: Monday=1 .. Sunday=7.
			rules.Weekdays[time.Weekday(day%7)] = true
		}
	}

	if len(args.AbsoluteWindow) > 0 {
		if len(args.AbsoluteWindow) != 2 {
			return admission.Rules{}, fmt.Errorf("absolute_window: need [start, end]")
		}
		start, err := time.Parse(time.RFC3339, args.AbsoluteWindow[0])
		if err != nil {
			return admission.Rules{}, fmt.Errorf("absolute_window start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, args.AbsoluteWindow[1])
		if err != nil {
			return admission.Rules{}, fmt.Errorf("absolute_window end: %w", err)
		}
		window, err := seed.NewTimeRange(start, end)
		if err != nil {
			return admission.Rules{}, fmt.Errorf("absolute_window: %w", err)
		}
		rules.AbsoluteWindow = window
	}

	if len(args.DailyWindow) > 0 {
		if len(args.DailyWindow) != 2 {
			return admission.Rules{}, fmt.Errorf("daily_window: need [from, to]")
		}
		from, err := parseTimeOfDay(args.DailyWindow[0])
		if err != nil {
			return admission.Rules{}, fmt.Errorf("daily_window from: %w", err)
		}
		to, err := parseTimeOfDay(args.DailyWindow[1])
		if err != nil {
			return admission.Rules{}, fmt.Errorf("daily_window to: %w", err)
		}
		rules.Daily = &admission.DailyWindow{From: from, To: to}
	}

	if args.EnableStalta {
		if args.StaltaSTASeconds <= 0 || args.StaltaLTASeconds <= args.StaltaSTASeconds {
			return admission.Rules{}, fmt.Errorf("stalta windows: need 0 < sta < lta")
		}
		if args.StaltaThreshOn <= 0 {
			return admission.Rules{}, fmt.Errorf("stalta_thresh_on: must be positive")
		}
		rules.Event = &admission.EventRules{
			ShortWindow: time.Duration(args.StaltaSTASeconds * float64(time.Second)),
			LongWindow:  time.Duration(args.StaltaLTASeconds * float64(time.Second)),
			ThresholdOn: args.StaltaThreshOn,
		}
	}
	return rules, nil
}

func parseTimeOfDay(value string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%q: want HH:MM:SS", value)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}
