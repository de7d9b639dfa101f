package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"specbatch/internal/render"
	"specbatch/internal/services"
)

// Plot is a parsed and validated plot job document.
type Plot struct {
	InputNPZDir      string   `toml:"input_npz_dir"`
	OutputDir        string   `toml:"output_dir"`
	OutputPattern    string   `toml:"output_filename_pattern"`
	NPZMergeStrategy bool     `toml:"npz_merge_strategy"`
	InventoryPath    string   `toml:"inventory_path"`
	Args             PlotArgs `toml:"args"`

	kind render.Kind
}

// PlotArgs mirrors the [args] table of a plot document.
type PlotArgs struct {
	PlotType        string    `toml:"plot_type"`
	ShowCoverage    bool      `toml:"show_coverage"`
	ShowPercentiles bool      `toml:"show_percentiles"`
	Percentiles     []float64 `toml:"percentiles"`
	PeriodLim       []float64 `toml:"period_lim"`
	CmapLimits      []float64 `toml:"cmap_limits"`
}

// LoadPlot parses and validates a plot document.
func LoadPlot(path string) (*Plot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg := &Plot{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, services.Wrap(services.ErrConfigInvalid, path, "parse", err.Error(), nil)
	}
	if err := cfg.finish(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Plot) finish(path string) error {
	fail := func(op, msg string) error {
		return services.Wrap(services.ErrConfigInvalid, path, op, msg, nil)
	}
	if strings.TrimSpace(p.InputNPZDir) == "" {
		return fail("input_npz_dir", "required")
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		p.OutputDir = "./ppsd_plots"
	}
	kind, err := render.ParseKind(p.Args.PlotType)
	if err != nil {
		return fail("args.plot_type", fmt.Sprintf("unrecognized value %q", p.Args.PlotType))
	}
	p.kind = kind

	for _, pct := range p.Args.Percentiles {
		if pct < 0 || pct > 100 {
			return fail("args.percentiles", fmt.Sprintf("%v outside 0..100", pct))
		}
	}
	if len(p.Args.PeriodLim) != 0 && len(p.Args.PeriodLim) != 2 {
		return fail("args.period_lim", "need [low, high]")
	}
	if len(p.Args.CmapLimits) != 0 && len(p.Args.CmapLimits) != 2 {
		return fail("args.cmap_limits", "need [low, high]")
	}
	return nil
}

// Kind returns the resolved plot variant.
func (p *Plot) Kind() render.Kind { return p.kind }
