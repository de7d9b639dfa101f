// Package classify decides whether a job document describes a compute job or
// a plot job.
//
// Classification is pure and ordered: recognized file-name suffixes win, then
// the document body is inspected for discriminating fields. A document that
// matches neither rule set is ambiguous and fails loudly; there is no default
// kind.
package classify

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"specbatch/internal/services"
)

// Kind is the classified job type.
type Kind int

const (
	KindCompute Kind = iota
	KindPlot
)

// String renders the kind for logs and summaries.
func (k Kind) String() string {
	if k == KindPlot {
		return "plot"
	}
	return "compute"
}

// Classify determines the kind of the job document at path.
//
// Rules, first match wins: a *_calc.toml or config.toml name is a compute
// job; a *_plot.toml name is a plot job; a body with mseed_pattern is a
// compute job; a body with input_npz_dir or args.plot_type is a plot job.
func Classify(path string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(path))
	switch {
	case strings.HasSuffix(name, "_calc.toml"), strings.HasSuffix(name, "config.toml"):
		return KindCompute, nil
	case strings.HasSuffix(name, "_plot.toml"):
		return KindPlot, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("classify %s: %w", path, err)
	}
	var body map[string]any
	if err := toml.Unmarshal(data, &body); err != nil {
		return 0, services.Wrap(services.ErrConfigInvalid, path, "classify", err.Error(), nil)
	}

	if _, ok := body["mseed_pattern"]; ok {
		return KindCompute, nil
	}
	if _, ok := body["input_npz_dir"]; ok {
		return KindPlot, nil
	}
	if args, ok := body["args"].(map[string]any); ok {
		if _, ok := args["plot_type"]; ok {
			return KindPlot, nil
		}
	}

	return 0, services.Wrap(services.ErrConfigAmbiguous, path, "classify", "no suffix rule or discriminating field matched", nil)
}
