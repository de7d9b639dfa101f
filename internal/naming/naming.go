// Package naming resolves output file names from templates and per-artifact
// metadata.
//
// Templates use {placeholder} fields covering two time roles (segment start
// and end, each with a full field set), the SEED entity fields, and the
// product kind. Placeholders that cannot be resolved stay verbatim with a
// logged warning: a cosmetic naming miss must not discard a computed result.
package naming

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"specbatch/internal/logging"
	"specbatch/internal/seed"
)

// Context carries the metadata one output artifact is named from. It is
// built once per artifact and consumed by a single Render call.
type Context struct {
	ID    seed.ID
	Start time.Time
	End   time.Time
	// ProductKind names the plot variant for rendered images; empty for
	// accumulator files.
	ProductKind string
}

// Engine renders templates and reports unresolved placeholders.
type Engine struct {
	logger *slog.Logger
}

// NewEngine constructs an engine. A nil logger silences warnings.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logging.NewComponentLogger(logger, "naming")}
}

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// Render resolves template against ctx. An empty template falls back to the
// default rule: accumulators get "PPSD", the dotted entity id, and the
// compact start timestamp; rendered plots get the product kind and the
// dotted entity id.
func (e *Engine) Render(template string, ctx Context) string {
	if strings.TrimSpace(template) == "" {
		return e.defaultName(ctx)
	}

	fields := ctx.fields()
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := fields[key]; ok {
			return value
		}
		unresolved = append(unresolved, key)
		return match
	})
	if len(unresolved) > 0 && e.logger != nil {
		e.logger.Warn("template has unresolved placeholders",
			slog.String("template", template),
			slog.String("placeholders", strings.Join(unresolved, ",")),
		)
	}
	return out
}

func (e *Engine) defaultName(ctx Context) string {
	if ctx.ProductKind != "" {
		return fmt.Sprintf("%s_%s", ctx.ProductKind, ctx.ID)
	}
	return fmt.Sprintf("PPSD_%s_%s", ctx.ID, compactTimestamp(ctx.Start))
}

// fields builds the placeholder table: start_* and end_* field sets, legacy
// bare aliases equal to the start fields, entity fields, and the product
// kind when one is set.
func (ctx Context) fields() map[string]string {
	start := ctx.Start.UTC()
	end := ctx.End.UTC()
	if end.IsZero() {
		end = start
	}

	fields := map[string]string{
		"network":  ctx.ID.Network,
		"station":  ctx.ID.Station,
		"location": ctx.ID.Location,
		"channel":  ctx.ID.Channel,
	}
	addTimeFields(fields, "start_", start)
	addTimeFields(fields, "end_", end)
	addTimeFields(fields, "", start)
	if ctx.ProductKind != "" {
		fields["plot_type"] = ctx.ProductKind
	}
	return fields
}

func addTimeFields(fields map[string]string, prefix string, t time.Time) {
	fields[prefix+"year"] = fmt.Sprintf("%d", t.Year())
	fields[prefix+"month"] = fmt.Sprintf("%02d", int(t.Month()))
	fields[prefix+"day"] = fmt.Sprintf("%02d", t.Day())
	fields[prefix+"hour"] = fmt.Sprintf("%02d", t.Hour())
	fields[prefix+"minute"] = fmt.Sprintf("%02d", t.Minute())
	fields[prefix+"second"] = fmt.Sprintf("%02d", t.Second())
	fields[prefix+"julday"] = fmt.Sprintf("%03d", t.YearDay())
	fields[prefix+"datetime"] = compactTimestamp(t)
}

func compactTimestamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}
