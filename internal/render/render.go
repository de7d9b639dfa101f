// Package render turns accumulated PSD distributions into PNG images.
//
// Rendering is a thin consumer of the accumulator: it reads the histogram
// through a narrow interface and never mutates it. The plot kind vocabulary
// is a closed enum resolved at config load.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"specbatch/internal/seed"
)

// Kind selects the plot variant.
type Kind int

const (
	KindStandard Kind = iota
	KindTemporal
	KindSpectrogram
)

// ParseKind resolves a plot_type tag. The empty string selects the standard
// plot.
func ParseKind(tag string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "standard":
		return KindStandard, nil
	case "temporal":
		return KindTemporal, nil
	case "spectrogram":
		return KindSpectrogram, nil
	default:
		return 0, fmt.Errorf("plot type: unrecognized value %q", tag)
	}
}

// String renders the config tag for a Kind.
func (k Kind) String() string {
	switch k {
	case KindTemporal:
		return "temporal"
	case KindSpectrogram:
		return "spectrogram"
	default:
		return "standard"
	}
}

// Params carries the cosmetic plot options.
type Params struct {
	ShowCoverage    bool
	ShowPercentiles bool
	Percentiles     []float64
	PeriodLim       []float64
	CmapLimits      []float64
}

// Distribution is the accumulator view the renderer needs.
type Distribution interface {
	ID() seed.ID
	Coverage() seed.TimeRange
	WindowCount() int
	Periods() []float64
	Counts() [][]int64
}

// Renderer produces image bytes from an accumulated distribution.
type Renderer interface {
	Render(dist Distribution, kind Kind, params Params) ([]byte, error)
}

// NewPNGRenderer returns the default PNG heatmap renderer.
func NewPNGRenderer() Renderer {
	return pngRenderer{}
}

type pngRenderer struct{}

const cellSize = 4

func (pngRenderer) Render(dist Distribution, kind Kind, params Params) ([]byte, error) {
	if dist == nil {
		return nil, fmt.Errorf("render: nil distribution")
	}
	counts := selectPeriods(dist.Counts(), dist.Periods(), params.PeriodLim)
	if len(counts) == 0 || dist.WindowCount() == 0 {
		return nil, fmt.Errorf("render %s: empty distribution", dist.ID())
	}

	var img *image.RGBA
	switch kind {
	case KindTemporal:
		img = renderTemporal(counts)
	case KindSpectrogram:
		img = renderHeatmap(counts, params, true)
	default:
		img = renderHeatmap(counts, params, false)
	}
	if params.ShowCoverage && !dist.Coverage().IsZero() {
		img = appendCoverageStrip(img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render %s: encode png: %w", dist.ID(), err)
	}
	return buf.Bytes(), nil
}

// selectPeriods keeps the period bins whose center lies inside lim ([min,
// max] in seconds). An empty or malformed limit keeps every bin.
func selectPeriods(counts [][]int64, periods []float64, lim []float64) [][]int64 {
	if len(lim) != 2 || lim[1] <= lim[0] || len(periods) != len(counts) {
		return counts
	}
	var kept [][]int64
	for i, period := range periods {
		if period >= lim[0] && period <= lim[1] {
			kept = append(kept, counts[i])
		}
	}
	return kept
}

// renderHeatmap draws period bins on one axis and dB bins on the other, each
// cell shaded by its observation probability within the period bin.
func renderHeatmap(counts [][]int64, params Params, transpose bool) *image.RGBA {
	periodBins := len(counts)
	dbBins := len(counts[0])

	w, h := periodBins, dbBins
	if transpose {
		w, h = dbBins, periodBins
	}
	img := image.NewRGBA(image.Rect(0, 0, w*cellSize, h*cellSize))

	lo, hi := 0.0, 1.0
	if len(params.CmapLimits) == 2 && params.CmapLimits[1] > params.CmapLimits[0] {
		lo, hi = params.CmapLimits[0], params.CmapLimits[1]
	}

	for i := 0; i < periodBins; i++ {
		var total int64
		for _, c := range counts[i] {
			total += c
		}
		for j := 0; j < dbBins; j++ {
			var p float64
			if total > 0 {
				p = float64(counts[i][j]) / float64(total)
			}
			x, y := i, dbBins-1-j
			if transpose {
				x, y = j, periodBins-1-i
			}
			fillCell(img, x, y, rampColor((p-lo)/(hi-lo)))
		}
		if params.ShowPercentiles && total > 0 {
			for _, pct := range params.Percentiles {
				j := percentileBin(counts[i], total, pct)
				x, y := i, dbBins-1-j
				if transpose {
					x, y = j, periodBins-1-i
				}
				fillCell(img, x, y, color.RGBA{A: 0xff})
			}
		}
	}
	return img
}

// percentileBin returns the first dB bin at which the cumulative count
// reaches pct percent of total.
func percentileBin(row []int64, total int64, pct float64) int {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	threshold := pct / 100 * float64(total)
	var cum int64
	for j, c := range row {
		cum += c
		if float64(cum) >= threshold {
			return j
		}
	}
	return len(row) - 1
}

// appendCoverageStrip adds a footer band marking that the distribution has
// data coverage.
func appendCoverageStrip(img *image.RGBA) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+cellSize))
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	strip := color.RGBA{R: 0x2a, G: 0x7f, B: 0x3f, A: 0xff}
	for x := 0; x < bounds.Dx(); x++ {
		for y := bounds.Dy(); y < bounds.Dy()+cellSize; y++ {
			out.SetRGBA(x, y, strip)
		}
	}
	return out
}

// renderTemporal draws the modal dB bin per period as a line profile.
func renderTemporal(counts [][]int64) *image.RGBA {
	periodBins := len(counts)
	dbBins := len(counts[0])
	img := image.NewRGBA(image.Rect(0, 0, periodBins*cellSize, dbBins*cellSize))

	for i := 0; i < periodBins; i++ {
		mode, best := -1, int64(0)
		for j, c := range counts[i] {
			if c > best {
				mode, best = j, c
			}
		}
		if mode < 0 {
			continue
		}
		fillCell(img, i, dbBins-1-mode, color.RGBA{R: 0xd6, G: 0x30, B: 0x30, A: 0xff})
	}
	return img
}

func fillCell(img *image.RGBA, cx, cy int, c color.RGBA) {
	for dx := 0; dx < cellSize; dx++ {
		for dy := 0; dy < cellSize; dy++ {
			img.SetRGBA(cx*cellSize+dx, cy*cellSize+dy, c)
		}
	}
}

// rampColor maps probability 0..1 onto a dark-blue-to-yellow ramp.
func rampColor(p float64) color.RGBA {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return color.RGBA{
		R: uint8(20 + 235*p),
		G: uint8(20 + 215*p),
		B: uint8(80 * (1 - p)),
		A: 0xff,
	}
}
