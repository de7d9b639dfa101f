// Package handling maps the special_handling config tag to the estimator
// input mode for non-standard instrument types.
//
// The tag set is closed: standard seismometers get full response correction
// plus differentiation, ring lasers are scaled by sensitivity only with no
// differentiation, and hydrophones get full correction with no
// differentiation. Unknown tags are rejected at config load because a silent
// standard fallback changes output units without warning.
package handling

import (
	"fmt"
	"strings"

	"specbatch/internal/services"
)

// Special identifies the instrument-correction family for a compute job.
type Special int

const (
	// Standard applies full response correction and differentiates to
	// acceleration.
	Standard Special = iota
	// RingLaser divides by the overall sensitivity only and skips
	// differentiation.
	RingLaser
	// Hydrophone applies full response correction without differentiation.
	Hydrophone
)

// Mode is the estimator-input descriptor derived from a Special value.
type Mode struct {
	Special         Special
	CorrectResponse bool
	SensitivityOnly bool
	Differentiate   bool
}

// Parse resolves a config tag into a Special value. The empty string, "none",
// and "null" select Standard, matching the original tool's config dialect.
func Parse(tag string) (Special, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "none", "null", "standard":
		return Standard, nil
	case "ringlaser":
		return RingLaser, nil
	case "hydrophone":
		return Hydrophone, nil
	default:
		return 0, services.Wrap(services.ErrConfigInvalid, "", "special_handling", fmt.Sprintf("unrecognized value %q", tag), nil)
	}
}

// ModeFor returns the estimator-input descriptor for a Special value.
func ModeFor(s Special) Mode {
	switch s {
	case RingLaser:
		return Mode{Special: RingLaser, SensitivityOnly: true}
	case Hydrophone:
		return Mode{Special: Hydrophone, CorrectResponse: true}
	default:
		return Mode{Special: Standard, CorrectResponse: true, Differentiate: true}
	}
}

// String renders the config tag for a Special value.
func (s Special) String() string {
	switch s {
	case RingLaser:
		return "ringlaser"
	case Hydrophone:
		return "hydrophone"
	default:
		return "standard"
	}
}
