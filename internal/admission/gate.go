package admission

import (
	"time"

	"specbatch/internal/seed"
	"specbatch/internal/segment"
)

// Reason is the code attached to a rejection for logs and the run ledger.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonWeekday          Reason = "weekday"
	ReasonAbsoluteWindow   Reason = "absolute-window"
	ReasonDailyWindow      Reason = "daily-window"
	ReasonEventDetected    Reason = "event-detected"
	ReasonEstimatorTimeout Reason = "estimator-timeout"
	ReasonWindowUnderrun   Reason = "window-underrun"
)

// Decision is the outcome of running a segment through the gate.
type Decision struct {
	Admitted bool
	Reason   Reason
}

func admitted() Decision              { return Decision{Admitted: true} }
func rejected(reason Reason) Decision { return Decision{Reason: reason} }

// DailyWindow is a half-open [From, To) time-of-day band in UTC. From after
// To means the band wraps midnight.
type DailyWindow struct {
	From time.Duration
	To   time.Duration
}

// EventRules configures the STA/LTA transient-event test.
type EventRules struct {
	ShortWindow time.Duration
	LongWindow  time.Duration
	ThresholdOn float64
}

// Rules collects the configured predicates. Zero-valued fields are unset and
// admit everything.
type Rules struct {
	// Weekdays is the allowed set; empty admits every day.
	Weekdays map[time.Weekday]bool
	// AbsoluteWindow must truly intersect the segment range, not merely
	// touch it.
	AbsoluteWindow seed.TimeRange
	Daily          *DailyWindow
	Event          *EventRules
}

// Admit runs the segment through every configured predicate. The first
// failing predicate names the rejection reason.
func (r Rules) Admit(seg segment.Segment) Decision {
	if !r.weekdayAllowed(seg) {
		return rejected(ReasonWeekday)
	}
	if !r.absoluteWindowAllowed(seg) {
		return rejected(ReasonAbsoluteWindow)
	}
	if !r.dailyWindowAllowed(seg) {
		return rejected(ReasonDailyWindow)
	}
	if !r.eventFree(seg) {
		return rejected(ReasonEventDetected)
	}
	return admitted()
}

func (r Rules) weekdayAllowed(seg segment.Segment) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	return r.Weekdays[seg.Range.Start.UTC().Weekday()]
}

func (r Rules) absoluteWindowAllowed(seg segment.Segment) bool {
	if r.AbsoluteWindow.IsZero() {
		return true
	}
	return r.AbsoluteWindow.Intersects(seg.Range)
}

func (r Rules) dailyWindowAllowed(seg segment.Segment) bool {
	if r.Daily == nil {
		return true
	}
	start := seg.Range.Start.UTC()
	tod := time.Duration(start.Hour())*time.Hour +
		time.Duration(start.Minute())*time.Minute +
		time.Duration(start.Second())*time.Second
	from, to := r.Daily.From, r.Daily.To
	if from == to {
		return true
	}
	if from < to {
		return tod >= from && tod < to
	}
	// Band wraps midnight.
	return tod >= from || tod < to
}

func (r Rules) eventFree(seg segment.Segment) bool {
	if r.Event == nil {
		return true
	}
	return !detectEvent(seg, *r.Event)
}
