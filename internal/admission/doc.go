// Package admission decides whether a waveform segment is eligible for
// spectral accumulation.
//
// The gate is a logical AND of independent predicates: an allowed weekday
// set, an absolute time window, a daily time-of-day band, and an optional
// STA/LTA event test. Predicates share no state, so the decision is identical
// regardless of evaluation order; the gate short-circuits on the first
// failure purely to save work. Rejections are explicit Decision values with a
// reason code rather than errors, and segments failing admission never reach
// the estimator.
package admission
