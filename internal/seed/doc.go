// Package seed defines the identity and interval value types shared across
// the pipeline.
//
// An ID is the SEED network-station-location-channel tuple that names a
// recording source; a TimeRange is a half-open [start, end) interval in UTC.
// Both are immutable values derived from waveform metadata. Everything that
// groups, filters, or names output artifacts keys off these two types, so keep
// them free of behavior that belongs to segments or accumulators.
package seed
