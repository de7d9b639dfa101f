// Package logging constructs the slog loggers used across the pipeline.
//
// Two output formats are supported: a human-oriented console format and
// machine-readable JSON. The "auto" format picks console when stderr is a
// terminal and JSON otherwise. Standardized field keys keep job, entity, and
// run identifiers consistent between the log stream and the run ledger.
package logging
