// Package config loads and validates the TOML job documents that drive the
// pipeline.
//
// A compute document names waveform input, calibration metadata, an output
// directory, and the estimation and admission arguments. A plot document
// names a directory of persisted accumulators and the rendering arguments.
// String-valued modes (special handling, gap fill, plot type) are resolved
// into closed enums here, at load time; an unrecognized tag fails the job
// immediately instead of changing semantics at runtime.
package config
