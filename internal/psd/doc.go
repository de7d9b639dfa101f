// Package psd is the spectral estimation core behind the orchestration
// pipeline.
//
// The pipeline only depends on the Estimator interface: create an
// accumulator, add admitted segments, persist, reload, and merge. The default
// estimator is a deterministic probabilistic PSD histogram: each window of an
// admitted segment contributes one dB observation per period bin, and
// accumulation is plain counting, so merging accumulators is commutative and
// re-running identical inputs reproduces byte-identical files.
package psd
