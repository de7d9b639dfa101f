// Package accumulator owns the create/load/add/persist lifecycle of
// per-source accumulators during a run.
//
// The Manager is an explicit registry keyed by owning job and SEED id: at
// most one in-memory accumulator exists per job and source, jobs never share
// an accumulator, and all mutation of one accumulator is serialized through
// its entry lock. Persistence happens exactly once per entry, never for an
// entry that admitted no data, and a failure on one entry leaves every other
// entry untouched.
package accumulator
