// Package segment models decoded waveform segments and the policy for
// concatenating raw, possibly gapped, segments of one recording source before
// they reach the admission gate.
//
// A merge policy is resolved once per compute job from the gap-handling
// directives in its config. Policies are closed enums so a typo in
// merge_fill_value fails at config load rather than changing gap semantics at
// runtime. Merging is deterministic: identical inputs always produce identical
// output segments.
package segment
