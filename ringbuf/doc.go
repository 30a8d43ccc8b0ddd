// Package ringbuf provides the fixed-capacity circular byte buffer that
// decouples interrupt-level event producers from the storage write path.
//
// Producers call [Buffer.Insert] from interrupt or task context; the one
// consumer drains with [Buffer.Drain]. Inserts are all-or-nothing: an
// event that does not fit is dropped whole and counted, never split.
//
// Mutual exclusion is injected through the [Section] capability
// interface so each context can bring its own critical-section
// primitive (interrupt masking on hardware, a plain mutex in host
// builds). The lock is held only for pointer arithmetic, never across a
// storage call: Drain hands buffer segments to the writer unlocked and
// commits the read pointer afterwards.
//
// Occupancy derives from free-running wrapping byte counters rather
// than head/tail identity, so the full buffer is usable with no
// reserved slot and no full/empty ambiguity.
package ringbuf
