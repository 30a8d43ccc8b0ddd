// Package blockdev adapts a sector-addressed card to the logical block
// contract a flash filesystem programs against: fixed-size erase blocks
// with sector-aligned read and program operations inside each block.
//
// The adapter owns concurrency (one operation in flight per device),
// geometry translation (logical block and offset to absolute card
// sector), and per-operation latency accounting. It adds no caching and
// no wear management; erase is a no-op because SD cards remap and erase
// internally behind the sector interface.
package blockdev
