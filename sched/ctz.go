package sched

import "math/bits"

// wordSize is the width of one block pointer in the filesystem's
// skip-list chain.
const wordSize = 4

// FlushWindow returns the number of bytes that may be appended to a
// file at byte offset off before a sync is required to stay inside the
// filesystem's crash-consistency guarantee, i.e. the distance to the
// end of the logical block the offset falls in.
//
// The computation is a port of the target filesystem's published
// on-disk layout, not a derivation: a file's first block is pure data,
// while every later block with index i leads with ctz(i)+1 pointers of
// wordSize bytes chaining back to earlier blocks. The block an offset
// falls in therefore satisfies a closed-form relation involving the
// population count of the block index, and the intra-block position
// must account for that block's pointer overhead. Any change of target
// filesystem requires re-porting this from its specification.
func FlushWindow(off, blockSize uint32) uint32 {
	// Average data capacity per chained block.
	b := blockSize - 2*wordSize

	i := off / b
	if i == 0 {
		// Inside the first block: pure data, no pointer overhead.
		return blockSize - off
	}

	// Refine the index estimate, then locate the raw in-block position
	// including the block's leading pointers.
	i = (off - wordSize*(popcount(i-1)+2)) / b
	rel := off - b*i - wordSize*popcount(i)
	return blockSize - rel
}

func popcount(v uint32) uint32 {
	return uint32(bits.OnesCount32(v))
}
