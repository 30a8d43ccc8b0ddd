package sdcard

import "fmt"

// extractBits returns the width-bit field whose most significant bit sits
// at position high in raw, right-aligned. Bit positions use the
// register-slice numbering of the card's configuration registers: the
// most significant bit of raw[0] is bit 8*len(raw)-1 and the least
// significant bit of the final byte is bit 0. Fields may straddle byte
// boundaries.
//
// A field that falls outside the array, or a width outside 1..32, is a
// programming error, not a card error: extractBits panics rather than
// returning a recoverable failure. Callers pass only compile-time field
// definitions.
func extractBits(raw []byte, high, width uint) uint32 {
	total := uint(len(raw)) * 8
	if width < 1 || width > 32 || high >= total || width > high+1 {
		panic(fmt.Sprintf("sdcard: bit field [%d:%d] outside %d-bit register",
			high, high-width+1, total))
	}

	var v uint32
	for pos := high; ; pos-- {
		byteIdx := uint(len(raw)) - 1 - pos/8
		v = v<<1 | uint32(raw[byteIdx]>>(pos%8)&1)
		if pos == high-width+1 {
			return v
		}
	}
}
