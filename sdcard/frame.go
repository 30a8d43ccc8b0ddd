package sdcard

import "encoding/binary"

// frameSize is the fixed length of a command frame: one command byte
// with the framing bits set, four big-endian argument bytes, and one
// CRC byte (CRC7<<1 | 1).
const frameSize = 6

// buildFrame encodes a command frame into out.
func buildFrame(out *[frameSize]byte, cmd byte, arg uint32) {
	out[0] = 0x40 | (cmd & 0x3F)
	binary.BigEndian.PutUint32(out[1:5], arg)
	out[5] = CRC7(out[:5])<<1 | 1
}
