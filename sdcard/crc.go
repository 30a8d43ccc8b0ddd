package sdcard

// CRC7 computes the 7-bit CRC (polynomial x^7 + x^3 + 1) over data,
// returned right-aligned in the low 7 bits. Command frames append
// crc<<1|1 as their final byte.
func CRC7(data []byte) byte {
	var crc byte
	for _, d := range data {
		for bit := 7; bit >= 0; bit-- {
			inv := ((d >> uint(bit)) & 1) ^ (crc >> 6)
			crc = (crc << 1) & 0x7F
			if inv != 0 {
				crc ^= 0x09
			}
		}
	}
	return crc
}

// CRC16 computes the CCITT CRC (polynomial x^16 + x^12 + x^5 + 1, zero
// initial value) over data. Data blocks carry it big-endian after the
// 512 payload bytes.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, d := range data {
		crc ^= uint16(d) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
