package sdcard

import (
	"fmt"

	"github.com/cardlog/cardlog/pkg"
)

// AddressingMode selects how sector numbers are encoded in command
// arguments.
type AddressingMode uint8

// Addressing modes.
const (
	// AddressingByte multiplies the sector number by 512 before sending
	// (standard-capacity, legacy cards).
	AddressingByte AddressingMode = iota

	// AddressingBlock sends the sector number directly (high-capacity
	// cards; OCR CCS bit set).
	AddressingBlock
)

// String returns a human-readable addressing mode name.
func (m AddressingMode) String() string {
	switch m {
	case AddressingByte:
		return "byte"
	case AddressingBlock:
		return "block"
	default:
		return "unknown"
	}
}

// CardGeometry describes a card's storage layout, derived once from the
// capacity register at initialization and immutable for the insertion
// lifetime.
type CardGeometry struct {
	BlockSizeBytes uint32         // Power of two: 512, 1024, or 2048
	CapacityBlocks uint32         // Number of addressable blocks
	Addressing     AddressingMode // Command argument encoding
}

// csdSize is the length of the capacity/geometry register in bytes.
const csdSize = 16

// CSD register fields, register-slice bit numbering (bit 127 is the MSB
// of the first byte). The register uses two incompatible layouts selected
// by the version field.
const (
	csdFieldVersion = 127 // [127:126], 2 bits

	// Version 1 (standard capacity) layout.
	csdV1FieldReadBlLen = 83 // [83:80], 4 bits, block size = 1<<n
	csdV1FieldCSize     = 73 // [73:62], 12 bits
	csdV1FieldCSizeMult = 49 // [49:47], 3 bits

	// Version 2 (high capacity) layout.
	csdV2FieldCSize = 69 // [69:48], 22 bits, capacity = (n+1) * 1024 sectors
)

// parseCSD decodes the 128-bit capacity register into a geometry,
// honoring the version-selected layout.
//
// For the version 2 layout the block size is forced to 512: that is the
// only legal value there, and the size field is clamped rather than
// trusted even if it claims otherwise.
func parseCSD(raw []byte, addressing AddressingMode) (CardGeometry, error) {
	if len(raw) != csdSize {
		return CardGeometry{}, fmt.Errorf("%w: %d-byte register", pkg.ErrBadCSD, len(raw))
	}

	geo := CardGeometry{Addressing: addressing}

	switch version := extractBits(raw, csdFieldVersion, 2); version {
	case 0: // version 1.0
		blLen := extractBits(raw, csdV1FieldReadBlLen, 4)
		if blLen < 9 || blLen > 11 {
			return CardGeometry{}, fmt.Errorf("%w: block length 2^%d", pkg.ErrBadCSD, blLen)
		}
		cSize := extractBits(raw, csdV1FieldCSize, 12)
		cSizeMult := extractBits(raw, csdV1FieldCSizeMult, 3)
		geo.BlockSizeBytes = 1 << blLen
		geo.CapacityBlocks = (cSize + 1) << (cSizeMult + 2)

	case 1: // version 2.0
		cSize := extractBits(raw, csdV2FieldCSize, 22)
		geo.BlockSizeBytes = SectorSize // clamp, field not trusted
		geo.CapacityBlocks = (cSize + 1) * 1024

	default:
		return CardGeometry{}, fmt.Errorf("%w: version %d", pkg.ErrBadCSD, version)
	}

	return geo, nil
}
