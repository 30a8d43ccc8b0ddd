package cardsim

import (
	"encoding/binary"
	"fmt"

	"github.com/cardlog/cardlog/sdcard"
)

// Command indices the simulator recognizes.
const (
	cmdGoIdleState      = 0
	cmdSendIfCond       = 8
	cmdSendCSD          = 9
	cmdStopTransmission = 12
	cmdSendStatus       = 13
	cmdReadSingle       = 17
	cmdReadMultiple     = 18
	cmdWriteSingle      = 24
	cmdAppCmd           = 55
	cmdReadOCR          = 58
	acmdSendOpCond      = 41
)

// R1 bits and tokens, card side.
const (
	r1Idle           = 0x01
	r1IllegalCommand = 0x04
	r1CRCError       = 0x08

	tokenStart = 0xFE
	fill       = 0xFF
	busy       = 0x00

	// strayByte is clocked out between stop-transmission and its
	// response, modeling the in-flight data byte of a real card. The
	// value has the transmission bit clear so a host that fails to
	// discard it mistakes it for a (bad) response.
	strayByte = 0x3F

	errorTokenOutOfRange = 0x08
)

// Faults configures injected failures.
type Faults struct {
	// ReadErrorToken, when nonzero, is substituted for the start token
	// of the next read data block (low nibble is the error class).
	ReadErrorToken byte

	// RejectWriteCRC answers the next data block with the
	// reject-CRC data response.
	RejectWriteCRC bool

	// RejectWrite answers the next data block with the reject-write
	// data response.
	RejectWrite bool

	// BusyForever keeps the card busy after a write until the host
	// gives up.
	BusyForever bool

	// StatusError sets error bits in the post-write status query.
	StatusError bool
}

// rx states for the byte machine.
type state uint8

const (
	stIdle  state = iota // Awaiting a command byte
	stFrame              // Collecting the remainder of a 6-byte frame
	stToken              // Write in progress, awaiting the start token
	stData               // Write in progress, collecting data + CRC
)

// Card is an in-memory simulated SD card implementing the protocol
// engine's transport. The zero value is not usable; construct with New.
type Card struct {
	// HighCapacity selects block addressing (OCR CCS set) and the
	// version 2 capacity register layout.
	HighCapacity bool

	// Legacy makes the card reject the voltage-range query, modeling a
	// card this engine does not support.
	Legacy bool

	// InitPolls is how many init commands the card answers with the
	// idle bit before reporting ready.
	InitPolls int

	// Faults injects failures; see [Faults].
	Faults Faults

	capacityBlocks uint32
	sectors        map[uint32]*[sdcard.SectorSize]byte

	selected   bool
	st         state
	frame      [6]byte
	frameLen   int
	out        []byte
	appNext    bool
	ready      bool
	initPolled int
	busyHeld   bool

	multiRead  bool
	readSector uint32

	writeSector uint32
	data        [sdcard.SectorSize + 2]byte
	dataLen     int

	// WritesCompleted counts sectors committed to the image.
	WritesCompleted int
}

// New creates a simulated card with the given capacity in 512-byte
// sectors. For the standard-capacity (byte-addressed) layout the count
// must be a multiple of 512 so the capacity register can express it.
func New(capacityBlocks uint32, highCapacity bool) *Card {
	return &Card{
		HighCapacity:   highCapacity,
		InitPolls:      2,
		capacityBlocks: capacityBlocks,
		sectors:        make(map[uint32]*[sdcard.SectorSize]byte),
	}
}

// Select implements the transport chip-select line.
func (c *Card) Select(assert bool) {
	c.selected = assert
	if !assert {
		c.frameLen = 0
		if c.st == stFrame {
			c.st = stIdle
		}
	}
}

// Exchange implements the full-duplex transport byte exchange.
func (c *Card) Exchange(tx, rx []byte) error {
	if tx != nil && rx != nil && len(tx) != len(rx) {
		return fmt.Errorf("cardsim: exchange length mismatch %d/%d", len(tx), len(rx))
	}
	n := len(tx)
	if len(rx) > n {
		n = len(rx)
	}
	for i := 0; i < n; i++ {
		in := byte(fill)
		if tx != nil {
			in = tx[i]
		}
		out := c.clockByte(in)
		if rx != nil {
			rx[i] = out
		}
	}
	return nil
}

// SectorData returns the current contents of a sector (zero if never
// written). Test helper.
func (c *Card) SectorData(sector uint32) [sdcard.SectorSize]byte {
	if s := c.sectors[sector]; s != nil {
		return *s
	}
	return [sdcard.SectorSize]byte{}
}

// clockByte advances the card by one clocked byte.
func (c *Card) clockByte(in byte) byte {
	if !c.selected {
		return fill
	}

	out := c.popOutput()

	switch c.st {
	case stIdle:
		if in&0xC0 == 0x40 {
			c.frame[0] = in
			c.frameLen = 1
			c.st = stFrame
		}
	case stFrame:
		c.frame[c.frameLen] = in
		c.frameLen++
		if c.frameLen == len(c.frame) {
			c.st = stIdle
			c.exec()
		}
	case stToken:
		if in == tokenStart {
			c.st = stData
			c.dataLen = 0
		}
	case stData:
		c.data[c.dataLen] = in
		c.dataLen++
		if c.dataLen == len(c.data) {
			c.st = stIdle
			c.finishWrite()
		}
	}

	return out
}

// popOutput produces the next output byte, refilling from an in-flight
// multi-block read when the queue runs dry.
func (c *Card) popOutput() byte {
	if len(c.out) == 0 {
		if c.busyHeld {
			return busy
		}
		if c.multiRead {
			c.queueReadBlock(c.readSector)
			c.readSector++
		}
	}
	if len(c.out) == 0 {
		return fill
	}
	b := c.out[0]
	c.out = c.out[1:]
	return b
}

func (c *Card) push(b ...byte) {
	c.out = append(c.out, b...)
}

// exec runs a fully collected command frame.
func (c *Card) exec() {
	cmd := c.frame[0] & 0x3F
	arg := binary.BigEndian.Uint32(c.frame[1:5])

	if sdcard.CRC7(c.frame[:5])<<1|1 != c.frame[5] {
		c.push(fill, c.r1()|r1CRCError)
		return
	}

	app := c.appNext
	c.appNext = false

	switch {
	case app && cmd == acmdSendOpCond:
		c.initPolled++
		if c.initPolled > c.InitPolls {
			c.ready = true
		}
		c.push(fill, c.r1())

	case cmd == cmdGoIdleState:
		c.ready = false
		c.initPolled = 0
		c.multiRead = false
		c.busyHeld = false
		c.out = c.out[:0]
		c.push(fill, r1Idle)

	case cmd == cmdSendIfCond:
		if c.Legacy {
			c.push(fill, c.r1()|r1IllegalCommand)
			return
		}
		var echo [4]byte
		binary.BigEndian.PutUint32(echo[:], arg)
		c.push(fill, c.r1())
		c.push(echo[:]...)

	case cmd == cmdAppCmd:
		c.appNext = true
		c.push(fill, c.r1())

	case cmd == cmdReadOCR:
		ocr := uint32(0x80000000)
		if c.HighCapacity {
			ocr |= 0x40000000
		}
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], ocr)
		c.push(fill, c.r1())
		c.push(v[:]...)

	case cmd == cmdSendCSD:
		csd := c.buildCSD()
		crc := sdcard.CRC16(csd[:])
		c.push(fill, c.r1(), fill, tokenStart)
		c.push(csd[:]...)
		c.push(byte(crc>>8), byte(crc))

	case cmd == cmdReadSingle:
		c.push(fill, c.r1())
		c.queueReadBlock(c.sectorOf(arg))

	case cmd == cmdReadMultiple:
		c.push(fill, c.r1())
		c.readSector = c.sectorOf(arg)
		c.multiRead = true

	case cmd == cmdStopTransmission:
		c.multiRead = false
		c.out = c.out[:0]
		c.push(strayByte, 0x00, busy, busy)

	case cmd == cmdWriteSingle:
		c.writeSector = c.sectorOf(arg)
		c.push(fill, c.r1())
		c.st = stToken

	case cmd == cmdSendStatus:
		if c.Faults.StatusError {
			c.push(fill, 0x00, 0x04) // write-error bit in the second byte
		} else {
			c.push(fill, 0x00, 0x00)
		}

	default:
		c.push(fill, c.r1()|r1IllegalCommand)
	}
}

// r1 is the baseline response: idle bit until initialization completes.
func (c *Card) r1() byte {
	if c.ready {
		return 0x00
	}
	return r1Idle
}

// sectorOf translates a command argument to a sector per the card's
// addressing mode.
func (c *Card) sectorOf(arg uint32) uint32 {
	if c.HighCapacity {
		return arg
	}
	return arg / sdcard.SectorSize
}

// queueReadBlock queues a start token, sector payload, and CRC, or an
// error token for faults and out-of-range addresses.
func (c *Card) queueReadBlock(sector uint32) {
	if c.Faults.ReadErrorToken != 0 {
		token := c.Faults.ReadErrorToken
		c.Faults.ReadErrorToken = 0
		c.multiRead = false
		c.push(fill, token)
		return
	}
	if sector >= c.capacityBlocks {
		c.multiRead = false
		c.push(fill, errorTokenOutOfRange)
		return
	}

	var payload [sdcard.SectorSize]byte
	if s := c.sectors[sector]; s != nil {
		payload = *s
	}
	crc := sdcard.CRC16(payload[:])
	c.push(fill, tokenStart)
	c.push(payload[:]...)
	c.push(byte(crc>>8), byte(crc))
}

// finishWrite commits a collected data block and queues the data
// response, honoring injected faults.
func (c *Card) finishWrite() {
	switch {
	case c.Faults.RejectWriteCRC:
		c.Faults.RejectWriteCRC = false
		c.push(0x0B, busy, busy)
		return
	case c.Faults.RejectWrite:
		c.Faults.RejectWrite = false
		c.push(0x0D, busy, busy)
		return
	}

	if c.writeSector < c.capacityBlocks {
		s := c.sectors[c.writeSector]
		if s == nil {
			s = new([sdcard.SectorSize]byte)
			c.sectors[c.writeSector] = s
		}
		copy(s[:], c.data[:sdcard.SectorSize])
		c.WritesCompleted++
	}

	if c.Faults.BusyForever {
		c.busyHeld = true
		c.push(0x05)
		return
	}
	c.push(0x05, busy, busy)
}

// buildCSD synthesizes the capacity register for the configured layout.
func (c *Card) buildCSD() [16]byte {
	var csd [16]byte
	if c.HighCapacity {
		putBits(csd[:], 127, 2, 1) // version 2 layout
		putBits(csd[:], 69, 22, c.capacityBlocks/1024-1)
		putBits(csd[:], 83, 4, 9) // ignored by a correct host: clamped to 512
	} else {
		putBits(csd[:], 127, 2, 0)                    // version 1 layout
		putBits(csd[:], 83, 4, 9)                     // 512-byte blocks
		putBits(csd[:], 73, 12, c.capacityBlocks/512-1) // C_SIZE
		putBits(csd[:], 49, 3, 7)                     // C_SIZE_MULT: x512
	}
	return csd
}

// putBits writes a width-bit value with its most significant bit at
// position high, register-slice numbering (inverse of the host's field
// extraction).
func putBits(raw []byte, high, width uint, v uint32) {
	for i := uint(0); i < width; i++ {
		pos := high - width + 1 + i
		byteIdx := uint(len(raw)) - 1 - pos/8
		if v>>i&1 != 0 {
			raw[byteIdx] |= 1 << (pos % 8)
		}
	}
}
