package sdcard

import (
	"fmt"
	"time"

	"github.com/cardlog/cardlog/pkg"
)

// Session holds the transient state of one physical card insertion. It
// is created by a successful [Init] and remains valid until the hotplug
// supervisor detects the card absent.
type Session struct {
	Geometry    CardGeometry  // Derived from the capacity register
	OCR         uint32        // Operation-conditions register
	InitTime    time.Duration // Elapsed initialization polling time
	Operational bool          // Cleared when the card is abandoned
}

// Card is a protocol engine bound to one initialized card. Methods are
// not safe for concurrent use; the block-device adapter above this layer
// serializes access.
type Card struct {
	t       Transport
	session Session
}

// Init drives a freshly powered card through bring-up: software reset,
// voltage negotiation, initialization polling, and capacity discovery.
// It returns an operational Card, or an error classifying why this
// insertion is unusable. Init never retries bring-up as a whole; that
// policy belongs to the hotplug supervisor.
func Init(t Transport) (*Card, error) {
	c := &Card{t: t}

	c.powerUp()

	if err := c.reset(); err != nil {
		return nil, err
	}
	if err := c.checkVoltage(); err != nil {
		return nil, err
	}
	if err := c.initialize(); err != nil {
		return nil, err
	}
	if err := c.readOCR(); err != nil {
		return nil, err
	}
	if err := c.readCSD(); err != nil {
		return nil, err
	}

	c.session.Operational = true
	pkg.LogInfo(pkg.ComponentCard, "card initialized",
		"addressing", c.session.Geometry.Addressing.String(),
		"blockSize", c.session.Geometry.BlockSizeBytes,
		"blocks", c.session.Geometry.CapacityBlocks,
		"initTime", c.session.InitTime)

	return c, nil
}

// Session returns a copy of the insertion session state.
func (c *Card) Session() Session {
	return c.session
}

// Abandon marks the session non-operational. Further data operations
// fail with [pkg.ErrNotReady]. Called by the hotplug supervisor when the
// card is detected absent.
func (c *Card) Abandon() {
	c.session.Operational = false
}

// powerUp clocks the card with chip-select released so its internal
// state machine leaves the power-on state (at least 74 clock cycles).
func (c *Card) powerUp() {
	c.t.Select(false)
	c.clock(powerUpClocks)
}

// reset issues the software-reset command until the card reports the
// idle state, with a small fixed retry budget. Failure is fatal for this
// insertion.
func (c *Card) reset() error {
	for attempt := 0; attempt < resetRetries; attempt++ {
		r1, err := c.command(cmdGoIdleState, 0)
		c.deselect()
		if err == nil && r1 == r1Idle {
			return nil
		}
		pkg.LogDebug(pkg.ComponentCard, "reset attempt failed",
			"attempt", attempt+1, "r1", r1, "error", err)
	}
	return pkg.ErrNoInit
}

// checkVoltage issues the conditional voltage-range query. A card that
// rejects the command is a legacy card this engine does not support; the
// failure is not retried. A supporting card echoes the argument back.
func (c *Card) checkVoltage() error {
	r1, resp, err := c.commandR7(cmdSendIfCond, ifCondArg)
	c.deselect()
	if err != nil {
		return err
	}
	if r1&r1IllegalCommand != 0 {
		return pkg.ErrBadCard
	}
	if r1 != r1Idle {
		return fmt.Errorf("%w: r1 %#02x", pkg.ErrCommandRejected, r1)
	}
	if resp&0xFFF != ifCondArg {
		return fmt.Errorf("%w: voltage echo %#03x", pkg.ErrBadCard, resp&0xFFF)
	}
	return nil
}

// initialize polls the application-specific init command, advertising
// high-capacity addressing support, until the card reports ready. The
// poll cadence is 1 ms with no iteration cap; the external watchdog
// bounds a card that never comes ready. Elapsed time is recorded in the
// session for diagnostics (healthy cards range from ~10 ms to >300 ms).
func (c *Card) initialize() error {
	start := time.Now()
	for {
		r1, err := c.appCommand(acmdSendOpCond, opCondHCS)
		c.deselect()
		if err != nil {
			return err
		}
		if r1 == 0 {
			c.session.InitTime = time.Since(start)
			return nil
		}
		if r1 != r1Idle {
			return fmt.Errorf("%w: init r1 %#02x", pkg.ErrCommandRejected, r1)
		}
		time.Sleep(time.Millisecond)
	}
}

// readOCR reads the operation-conditions register to learn the
// addressing mode from the card-capacity bit.
func (c *Card) readOCR() error {
	r1, ocr, err := c.commandR7(cmdReadOCR, 0)
	c.deselect()
	if err != nil {
		return err
	}
	if r1 != 0 {
		return fmt.Errorf("%w: ocr r1 %#02x", pkg.ErrCommandRejected, r1)
	}
	c.session.OCR = ocr
	if ocr&ocrCCS != 0 {
		c.session.Geometry.Addressing = AddressingBlock
	} else {
		c.session.Geometry.Addressing = AddressingByte
	}
	return nil
}

// readCSD reads and parses the 128-bit capacity/geometry register.
func (c *Card) readCSD() error {
	defer c.deselect()

	r1, err := c.command(cmdSendCSD, 0)
	if err != nil {
		return err
	}
	if r1 != 0 {
		return fmt.Errorf("%w: csd r1 %#02x", pkg.ErrCommandRejected, r1)
	}

	var raw [csdSize]byte
	if err := c.readDataBlock(raw[:]); err != nil {
		return err
	}

	geo, err := parseCSD(raw[:], c.session.Geometry.Addressing)
	if err != nil {
		return err
	}
	c.session.Geometry = geo
	return nil
}

// sectorArg translates a sector number into a command argument per the
// card's addressing mode.
func (c *Card) sectorArg(sector uint32) uint32 {
	if c.session.Geometry.Addressing == AddressingByte {
		return sector * SectorSize
	}
	return sector
}

// command asserts chip-select, sends one command frame, and polls for
// the first response byte. Chip-select remains asserted on return so
// data-phase commands can continue the transaction; callers release it
// via deselect.
func (c *Card) command(cmd byte, arg uint32) (byte, error) {
	var frame [frameSize]byte
	buildFrame(&frame, cmd, arg)

	c.t.Select(true)
	if err := c.t.Exchange(frame[:], nil); err != nil {
		return 0, fmt.Errorf("send CMD%d: %w", cmd, err)
	}
	return c.response(cmd)
}

// appCommand sends the escape command followed by an application-specific
// command, returning the latter's response.
func (c *Card) appCommand(cmd byte, arg uint32) (byte, error) {
	r1, err := c.command(cmdAppCmd, 0)
	if err != nil {
		return r1, err
	}
	if r1&^r1Idle != 0 {
		return r1, fmt.Errorf("%w: app escape r1 %#02x", pkg.ErrCommandRejected, r1)
	}
	c.deselect()
	return c.command(cmd, arg)
}

// commandR7 sends a command expecting a 5-byte response: R1 followed by
// a big-endian 32-bit payload (R3 and R7 share this shape).
func (c *Card) commandR7(cmd byte, arg uint32) (byte, uint32, error) {
	r1, err := c.command(cmd, arg)
	if err != nil {
		return r1, 0, err
	}

	var tail [4]byte
	if err := c.t.Exchange(nil, tail[:]); err != nil {
		return r1, 0, fmt.Errorf("read CMD%d payload: %w", cmd, err)
	}
	v := uint32(tail[0])<<24 | uint32(tail[1])<<16 | uint32(tail[2])<<8 | uint32(tail[3])
	return r1, v, nil
}

// response polls for the first byte with the transmission bit clear,
// within the fixed response window.
func (c *Card) response(cmd byte) (byte, error) {
	for i := 0; i < responsePolls; i++ {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			return b, nil
		}
	}
	return 0, fmt.Errorf("CMD%d: %w", cmd, pkg.ErrTimeout)
}

// readDataBlock waits for a start-of-data token, then clocks the payload
// and its 16-bit CRC, validating the CRC locally.
func (c *Card) readDataBlock(buf []byte) error {
	if err := c.waitStartToken(); err != nil {
		return err
	}
	if err := c.t.Exchange(nil, buf); err != nil {
		return fmt.Errorf("read data block: %w", err)
	}

	var crc [2]byte
	if err := c.t.Exchange(nil, crc[:]); err != nil {
		return fmt.Errorf("read data CRC: %w", err)
	}
	if got := uint16(crc[0])<<8 | uint16(crc[1]); got != CRC16(buf) {
		return fmt.Errorf("%w: got %#04x", pkg.ErrCRC, got)
	}
	return nil
}

// waitStartToken polls for the start-of-data token within the bounded
// token window. A byte with the top nibble clear is an error token; its
// class is surfaced for diagnostics.
func (c *Card) waitStartToken() error {
	for i := 0; i < tokenPolls; i++ {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		switch {
		case b == fillByte:
			continue
		case b == tokenStartBlock:
			return nil
		case b&errorTokenMask == 0:
			return pkg.DataErrorFromToken(b)
		default:
			return fmt.Errorf("%w: unexpected token %#02x", pkg.ErrCommandRejected, b)
		}
	}
	return fmt.Errorf("start token: %w", pkg.ErrTimeout)
}

// waitNotBusy clocks the card until it stops echoing the busy level,
// within the bounded busy window.
func (c *Card) waitNotBusy() error {
	for i := 0; i < busyPolls; i++ {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		if b != busyByte {
			return nil
		}
	}
	return pkg.ErrBusyTimeout
}

// deselect releases chip-select and clocks one fill byte so the card
// releases the bus.
func (c *Card) deselect() {
	c.t.Select(false)
	c.clock(1)
}

// clock exchanges n fill bytes, discarding the received data.
func (c *Card) clock(n int) {
	var fill [powerUpClocks]byte
	for i := range fill {
		fill[i] = fillByte
	}
	for n > 0 {
		chunk := n
		if chunk > len(fill) {
			chunk = len(fill)
		}
		// Clock errors here are unreachable on real transports; the
		// next framed exchange reports anything persistent.
		_ = c.t.Exchange(fill[:chunk], nil)
		n -= chunk
	}
}

// readByte clocks one fill byte and returns the byte received.
func (c *Card) readByte() (byte, error) {
	tx := [1]byte{fillByte}
	var rx [1]byte
	if err := c.t.Exchange(tx[:], rx[:]); err != nil {
		return 0, err
	}
	return rx[0], nil
}
