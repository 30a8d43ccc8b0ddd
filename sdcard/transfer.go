package sdcard

import (
	"fmt"

	"github.com/cardlog/cardlog/pkg"
)

// ReadSectors reads count sectors starting at sector start into buf,
// which must hold exactly count*SectorSize bytes. A single sector uses
// the single-block read command; multiple sectors use the multi-block
// read command terminated by stop-transmission. Each sector's CRC is
// validated locally.
func (c *Card) ReadSectors(start, count uint32, buf []byte) error {
	if err := c.checkTransfer(count, buf); err != nil {
		return err
	}
	defer c.deselect()

	if count == 1 {
		r1, err := c.command(cmdReadSingle, c.sectorArg(start))
		if err != nil {
			return err
		}
		if r1 != 0 {
			return fmt.Errorf("%w: read r1 %#02x", pkg.ErrCommandRejected, r1)
		}
		return c.readDataBlock(buf[:SectorSize])
	}

	r1, err := c.command(cmdReadMultiple, c.sectorArg(start))
	if err != nil {
		return err
	}
	if r1 != 0 {
		return fmt.Errorf("%w: read r1 %#02x", pkg.ErrCommandRejected, r1)
	}

	for i := uint32(0); i < count; i++ {
		sector := buf[i*SectorSize : (i+1)*SectorSize]
		if err := c.readDataBlock(sector); err != nil {
			return fmt.Errorf("sector %d: %w", start+i, err)
		}
	}
	return c.stopTransmission()
}

// WriteSectors writes count sectors from buf starting at sector start.
// Only single-sector writes are implemented; a multi-sector request
// returns [pkg.ErrNotSupported] rather than attempting the multi-block
// write command. The write is confirmed in three stages: data-response
// token, busy completion, and a status query.
func (c *Card) WriteSectors(start, count uint32, buf []byte) error {
	if err := c.checkTransfer(count, buf); err != nil {
		return err
	}
	if count != 1 {
		return fmt.Errorf("multi-sector write: %w", pkg.ErrNotSupported)
	}
	defer c.deselect()

	r1, err := c.command(cmdWriteSingle, c.sectorArg(start))
	if err != nil {
		return err
	}
	if r1 != 0 {
		return fmt.Errorf("%w: write r1 %#02x", pkg.ErrCommandRejected, r1)
	}

	if err := c.sendDataBlock(buf[:SectorSize]); err != nil {
		return err
	}
	if err := c.waitNotBusy(); err != nil {
		return err
	}
	return c.checkStatus()
}

// checkTransfer validates session and buffer preconditions shared by
// both transfer directions.
func (c *Card) checkTransfer(count uint32, buf []byte) error {
	if !c.session.Operational {
		return pkg.ErrNotReady
	}
	if count == 0 || len(buf) != int(count)*SectorSize {
		return fmt.Errorf("%w: %d sectors, %d-byte buffer",
			pkg.ErrInvalidParameter, count, len(buf))
	}
	return nil
}

// sendDataBlock transmits a start token, the payload, and two
// placeholder CRC bytes (ignored by the card in this transport mode),
// then decodes the data-response token. A rejection is fatal for the
// write; retry policy lives above this layer.
func (c *Card) sendDataBlock(data []byte) error {
	header := [2]byte{fillByte, tokenStartBlock}
	if err := c.t.Exchange(header[:], nil); err != nil {
		return fmt.Errorf("send start token: %w", err)
	}
	if err := c.t.Exchange(data, nil); err != nil {
		return fmt.Errorf("send data block: %w", err)
	}
	crc := [2]byte{fillByte, fillByte}
	if err := c.t.Exchange(crc[:], nil); err != nil {
		return fmt.Errorf("send data CRC: %w", err)
	}

	resp, err := c.dataResponse()
	if err != nil {
		return err
	}
	switch resp & dataRespMask {
	case dataRespAccepted:
		return nil
	case dataRespCRCRejected:
		return pkg.ErrCRCRejected
	case dataRespWriteRejected:
		return pkg.ErrWriteRejected
	default:
		return fmt.Errorf("%w: data response %#02x", pkg.ErrCommandRejected, resp)
	}
}

// dataResponse polls for the data-response token, identified by its
// fixed low bit pattern (xxx0sss1).
func (c *Card) dataResponse() (byte, error) {
	for i := 0; i < responsePolls; i++ {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		if b != fillByte && b&0x11 == 0x01 {
			return b, nil
		}
	}
	return 0, fmt.Errorf("data response: %w", pkg.ErrTimeout)
}

// stopTransmission ends a multi-block read. A protocol quirk leaves
// exactly one byte of in-flight data on the bus after the stop command
// is sent; it must be discarded before the command's own response is
// read, or the response byte is garbage.
func (c *Card) stopTransmission() error {
	var frame [frameSize]byte
	buildFrame(&frame, cmdStopTransmission, 0)
	if err := c.t.Exchange(frame[:], nil); err != nil {
		return fmt.Errorf("send CMD%d: %w", cmdStopTransmission, err)
	}

	// Stray in-flight byte.
	if _, err := c.readByte(); err != nil {
		return err
	}

	r1, err := c.response(cmdStopTransmission)
	if err != nil {
		return err
	}
	if r1 != 0 {
		return fmt.Errorf("%w: stop r1 %#02x", pkg.ErrCommandRejected, r1)
	}
	return c.waitNotBusy()
}

// checkStatus queries the card status register after a write; any set
// bit in either status byte fails the write.
func (c *Card) checkStatus() error {
	r1, err := c.command(cmdSendStatus, 0)
	if err != nil {
		return err
	}
	b2, err := c.readByte()
	if err != nil {
		return err
	}
	if r1 != 0 || b2 != 0 {
		return fmt.Errorf("%w: status %#02x %#02x", pkg.ErrCardStatus, r1, b2)
	}
	return nil
}
