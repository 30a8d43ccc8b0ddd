package blockdev

import (
	"fmt"
	"sync"
	"time"

	"github.com/cardlog/cardlog/pkg"
	"github.com/cardlog/cardlog/sdcard"
)

// SectorReadWriter is the sector transfer capability the adapter builds
// on, satisfied by an initialized card.
type SectorReadWriter interface {
	ReadSectors(start, count uint32, buf []byte) error
	WriteSectors(start, count uint32, buf []byte) error
}

var _ SectorReadWriter = (*sdcard.Card)(nil)

// Stats aggregates per-operation transfer statistics. Erase and Sync
// are pure counters; the accepted calls perform no card I/O.
type Stats struct {
	Read  pkg.Latency
	Prog  pkg.Latency
	Erase uint64
	Sync  uint64
}

// String renders the statistics on one line.
func (s Stats) String() string {
	return fmt.Sprintf("read[%s] prog[%s] erase=%d sync=%d",
		s.Read.String(), s.Prog.String(), s.Erase, s.Sync)
}

// Device presents a card as an array of logical blocks. All methods are
// safe for concurrent use; operations are serialized because the
// underlying card is half-duplex and stateful.
type Device struct {
	mu    sync.Mutex
	card  SectorReadWriter
	stats Stats

	blockSize  uint32 // Bytes per logical block
	blockCount uint32
	sectors    uint32 // Sectors per logical block
}

// New builds a device over card with the given logical block size,
// which must be a positive multiple of the card sector size. Card
// capacity left over after the last whole block is unaddressable.
func New(card SectorReadWriter, geom sdcard.CardGeometry, blockSize uint32) (*Device, error) {
	if blockSize == 0 || blockSize%sdcard.SectorSize != 0 {
		return nil, fmt.Errorf("%w: block size %d not a sector multiple",
			pkg.ErrInvalidParameter, blockSize)
	}
	sectors := blockSize / sdcard.SectorSize
	// Card capacity is reported in units of the card's own block size,
	// which is 1024 or 2048 bytes on some standard-capacity layouts.
	cardSectors := geom.CapacityBlocks * (geom.BlockSizeBytes / sdcard.SectorSize)
	count := cardSectors / sectors
	if count == 0 {
		return nil, fmt.Errorf("%w: card smaller than one %d byte block",
			pkg.ErrBadCard, blockSize)
	}

	pkg.LogInfo(pkg.ComponentBlockDev, "device ready",
		"blockSize", blockSize, "blockCount", count)
	return &Device{
		card:       card,
		blockSize:  blockSize,
		blockCount: count,
		sectors:    sectors,
	}, nil
}

// BlockSize returns the logical block size in bytes.
func (d *Device) BlockSize() uint32 {
	return d.blockSize
}

// BlockCount returns the number of addressable logical blocks.
func (d *Device) BlockCount() uint32 {
	return d.blockCount
}

// Stats returns a snapshot of the accumulated statistics.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Read fills buf from the given block starting at off. Both off and
// len(buf) must be sector multiples and the range must lie inside the
// block. The whole range is fetched with a single multi-sector read.
func (d *Device) Read(block, off uint32, buf []byte) error {
	if err := d.checkRange(block, off, buf); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	err := d.card.ReadSectors(d.sector(block, off), uint32(len(buf))/sdcard.SectorSize, buf)
	d.stats.Read.Observe(time.Since(start), len(buf))
	if err != nil {
		return fmt.Errorf("read block %d+%d: %w", block, off, err)
	}
	return nil
}

// Prog writes buf to the given block starting at off, under the same
// alignment rules as Read. The card accepts only single-sector
// programs, so the range is written one sector at a time; a failure
// partway leaves earlier sectors programmed.
func (d *Device) Prog(block, off uint32, buf []byte) error {
	if err := d.checkRange(block, off, buf); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sector := d.sector(block, off)
	for len(buf) > 0 {
		start := time.Now()
		err := d.card.WriteSectors(sector, 1, buf[:sdcard.SectorSize])
		d.stats.Prog.Observe(time.Since(start), sdcard.SectorSize)
		if err != nil {
			return fmt.Errorf("prog block %d+%d sector %d: %w", block, off, sector, err)
		}
		sector++
		buf = buf[sdcard.SectorSize:]
	}
	return nil
}

// Erase accepts an erase of the given block without touching the card;
// SD sectors are freely rewritable. Out-of-range blocks are still
// rejected so filesystem bugs surface here rather than as silent moduli.
func (d *Device) Erase(block uint32) error {
	if block >= d.blockCount {
		return fmt.Errorf("%w: erase block %d of %d", pkg.ErrInvalidParameter, block, d.blockCount)
	}
	d.mu.Lock()
	d.stats.Erase++
	d.mu.Unlock()
	return nil
}

// Sync is a no-op: every program completes on the card before Prog
// returns.
func (d *Device) Sync() error {
	d.mu.Lock()
	d.stats.Sync++
	d.mu.Unlock()
	return nil
}

func (d *Device) sector(block, off uint32) uint32 {
	return block*d.sectors + off/sdcard.SectorSize
}

func (d *Device) checkRange(block, off uint32, buf []byte) error {
	if off%sdcard.SectorSize != 0 || len(buf)%sdcard.SectorSize != 0 || len(buf) == 0 {
		return fmt.Errorf("%w: offset %d length %d", pkg.ErrUnaligned, off, len(buf))
	}
	if block >= d.blockCount || off+uint32(len(buf)) > d.blockSize {
		return fmt.Errorf("%w: block %d offset %d length %d",
			pkg.ErrInvalidParameter, block, off, len(buf))
	}
	return nil
}
