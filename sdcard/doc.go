// Package sdcard implements the SD card command/response protocol over a
// raw byte-serial transport (SPI mode).
//
// The package drives a card from power-up through bring-up and then
// services sector-granular block I/O:
//
//  1. Reset - software reset with bounded retries
//  2. VoltageCheck - conditional voltage-range negotiation
//  3. Initializing - application-specific init polling until ready
//  4. ReadCapacityRegisters - addressing mode and geometry discovery
//  5. Ready - single/multi-sector reads, single-sector writes
//
// All transfers are framed the SD way: fixed 6-byte command frames
// protected by CRC7, data blocks of exactly 512 bytes framed by a start
// token and protected by CRC16. Reads validate the CRC locally; writes
// carry placeholder CRC bytes (the card ignores them in SPI mode) and
// are confirmed through the data-response token, the busy signal, and a
// status query.
//
// The package never retries protocol failures internally; errors are
// returned to the caller, and bring-up retry policy belongs to the
// hotplug supervisor that owns card insertion and removal.
//
// Hardware access goes through the [Transport] capability interface so
// board support layers, and test harnesses such as
// [github.com/cardlog/cardlog/sdcard/cardsim], can supply the byte
// exchange primitive.
package sdcard
