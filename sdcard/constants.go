package sdcard

// SectorSize is the fixed physical transfer unit of the card protocol.
const SectorSize = 512

// Command indices (SPI mode).
const (
	cmdGoIdleState      = 0  // CMD0: software reset
	cmdSendIfCond       = 8  // CMD8: conditional voltage check
	cmdSendCSD          = 9  // CMD9: read capacity/geometry register
	cmdStopTransmission = 12 // CMD12: end multi-sector read
	cmdSendStatus       = 13 // CMD13: read card status (R2)
	cmdReadSingle       = 17 // CMD17: single-sector read
	cmdReadMultiple     = 18 // CMD18: multi-sector read
	cmdWriteSingle      = 24 // CMD24: single-sector write
	cmdWriteMultiple    = 25 // CMD25: multi-sector write (unsupported by design)
	cmdAppCmd           = 55 // CMD55: next command is application-specific
	cmdReadOCR          = 58 // CMD58: read operation-conditions register
	acmdSendOpCond      = 41 // ACMD41: initialize, carries the HCS flag
)

// R1 response bits. A response with only r1Idle set is a card in the
// idle state; 0x00 is a ready card; anything else is an error.
const (
	r1Idle           = 0x01
	r1EraseReset     = 0x02
	r1IllegalCommand = 0x04
	r1CRCError       = 0x08
	r1EraseSeqError  = 0x10
	r1AddressError   = 0x20
	r1ParameterError = 0x40

	// r1ErrorMask covers every bit that indicates command failure.
	r1ErrorMask = r1IllegalCommand | r1CRCError | r1EraseSeqError |
		r1AddressError | r1ParameterError
)

// Data tokens.
const (
	tokenStartBlock = 0xFE // Precedes each 512-byte data block
	fillByte        = 0xFF // Idle bus level; also the poll fill
	busyByte        = 0x00 // Card echoes all-zero bytes while busy

	// errorTokenMask: a byte with the top nibble clear received while
	// waiting for a start token is an error token; its low nibble is the
	// 4-bit error-class field.
	errorTokenMask = 0xF0
)

// Data-response token (write): low 5 bits are xxx0sss1 where sss is the
// status field.
const (
	dataRespMask          = 0x1F
	dataRespAccepted      = 0x05
	dataRespCRCRejected   = 0x0B
	dataRespWriteRejected = 0x0D
)

// CMD8 argument: 2.7-3.6V supply range (0x1) with check pattern 0xAA.
// The card echoes the argument back in R7 when it supports the range.
const ifCondArg = 0x1AA

// ACMD41 argument: host supports high-capacity (block-addressed) cards.
const opCondHCS = 0x40000000

// OCR register bits.
const (
	ocrCCS   = 0x40000000 // Card Capacity Status: set for block addressing
	ocrReady = 0x80000000 // Power-up routine finished
)

// Poll bounds. The transport has no completion interrupt, so waits are
// bounded iteration counts rather than wall-clock timeouts.
const (
	resetRetries  = 3     // CMD0 attempts before declaring NoInit
	responsePolls = 8     // Bytes clocked while waiting for a response (NCR)
	tokenPolls    = 500   // Bytes clocked while waiting for a data token
	busyPolls     = 65536 // Bytes clocked while waiting for busy to clear
	powerUpClocks = 10    // Fill bytes (80 clocks) before CMD0, CS released
)
