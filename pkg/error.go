package pkg

import "errors"

// Card protocol and storage-engine errors.
var (
	// ErrTimeout indicates no response or token arrived within the poll bound.
	ErrTimeout = errors.New("response timeout")

	// ErrBusyTimeout indicates the card held its busy signal past the poll bound.
	ErrBusyTimeout = errors.New("busy timeout")

	// ErrNoInit indicates the card did not enter the idle state after reset retries.
	ErrNoInit = errors.New("card failed software reset")

	// ErrBadCard indicates an unsupported or legacy card rejected voltage negotiation.
	ErrBadCard = errors.New("unsupported card")

	// ErrCRC indicates a data-block CRC mismatch on read.
	ErrCRC = errors.New("data CRC mismatch")

	// ErrCRCRejected indicates the card rejected written data with a CRC error.
	ErrCRCRejected = errors.New("write rejected: CRC error")

	// ErrWriteRejected indicates the card rejected written data with a write error.
	ErrWriteRejected = errors.New("write rejected: write error")

	// ErrCardStatus indicates the card reported error bits in a status query.
	ErrCardStatus = errors.New("card status error")

	// ErrCommandRejected indicates the card answered a command with error bits set.
	ErrCommandRejected = errors.New("command rejected")

	// ErrBadCSD indicates a malformed or unrecognized capacity register.
	ErrBadCSD = errors.New("malformed capacity register")

	// ErrNotReady indicates the card session is not operational.
	ErrNotReady = errors.New("card not ready")

	// ErrNotSupported indicates an unsupported operation (e.g. multi-sector write).
	ErrNotSupported = errors.New("not supported")

	// ErrUnaligned indicates a block request whose offset or length is not
	// sector-aligned.
	ErrUnaligned = errors.New("unaligned access")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrShortWrite indicates the filesystem accepted fewer bytes than requested.
	ErrShortWrite = errors.New("short write")

	// ErrOffline indicates the filesystem was taken offline mid-operation.
	ErrOffline = errors.New("filesystem offline")
)

// DataError classifies the error token a card substitutes for a data block
// when a read cannot be serviced. The token carries a 4-bit error-class
// field in its low nibble.
type DataError uint8

// Data error-token classes.
const (
	DataErrorUnspecified DataError = iota // Token with no class bits set
	DataErrorGeneric                      // General or unknown error
	DataErrorCC                           // Internal card controller error
	DataErrorECC                          // Card ECC failed
	DataErrorOutOfRange                   // Address out of range
)

// Error token class bits (low nibble of the token byte).
const (
	dataErrorBitGeneric    = 0x01
	dataErrorBitCC         = 0x02
	dataErrorBitECC        = 0x04
	dataErrorBitOutOfRange = 0x08
)

// DataErrorFromToken decodes an error token byte into its class.
// The most specific class bit wins when the card sets more than one.
func DataErrorFromToken(token byte) DataError {
	switch {
	case token&dataErrorBitOutOfRange != 0:
		return DataErrorOutOfRange
	case token&dataErrorBitECC != 0:
		return DataErrorECC
	case token&dataErrorBitCC != 0:
		return DataErrorCC
	case token&dataErrorBitGeneric != 0:
		return DataErrorGeneric
	default:
		return DataErrorUnspecified
	}
}

// String returns a string representation of the data error class.
func (e DataError) String() string {
	switch e {
	case DataErrorUnspecified:
		return "unspecified"
	case DataErrorGeneric:
		return "error"
	case DataErrorCC:
		return "cc error"
	case DataErrorECC:
		return "ecc failed"
	case DataErrorOutOfRange:
		return "out of range"
	default:
		return "unknown"
	}
}

// Error implements the error interface so a decoded token can be surfaced
// directly. The filesystem adapter treats every class uniformly as an I/O
// error while diagnostics retain the distinction.
func (e DataError) Error() string {
	return "card data error: " + e.String()
}
