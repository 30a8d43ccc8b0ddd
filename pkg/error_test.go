package pkg

import (
	"errors"
	"testing"
)

func TestDataError_String(t *testing.T) {
	tests := []struct {
		status DataError
		want   string
	}{
		{DataErrorUnspecified, "unspecified"},
		{DataErrorGeneric, "error"},
		{DataErrorCC, "cc error"},
		{DataErrorECC, "ecc failed"},
		{DataErrorOutOfRange, "out of range"},
		{DataError(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("DataError.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDataErrorFromToken(t *testing.T) {
	tests := []struct {
		name  string
		token byte
		want  DataError
	}{
		{"no bits", 0x00, DataErrorUnspecified},
		{"generic", 0x01, DataErrorGeneric},
		{"cc", 0x02, DataErrorCC},
		{"ecc", 0x04, DataErrorECC},
		{"out of range", 0x08, DataErrorOutOfRange},
		{"out of range wins", 0x09, DataErrorOutOfRange},
		{"ecc over generic", 0x05, DataErrorECC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DataErrorFromToken(tt.token); got != tt.want {
				t.Errorf("DataErrorFromToken(%#02x) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	errs := []error{
		ErrTimeout,
		ErrBusyTimeout,
		ErrNoInit,
		ErrBadCard,
		ErrCRC,
		ErrCRCRejected,
		ErrWriteRejected,
		ErrCardStatus,
		ErrCommandRejected,
		ErrBadCSD,
		ErrNotReady,
		ErrNotSupported,
		ErrUnaligned,
		ErrInvalidParameter,
		ErrShortWrite,
		ErrOffline,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrTimeout, "response timeout"},
		{ErrNoInit, "card failed software reset"},
		{ErrUnaligned, "unaligned access"},
		{ErrNotSupported, "not supported"},
		{DataErrorECC, "card data error: ecc failed"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("error.Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}
