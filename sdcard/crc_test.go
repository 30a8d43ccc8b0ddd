package sdcard

import "testing"

func TestCRC7CommandFrames(t *testing.T) {
	// Known frame CRCs from the card specification: the reset command
	// frame ends in 0x95 and the voltage-check frame in 0x87.
	tests := []struct {
		name  string
		frame [5]byte
		want  byte // full trailing byte, crc<<1|1
	}{
		{"reset", [5]byte{0x40, 0x00, 0x00, 0x00, 0x00}, 0x95},
		{"voltage check", [5]byte{0x48, 0x00, 0x00, 0x01, 0xAA}, 0x87},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC7(tt.frame[:])<<1 | 1; got != tt.want {
				t.Errorf("CRC7 frame byte = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func TestBuildFrameCRC(t *testing.T) {
	var frame [frameSize]byte
	buildFrame(&frame, cmdGoIdleState, 0)
	want := [frameSize]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95}
	if frame != want {
		t.Errorf("buildFrame = %#v, want %#v", frame, want)
	}
}

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"check string", []byte("123456789"), 0x31C3},
		{"empty", nil, 0x0000},
		{"zero sector", make([]byte, SectorSize), 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}
