package memory

import "testing"

func TestWorkRAMMirroring(t *testing.T) {
	ram := New()
	ram.Write(0x0010, 0x42)

	mirrors := []uint16{0x0010, 0x0810, 0x1010, 0x1810}
	for _, addr := range mirrors {
		if got := ram.Read(addr); got != 0x42 {
			t.Errorf("Read(%#04x) = %#02x, want 0x42", addr, got)
		}
	}
}

func TestWorkRAMReset(t *testing.T) {
	ram := New()
	ram.Write(0x0000, 0xFF)
	ram.Reset()

	if got := ram.Read(0x0000); got != 0 {
		t.Errorf("Read after Reset() = %#02x, want 0", got)
	}
}
