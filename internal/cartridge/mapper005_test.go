package cartridge

import (
	"bytes"
	"testing"
)

// fillMMC5Banks stamps each 8KB PRG bank with its own index so reads can
// identify which bank is currently mapped into a given CPU address.
func fillMMC5Banks(prg []uint8) {
	for bank := 0; bank*0x2000 < len(prg); bank++ {
		for i := 0; i < 0x2000; i++ {
			prg[bank*0x2000+i] = uint8(bank)
		}
	}
}

func loadMMC5(t *testing.T, prg16kBanks int) (*Cartridge, *Mapper005) {
	t.Helper()
	data := buildINES(5, false, prg16kBanks, 1, fillMMC5Banks)
	cart, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cart, cart.mapper.(*Mapper005)
}

func TestMapper005PRGMode3FourIndependentBanks(t *testing.T) {
	cart, _ := loadMMC5(t, 8) // 128KB = 16 8KB banks
	cart.WritePRG(0x5100, 3)
	cart.WritePRG(0x5114, 2)
	cart.WritePRG(0x5115, 5)
	cart.WritePRG(0x5116, 9)
	cart.WritePRG(0x5117, 15)

	cases := []struct {
		addr uint16
		want uint8
	}{
		{0x8000, 2},
		{0x9FFF, 2},
		{0xA000, 5},
		{0xBFFF, 5},
		{0xC000, 9},
		{0xDFFF, 9},
		{0xE000, 15},
		{0xFFFF, 15},
	}
	for _, c := range cases {
		if got := cart.ReadPRG(c.addr); got != c.want {
			t.Errorf("mode 3: ReadPRG(%#04x) = %d, want bank %d", c.addr, got, c.want)
		}
	}
}

func TestMapper005PRGMode0Single32KBBank(t *testing.T) {
	cart, _ := loadMMC5(t, 8)
	cart.WritePRG(0x5100, 0)
	// Mode 0 selects a 32KB bank in 8KB-register units; low 2 bits are
	// forced to the 32KB window's alignment, so writing 6 selects the
	// 32KB region starting at 8KB-bank 4.
	cart.WritePRG(0x5117, 6)

	cases := []struct {
		addr uint16
		want uint8
	}{
		{0x8000, 4},
		{0xA000, 5},
		{0xC000, 6},
		{0xE000, 7},
	}
	for _, c := range cases {
		if got := cart.ReadPRG(c.addr); got != c.want {
			t.Errorf("mode 0: ReadPRG(%#04x) = %d, want bank %d", c.addr, got, c.want)
		}
	}
}

func TestMapper005PRGMode1TwoSixteenKBBanks(t *testing.T) {
	cart, _ := loadMMC5(t, 8)
	cart.WritePRG(0x5100, 1)
	cart.WritePRG(0x5115, 3) // aligned down to bank 2 for the 16KB window
	cart.WritePRG(0x5117, 9) // aligned down to bank 8

	cases := []struct {
		addr uint16
		want uint8
	}{
		{0x8000, 2},
		{0x9FFF, 2},
		{0xA000, 3},
		{0xBFFF, 3},
		{0xC000, 8},
		{0xFFFF, 9},
	}
	for _, c := range cases {
		if got := cart.ReadPRG(c.addr); got != c.want {
			t.Errorf("mode 1: ReadPRG(%#04x) = %d, want bank %d", c.addr, got, c.want)
		}
	}
}

func TestMapper005PRGMode2HybridBanks(t *testing.T) {
	cart, _ := loadMMC5(t, 8)
	cart.WritePRG(0x5100, 2)
	cart.WritePRG(0x5115, 5) // aligned down to bank 4 for the 16KB window
	cart.WritePRG(0x5116, 11)
	cart.WritePRG(0x5117, 13)

	cases := []struct {
		addr uint16
		want uint8
	}{
		{0x8000, 4},
		{0xA000, 5},
		{0xC000, 11},
		{0xE000, 13},
	}
	for _, c := range cases {
		if got := cart.ReadPRG(c.addr); got != c.want {
			t.Errorf("mode 2: ReadPRG(%#04x) = %d, want bank %d", c.addr, got, c.want)
		}
	}
}

func TestMapper005PRGRAMWindowUsesDedicatedBankRegister(t *testing.T) {
	cart, m := loadMMC5(t, 8)
	cart.WritePRG(0x5113, 1) // select RAM bank 1 of the $6000-7FFF window
	cart.WritePRG(0x6000, 0xAB)

	if got := cart.ReadPRG(0x6000); got != 0xAB {
		t.Fatalf("readback at RAM bank 1 = %#02x, want $AB", got)
	}

	cart.WritePRG(0x5113, 0) // switch to RAM bank 0
	if got := cart.ReadPRG(0x6000); got == 0xAB {
		t.Fatalf("RAM bank 0 should be independent of bank 1's contents")
	}

	// $5113 must never feed the $8000+ ROM windows.
	cart.WritePRG(0x5100, 3)
	cart.WritePRG(0x5114, 7)
	if got := cart.ReadPRG(0x8000); got != 7 {
		t.Errorf("$8000 fed by $5113 instead of $5114: ReadPRG(0x8000) = %d, want bank 7", got)
	}
	_ = m
}

func TestMapper005StartVBlankClearsInFrame(t *testing.T) {
	_, m := loadMMC5(t, 8)
	m.NotifyScanline(0)
	if !m.inFrame {
		t.Fatal("expected inFrame after scanline 0")
	}
	m.StartVBlank()
	if m.inFrame {
		t.Error("StartVBlank should clear inFrame")
	}
}
