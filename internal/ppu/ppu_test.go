package ppu

import (
	"bytes"
	"testing"

	"nescore/internal/cartridge"
)

func buildMapperZeroCart(t *testing.T, verticalMirror bool) *cartridge.Cartridge {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("NES\x1A")
	buf.WriteByte(1) // 1x16KB PRG
	buf.WriteByte(1) // 1x8KB CHR
	flags6 := uint8(0)
	if verticalMirror {
		flags6 |= 0x01
	}
	buf.WriteByte(flags6)
	buf.WriteByte(0)
	buf.Write(make([]byte, 8))
	buf.Write(make([]byte, 16384))
	buf.Write(make([]byte, 8192))

	cart, err := cartridge.LoadFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("building test cartridge: %v", err)
	}
	return cart
}

func newTestPPU(t *testing.T, verticalMirror bool) *PPU {
	p := New()
	p.SetCartridge(buildMapperZeroCart(t, verticalMirror))
	return p
}

func (p *PPU) writeAddr(hi, lo uint8) {
	p.WriteRegister(6, hi)
	p.WriteRegister(6, lo)
}

func TestPPUDATAIncrementBy1(t *testing.T) {
	p := newTestPPU(t, false)
	p.WriteRegister(0, 0x00) // PPUCTRL: +1 increment
	p.writeAddr(0x3F, 0x00)
	p.WriteRegister(7, 0x11)

	if got := p.v & 0x3FFF; got != 0x3F01 {
		t.Errorf("v after PPUDATA write = %#04x, want 0x3F01", got)
	}
}

func TestPPUDATAIncrementBy32(t *testing.T) {
	p := newTestPPU(t, false)
	p.WriteRegister(0, 0x04) // PPUCTRL: +32 increment
	p.writeAddr(0x20, 0x00)
	p.WriteRegister(7, 0x11)

	if got := p.v & 0x3FFF; got != 0x2020 {
		t.Errorf("v after PPUDATA write = %#04x, want 0x2020", got)
	}
}

func TestHorizontalMirroring(t *testing.T) {
	p := newTestPPU(t, false)

	p.writeAddr(0x20, 0x00)
	p.WriteRegister(7, 0x12)
	if got := p.nametable[p.mirrorNametableAddr(0x2400)]; got != 0x12 {
		t.Errorf("nametable at mirrored $2400 = %#02x, want 0x12", got)
	}

	p.writeAddr(0x2C, 0x10)
	p.WriteRegister(7, 0x34)
	if got := p.nametable[p.mirrorNametableAddr(0x2810)]; got != 0x34 {
		t.Errorf("nametable at mirrored $2810 = %#02x, want 0x34", got)
	}
}

func TestVerticalMirroring(t *testing.T) {
	p := newTestPPU(t, true)

	p.writeAddr(0x20, 0x00)
	p.WriteRegister(7, 0x56)
	if got := p.nametable[p.mirrorNametableAddr(0x2800)]; got != 0x56 {
		t.Errorf("nametable at mirrored $2800 = %#02x, want 0x56", got)
	}

	p.writeAddr(0x24, 0x10)
	p.WriteRegister(7, 0x78)
	if got := p.nametable[p.mirrorNametableAddr(0x2C10)]; got != 0x78 {
		t.Errorf("nametable at mirrored $2C10 = %#02x, want 0x78", got)
	}
}

func TestPaletteMirroring(t *testing.T) {
	p := newTestPPU(t, false)

	mirrors := []struct{ a, b uint16 }{
		{0x3F10, 0x3F00}, {0x3F14, 0x3F04}, {0x3F18, 0x3F08}, {0x3F1C, 0x3F0C},
	}
	for _, m := range mirrors {
		p.writeAddr(uint8(m.a>>8), uint8(m.a))
		p.WriteRegister(7, 0x2A)
		if got := p.palette[paletteIndex(m.b)]; got != 0x2A {
			t.Errorf("write to %#04x not observed at %#04x: got %#02x", m.a, m.b, got)
		}

		p.writeAddr(uint8(m.b>>8), uint8(m.b))
		p.WriteRegister(7, 0x15)
		if got := p.palette[paletteIndex(m.a)]; got != 0x15 {
			t.Errorf("write to %#04x not observed at %#04x: got %#02x", m.b, m.a, got)
		}
	}
}

func TestPPUSTATUSReadClearsVBlankAndToggle(t *testing.T) {
	p := newTestPPU(t, false)
	p.status |= statusVBlank
	p.w = true

	first := p.ReadRegister(2)
	if first&statusVBlank == 0 {
		t.Error("first PPUSTATUS read should report VBlank set")
	}
	if p.w {
		t.Error("PPUSTATUS read should clear write toggle")
	}

	second := p.ReadRegister(2)
	if second&statusVBlank != 0 {
		t.Error("second immediate PPUSTATUS read should report VBlank clear")
	}
}

func TestPPUDATAWriteThenReadRoundTrip(t *testing.T) {
	p := newTestPPU(t, false)
	p.WriteRegister(0, 0x00)

	values := []uint8{0x10, 0x20, 0x30, 0x40}
	p.writeAddr(0x20, 0x00)
	for _, v := range values {
		p.WriteRegister(7, v)
	}

	p.writeAddr(0x20, 0x00)
	p.ReadRegister(7) // priming read fills the buffer with the first byte
	for _, want := range values {
		got := p.ReadRegister(7)
		if got != want {
			t.Errorf("buffered PPUDATA read = %#02x, want %#02x", got, want)
		}
	}
}

func TestNMIFiresAtScanline241Dot1(t *testing.T) {
	p := newTestPPU(t, false)
	fired := false
	p.SetNMICallback(func() { fired = true })
	p.WriteRegister(0, ctrlNMIEnable)

	p.scanline, p.dot = 241, 1
	p.Tick()

	if !fired {
		t.Error("NMI callback not invoked at scanline 241 dot 1")
	}
	if p.status&statusVBlank == 0 {
		t.Error("VBlank flag not set at scanline 241 dot 1")
	}
}

func TestOAMDMAWriteAdvancesAddress(t *testing.T) {
	p := newTestPPU(t, false)
	p.WriteRegister(3, 0x10) // OAMADDR
	p.OAMDMAWrite(0xAB)
	if p.oam[0x10] != 0xAB {
		t.Errorf("oam[0x10] = %#02x, want 0xAB", p.oam[0x10])
	}
	if p.oamAddr != 0x11 {
		t.Errorf("oamAddr after DMA write = %#02x, want 0x11", p.oamAddr)
	}
}
