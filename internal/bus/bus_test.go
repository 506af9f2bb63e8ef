package bus

import (
	"bytes"
	"testing"

	"nescore/internal/cartridge"
	"nescore/internal/input"
)

func buildMapperZeroCart(t *testing.T) *cartridge.Cartridge {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("NES\x1A")
	buf.WriteByte(1) // 1x16KB PRG
	buf.WriteByte(1) // 1x8KB CHR
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.Write(make([]byte, 8))
	buf.Write(make([]byte, 16384))
	buf.Write(make([]byte, 8192))

	cart, err := cartridge.LoadFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("building mapper-0 test cartridge: %v", err)
	}
	return cart
}

// buildMMC1ResetVectorCart mirrors end-to-end scenario 5 from the spec: 2x16KB
// PRG, bank0 filled $A0, bank1 filled $B0, reset vector $8000 in the
// always-fixed last bank. The first few bytes of bank0 carry a tiny program
// that shifts the value $01 (LSB first) into $E000 across five STA writes.
func buildMMC1ResetVectorCart(t *testing.T) *cartridge.Cartridge {
	t.Helper()
	prg := make([]byte, 32768)
	for i := 0; i < 16384; i++ {
		prg[i] = 0xA0
	}
	for i := 16384; i < 32768; i++ {
		prg[i] = 0xB0
	}

	program := []byte{
		0xA9, 0x01, // LDA #$01
		0x8D, 0x00, 0xE0, // STA $E000  (bit0 = 1)
		0xA9, 0x00, // LDA #$00
		0x8D, 0x00, 0xE0, // STA $E000  (bit1 = 0)
		0x8D, 0x00, 0xE0, // STA $E000  (bit2 = 0)
		0x8D, 0x00, 0xE0, // STA $E000  (bit3 = 0)
		0x8D, 0x00, 0xE0, // STA $E000  (bit4 = 0, fifth write commits)
	}
	copy(prg[:len(program)], program)

	// Reset vector at $FFFC/$FFFD, which lives at offset $3FFC/$3FFD of the
	// fixed last bank, pointing at $8000.
	prg[16384+0x3FFC] = 0x00
	prg[16384+0x3FFD] = 0x80

	var buf bytes.Buffer
	buf.WriteString("NES\x1A")
	buf.WriteByte(2)    // 2x16KB PRG
	buf.WriteByte(0)    // CHR RAM
	buf.WriteByte(0x10) // flags6: mapper low nibble = 1 (MMC1), horizontal mirroring
	buf.WriteByte(0)    // flags7: mapper high nibble = 0
	buf.Write(make([]byte, 8))
	buf.Write(prg)

	cart, err := cartridge.LoadFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("building MMC1 test cartridge: %v", err)
	}
	return cart
}

func TestWorkRAMMirroredThroughBus(t *testing.T) {
	b := New()
	b.Write(0x0010, 0x42)
	if got := b.Read(0x0810); got != 0x42 {
		t.Errorf("read at mirrored $0810 = %#02x, want 0x42", got)
	}
	if got := b.Read(0x1810); got != 0x42 {
		t.Errorf("read at mirrored $1810 = %#02x, want 0x42", got)
	}
}

func TestPPURegistersMirrorEvery8Bytes(t *testing.T) {
	b := New()
	b.Write(0x2003, 0x10) // OAMADDR = $10
	b.Write(0x200C, 0xAB) // OAMDATA alias ($200C & 7 == 4): write, auto-increments OAMADDR
	b.Write(0x200B, 0x10) // OAMADDR alias ($200B & 7 == 3): reset OAMADDR back to $10

	if got := b.Read(0x2004); got != 0xAB {
		t.Errorf("OAM byte written through mirrored register = %#02x, want 0xAB", got)
	}
}

func TestOpenBusRangeReadsZero(t *testing.T) {
	b := New()
	for _, addr := range []uint16{0x4000, 0x4008, 0x4013, 0x4018, 0x401F} {
		if got := b.Read(addr); got != 0 {
			t.Errorf("Read(%#04x) = %#02x, want 0 (open bus)", addr, got)
		}
	}
}

func TestControllerStrobeThroughBus(t *testing.T) {
	b := New()
	b.ControllerPort.Port1.SetButton(input.ButtonA, true)
	b.ControllerPort.Port1.SetButton(input.ButtonStart, true)

	b.Write(0x4016, 1)
	b.Write(0x4016, 0)

	want := []uint8{1, 0, 0, 1, 0, 0, 0, 0}
	for i, w := range want {
		if got := b.Read(0x4016); got != w {
			t.Errorf("serial read %d = %d, want %d", i, got, w)
		}
	}
	if got := b.Read(0x4016); got != 1 {
		t.Errorf("9th serial read = %d, want 1", got)
	}
}

func TestOAMDMACopiesPageAndStallsCPU513Cycles(t *testing.T) {
	b := New()
	b.SetCartridge(buildMapperZeroCart(t))
	b.Reset()

	for i := 0; i < 256; i++ {
		b.WorkRAM.Write(0x0300+uint16(i), uint8(i))
	}
	b.Write(0x2003, 0x00) // OAMADDR = 0
	b.Write(0x4014, 0x03) // DMA from page $03

	var cyclesSpent uint64
	for i := 0; i < 513; i++ {
		cyclesSpent += b.CPU.StepInstruction()
	}
	if cyclesSpent != 513 {
		t.Errorf("CPU stall cycles burned = %d, want exactly 513", cyclesSpent)
	}

	b.Write(0x2003, 0x00)
	for i := 0; i < 256; i++ {
		b.Write(0x2003, uint8(i)) // $2004 reads do not advance OAMADDR
		if got := b.Read(0x2004); got != uint8(i) {
			t.Errorf("OAM byte %d = %#02x, want %#02x", i, got, uint8(i))
			break
		}
	}
}

func TestOnCPUCycleFansOutThreeDotsPerCycle(t *testing.T) {
	// Deliberately does not call b.Reset(): CPU.Reset's internal/read cycles
	// would themselves fan out through OnCPUCycle and throw off the exact
	// dot count this test depends on. A fresh Bus already has its PPU at
	// scanline -1, dot 0 with nothing having ticked it yet.
	b := New()
	b.SetCartridge(buildMapperZeroCart(t))

	for i := 0; i < 29780; i++ {
		b.OnCPUCycle()
	}
	if b.PPU.FrameComplete() {
		t.Fatal("frame reported complete after only 29780 CPU cycles (89340 dots, one short of 89342)")
	}
	b.OnCPUCycle()
	if !b.PPU.FrameComplete() {
		t.Error("frame not complete after 29781 CPU cycles (89343 dots, covering the 89342-dot frame)")
	}
}

func TestMMC1BankSwitchThroughCPUAndBus(t *testing.T) {
	b := New()
	b.SetCartridge(buildMMC1ResetVectorCart(t))
	b.Reset()

	if got := b.Read(0xFFFC); got != 0x00 {
		t.Fatalf("reset vector low byte = %#02x, want 0x00", got)
	}
	// Bank0 is uniformly $A0 past the tiny program the CPU is about to run;
	// the program itself occupies the first few bytes the reset vector
	// points at.
	if got := b.Read(0x8000 + 0x1000); got != 0xA0 {
		t.Fatalf("bank0 before switch = %#02x, want 0xA0", got)
	}

	for i := 0; i < 7; i++ {
		b.CPU.StepInstruction()
	}

	if got := b.Read(0x8000); got != 0xB0 {
		t.Errorf("$8000 after MMC1 bank switch = %#02x, want 0xB0", got)
	}
	if got := b.Read(0xC000); got != 0xB0 {
		t.Errorf("$C000 after MMC1 bank switch = %#02x, want 0xB0", got)
	}
}
