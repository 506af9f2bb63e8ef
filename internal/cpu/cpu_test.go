package cpu

import "testing"

// testBus is a flat 64 KiB RAM bus satisfying the Bus interface, used to
// exercise the CPU in isolation from the PPU/APU/cartridge fan-out.
type testBus struct {
	ram   [0x10000]uint8
	ticks int
}

func newTestBus() *testBus { return &testBus{} }

func (b *testBus) Read(addr uint16) uint8         { return b.ram[addr] }
func (b *testBus) Write(addr uint16, value uint8) { b.ram[addr] = value }
func (b *testBus) OnCPUCycle()                    { b.ticks++ }

func (b *testBus) loadAt(addr uint16, program []uint8) {
	copy(b.ram[addr:], program)
}

func (b *testBus) setResetVector(addr uint16) {
	b.ram[0xFFFC] = uint8(addr)
	b.ram[0xFFFD] = uint8(addr >> 8)
}

func TestCPUSelfTestProgram(t *testing.T) {
	bus := newTestBus()
	program := []uint8{
		0xA2, 0x10, // LDX #$10
		0x9A,       // TXS
		0xA9, 0x05, // LDA #$05
		0x85, 0x10, // STA $10
		0xA9, 0x03, // LDA #$03
		0x65, 0x10, // ADC $10
		0x85, 0x11, // STA $11
		0xE8,       // INX
		0x86, 0x12, // STX $12
		0x00, // BRK
	}
	bus.loadAt(0x0000, program)
	bus.setResetVector(0x0000)

	c := New(bus)
	c.Reset()

	for i := 0; i < 10; i++ {
		c.StepInstruction()
	}

	if got := bus.ram[0x10]; got != 0x05 {
		t.Errorf("RAM[$10] = %#02x, want 0x05", got)
	}
	if got := bus.ram[0x11]; got != 0x08 {
		t.Errorf("RAM[$11] = %#02x, want 0x08", got)
	}
	if got := bus.ram[0x12]; got != 0x11 {
		t.Errorf("RAM[$12] = %#02x, want 0x11", got)
	}
}

func TestResetVectorLoad(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x8000)
	c := New(bus)
	c.Reset()

	if c.PC != 0x8000 {
		t.Errorf("PC after reset = %#04x, want 0x8000", c.PC)
	}
	if c.SP != 0xFD {
		t.Errorf("SP after reset = %#02x, want 0xFD", c.SP)
	}
	if !c.I {
		t.Errorf("I flag after reset = false, want true")
	}
}

func TestLDAAbsoluteXPageCrossCostsExtraCycle(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	// LDA $10FF,X with X=1 crosses from page $10 to $11.
	bus.loadAt(0x0000, []uint8{0xA2, 0x01, 0xBD, 0xFF, 0x10})
	bus.ram[0x1100] = 0x7E

	c := New(bus)
	c.Reset()
	c.StepInstruction() // LDX #$01
	n := c.StepInstruction()

	if n != 5 {
		t.Errorf("LDA abs,X page-crossing cycle count = %d, want 5", n)
	}
	if c.A != 0x7E {
		t.Errorf("A = %#02x, want 0x7E", c.A)
	}
}

func TestLDAAbsoluteXSamePageCostsFourCycles(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	// LDA $1000,X with X=1 stays on the same page.
	bus.loadAt(0x0000, []uint8{0xA2, 0x01, 0xBD, 0x00, 0x10})
	bus.ram[0x1001] = 0x11

	c := New(bus)
	c.Reset()
	c.StepInstruction() // LDX #$01
	n := c.StepInstruction()

	if n != 4 {
		t.Errorf("LDA abs,X same-page cycle count = %d, want 4", n)
	}
}

func TestSTAAbsoluteXAlwaysPaysPageCrossCost(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	// STA $1000,X with X=1: write-category never gets the page-cross discount.
	bus.loadAt(0x0000, []uint8{0xA2, 0x01, 0xA9, 0x42, 0x9D, 0x00, 0x10})

	c := New(bus)
	c.Reset()
	c.StepInstruction() // LDX #$01
	c.StepInstruction() // LDA #$42
	n := c.StepInstruction()

	if n != 5 {
		t.Errorf("STA abs,X cycle count = %d, want 5 (always max cost)", n)
	}
	if got := bus.ram[0x1001]; got != 0x42 {
		t.Errorf("RAM[$1001] = %#02x, want 0x42", got)
	}
}

func TestINCAbsoluteXAlwaysCostsSevenCycles(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{0xA2, 0x01, 0xFE, 0x00, 0x10})
	bus.ram[0x1001] = 0x09

	c := New(bus)
	c.Reset()
	c.StepInstruction() // LDX #$01
	n := c.StepInstruction()

	if n != 7 {
		t.Errorf("INC abs,X cycle count = %d, want 7", n)
	}
	if got := bus.ram[0x1001]; got != 0x0A {
		t.Errorf("RAM[$1001] = %#02x, want 0x0A", got)
	}
}

func TestBranchCycleCounts(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{
		0xA9, 0x01, // LDA #$01
		0xC9, 0x01, // CMP #$01 (sets Z)
		0xF0, 0x05, // BEQ +5 (taken, same page)
	})
	c := New(bus)
	c.Reset()
	c.StepInstruction()
	c.StepInstruction()
	n := c.StepInstruction()
	if n != 3 {
		t.Errorf("BEQ taken same-page cycle count = %d, want 3", n)
	}

	bus2 := newTestBus()
	bus2.setResetVector(0x00F0)
	bus2.loadAt(0x00F0, []uint8{
		0xA9, 0x01, // LDA #$01
		0xC9, 0x02, // CMP #$02 (Z clear)
		0xF0, 0x05, // BEQ +5 (not taken)
	})
	c2 := New(bus2)
	c2.Reset()
	c2.StepInstruction()
	c2.StepInstruction()
	n2 := c2.StepInstruction()
	if n2 != 2 {
		t.Errorf("BEQ not-taken cycle count = %d, want 2", n2)
	}
}

func TestBranchCrossingPageCostsFourCycles(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x00FC)
	// BEQ with offset forcing PC across a page boundary.
	bus.loadAt(0x00FC, []uint8{0xF0, 0x10}) // BEQ +16, from PC=$00FE -> $010E

	c := New(bus)
	c.Reset()
	c.Z = true // force branch taken without consuming an instruction
	n := c.StepInstruction()
	if n != 4 {
		t.Errorf("branch crossing page cycle count = %d, want 4", n)
	}
	if c.PC != 0x010E {
		t.Errorf("PC after branch = %#04x, want 0x010E", c.PC)
	}
}

func TestJSRRTSRoundTrip(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{
		0x20, 0x05, 0x00, // JSR $0005
		0xEA,       // NOP (return lands here, not executed in this test)
		0xEA,       // padding
		0x60,       // RTS (subroutine body)
	})

	c := New(bus)
	c.Reset()
	n := c.StepInstruction() // JSR
	if n != 6 {
		t.Errorf("JSR cycle count = %d, want 6", n)
	}
	if c.PC != 0x0005 {
		t.Errorf("PC after JSR = %#04x, want 0x0005", c.PC)
	}

	n = c.StepInstruction() // RTS
	if n != 6 {
		t.Errorf("RTS cycle count = %d, want 6", n)
	}
	if c.PC != 0x0003 {
		t.Errorf("PC after RTS = %#04x, want 0x0003 (return address)", c.PC)
	}
}

func TestBRKPushesStatusWithBreakFlagSet(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.ram[0xFFFE] = 0x00
	bus.ram[0xFFFF] = 0x90
	bus.loadAt(0x0000, []uint8{0x00}) // BRK

	c := New(bus)
	c.Reset()
	n := c.StepInstruction()

	if n != 7 {
		t.Errorf("BRK cycle count = %d, want 7", n)
	}
	if c.PC != 0x9000 {
		t.Errorf("PC after BRK = %#04x, want 0x9000 (IRQ vector)", c.PC)
	}
	pushedStatus := bus.ram[stackBase+uint16(c.SP)+1]
	if pushedStatus&bFlagMask == 0 {
		t.Errorf("pushed status %#02x missing B flag", pushedStatus)
	}
}

func TestADCSetsCarryAndOverflow(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{
		0xA9, 0x7F, // LDA #$7F
		0x69, 0x01, // ADC #$01 -> overflow into negative, no carry
	})
	c := New(bus)
	c.Reset()
	c.StepInstruction()
	c.StepInstruction()

	if c.A != 0x80 {
		t.Errorf("A = %#02x, want 0x80", c.A)
	}
	if !c.V {
		t.Errorf("V flag not set on signed overflow")
	}
	if c.C {
		t.Errorf("C flag set unexpectedly")
	}
	if !c.N {
		t.Errorf("N flag not set for result 0x80")
	}
}

func TestSBCBorrowSemantics(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{
		0x38,       // SEC (no borrow going in)
		0xA9, 0x05, // LDA #$05
		0xE9, 0x01, // SBC #$01 -> 4, C stays set (no borrow)
	})
	c := New(bus)
	c.Reset()
	c.StepInstruction()
	c.StepInstruction()
	c.StepInstruction()

	if c.A != 0x04 {
		t.Errorf("A = %#02x, want 0x04", c.A)
	}
	if !c.C {
		t.Errorf("C flag clear, want set (no borrow occurred)")
	}
}

func TestOAMDMAStallBurnsDownOneCyclePerStep(t *testing.T) {
	bus := newTestBus()
	bus.setResetVector(0x0000)
	bus.loadAt(0x0000, []uint8{0xEA, 0xEA}) // NOP, NOP

	c := New(bus)
	c.Reset()
	c.AddStall(513)

	total := uint64(0)
	for i := 0; i < 513; i++ {
		total += c.StepInstruction()
	}
	if total != 513 {
		t.Errorf("cycles burned during stall = %d, want 513", total)
	}
	if c.PC != 0x0000 {
		t.Errorf("PC advanced during stall burn-down, PC = %#04x", c.PC)
	}

	n := c.StepInstruction() // first real instruction after stall drains
	if n != 2 {
		t.Errorf("first post-stall NOP cycle count = %d, want 2", n)
	}
	if c.PC != 0x0001 {
		t.Errorf("PC after post-stall NOP = %#04x, want 0x0001", c.PC)
	}
}
