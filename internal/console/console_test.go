package console

import (
	"bytes"
	"errors"
	"testing"

	"nescore/internal/cartridge"
	"nescore/internal/input"
)

func buildMapperZeroROM(t *testing.T) []byte {
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
	return buf.Bytes()
}

func TestInsertCartridgeRejectsTruncatedROMWithoutMutatingState(t *testing.T) {
	c := New()
	err := c.InsertCartridge([]byte("NES\x1A\x01\x01\x00\x00"))
	if err == nil {
		t.Fatal("expected an error for a truncated ROM")
	}
	var loadErr *cartridge.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v (%T), want *cartridge.LoadError", err, err)
	}
	if loadErr.Kind != cartridge.ErrTruncated {
		t.Errorf("error kind = %v, want ErrTruncated", loadErr.Kind)
	}

	// A subsequent valid insert must still succeed: the failed attempt left
	// nothing half-wired behind.
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge after a prior failure: %v", err)
	}
}

func TestNextFrameRunsUntilCycleBudgetExhausted(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	c.SetCPUCyclesPerFrame(100)

	before := c.bus.CPU.Cycles()
	c.NextFrame()
	spent := c.bus.CPU.Cycles() - before
	if spent < 100 {
		t.Errorf("CPU cycles spent in frame = %d, want at least 100", spent)
	}
}

func TestNextFrameClearsFrameCompleteLatch(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	c.NextFrame()
	if c.bus.PPU.FrameComplete() {
		t.Error("NextFrame should consume the frame-complete latch before returning")
	}
}

func TestFrameBufferReflectsPPUBuffer(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	fb := c.FrameBuffer()
	if len(fb) != 256*240 {
		t.Fatalf("frame buffer length = %d, want %d", len(fb), 256*240)
	}
}

func TestPressButtonReachesCorrectPortThroughStrobe(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	c.PressButton(1, input.ButtonA)
	c.PressButton(2, input.ButtonStart)

	c.bus.Write(0x4016, 1)
	c.bus.Write(0x4016, 0)

	if got := c.bus.Read(0x4016); got != 1 {
		t.Errorf("port1 first serial bit (A) = %d, want 1", got)
	}
	// Port 2 shifts out A, B, Select first; ButtonStart is index 3.
	for i := 0; i < 3; i++ {
		c.bus.Read(0x4017)
	}
	if got := c.bus.Read(0x4017); got != 1 {
		t.Errorf("port2 4th serial bit (Start) = %d, want 1", got)
	}
}

func TestReleaseButtonClearsState(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	c.PressButton(1, input.ButtonA)
	c.ReleaseButton(1, input.ButtonA)

	c.bus.Write(0x4016, 1)
	c.bus.Write(0x4016, 0)
	if got := c.bus.Read(0x4016); got != 0 {
		t.Errorf("port1 first serial bit (A) after release = %d, want 0", got)
	}
}

func TestDrainAPUSamplesDelegatesToAPU(t *testing.T) {
	c := New()
	if err := c.InsertCartridge(buildMapperZeroROM(t)); err != nil {
		t.Fatalf("InsertCartridge: %v", err)
	}
	c.SetCPUCyclesPerFrame(29780)
	c.NextFrame()

	dst := make([]float32, 4096)
	n := c.DrainAPUSamples(dst)
	if n < 700 || n > 760 {
		t.Errorf("samples drained after one frame = %d, want ~735", n)
	}
}
