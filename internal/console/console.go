// Package console assembles the CPU, PPU, APU, cartridge and controller
// ports behind the bus into the single-threaded, synchronous facade a host
// application drives: insert a cartridge, feed button state, pump frames,
// and pull video/audio out the other end. No goroutines live in here —
// pacing and backpressure are the host's problem (see the concurrency notes
// in this repository's design ledger).
package console

import (
	"bytes"

	"nescore/internal/bus"
	"nescore/internal/cartridge"
	"nescore/internal/input"
)

// defaultCPUCyclesPerFrame is the NTSC approximation used unless the host
// overrides it: 89,342 PPU dots per frame / 3.
const defaultCPUCyclesPerFrame = 29780

// Console is the externally-facing emulation core.
type Console struct {
	bus *bus.Bus

	cpuCyclesPerFrame uint32
}

// New returns a Console with every component constructed but no cartridge
// inserted. Call InsertCartridge before NextFrame.
func New() *Console {
	return &Console{
		bus:               bus.New(),
		cpuCyclesPerFrame: defaultCPUCyclesPerFrame,
	}
}

// InsertCartridge parses an iNES image and attaches it to the bus, resetting
// every component to its power-up state. On a parse/load error the Console
// is left exactly as it was before the call — no partial cartridge is ever
// wired in.
func (c *Console) InsertCartridge(data []byte) error {
	cart, err := cartridge.LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.bus.SetCartridge(cart)
	c.bus.Reset()
	return nil
}

// SetCPUCyclesPerFrame overrides the number of CPU cycles NextFrame runs
// before returning. Hosts that need tighter NTSC sync (29780.67 average)
// can alternate this across frames; the default is the plain 29780 floor.
func (c *Console) SetCPUCyclesPerFrame(n uint32) {
	c.cpuCyclesPerFrame = n
}

// PressButton marks a button held down on the given controller port (1 or
// 2). Any value other than 2 selects port 1.
func (c *Console) PressButton(port int, b input.Button) {
	c.port(port).SetButton(b, true)
}

// ReleaseButton marks a button released on the given controller port.
func (c *Console) ReleaseButton(port int, b input.Button) {
	c.port(port).SetButton(b, false)
}

func (c *Console) port(port int) *input.Port {
	if port == 2 {
		return c.bus.ControllerPort.Port2
	}
	return c.bus.ControllerPort.Port1
}

// NextFrame runs CPU instructions until the per-frame cycle budget is
// exhausted: each instruction's reported cycle count (which already
// accounts for any OAM DMA stall and interrupt servicing) is subtracted
// from the remaining budget, so a frame may run a handful of cycles past
// zero rather than stopping mid-instruction.
func (c *Console) NextFrame() {
	remaining := int64(c.cpuCyclesPerFrame)
	for remaining > 0 {
		remaining -= int64(c.bus.CPU.StepInstruction())
	}
	c.bus.PPU.ConsumeFrameComplete()
}

// FrameBuffer returns the current PPU frame buffer: 256x240 packed 0xRRGGBB
// pixels, row-major. The returned pointer aliases the PPU's internal
// buffer and is overwritten by the next NextFrame call.
func (c *Console) FrameBuffer() *[256 * 240]uint32 {
	return c.bus.PPU.FrameBuffer()
}

// DrainAPUSamples copies up to len(dst) pending audio samples (mono, float
// range [-1, 1]) into dst in FIFO order and returns the count copied.
func (c *Console) DrainAPUSamples(dst []float32) int {
	return c.bus.APU.DrainSamples(dst)
}
