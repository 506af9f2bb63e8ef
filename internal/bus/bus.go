// Package bus implements the system bus mediating CPU, PPU, APU, cartridge
// and controller-port access: address decode, OAM DMA, and the per-CPU-cycle
// fan-out that keeps the PPU and APU in lockstep with the CPU.
package bus

import (
	"nescore/internal/apu"
	"nescore/internal/cartridge"
	"nescore/internal/cpu"
	"nescore/internal/input"
	"nescore/internal/memory"
	"nescore/internal/ppu"
)

// Bus owns every component directly: WorkRAM and the cartridge are not
// behind a shared Memory type, and the PPU/cartridge each own their own
// address space, so the teacher's bus+memory split collapses into this one
// mediator (see the packaging note in this repository's design notes).
type Bus struct {
	CPU            *cpu.CPU
	PPU            *ppu.PPU
	APU            *apu.APU
	WorkRAM        *memory.WorkRAM
	ControllerPort *input.ControllerPort

	cart *cartridge.Cartridge

	dmaActive bool
}

// New returns a Bus with every component constructed but no cartridge
// inserted; call SetCartridge before driving the CPU.
func New() *Bus {
	b := &Bus{
		PPU:            ppu.New(),
		APU:            apu.New(),
		WorkRAM:        memory.New(),
		ControllerPort: input.New(),
	}
	b.CPU = cpu.New(b)
	b.PPU.SetNMICallback(b.CPU.SetNMI)
	return b
}

// SetCartridge attaches a cartridge and wires it into the PPU's
// CHR/nametable access. It does not reset any component; Reset does that.
func (b *Bus) SetCartridge(cart *cartridge.Cartridge) {
	b.cart = cart
	b.PPU.SetCartridge(cart)
}

// Reset performs a system reset: every component returns to its power-up
// state and the CPU loads PC from the reset vector.
func (b *Bus) Reset() {
	b.WorkRAM.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.ControllerPort.Reset()
	b.dmaActive = false
	b.CPU.Reset()
}

// Read services a CPU memory read, decoding addr per the NES's fixed memory
// map: $0000-$1FFF mirrors WorkRAM, $2000-$3FFF mirrors the PPU register
// file every 8 bytes, $4015/$4016/$4017 are APU/controller special cases,
// the rest of the $4000-$401F I/O page is open bus (reads as 0), and
// $4020-$FFFF belongs to the cartridge.
func (b *Bus) Read(addr uint16) uint8 {
	switch {
	case addr < 0x2000:
		return b.WorkRAM.Read(addr)
	case addr < 0x4000:
		return b.PPU.ReadRegister(addr & 7)
	case addr == 0x4015:
		return b.APU.ReadStatus()
	case addr == 0x4016:
		return b.ControllerPort.ReadPort1()
	case addr == 0x4017:
		return b.ControllerPort.ReadPort2()
	case addr < 0x4020:
		return 0
	default:
		return b.readCartridge(addr)
	}
}

// readCartridge routes $4020-$FFFF reads to the mapper, special-casing the
// handful of mappers (MMC5) whose control registers live below $6000 and
// are read back through a port separate from ordinary PRG data.
func (b *Bus) readCartridge(addr uint16) uint8 {
	if b.cart == nil {
		return 0
	}
	if addr < 0x6000 {
		if ra, ok := b.cart.Mapper().(cartridge.RegisterAccessor); ok {
			return ra.ReadRegister(addr)
		}
		return 0
	}
	return b.cart.ReadPRG(addr)
}

// Write services a CPU memory write, decoding addr the same way Read does,
// plus the $4000-$4013 APU register writes, $4014's OAM DMA trigger, and
// $4016's controller-strobe write (which reaches both ports).
func (b *Bus) Write(addr uint16, value uint8) {
	switch {
	case addr < 0x2000:
		b.WorkRAM.Write(addr, value)
	case addr < 0x4000:
		b.PPU.WriteRegister(addr&7, value)
	case addr == 0x4014:
		b.runOAMDMA(value)
	case addr == 0x4016:
		b.ControllerPort.WriteStrobe(value)
	case addr <= 0x4013, addr == 0x4015, addr == 0x4017:
		b.APU.WriteRegister(addr, value)
	case addr < 0x4020:
		// open bus: writes to the remaining $4018-$401F test registers are
		// ignored
	default:
		b.writeCartridge(addr, value)
	}
}

// writeCartridge passes the bus's own CPU cycle counter to mappers whose
// serial-port write timing depends on it (MMC1), and falls back to the
// ordinary write for everything else.
func (b *Bus) writeCartridge(addr uint16, value uint8) {
	if b.cart == nil {
		return
	}
	if cw, ok := b.cart.Mapper().(cartridge.CycleAwareWriter); ok {
		cw.WritePRGAt(addr, value, b.CPU.Cycles())
		return
	}
	b.cart.WritePRG(addr, value)
}

// runOAMDMA copies 256 bytes from page*$100 into OAM via the PPU's DMA
// entry point, then stalls the CPU for the 513 cycles real hardware spends
// on the transfer. The copy itself does not tick the PPU/APU directly; the
// stall cycles the CPU burns afterward are what the caller's OnCPUCycle
// fan-out advances.
func (b *Bus) runOAMDMA(page uint8) {
	base := uint16(page) << 8
	b.dmaActive = true
	for i := 0; i < 256; i++ {
		b.PPU.OAMDMAWrite(b.Read(base + uint16(i)))
	}
	b.dmaActive = false
	b.CPU.AddStall(513)
}

// OnCPUCycle is the cpu.Bus callback invoked once per elapsed CPU cycle: the
// PPU advances 3 dots and the APU advances 1 half-cycle per CPU cycle, then
// any cartridge IRQ source and the APU's frame IRQ are polled onto the CPU's
// level-triggered IRQ line.
func (b *Bus) OnCPUCycle() {
	b.PPU.Tick()
	b.PPU.Tick()
	b.PPU.Tick()
	b.APU.Step()
	b.CPU.SetIRQLine(b.irqAsserted())
}

func (b *Bus) irqAsserted() bool {
	if b.APU.IRQPending() {
		return true
	}
	if b.cart == nil {
		return false
	}
	if src, ok := b.cart.Mapper().(cartridge.IRQSource); ok {
		return src.IRQPending()
	}
	return false
}
