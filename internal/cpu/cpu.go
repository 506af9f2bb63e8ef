// Package cpu implements the Ricoh 2A03 (6502 derivative) CPU core.
package cpu

// AddressingMode identifies how an opcode's operand address is computed.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

const (
	stackBase = 0x0100

	nFlagMask  = 0x80
	vFlagMask  = 0x40
	unusedMask = 0x20
	bFlagMask  = 0x10
	dFlagMask  = 0x08
	iFlagMask  = 0x04
	zFlagMask  = 0x02
	cFlagMask  = 0x01

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// Bus is the memory/clock interface the CPU drives. Read and Write each
// represent one bus access; OnCPUCycle is invoked once per elapsed CPU
// cycle (bus access or internal-only cycle) so the caller can fan the tick
// out to the PPU and APU.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)
	OnCPUCycle()
}

// CPU is the Ricoh 2A03 core: a 6502 with decimal mode disabled (no BCD
// arithmetic), the documented opcode set, plus the handful of
// undocumented opcodes real NES software depends on.
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16

	C, Z, I, D, B, V, N bool

	bus    Bus
	cycles uint64

	nmiPending bool
	irqLine    bool
	stall      int
}

// New returns a CPU driving the given bus. Call Reset before use.
func New(bus Bus) *CPU {
	return &CPU{bus: bus, SP: 0xFD}
}

// Cycles returns the CPU's monotonically increasing cycle counter.
func (c *CPU) Cycles() uint64 { return c.cycles }

// Reset performs the 6502 power-up/reset sequence: internal cycles
// followed by loading PC from the reset vector.
func (c *CPU) Reset() {
	c.A, c.X, c.Y = 0, 0, 0
	c.SP = 0xFD
	c.C, c.Z, c.V, c.N, c.D = false, false, false, false, false
	c.I = true
	c.B = true
	c.nmiPending = false
	c.irqLine = false
	c.stall = 0

	for i := 0; i < 5; i++ {
		c.internalCycle()
	}
	lo := uint16(c.read8(resetVector))
	hi := uint16(c.read8(resetVector + 1))
	c.PC = hi<<8 | lo
}

// SetNMI raises the NMI latch. The PPU calls this once per vblank edge.
func (c *CPU) SetNMI() { c.nmiPending = true }

// SetIRQLine sets the level-triggered IRQ line state (the bus drives it
// from the mapper and APU frame IRQ sources).
func (c *CPU) SetIRQLine(asserted bool) { c.irqLine = asserted }

// AddStall burns n extra CPU cycles before the next instruction, used by
// OAM DMA.
func (c *CPU) AddStall(n int) { c.stall += n }

func (c *CPU) read8(addr uint16) uint8 {
	v := c.bus.Read(addr)
	c.cycles++
	c.bus.OnCPUCycle()
	return v
}

func (c *CPU) write8(addr uint16, value uint8) {
	c.bus.Write(addr, value)
	c.cycles++
	c.bus.OnCPUCycle()
}

// internalCycle burns one CPU cycle with no addressable bus access. The
// PPU/APU still need to see the tick.
func (c *CPU) internalCycle() {
	c.cycles++
	c.bus.OnCPUCycle()
}

func (c *CPU) push(v uint8) {
	c.write8(stackBase+uint16(c.SP), v)
	c.SP--
}

func (c *CPU) pop() uint8 {
	c.SP++
	return c.read8(stackBase + uint16(c.SP))
}

func (c *CPU) pushWord(v uint16) {
	c.push(uint8(v >> 8))
	c.push(uint8(v))
}

func (c *CPU) statusByte(breakFlag bool) uint8 {
	var v uint8
	if c.N {
		v |= nFlagMask
	}
	if c.V {
		v |= vFlagMask
	}
	v |= unusedMask
	if breakFlag {
		v |= bFlagMask
	}
	if c.D {
		v |= dFlagMask
	}
	if c.I {
		v |= iFlagMask
	}
	if c.Z {
		v |= zFlagMask
	}
	if c.C {
		v |= cFlagMask
	}
	return v
}

func (c *CPU) setStatusByte(v uint8) {
	c.N = v&nFlagMask != 0
	c.V = v&vFlagMask != 0
	c.B = v&bFlagMask != 0
	c.D = v&dFlagMask != 0
	c.I = v&iFlagMask != 0
	c.Z = v&zFlagMask != 0
	c.C = v&cFlagMask != 0
}

func (c *CPU) setZN(v uint8) {
	c.Z = v == 0
	c.N = v&0x80 != 0
}

// StepInstruction polls pending interrupts, then executes one instruction,
// returning the number of CPU cycles it consumed.
func (c *CPU) StepInstruction() uint64 {
	before := c.cycles

	if c.stall > 0 {
		c.stall--
		c.internalCycle()
		return c.cycles - before
	}

	if c.nmiPending {
		c.nmiPending = false
		c.serviceInterrupt(nmiVector, false)
		return c.cycles - before
	}
	if c.irqLine && !c.I {
		c.serviceInterrupt(irqVector, false)
		return c.cycles - before
	}

	opcode := c.read8(c.PC)
	c.PC++
	c.execute(opcode)

	return c.cycles - before
}

func (c *CPU) serviceInterrupt(vector uint16, fromBRK bool) {
	c.internalCycle()
	c.internalCycle()
	c.pushWord(c.PC)
	c.push(c.statusByte(fromBRK))
	c.I = true
	lo := uint16(c.read8(vector))
	hi := uint16(c.read8(vector + 1))
	c.PC = hi<<8 | lo
}

func (c *CPU) fetch8() uint8 {
	v := c.read8(c.PC)
	c.PC++
	return v
}

// resolveRead evaluates mode for a read-category instruction (LDA, ADC,
// CMP, ...), consuming exactly the 6502's documented cycle count,
// including the page-cross read bonus for indexed absolute/(zp),Y modes.
func (c *CPU) resolveRead(mode AddressingMode) uint8 {
	switch mode {
	case Immediate:
		return c.fetch8()
	case ZeroPage:
		return c.read8(uint16(c.fetch8()))
	case ZeroPageX:
		base := c.fetch8()
		c.read8(uint16(base))
		return c.read8(uint16(uint8(base + c.X)))
	case ZeroPageY:
		base := c.fetch8()
		c.read8(uint16(base))
		return c.read8(uint16(uint8(base + c.Y)))
	case Absolute:
		addr := c.fetchAbs()
		return c.read8(addr)
	case AbsoluteX:
		addr, wrong, crossed := c.fetchIndexed(c.X)
		if crossed {
			c.read8(wrong)
		}
		return c.read8(addr)
	case AbsoluteY:
		addr, wrong, crossed := c.fetchIndexed(c.Y)
		if crossed {
			c.read8(wrong)
		}
		return c.read8(addr)
	case IndexedIndirect:
		addr := c.fetchIndexedIndirectAddr()
		return c.read8(addr)
	case IndirectIndexed:
		addr, wrong, crossed := c.fetchIndirectIndexedAddr()
		if crossed {
			c.read8(wrong)
		}
		return c.read8(addr)
	default:
		return 0
	}
}

func (c *CPU) fetchAbs() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return hi<<8 | lo
}

// fetchIndexed returns (final address, same-page speculative address,
// whether a page boundary was crossed) for abs,X / abs,Y addressing.
func (c *CPU) fetchIndexed(index uint8) (addr, wrong uint16, crossed bool) {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	base := hi<<8 | lo
	addr = base + uint16(index)
	wrong = (base & 0xFF00) | (addr & 0x00FF)
	crossed = wrong != addr
	return
}

func (c *CPU) fetchIndexedIndirectAddr() uint16 {
	base := c.fetch8()
	c.read8(uint16(base))
	ptr := uint8(base + c.X)
	lo := uint16(c.read8(uint16(ptr)))
	hi := uint16(c.read8(uint16(uint8(ptr + 1))))
	return hi<<8 | lo
}

func (c *CPU) fetchIndirectIndirectBase() uint16 {
	zp := c.fetch8()
	lo := uint16(c.read8(uint16(zp)))
	hi := uint16(c.read8(uint16(uint8(zp + 1))))
	return hi<<8 | lo
}

func (c *CPU) fetchIndirectIndexedAddr() (addr, wrong uint16, crossed bool) {
	base := c.fetchIndirectIndirectBase()
	addr = base + uint16(c.Y)
	wrong = (base & 0xFF00) | (addr & 0x00FF)
	crossed = wrong != addr
	return
}

// resolveAddrForWrite evaluates mode for a write-category instruction
// (STA, STX, STY, SAX): indexed modes always pay the dummy read, never the
// page-cross savings a read gets.
func (c *CPU) resolveAddrForWrite(mode AddressingMode) uint16 {
	switch mode {
	case ZeroPage:
		return uint16(c.fetch8())
	case ZeroPageX:
		base := c.fetch8()
		c.read8(uint16(base))
		return uint16(uint8(base + c.X))
	case ZeroPageY:
		base := c.fetch8()
		c.read8(uint16(base))
		return uint16(uint8(base + c.Y))
	case Absolute:
		return c.fetchAbs()
	case AbsoluteX:
		addr, wrong, _ := c.fetchIndexed(c.X)
		c.read8(wrong)
		return addr
	case AbsoluteY:
		addr, wrong, _ := c.fetchIndexed(c.Y)
		c.read8(wrong)
		return addr
	case IndexedIndirect:
		return c.fetchIndexedIndirectAddr()
	case IndirectIndexed:
		addr, wrong, _ := c.fetchIndirectIndexedAddr()
		c.read8(wrong)
		return addr
	default:
		return 0
	}
}

// resolveAddrForRMW evaluates mode for a read-modify-write instruction
// (ASL, INC, ..., and the unofficial SLO/RLA/SRE/RRA/ISB/DCP family):
// address resolution only, always at maximum cost. The caller performs the
// read/dummy-write/write sequence itself.
func (c *CPU) resolveAddrForRMW(mode AddressingMode) uint16 {
	switch mode {
	case ZeroPage:
		return uint16(c.fetch8())
	case ZeroPageX:
		base := c.fetch8()
		c.read8(uint16(base))
		return uint16(uint8(base + c.X))
	case Absolute:
		return c.fetchAbs()
	case AbsoluteX:
		addr, wrong, _ := c.fetchIndexed(c.X)
		c.read8(wrong)
		return addr
	case AbsoluteY:
		addr, wrong, _ := c.fetchIndexed(c.Y)
		c.read8(wrong)
		return addr
	case IndexedIndirect:
		return c.fetchIndexedIndirectAddr()
	case IndirectIndexed:
		addr, wrong, _ := c.fetchIndirectIndexedAddr()
		c.read8(wrong)
		return addr
	default:
		return 0
	}
}

func (c *CPU) readModifyWrite(mode AddressingMode, f func(uint8) uint8) {
	if mode == Accumulator {
		c.read8(c.PC) // dummy fetch of the following byte, PC not advanced
		c.A = f(c.A)
		c.setZN(c.A)
		return
	}
	addr := c.resolveAddrForRMW(mode)
	v := c.read8(addr)
	c.write8(addr, v) // dummy write-back of the original value
	nv := f(v)
	c.write8(addr, nv)
}

func (c *CPU) branch(taken bool) {
	offset := int8(c.fetch8())
	if !taken {
		return
	}
	oldPC := c.PC
	newPC := uint16(int32(oldPC) + int32(offset))
	c.internalCycle()
	if oldPC&0xFF00 != newPC&0xFF00 {
		c.internalCycle()
	}
	c.PC = newPC
}
