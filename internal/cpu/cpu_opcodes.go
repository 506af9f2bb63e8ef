package cpu

// execute dispatches a single opcode byte. PC already points past the
// opcode byte itself; each case consumes whatever operand bytes its
// addressing mode requires.
func (c *CPU) execute(opcode uint8) {
	switch opcode {
	// ---- ADC ----
	case 0x69:
		c.adc(c.resolveRead(Immediate))
	case 0x65:
		c.adc(c.resolveRead(ZeroPage))
	case 0x75:
		c.adc(c.resolveRead(ZeroPageX))
	case 0x6D:
		c.adc(c.resolveRead(Absolute))
	case 0x7D:
		c.adc(c.resolveRead(AbsoluteX))
	case 0x79:
		c.adc(c.resolveRead(AbsoluteY))
	case 0x61:
		c.adc(c.resolveRead(IndexedIndirect))
	case 0x71:
		c.adc(c.resolveRead(IndirectIndexed))

	// ---- SBC (+ 0xEB unofficial alias) ----
	case 0xE9, 0xEB:
		c.sbc(c.resolveRead(Immediate))
	case 0xE5:
		c.sbc(c.resolveRead(ZeroPage))
	case 0xF5:
		c.sbc(c.resolveRead(ZeroPageX))
	case 0xED:
		c.sbc(c.resolveRead(Absolute))
	case 0xFD:
		c.sbc(c.resolveRead(AbsoluteX))
	case 0xF9:
		c.sbc(c.resolveRead(AbsoluteY))
	case 0xE1:
		c.sbc(c.resolveRead(IndexedIndirect))
	case 0xF1:
		c.sbc(c.resolveRead(IndirectIndexed))

	// ---- AND ----
	case 0x29:
		c.and(c.resolveRead(Immediate))
	case 0x25:
		c.and(c.resolveRead(ZeroPage))
	case 0x35:
		c.and(c.resolveRead(ZeroPageX))
	case 0x2D:
		c.and(c.resolveRead(Absolute))
	case 0x3D:
		c.and(c.resolveRead(AbsoluteX))
	case 0x39:
		c.and(c.resolveRead(AbsoluteY))
	case 0x21:
		c.and(c.resolveRead(IndexedIndirect))
	case 0x31:
		c.and(c.resolveRead(IndirectIndexed))

	// ---- ORA ----
	case 0x09:
		c.ora(c.resolveRead(Immediate))
	case 0x05:
		c.ora(c.resolveRead(ZeroPage))
	case 0x15:
		c.ora(c.resolveRead(ZeroPageX))
	case 0x0D:
		c.ora(c.resolveRead(Absolute))
	case 0x1D:
		c.ora(c.resolveRead(AbsoluteX))
	case 0x19:
		c.ora(c.resolveRead(AbsoluteY))
	case 0x01:
		c.ora(c.resolveRead(IndexedIndirect))
	case 0x11:
		c.ora(c.resolveRead(IndirectIndexed))

	// ---- EOR ----
	case 0x49:
		c.eor(c.resolveRead(Immediate))
	case 0x45:
		c.eor(c.resolveRead(ZeroPage))
	case 0x55:
		c.eor(c.resolveRead(ZeroPageX))
	case 0x4D:
		c.eor(c.resolveRead(Absolute))
	case 0x5D:
		c.eor(c.resolveRead(AbsoluteX))
	case 0x59:
		c.eor(c.resolveRead(AbsoluteY))
	case 0x41:
		c.eor(c.resolveRead(IndexedIndirect))
	case 0x51:
		c.eor(c.resolveRead(IndirectIndexed))

	// ---- CMP ----
	case 0xC9:
		c.compare(c.A, c.resolveRead(Immediate))
	case 0xC5:
		c.compare(c.A, c.resolveRead(ZeroPage))
	case 0xD5:
		c.compare(c.A, c.resolveRead(ZeroPageX))
	case 0xCD:
		c.compare(c.A, c.resolveRead(Absolute))
	case 0xDD:
		c.compare(c.A, c.resolveRead(AbsoluteX))
	case 0xD9:
		c.compare(c.A, c.resolveRead(AbsoluteY))
	case 0xC1:
		c.compare(c.A, c.resolveRead(IndexedIndirect))
	case 0xD1:
		c.compare(c.A, c.resolveRead(IndirectIndexed))

	// ---- CPX / CPY ----
	case 0xE0:
		c.compare(c.X, c.resolveRead(Immediate))
	case 0xE4:
		c.compare(c.X, c.resolveRead(ZeroPage))
	case 0xEC:
		c.compare(c.X, c.resolveRead(Absolute))
	case 0xC0:
		c.compare(c.Y, c.resolveRead(Immediate))
	case 0xC4:
		c.compare(c.Y, c.resolveRead(ZeroPage))
	case 0xCC:
		c.compare(c.Y, c.resolveRead(Absolute))

	// ---- BIT ----
	case 0x24:
		c.bit(c.resolveRead(ZeroPage))
	case 0x2C:
		c.bit(c.resolveRead(Absolute))

	// ---- LDA ----
	case 0xA9:
		c.A = c.resolveRead(Immediate)
		c.setZN(c.A)
	case 0xA5:
		c.A = c.resolveRead(ZeroPage)
		c.setZN(c.A)
	case 0xB5:
		c.A = c.resolveRead(ZeroPageX)
		c.setZN(c.A)
	case 0xAD:
		c.A = c.resolveRead(Absolute)
		c.setZN(c.A)
	case 0xBD:
		c.A = c.resolveRead(AbsoluteX)
		c.setZN(c.A)
	case 0xB9:
		c.A = c.resolveRead(AbsoluteY)
		c.setZN(c.A)
	case 0xA1:
		c.A = c.resolveRead(IndexedIndirect)
		c.setZN(c.A)
	case 0xB1:
		c.A = c.resolveRead(IndirectIndexed)
		c.setZN(c.A)

	// ---- LDX ----
	case 0xA2:
		c.X = c.resolveRead(Immediate)
		c.setZN(c.X)
	case 0xA6:
		c.X = c.resolveRead(ZeroPage)
		c.setZN(c.X)
	case 0xB6:
		c.X = c.resolveRead(ZeroPageY)
		c.setZN(c.X)
	case 0xAE:
		c.X = c.resolveRead(Absolute)
		c.setZN(c.X)
	case 0xBE:
		c.X = c.resolveRead(AbsoluteY)
		c.setZN(c.X)

	// ---- LDY ----
	case 0xA0:
		c.Y = c.resolveRead(Immediate)
		c.setZN(c.Y)
	case 0xA4:
		c.Y = c.resolveRead(ZeroPage)
		c.setZN(c.Y)
	case 0xB4:
		c.Y = c.resolveRead(ZeroPageX)
		c.setZN(c.Y)
	case 0xAC:
		c.Y = c.resolveRead(Absolute)
		c.setZN(c.Y)
	case 0xBC:
		c.Y = c.resolveRead(AbsoluteX)
		c.setZN(c.Y)

	// ---- LAX (unofficial: LDA+LDX combined) ----
	case 0xA7:
		v := c.resolveRead(ZeroPage)
		c.A, c.X = v, v
		c.setZN(v)
	case 0xB7:
		v := c.resolveRead(ZeroPageY)
		c.A, c.X = v, v
		c.setZN(v)
	case 0xAF:
		v := c.resolveRead(Absolute)
		c.A, c.X = v, v
		c.setZN(v)
	case 0xBF:
		v := c.resolveRead(AbsoluteY)
		c.A, c.X = v, v
		c.setZN(v)
	case 0xA3:
		v := c.resolveRead(IndexedIndirect)
		c.A, c.X = v, v
		c.setZN(v)
	case 0xB3:
		v := c.resolveRead(IndirectIndexed)
		c.A, c.X = v, v
		c.setZN(v)

	// ---- STA ----
	case 0x85:
		c.write8(c.resolveAddrForWrite(ZeroPage), c.A)
	case 0x95:
		c.write8(c.resolveAddrForWrite(ZeroPageX), c.A)
	case 0x8D:
		c.write8(c.resolveAddrForWrite(Absolute), c.A)
	case 0x9D:
		c.write8(c.resolveAddrForWrite(AbsoluteX), c.A)
	case 0x99:
		c.write8(c.resolveAddrForWrite(AbsoluteY), c.A)
	case 0x81:
		c.write8(c.resolveAddrForWrite(IndexedIndirect), c.A)
	case 0x91:
		c.write8(c.resolveAddrForWrite(IndirectIndexed), c.A)

	// ---- STX / STY ----
	case 0x86:
		c.write8(c.resolveAddrForWrite(ZeroPage), c.X)
	case 0x96:
		c.write8(c.resolveAddrForWrite(ZeroPageY), c.X)
	case 0x8E:
		c.write8(c.resolveAddrForWrite(Absolute), c.X)
	case 0x84:
		c.write8(c.resolveAddrForWrite(ZeroPage), c.Y)
	case 0x94:
		c.write8(c.resolveAddrForWrite(ZeroPageX), c.Y)
	case 0x8C:
		c.write8(c.resolveAddrForWrite(Absolute), c.Y)

	// ---- SAX (unofficial: store A&X) ----
	case 0x87:
		c.write8(c.resolveAddrForWrite(ZeroPage), c.A&c.X)
	case 0x97:
		c.write8(c.resolveAddrForWrite(ZeroPageY), c.A&c.X)
	case 0x8F:
		c.write8(c.resolveAddrForWrite(Absolute), c.A&c.X)
	case 0x83:
		c.write8(c.resolveAddrForWrite(IndexedIndirect), c.A&c.X)

	// ---- ASL ----
	case 0x0A:
		c.readModifyWrite(Accumulator, c.asl)
	case 0x06:
		c.readModifyWrite(ZeroPage, c.asl)
	case 0x16:
		c.readModifyWrite(ZeroPageX, c.asl)
	case 0x0E:
		c.readModifyWrite(Absolute, c.asl)
	case 0x1E:
		c.readModifyWrite(AbsoluteX, c.asl)

	// ---- LSR ----
	case 0x4A:
		c.readModifyWrite(Accumulator, c.lsr)
	case 0x46:
		c.readModifyWrite(ZeroPage, c.lsr)
	case 0x56:
		c.readModifyWrite(ZeroPageX, c.lsr)
	case 0x4E:
		c.readModifyWrite(Absolute, c.lsr)
	case 0x5E:
		c.readModifyWrite(AbsoluteX, c.lsr)

	// ---- ROL ----
	case 0x2A:
		c.readModifyWrite(Accumulator, c.rol)
	case 0x26:
		c.readModifyWrite(ZeroPage, c.rol)
	case 0x36:
		c.readModifyWrite(ZeroPageX, c.rol)
	case 0x2E:
		c.readModifyWrite(Absolute, c.rol)
	case 0x3E:
		c.readModifyWrite(AbsoluteX, c.rol)

	// ---- ROR ----
	case 0x6A:
		c.readModifyWrite(Accumulator, c.ror)
	case 0x66:
		c.readModifyWrite(ZeroPage, c.ror)
	case 0x76:
		c.readModifyWrite(ZeroPageX, c.ror)
	case 0x6E:
		c.readModifyWrite(Absolute, c.ror)
	case 0x7E:
		c.readModifyWrite(AbsoluteX, c.ror)

	// ---- INC / DEC ----
	case 0xE6:
		c.readModifyWrite(ZeroPage, c.inc)
	case 0xF6:
		c.readModifyWrite(ZeroPageX, c.inc)
	case 0xEE:
		c.readModifyWrite(Absolute, c.inc)
	case 0xFE:
		c.readModifyWrite(AbsoluteX, c.inc)
	case 0xC6:
		c.readModifyWrite(ZeroPage, c.dec)
	case 0xD6:
		c.readModifyWrite(ZeroPageX, c.dec)
	case 0xCE:
		c.readModifyWrite(Absolute, c.dec)
	case 0xDE:
		c.readModifyWrite(AbsoluteX, c.dec)

	// ---- SLO (unofficial: ASL then ORA) ----
	case 0x07:
		c.readModifyWrite(ZeroPage, c.slo)
	case 0x17:
		c.readModifyWrite(ZeroPageX, c.slo)
	case 0x0F:
		c.readModifyWrite(Absolute, c.slo)
	case 0x1F:
		c.readModifyWrite(AbsoluteX, c.slo)
	case 0x1B:
		c.readModifyWrite(AbsoluteY, c.slo)
	case 0x03:
		c.readModifyWrite(IndexedIndirect, c.slo)
	case 0x13:
		c.readModifyWrite(IndirectIndexed, c.slo)

	// ---- RLA (unofficial: ROL then AND) ----
	case 0x27:
		c.readModifyWrite(ZeroPage, c.rla)
	case 0x37:
		c.readModifyWrite(ZeroPageX, c.rla)
	case 0x2F:
		c.readModifyWrite(Absolute, c.rla)
	case 0x3F:
		c.readModifyWrite(AbsoluteX, c.rla)
	case 0x3B:
		c.readModifyWrite(AbsoluteY, c.rla)
	case 0x23:
		c.readModifyWrite(IndexedIndirect, c.rla)
	case 0x33:
		c.readModifyWrite(IndirectIndexed, c.rla)

	// ---- SRE (unofficial: LSR then EOR) ----
	case 0x47:
		c.readModifyWrite(ZeroPage, c.sre)
	case 0x57:
		c.readModifyWrite(ZeroPageX, c.sre)
	case 0x4F:
		c.readModifyWrite(Absolute, c.sre)
	case 0x5F:
		c.readModifyWrite(AbsoluteX, c.sre)
	case 0x5B:
		c.readModifyWrite(AbsoluteY, c.sre)
	case 0x43:
		c.readModifyWrite(IndexedIndirect, c.sre)
	case 0x53:
		c.readModifyWrite(IndirectIndexed, c.sre)

	// ---- RRA (unofficial: ROR then ADC) ----
	case 0x67:
		c.readModifyWrite(ZeroPage, c.rra)
	case 0x77:
		c.readModifyWrite(ZeroPageX, c.rra)
	case 0x6F:
		c.readModifyWrite(Absolute, c.rra)
	case 0x7F:
		c.readModifyWrite(AbsoluteX, c.rra)
	case 0x7B:
		c.readModifyWrite(AbsoluteY, c.rra)
	case 0x63:
		c.readModifyWrite(IndexedIndirect, c.rra)
	case 0x73:
		c.readModifyWrite(IndirectIndexed, c.rra)

	// ---- DCP (unofficial: DEC then CMP) ----
	case 0xC7:
		c.readModifyWrite(ZeroPage, c.dcp)
	case 0xD7:
		c.readModifyWrite(ZeroPageX, c.dcp)
	case 0xCF:
		c.readModifyWrite(Absolute, c.dcp)
	case 0xDF:
		c.readModifyWrite(AbsoluteX, c.dcp)
	case 0xDB:
		c.readModifyWrite(AbsoluteY, c.dcp)
	case 0xC3:
		c.readModifyWrite(IndexedIndirect, c.dcp)
	case 0xD3:
		c.readModifyWrite(IndirectIndexed, c.dcp)

	// ---- ISB/ISC (unofficial: INC then SBC) ----
	case 0xE7:
		c.readModifyWrite(ZeroPage, c.isb)
	case 0xF7:
		c.readModifyWrite(ZeroPageX, c.isb)
	case 0xEF:
		c.readModifyWrite(Absolute, c.isb)
	case 0xFF:
		c.readModifyWrite(AbsoluteX, c.isb)
	case 0xFB:
		c.readModifyWrite(AbsoluteY, c.isb)
	case 0xE3:
		c.readModifyWrite(IndexedIndirect, c.isb)
	case 0xF3:
		c.readModifyWrite(IndirectIndexed, c.isb)

	// ---- branches ----
	case 0x10:
		c.branch(!c.N)
	case 0x30:
		c.branch(c.N)
	case 0x50:
		c.branch(!c.V)
	case 0x70:
		c.branch(c.V)
	case 0x90:
		c.branch(!c.C)
	case 0xB0:
		c.branch(c.C)
	case 0xD0:
		c.branch(!c.Z)
	case 0xF0:
		c.branch(c.Z)

	// ---- jumps / subroutines ----
	case 0x4C:
		c.PC = c.fetchAbs()
	case 0x6C:
		ptr := c.fetchAbs()
		lo := uint16(c.read8(ptr))
		hiAddr := (ptr & 0xFF00) | ((ptr + 1) & 0x00FF)
		hi := uint16(c.read8(hiAddr))
		c.PC = hi<<8 | lo
	case 0x20:
		lo := c.fetch8()
		c.internalCycle()
		c.pushWord(c.PC)
		hi := c.fetch8()
		c.PC = uint16(hi)<<8 | uint16(lo)
	case 0x60:
		c.internalCycle()
		c.internalCycle()
		lo := uint16(c.pop())
		hi := uint16(c.pop())
		c.PC = (hi<<8 | lo) + 1
		c.internalCycle()
	case 0x40:
		c.internalCycle()
		c.internalCycle()
		c.setStatusByte(c.pop())
		lo := uint16(c.pop())
		hi := uint16(c.pop())
		c.PC = hi<<8 | lo
	case 0x00:
		c.fetch8() // signature/padding byte, discarded
		c.pushWord(c.PC)
		c.push(c.statusByte(true))
		c.I = true
		lo := uint16(c.read8(irqVector))
		hi := uint16(c.read8(irqVector + 1))
		c.PC = hi<<8 | lo

	// ---- stack ----
	case 0x48:
		c.read8(c.PC)
		c.push(c.A)
	case 0x08:
		c.read8(c.PC)
		c.push(c.statusByte(true))
	case 0x68:
		c.read8(c.PC)
		c.internalCycle()
		c.A = c.pop()
		c.setZN(c.A)
	case 0x28:
		c.read8(c.PC)
		c.internalCycle()
		c.setStatusByte(c.pop())

	// ---- register transfers / flags / increments ----
	case 0xAA:
		c.implied(func() { c.X = c.A; c.setZN(c.X) })
	case 0xA8:
		c.implied(func() { c.Y = c.A; c.setZN(c.Y) })
	case 0x8A:
		c.implied(func() { c.A = c.X; c.setZN(c.A) })
	case 0x98:
		c.implied(func() { c.A = c.Y; c.setZN(c.A) })
	case 0xBA:
		c.implied(func() { c.X = c.SP; c.setZN(c.X) })
	case 0x9A:
		c.implied(func() { c.SP = c.X })
	case 0xE8:
		c.implied(func() { c.X++; c.setZN(c.X) })
	case 0xC8:
		c.implied(func() { c.Y++; c.setZN(c.Y) })
	case 0xCA:
		c.implied(func() { c.X--; c.setZN(c.X) })
	case 0x88:
		c.implied(func() { c.Y--; c.setZN(c.Y) })
	case 0x18:
		c.implied(func() { c.C = false })
	case 0x38:
		c.implied(func() { c.C = true })
	case 0x58:
		c.implied(func() { c.I = false })
	case 0x78:
		c.implied(func() { c.I = true })
	case 0xB8:
		c.implied(func() { c.V = false })
	case 0xD8:
		c.implied(func() { c.D = false })
	case 0xF8:
		c.implied(func() { c.D = true })
	case 0xEA:
		c.implied(func() {})

	// ---- unofficial multi-byte NOPs: consume and discard their operand ----
	case 0x1A, 0x3A, 0x5A, 0x7A, 0xDA, 0xFA:
		c.implied(func() {})
	case 0x80, 0x82, 0x89, 0xC2, 0xE2:
		c.resolveRead(Immediate)
	case 0x04, 0x44, 0x64:
		c.resolveRead(ZeroPage)
	case 0x14, 0x34, 0x54, 0x74, 0xD4, 0xF4:
		c.resolveRead(ZeroPageX)
	case 0x0C:
		c.resolveRead(Absolute)
	case 0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC:
		c.resolveRead(AbsoluteX)

	default:
		// Unimplemented undocumented opcode: behave as a minimum-cost NOP
		// so the emulator never panics on an unrecognized byte (spec §7).
		c.implied(func() {})
	}
}

// implied executes a 2-cycle implied-addressing instruction: the opcode
// fetch already happened, so only the mandatory dummy fetch of the
// following byte (PC not advanced) remains.
func (c *CPU) implied(f func()) {
	c.read8(c.PC)
	f()
}

func (c *CPU) adc(m uint8) {
	sum := uint16(c.A) + uint16(m)
	if c.C {
		sum++
	}
	result := uint8(sum)
	c.V = (c.A^m)&0x80 == 0 && (c.A^result)&0x80 != 0
	c.C = sum > 0xFF
	c.A = result
	c.setZN(c.A)
}

func (c *CPU) sbc(m uint8) {
	c.adc(m ^ 0xFF)
}

func (c *CPU) and(m uint8) {
	c.A &= m
	c.setZN(c.A)
}

func (c *CPU) ora(m uint8) {
	c.A |= m
	c.setZN(c.A)
}

func (c *CPU) eor(m uint8) {
	c.A ^= m
	c.setZN(c.A)
}

func (c *CPU) compare(reg, m uint8) {
	c.C = reg >= m
	c.setZN(reg - m)
}

func (c *CPU) bit(m uint8) {
	c.Z = (c.A & m) == 0
	c.N = m&0x80 != 0
	c.V = m&0x40 != 0
}

func (c *CPU) asl(v uint8) uint8 {
	c.C = v&0x80 != 0
	r := v << 1
	c.setZN(r)
	return r
}

func (c *CPU) lsr(v uint8) uint8 {
	c.C = v&0x01 != 0
	r := v >> 1
	c.setZN(r)
	return r
}

func (c *CPU) rol(v uint8) uint8 {
	carryIn := uint8(0)
	if c.C {
		carryIn = 1
	}
	c.C = v&0x80 != 0
	r := (v << 1) | carryIn
	c.setZN(r)
	return r
}

func (c *CPU) ror(v uint8) uint8 {
	carryIn := uint8(0)
	if c.C {
		carryIn = 0x80
	}
	c.C = v&0x01 != 0
	r := (v >> 1) | carryIn
	c.setZN(r)
	return r
}

func (c *CPU) inc(v uint8) uint8 {
	r := v + 1
	c.setZN(r)
	return r
}

func (c *CPU) dec(v uint8) uint8 {
	r := v - 1
	c.setZN(r)
	return r
}

func (c *CPU) slo(v uint8) uint8 {
	r := c.asl(v)
	c.ora(r)
	return r
}

func (c *CPU) rla(v uint8) uint8 {
	r := c.rol(v)
	c.and(r)
	return r
}

func (c *CPU) sre(v uint8) uint8 {
	r := c.lsr(v)
	c.eor(r)
	return r
}

func (c *CPU) rra(v uint8) uint8 {
	r := c.ror(v)
	c.adc(r)
	return r
}

func (c *CPU) dcp(v uint8) uint8 {
	r := c.dec(v)
	c.compare(c.A, r)
	return r
}

func (c *CPU) isb(v uint8) uint8 {
	r := c.inc(v)
	c.sbc(r)
	return r
}
