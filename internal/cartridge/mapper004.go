package cartridge

// Mapper004 implements MMC3 (TxROM): eight bank registers R0-R7 selected
// through a bank-select/bank-data register pair, 8KB PRG banking with one
// swappable and one fixed-to-second-last slot (the fixed slot's position
// flips with the PRG mode bit), 1KB/2KB CHR banking whose 2KB/1KB split also
// flips with a mode bit, and a scanline IRQ counter clocked from the PPU
// address bus's A12 rising edge.
type Mapper004 struct {
	cart *Cartridge

	bankSelect uint8
	bankData   [8]uint8

	prgRAMEnabled   bool
	prgRAMWriteProt bool

	irqLatch   uint8
	irqCounter uint8
	irqReload  bool
	irqEnabled bool
	irqPending bool

	lastA12  bool
	a12Low   uint8 // consecutive low-address-bus observations since the last rising edge

	mirrorBit uint8

	prg8kBanks uint8
	chr1kBanks uint16
}

func NewMapper004(cart *Cartridge) *Mapper004 {
	return &Mapper004{
		cart:       cart,
		prg8kBanks: uint8(len(cart.prgROM) / 0x2000),
		chr1kBanks: uint16(len(cart.chrROM) / 0x400),
	}
}

func (m *Mapper004) prgMode() uint8 { return (m.bankSelect >> 6) & 1 }
func (m *Mapper004) chrMode() uint8 { return (m.bankSelect >> 7) & 1 }

func (m *Mapper004) prgBankAt8k(slot uint8) uint8 {
	last := m.prg8kBanks - 1
	switch slot {
	case 0:
		if m.prgMode() == 0 {
			return m.bankData[6] % m.prg8kBanks
		}
		return (last - 1) % m.prg8kBanks
	case 1:
		return m.bankData[7] % m.prg8kBanks
	case 2:
		if m.prgMode() == 0 {
			return (last - 1) % m.prg8kBanks
		}
		return m.bankData[6] % m.prg8kBanks
	default: // 3
		return last
	}
}

func (m *Mapper004) ReadPRG(address uint16) uint8 {
	switch {
	case address >= 0x6000 && address < 0x8000:
		return m.cart.sram[address-0x6000]
	case address >= 0x8000:
		slot := uint8((address - 0x8000) / 0x2000)
		bank := m.prgBankAt8k(slot)
		offset := int(bank)*0x2000 + int(address&0x1FFF)
		if offset < len(m.cart.prgROM) {
			return m.cart.prgROM[offset]
		}
	}
	return 0
}

func (m *Mapper004) WritePRG(address uint16, value uint8) {
	switch {
	case address >= 0x6000 && address < 0x8000:
		m.cart.sram[address-0x6000] = value
	case address < 0xA000:
		if address&1 == 0 {
			m.bankSelect = value
		} else {
			m.bankData[m.bankSelect&0x07] = value
		}
	case address < 0xC000:
		if address&1 == 0 {
			// mirroring handled via Mirror(); low bit 0=vertical,1=horizontal
			m.mirrorBit = value & 1
		} else {
			m.prgRAMEnabled = value&0x80 != 0
			m.prgRAMWriteProt = value&0x40 != 0
		}
	case address < 0xE000:
		if address&1 == 0 {
			m.irqLatch = value
		} else {
			m.irqCounter = 0
			m.irqReload = true
		}
	default:
		if address&1 == 0 {
			m.irqEnabled = false
			m.irqPending = false
		} else {
			m.irqEnabled = true
		}
	}
}

func (m *Mapper004) chrBankAt1k(slot uint8) uint16 {
	var raw uint8
	mode := m.chrMode()
	// slots 0-7 correspond to $0000,$0400,...,$1C00.
	if mode == 0 {
		switch slot {
		case 0:
			raw = m.bankData[0] &^ 1
		case 1:
			raw = m.bankData[0] | 1
		case 2:
			raw = m.bankData[1] &^ 1
		case 3:
			raw = m.bankData[1] | 1
		case 4:
			raw = m.bankData[2]
		case 5:
			raw = m.bankData[3]
		case 6:
			raw = m.bankData[4]
		default:
			raw = m.bankData[5]
		}
	} else {
		switch slot {
		case 0:
			raw = m.bankData[2]
		case 1:
			raw = m.bankData[3]
		case 2:
			raw = m.bankData[4]
		case 3:
			raw = m.bankData[5]
		case 4:
			raw = m.bankData[0] &^ 1
		case 5:
			raw = m.bankData[0] | 1
		case 6:
			raw = m.bankData[1] &^ 1
		default:
			raw = m.bankData[1] | 1
		}
	}
	if m.chr1kBanks == 0 {
		return 0
	}
	return uint16(raw) % m.chr1kBanks
}

func (m *Mapper004) ReadCHR(address uint16) uint8 {
	slot := uint8(address / 0x400)
	bank := m.chrBankAt1k(slot)
	offset := int(bank)*0x400 + int(address&0x3FF)
	if offset < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

func (m *Mapper004) WriteCHR(address uint16, value uint8) {
	if !m.cart.hasCHRRAM {
		return
	}
	slot := uint8(address / 0x400)
	bank := m.chrBankAt1k(slot)
	offset := int(bank)*0x400 + int(address&0x3FF)
	if offset < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

func (m *Mapper004) Mirror() MirrorMode {
	if m.cart.mirror == MirrorFourScreen {
		return MirrorFourScreen
	}
	if m.mirrorBit == 0 {
		return MirrorVertical
	}
	return MirrorHorizontal
}

// a12DebounceThreshold is the minimum number of low-address-bus observations
// MMC3 requires before it will treat the next rising edge as real. Real
// boards filter short A12 glitches with an RC-ish delay line; this counts
// low observations between PPU memory accesses as a stand-in rather than
// modeling the analog behavior directly.
const a12DebounceThreshold = 8

// NotifyPPUAddress clocks the IRQ counter on the A12 rising edge, the
// behavior real MMC3 boards key off regardless of whether the access was a
// PPU read or write. Edges that follow fewer than a12DebounceThreshold
// low observations are ignored: sprite and background fetches can toggle
// A12 briefly within a single tile fetch without it ever representing a
// genuine scanline boundary.
func (m *Mapper004) NotifyPPUAddress(addr uint16) {
	a12 := addr&0x1000 != 0
	if a12 {
		if !m.lastA12 && m.a12Low >= a12DebounceThreshold {
			m.clockIRQCounter()
		}
		m.a12Low = 0
	} else if m.a12Low < 255 {
		m.a12Low++
	}
	m.lastA12 = a12
}

func (m *Mapper004) clockIRQCounter() {
	if m.irqCounter == 0 || m.irqReload {
		m.irqCounter = m.irqLatch
		m.irqReload = false
	} else {
		m.irqCounter--
	}
	if m.irqCounter == 0 && m.irqEnabled {
		m.irqPending = true
	}
}

func (m *Mapper004) IRQPending() bool { return m.irqPending }
func (m *Mapper004) AckIRQ()          { m.irqPending = false }
