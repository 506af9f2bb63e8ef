package cartridge

// Mapper005 implements MMC5 (ExROM): the most elaborate NES mapper, with
// 8KB-granularity PRG banking, two independent CHR bank sets (selected by
// sprite size and by which set was written to most recently), 1KB of
// extended RAM with four operating modes, a per-scanline IRQ counter driven
// by the PPU's scanline-end callback, and an 8x8 unsigned hardware
// multiplier. There is no reference implementation of MMC5 in this
// codebase's lineage; this is built directly from the mapper's documented
// register behavior.
type Mapper005 struct {
	cart *Cartridge

	prgMode uint8 // $5100
	chrMode uint8 // $5101

	prgRAMProtect1 uint8
	prgRAMProtect2 uint8

	prgBank [5]uint8 // $5113-$5117, bank[4] always ROM-selectable (last slot)
	chrBankA [8]uint16 // $5120-$5127
	chrBankB [4]uint16 // $5128-$512B
	chrHighBits uint8   // $5130
	lastCHRSetWasB bool

	exramMode uint8 // $5104
	exram     [1024]uint8

	fillTile uint8
	fillAttr uint8

	ntMapping uint8 // $5105

	spriteSize8x16  bool
	fetchingSprites bool
	lastNTFetch     uint16

	irqTarget  uint8
	irqEnabled bool
	irqPending bool
	scanline   int
	inFrame    bool

	multiplicand uint8
	multiplier   uint8

	prgRAM [0x10000]uint8 // up to 64KB PRG-RAM
	ciram  [0x800]uint8   // fallback CIRAM-like storage for NT modes 0/1

	prg8kBanks uint8
	chr1kBanks uint16
}

// ReadNametable and WriteNametable fully own nametable access per the
// mapper's $5105 per-quadrant mode byte: 0/1 select one of two internal
// CIRAM pages, 2 routes through EXRAM, 3 is a fixed fill-mode tile/attr pair.
func (m *Mapper005) ReadNametable(addr uint16) uint8 {
	quadrant := (addr >> 10) & 0x03
	mode := (m.ntMapping >> (quadrant * 2)) & 0x03
	offset := addr & 0x3FF
	switch mode {
	case 0:
		return m.ciram[offset]
	case 1:
		return m.ciram[0x400+offset]
	case 2:
		return m.exram[offset&0x3FF]
	default:
		if offset < 0x3C0 {
			return m.fillTile
		}
		return m.fillAttr
	}
}

func (m *Mapper005) WriteNametable(addr uint16, value uint8) {
	quadrant := (addr >> 10) & 0x03
	mode := (m.ntMapping >> (quadrant * 2)) & 0x03
	offset := addr & 0x3FF
	switch mode {
	case 0:
		m.ciram[offset] = value
	case 1:
		m.ciram[0x400+offset] = value
	case 2:
		if m.exramMode != 3 {
			m.exram[offset&0x3FF] = value
		}
	default:
		// Fill mode nametables are read-only.
	}
}

func NewMapper005(cart *Cartridge) *Mapper005 {
	m := &Mapper005{
		cart:       cart,
		prgMode:    3,
		prg8kBanks: uint8(len(cart.prgROM) / 0x2000),
	}
	if len(cart.chrROM) > 0 {
		m.chr1kBanks = uint16(len(cart.chrROM) / 0x400)
	}
	if m.prg8kBanks == 0 {
		m.prg8kBanks = 1
	}
	m.prgBank[4] = m.prg8kBanks - 1
	return m
}

// SetSpriteSize is called by the PPU when PPUCTRL's sprite-size bit changes;
// MMC5's CHR set selection depends on it.
func (m *Mapper005) SetSpriteSize(is8x16 bool) { m.spriteSize8x16 = is8x16 }

// SetFetchingSprites is called by the PPU at the dot boundaries between the
// background and sprite fetch pipelines so CHR set B only applies to the
// sprite-fetch window.
func (m *Mapper005) SetFetchingSprites(fetching bool) { m.fetchingSprites = fetching }

// NotifyNametableFetch records the address of the PPU's latest nametable
// byte fetch. Nothing reads it back: extended-attribute mode (EXRAM mode 1)
// per-tile palette and CHR-bank substitution is not applied.
func (m *Mapper005) NotifyNametableFetch(addr uint16) { m.lastNTFetch = addr }

func (m *Mapper005) ReadPRG(address uint16) uint8 {
	switch {
	case address >= 0x6000 && address < 0x8000:
		return m.prgRAM[m.prgRAMOffset(address)]
	case address >= 0x8000:
		bank := m.prgROMBank(address)
		offset := int(bank)*0x2000 + int(address&0x1FFF)
		if offset < len(m.cart.prgROM) {
			return m.cart.prgROM[offset]
		}
	}
	return 0
}

// prgRAMOffset maps a $6000-7FFF access through the $5113 bank register,
// MMC5's separate 8KB RAM window selector -- distinct from $5114-$5117,
// which bank the $8000+ ROM windows.
func (m *Mapper005) prgRAMOffset(address uint16) int {
	ramBanks := uint8(len(m.prgRAM) / 0x2000)
	bank := (m.prgBank[0] & 0x7F) % ramBanks
	return int(bank)*0x2000 + int(address&0x1FFF)
}

// prgROMBank resolves the 8KB ROM bank feeding address, per the PRG mode
// selected by $5100:
//
//	mode 0: one 32KB bank over $8000-FFFF, selected by $5117 (low 2 bits
//	        of the register forced to the window's alignment)
//	mode 1: two 16KB banks, $5115 for $8000-BFFF and $5117 for $C000-FFFF
//	mode 2: one 16KB bank ($5115) at $8000-BFFF plus two independent 8KB
//	        banks, $5116 at $C000-DFFF and $5117 at $E000-FFFF
//	mode 3: four independent 8KB banks, $5114/$5115/$5116/$5117
//
// $5117 always feeds the top of the $8000+ space and is hardwired to ROM
// on real MMC5 regardless of its RAM/ROM select bit; PRG-RAM mapped into
// the $8000+ window via that bit is not modeled here.
func (m *Mapper005) prgROMBank(address uint16) uint8 {
	reg := func(i int) uint8 { return m.prgBank[i] & 0x7F }
	switch m.prgMode {
	case 0:
		start := reg(4) &^ 0x03
		offset := uint8((address - 0x8000) / 0x2000)
		return (start + offset) % m.prg8kBanks
	case 1:
		if address < 0xC000 {
			start := reg(2) &^ 0x01
			offset := uint8((address - 0x8000) / 0x2000)
			return (start + offset) % m.prg8kBanks
		}
		start := reg(4) &^ 0x01
		offset := uint8((address - 0xC000) / 0x2000)
		return (start + offset) % m.prg8kBanks
	case 2:
		switch {
		case address < 0xC000:
			start := reg(2) &^ 0x01
			offset := uint8((address - 0x8000) / 0x2000)
			return (start + offset) % m.prg8kBanks
		case address < 0xE000:
			return reg(3) % m.prg8kBanks
		default:
			return reg(4) % m.prg8kBanks
		}
	default: // mode 3
		slot := 1 + int((address-0x8000)/0x2000)
		return reg(slot) % m.prg8kBanks
	}
}

func (m *Mapper005) WritePRG(address uint16, value uint8) {
	switch {
	case address >= 0x5000 && address < 0x5100:
		// Expansion audio registers: not emulated, reads/writes ignored.
	case address == 0x5100:
		m.prgMode = value & 0x03
	case address == 0x5101:
		m.chrMode = value & 0x03
	case address == 0x5104:
		m.exramMode = value & 0x03
	case address == 0x5105:
		m.ntMapping = value
	case address == 0x5106:
		m.fillTile = value
	case address == 0x5107:
		m.fillAttr = value & 0x03
	case address == 0x5113, address == 0x5114, address == 0x5115, address == 0x5116, address == 0x5117:
		m.prgBank[address-0x5113] = value
	case address >= 0x5120 && address <= 0x5127:
		m.chrBankA[address-0x5120] = uint16(value) | uint16(m.chrHighBits)<<8
		m.lastCHRSetWasB = false
	case address >= 0x5128 && address <= 0x512B:
		m.chrBankB[address-0x5128] = uint16(value) | uint16(m.chrHighBits)<<8
		m.lastCHRSetWasB = true
	case address == 0x5130:
		m.chrHighBits = value & 0x03
	case address == 0x5203:
		m.irqTarget = value
	case address == 0x5204:
		m.irqEnabled = value&0x80 != 0
	case address == 0x5205:
		m.multiplicand = value
	case address == 0x5206:
		m.multiplier = value
	case address >= 0x5C00 && address <= 0x5FFF:
		m.exram[address-0x5C00] = value
	case address >= 0x6000 && address < 0x8000:
		m.prgRAM[m.prgRAMOffset(address)] = value
	}
}

func (m *Mapper005) ReadCHR(address uint16) uint8 {
	bank := m.chrBankFor(address)
	if m.chr1kBanks == 0 {
		return 0
	}
	offset := int(bank%m.chr1kBanks)*0x400 + int(address&0x3FF)
	if offset < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

func (m *Mapper005) WriteCHR(address uint16, value uint8) {
	if !m.cart.hasCHRRAM {
		return
	}
	bank := m.chrBankFor(address)
	if m.chr1kBanks == 0 {
		return
	}
	offset := int(bank%m.chr1kBanks)*0x400 + int(address&0x3FF)
	if offset < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

// chrBankFor picks set A (background, used in 8x16 sprite mode or when set A
// was written last) or set B (sprites) per MMC5's documented selection rule.
func (m *Mapper005) chrBankFor(address uint16) uint16 {
	slot := address / 0x400
	var useB bool
	if m.spriteSize8x16 {
		useB = m.fetchingSprites
	} else {
		useB = m.lastCHRSetWasB
	}
	if useB {
		return m.chrBankB[slot%4]
	}
	return m.chrBankA[slot%8]
}

// ReadEXRAM and WriteEXRAM give direct offset-based access to EXRAM,
// bypassing the $5C00-$5FFF CPU window; no other component calls them.
func (m *Mapper005) ReadEXRAM(offset uint16) uint8  { return m.exram[offset&0x3FF] }
func (m *Mapper005) WriteEXRAM(offset uint16, v uint8) {
	if m.exramMode != 3 {
		m.exram[offset&0x3FF] = v
	}
}

func (m *Mapper005) ReadRegister(address uint16) uint8 {
	switch address {
	case 0x5204:
		status := uint8(0)
		if m.irqPending {
			status |= 0x80
		}
		if m.inFrame {
			status |= 0x40
		}
		m.irqPending = false
		return status
	case 0x5205:
		return uint8((uint16(m.multiplicand) * uint16(m.multiplier)) & 0xFF)
	case 0x5206:
		return uint8((uint16(m.multiplicand) * uint16(m.multiplier)) >> 8)
	}
	return 0
}

func (m *Mapper005) Mirror() MirrorMode {
	// MMC5's nametable routing follows $5105 per fetch through
	// ReadNametable/WriteNametable; report horizontal as the conservative
	// default for callers that only consult the coarse mirroring mode.
	return MirrorHorizontal
}

// NotifyScanline drives the per-scanline IRQ counter from the PPU's
// end-of-scanline callback.
func (m *Mapper005) NotifyScanline(scanline int) {
	m.scanline = scanline
	if scanline == 0 {
		m.inFrame = true
	}
	if !m.inFrame {
		return
	}
	if uint8(scanline) == m.irqTarget && scanline > 0 {
		m.irqPending = true
	}
	if scanline >= 239 {
		m.inFrame = false
	}
}

// StartVBlank is called by the PPU on entering VBlank (scanline 241, dot 1).
// The in-frame flag NotifyScanline drives clears here too, independent of
// the per-scanline counter, mirroring the real chip's own VBlank-driven
// reset of that state.
func (m *Mapper005) StartVBlank() { m.inFrame = false }

func (m *Mapper005) IRQPending() bool { return m.irqPending && m.irqEnabled }
func (m *Mapper005) AckIRQ()          { m.irqPending = false }
