// Package apu implements the NES Audio Processing Unit: two pulse channels,
// a triangle channel, a noise channel, the frame sequencer that drives their
// envelope/length/sweep units, and the nonlinear mixer feeding a bounded
// sample FIFO.
package apu

// APU represents the NES Audio Processing Unit.
type APU struct {
	pulse1   PulseChannel
	pulse2   PulseChannel
	triangle TriangleChannel
	noise    NoiseChannel

	frameCounter    uint32
	fiveStepMode    bool // false = 4-step, true = 5-step
	frameIRQInhibit bool
	frameIRQFlag    bool

	channelEnable [4]bool // pulse1, pulse2, triangle, noise

	evenCycle bool

	sampleBuffer     []float32
	cycleAccumulator float64
	cyclesPerSample  float64

	filterPrevInput  float32
	filterPrevOutput float32
}

// PulseChannel is one of the two square-wave channels.
type PulseChannel struct {
	dutyCycle       uint8
	lengthHalt      bool // also doubles as envelope-loop
	constantVolume  bool
	volume          uint8

	sweepEnable  bool
	sweepPeriod  uint8
	sweepNegate  bool
	sweepShift   uint8
	sweepReload  bool
	sweepCounter uint8

	timer        uint16
	timerCounter uint16

	lengthCounter uint8

	envelopeStart   bool
	envelopeCounter uint8
	envelopeDivider uint8

	sequencerPos uint8
}

// TriangleChannel is the 32-step triangle wave channel.
type TriangleChannel struct {
	lengthHalt        bool
	linearCounterLoad uint8

	timer        uint16
	timerCounter uint16

	lengthCounter uint8

	linearCounter       uint8
	linearCounterReload bool

	sequencerPos uint8
}

// NoiseChannel is the pseudo-random LFSR channel.
type NoiseChannel struct {
	lengthHalt     bool
	constantVolume bool
	volume         uint8

	mode         bool // false = 32k-step LFSR, true = 93-step (short)
	periodIndex  uint8
	timerCounter uint16

	lengthCounter uint8

	envelopeStart   bool
	envelopeCounter uint8
	envelopeDivider uint8

	shiftRegister uint16
}

const (
	cpuFrequencyNTSC = 1789773.0
	sampleRate       = 44100.0
	sampleFIFOCap    = 4096
	dcFilterPole     = 0.996
)

// New returns a reset APU with its frame sequencer in 4-step mode.
func New() *APU {
	a := &APU{
		sampleBuffer:    make([]float32, 0, sampleFIFOCap),
		cyclesPerSample: cpuFrequencyNTSC / sampleRate,
	}
	a.noise.shiftRegister = 1
	return a
}

// Reset returns the APU to its post-power-up state.
func (a *APU) Reset() {
	a.pulse1 = PulseChannel{}
	a.pulse2 = PulseChannel{}
	a.triangle = TriangleChannel{}
	a.noise = NoiseChannel{shiftRegister: 1}
	a.frameCounter = 0
	a.fiveStepMode = false
	a.frameIRQInhibit = false
	a.frameIRQFlag = false
	for i := range a.channelEnable {
		a.channelEnable[i] = false
	}
	a.evenCycle = false
	a.cycleAccumulator = 0
	a.filterPrevInput, a.filterPrevOutput = 0, 0
	a.sampleBuffer = a.sampleBuffer[:0]
}

// Step advances the APU by one CPU cycle: the triangle timer ticks every
// cycle, pulse/noise timers tick every other cycle, the frame sequencer
// counts CPU cycles, and a sample is generated when the fractional
// CPU-cycles-per-sample accumulator rolls over.
func (a *APU) Step() {
	a.stepTriangleTimer()
	a.evenCycle = !a.evenCycle
	if a.evenCycle {
		a.stepPulseTimer(&a.pulse1)
		a.stepPulseTimer(&a.pulse2)
		a.stepNoiseTimer()
	}
	a.stepFrameSequencer()
	a.generateSample()
}

func (a *APU) stepFrameSequencer() {
	a.frameCounter++
	if a.fiveStepMode {
		switch a.frameCounter {
		case 7457:
			a.clockQuarterFrame()
		case 14913:
			a.clockQuarterFrame()
			a.clockHalfFrame()
		case 22371:
			a.clockQuarterFrame()
		case 37281:
			a.clockQuarterFrame()
			a.clockHalfFrame()
		case 37282:
			a.frameCounter = 0
		}
		return
	}
	switch a.frameCounter {
	case 7457:
		a.clockQuarterFrame()
	case 14913:
		a.clockQuarterFrame()
		a.clockHalfFrame()
	case 22371:
		a.clockQuarterFrame()
	case 29829:
		a.clockQuarterFrame()
		a.clockHalfFrame()
		if !a.frameIRQInhibit {
			a.frameIRQFlag = true
		}
		a.frameCounter = 0
	}
}

func (a *APU) clockQuarterFrame() {
	a.clockPulseEnvelope(&a.pulse1)
	a.clockPulseEnvelope(&a.pulse2)
	a.clockNoiseEnvelope()
	a.clockTriangleLinear()
}

func (a *APU) clockHalfFrame() {
	a.clockPulseLength(&a.pulse1)
	a.clockPulseSweep(&a.pulse1, true)
	a.clockPulseLength(&a.pulse2)
	a.clockPulseSweep(&a.pulse2, false)
	a.clockTriangleLength()
	a.clockNoiseLength()
}

// generateSample accumulates a fractional CPU-cycle counter; once it covers
// a full output sample period it mixes the channels through the nonlinear
// lookup tables, runs the DC-blocking filter, and appends to the FIFO
// (dropping the sample if the FIFO is already full).
func (a *APU) generateSample() {
	a.cycleAccumulator += 1.0
	if a.cycleAccumulator < a.cyclesPerSample {
		return
	}
	a.cycleAccumulator -= a.cyclesPerSample

	p1 := a.getPulseOutput(&a.pulse1)
	p2 := a.getPulseOutput(&a.pulse2)
	tri := a.getTriangleOutput()
	noise := a.getNoiseOutput()

	mixed := pulseTable[p1+p2] + tndTable[3*tri+2*noise]
	filtered := mixed - a.filterPrevInput + dcFilterPole*a.filterPrevOutput
	a.filterPrevInput = mixed
	a.filterPrevOutput = filtered

	if len(a.sampleBuffer) < sampleFIFOCap {
		a.sampleBuffer = append(a.sampleBuffer, filtered)
	}
}

// WriteRegister services a CPU write to $4000-$4013/$4015/$4017.
func (a *APU) WriteRegister(address uint16, value uint8) {
	switch address {
	case 0x4000:
		a.writePulseControl(&a.pulse1, value)
	case 0x4001:
		a.writePulseSweep(&a.pulse1, value)
	case 0x4002:
		a.writePulseTimerLow(&a.pulse1, value)
	case 0x4003:
		a.writePulseTimerHigh(&a.pulse1, 0, value)
	case 0x4004:
		a.writePulseControl(&a.pulse2, value)
	case 0x4005:
		a.writePulseSweep(&a.pulse2, value)
	case 0x4006:
		a.writePulseTimerLow(&a.pulse2, value)
	case 0x4007:
		a.writePulseTimerHigh(&a.pulse2, 1, value)
	case 0x4008:
		a.writeTriangleControl(value)
	case 0x400A:
		a.writeTriangleTimerLow(value)
	case 0x400B:
		a.writeTriangleTimerHigh(value)
	case 0x400C:
		a.writeNoiseControl(value)
	case 0x400E:
		a.writeNoisePeriod(value)
	case 0x400F:
		a.writeNoiseLength(value)
	case 0x4015:
		a.writeChannelEnable(value)
	case 0x4017:
		a.writeFrameCounter(value)
	}
}

// DrainSamples copies as many buffered samples into dst as fit, returning
// the count written, and removes them from the internal FIFO.
func (a *APU) DrainSamples(dst []float32) int {
	n := copy(dst, a.sampleBuffer)
	a.sampleBuffer = a.sampleBuffer[:copy(a.sampleBuffer, a.sampleBuffer[n:])]
	return n
}

// ReadStatus services a CPU read of $4015: bits 0-3 report whether each
// channel's length counter is still running, bit 6 reports (and clears) the
// frame IRQ flag.
func (a *APU) ReadStatus() uint8 {
	var status uint8
	if a.pulse1.lengthCounter > 0 {
		status |= 0x01
	}
	if a.pulse2.lengthCounter > 0 {
		status |= 0x02
	}
	if a.triangle.lengthCounter > 0 {
		status |= 0x04
	}
	if a.noise.lengthCounter > 0 {
		status |= 0x08
	}
	if a.frameIRQFlag {
		status |= 0x40
	}
	a.frameIRQFlag = false
	return status
}

// IRQPending reports whether the frame sequencer's IRQ line is asserted.
func (a *APU) IRQPending() bool { return a.frameIRQFlag }

var lengthTable = [32]uint8{
	10, 254, 20, 2, 40, 4, 80, 6,
	160, 8, 60, 10, 14, 12, 26, 14,
	12, 16, 24, 8, 48, 6, 96, 4,
	192, 2, 72, 16, 28, 32, 52, 2,
}

var dutyTable = [4][8]uint8{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

var triangleTable = [32]uint8{
	15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0,
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

var noisePeriodTable = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160,
	202, 254, 380, 508, 762, 1016, 2034, 4068,
}

// pulseTable and tndTable are the standard nonlinear NES mixer lookup
// tables, precomputed once from the canonical formulas.
var pulseTable [31]float32
var tndTable [203]float32

func init() {
	for n := 1; n < len(pulseTable); n++ {
		pulseTable[n] = float32(95.52 / (8128.0/float64(n) + 100.0))
	}
	for n := 1; n < len(tndTable); n++ {
		tndTable[n] = float32(163.67 / (24329.0/float64(n) + 100.0))
	}
}

func (a *APU) writePulseControl(p *PulseChannel, value uint8) {
	p.dutyCycle = (value >> 6) & 0x03
	p.lengthHalt = value&0x20 != 0
	p.constantVolume = value&0x10 != 0
	p.volume = value & 0x0F
	p.envelopeStart = true
}

func (a *APU) writePulseSweep(p *PulseChannel, value uint8) {
	p.sweepEnable = value&0x80 != 0
	p.sweepPeriod = (value >> 4) & 0x07
	p.sweepNegate = value&0x08 != 0
	p.sweepShift = value & 0x07
	p.sweepReload = true
}

func (a *APU) writePulseTimerLow(p *PulseChannel, value uint8) {
	p.timer = (p.timer & 0xFF00) | uint16(value)
}

func (a *APU) writePulseTimerHigh(p *PulseChannel, channelIndex int, value uint8) {
	p.timer = (p.timer & 0x00FF) | (uint16(value&0x07) << 8)
	if a.channelEnable[channelIndex] {
		p.lengthCounter = lengthTable[(value>>3)&0x1F]
	}
	p.envelopeStart = true
	p.sequencerPos = 0
}

func (a *APU) stepPulseTimer(p *PulseChannel) {
	if p.timerCounter == 0 {
		p.timerCounter = p.timer
		p.sequencerPos = (p.sequencerPos + 1) & 0x07
	} else {
		p.timerCounter--
	}
}

func (a *APU) clockPulseEnvelope(p *PulseChannel) {
	if p.envelopeStart {
		p.envelopeStart = false
		p.envelopeCounter = 15
		p.envelopeDivider = p.volume
		return
	}
	if p.envelopeDivider == 0 {
		p.envelopeDivider = p.volume
		if p.envelopeCounter > 0 {
			p.envelopeCounter--
		} else if p.lengthHalt {
			p.envelopeCounter = 15
		}
	} else {
		p.envelopeDivider--
	}
}

func (a *APU) clockPulseLength(p *PulseChannel) {
	if !p.lengthHalt && p.lengthCounter > 0 {
		p.lengthCounter--
	}
}

// clockPulseSweep mutes the channel (via the timer-period checks in
// getPulseOutput) when the current period is below 8 or the negated target
// exceeds $7FF; Pulse 1 subtracts an extra 1 in the negation per spec.
func (a *APU) clockPulseSweep(p *PulseChannel, isPulse1 bool) {
	target := sweepTarget(p, isPulse1)
	if p.sweepCounter == 0 && p.sweepEnable && p.sweepShift > 0 && p.timer >= 8 && target <= 0x7FF {
		p.timer = uint16(target)
	}
	if p.sweepCounter == 0 || p.sweepReload {
		p.sweepCounter = p.sweepPeriod
		p.sweepReload = false
	} else {
		p.sweepCounter--
	}
}

func sweepTarget(p *PulseChannel, isPulse1 bool) int {
	change := int(p.timer) >> p.sweepShift
	if !p.sweepNegate {
		return int(p.timer) + change
	}
	if isPulse1 {
		return int(p.timer) - change - 1
	}
	return int(p.timer) - change
}

func (a *APU) getPulseOutput(p *PulseChannel) uint8 {
	target := sweepTarget(p, false)
	if p.lengthCounter == 0 || p.timer < 8 || target > 0x7FF || dutyTable[p.dutyCycle][p.sequencerPos] == 0 {
		return 0
	}
	if p.constantVolume {
		return p.volume
	}
	return p.envelopeCounter
}

func (a *APU) writeTriangleControl(value uint8) {
	a.triangle.lengthHalt = value&0x80 != 0
	a.triangle.linearCounterLoad = value & 0x7F
}

func (a *APU) writeTriangleTimerLow(value uint8) {
	a.triangle.timer = (a.triangle.timer & 0xFF00) | uint16(value)
}

func (a *APU) writeTriangleTimerHigh(value uint8) {
	a.triangle.timer = (a.triangle.timer & 0x00FF) | (uint16(value&0x07) << 8)
	if a.channelEnable[2] {
		a.triangle.lengthCounter = lengthTable[(value>>3)&0x1F]
	}
	a.triangle.linearCounterReload = true
}

func (a *APU) stepTriangleTimer() {
	t := &a.triangle
	if t.timerCounter == 0 {
		t.timerCounter = t.timer
		if t.lengthCounter > 0 && t.linearCounter > 0 {
			t.sequencerPos = (t.sequencerPos + 1) & 0x1F
		}
	} else {
		t.timerCounter--
	}
}

func (a *APU) clockTriangleLinear() {
	t := &a.triangle
	if t.linearCounterReload {
		t.linearCounter = t.linearCounterLoad
	} else if t.linearCounter > 0 {
		t.linearCounter--
	}
	if !t.lengthHalt {
		t.linearCounterReload = false
	}
}

func (a *APU) clockTriangleLength() {
	t := &a.triangle
	if !t.lengthHalt && t.lengthCounter > 0 {
		t.lengthCounter--
	}
}

func (a *APU) getTriangleOutput() uint8 {
	t := &a.triangle
	if t.lengthCounter == 0 || t.linearCounter == 0 {
		return 0
	}
	return triangleTable[t.sequencerPos]
}

func (a *APU) writeNoiseControl(value uint8) {
	a.noise.lengthHalt = value&0x20 != 0
	a.noise.constantVolume = value&0x10 != 0
	a.noise.volume = value & 0x0F
	a.noise.envelopeStart = true
}

func (a *APU) writeNoisePeriod(value uint8) {
	a.noise.mode = value&0x80 != 0
	a.noise.periodIndex = value & 0x0F
}

func (a *APU) writeNoiseLength(value uint8) {
	if a.channelEnable[3] {
		a.noise.lengthCounter = lengthTable[(value>>3)&0x1F]
	}
	a.noise.envelopeStart = true
}

func (a *APU) stepNoiseTimer() {
	n := &a.noise
	if n.timerCounter == 0 {
		n.timerCounter = noisePeriodTable[n.periodIndex]
		feedback := n.shiftRegister & 0x01
		if n.mode {
			feedback ^= (n.shiftRegister >> 6) & 0x01
		} else {
			feedback ^= (n.shiftRegister >> 1) & 0x01
		}
		n.shiftRegister = (n.shiftRegister >> 1) | (feedback << 14)
	} else {
		n.timerCounter--
	}
}

func (a *APU) clockNoiseEnvelope() {
	n := &a.noise
	if n.envelopeStart {
		n.envelopeStart = false
		n.envelopeCounter = 15
		n.envelopeDivider = n.volume
		return
	}
	if n.envelopeDivider == 0 {
		n.envelopeDivider = n.volume
		if n.envelopeCounter > 0 {
			n.envelopeCounter--
		} else if n.lengthHalt {
			n.envelopeCounter = 15
		}
	} else {
		n.envelopeDivider--
	}
}

func (a *APU) clockNoiseLength() {
	n := &a.noise
	if !n.lengthHalt && n.lengthCounter > 0 {
		n.lengthCounter--
	}
}

func (a *APU) getNoiseOutput() uint8 {
	n := &a.noise
	if n.lengthCounter == 0 || n.shiftRegister&0x01 != 0 {
		return 0
	}
	if n.constantVolume {
		return n.volume
	}
	return n.envelopeCounter
}

// writeChannelEnable services $4015 writes: disabling a channel immediately
// zeros its length counter.
func (a *APU) writeChannelEnable(value uint8) {
	a.channelEnable[0] = value&0x01 != 0
	a.channelEnable[1] = value&0x02 != 0
	a.channelEnable[2] = value&0x04 != 0
	a.channelEnable[3] = value&0x08 != 0

	if !a.channelEnable[0] {
		a.pulse1.lengthCounter = 0
	}
	if !a.channelEnable[1] {
		a.pulse2.lengthCounter = 0
	}
	if !a.channelEnable[2] {
		a.triangle.lengthCounter = 0
	}
	if !a.channelEnable[3] {
		a.noise.lengthCounter = 0
	}
}

// writeFrameCounter services $4017 writes: selects 4- or 5-step mode and
// resets the cycle counter; mode 1 additionally clocks quarter and half
// frame immediately.
func (a *APU) writeFrameCounter(value uint8) {
	a.fiveStepMode = value&0x80 != 0
	a.frameIRQInhibit = value&0x40 != 0
	if a.frameIRQInhibit {
		a.frameIRQFlag = false
	}
	a.frameCounter = 0
	if a.fiveStepMode {
		a.clockQuarterFrame()
		a.clockHalfFrame()
	}
}
