package apu

import "testing"

func TestChannelEnableZeroesLengthCounterImmediately(t *testing.T) {
	a := New()
	a.writeChannelEnable(0x01) // enable pulse1 only
	a.writePulseTimerHigh(&a.pulse1, 0, 0x00)
	if a.pulse1.lengthCounter == 0 {
		t.Fatal("expected nonzero length counter after enabling channel and loading length")
	}

	a.writeChannelEnable(0x00) // disable all
	if a.pulse1.lengthCounter != 0 {
		t.Errorf("pulse1 length counter = %d after disable, want 0", a.pulse1.lengthCounter)
	}
}

func TestReadStatusReportsActiveLengthCounters(t *testing.T) {
	a := New()
	a.writeChannelEnable(0x0F)
	a.writePulseTimerHigh(&a.pulse1, 0, 0x00)
	a.writeTriangleTimerHigh(0x00)
	a.writeNoiseLength(0x00)

	status := a.ReadStatus()
	if status&0x01 == 0 {
		t.Error("status bit 0 (pulse1) should be set")
	}
	if status&0x02 != 0 {
		t.Error("status bit 1 (pulse2) should be clear, no length loaded")
	}
	if status&0x04 == 0 {
		t.Error("status bit 2 (triangle) should be set")
	}
	if status&0x08 == 0 {
		t.Error("status bit 3 (noise) should be set")
	}
}

func TestHalfFrameClocksLengthCounterAt14913(t *testing.T) {
	a := New()
	a.writeChannelEnable(0x01)
	a.writePulseTimerHigh(&a.pulse1, 0, 0x00) // lengthTable[0] = 10

	for i := 0; i < 14913; i++ {
		a.Step()
	}

	if a.pulse1.lengthCounter != 9 {
		t.Errorf("pulse1 lengthCounter after one half-frame = %d, want 9", a.pulse1.lengthCounter)
	}
}

func TestQuarterFrameSettlesEnvelopeAt7457(t *testing.T) {
	a := New()
	a.writePulseControl(&a.pulse1, 0x0F) // volume 15, not constant, not looping

	for i := 0; i < 7457; i++ {
		a.Step()
	}

	if a.pulse1.envelopeStart {
		t.Error("envelopeStart should be cleared after the first quarter-frame clock")
	}
	if a.pulse1.envelopeCounter != 15 {
		t.Errorf("envelopeCounter = %d, want 15", a.pulse1.envelopeCounter)
	}
}

func TestFourStepFrameCounterResetsAt29829(t *testing.T) {
	a := New()
	for i := 0; i < 29829; i++ {
		a.Step()
	}
	if a.frameCounter != 0 {
		t.Errorf("frameCounter = %d after 29829 cycles in 4-step mode, want reset to 0", a.frameCounter)
	}
	if !a.frameIRQFlag {
		t.Error("frame IRQ flag should be set at the end of the 4-step sequence")
	}
}

func TestFiveStepModeSuppressesFrameIRQAndResetsAt37282(t *testing.T) {
	a := New()
	a.writeFrameCounter(0x80) // 5-step mode
	for i := 0; i < 37282; i++ {
		a.Step()
	}
	if a.frameCounter != 0 {
		t.Errorf("frameCounter = %d after 37282 cycles in 5-step mode, want reset to 0", a.frameCounter)
	}
	if a.frameIRQFlag {
		t.Error("5-step mode never sets the frame IRQ flag")
	}
}

func TestFrameIRQInhibitClearsFlagAndBlocksFutureAssertion(t *testing.T) {
	a := New()
	for i := 0; i < 29829; i++ {
		a.Step()
	}
	if !a.frameIRQFlag {
		t.Fatal("expected frame IRQ flag to be set before writing $4017")
	}
	a.writeFrameCounter(0x40) // inhibit bit set, stays in 4-step mode
	if a.frameIRQFlag {
		t.Error("writing $4017 with the inhibit bit set should clear the frame IRQ flag")
	}
	for i := 0; i < 29829; i++ {
		a.Step()
	}
	if a.frameIRQFlag {
		t.Error("frame IRQ should not assert again while inhibited")
	}
}

func TestReadStatusClearsFrameIRQFlag(t *testing.T) {
	a := New()
	a.frameIRQFlag = true
	if status := a.ReadStatus(); status&0x40 == 0 {
		t.Error("ReadStatus should report the frame IRQ flag")
	}
	if a.frameIRQFlag {
		t.Error("ReadStatus should clear the frame IRQ flag as a side effect")
	}
}

func TestSweepMutesBelowMinimumPeriod(t *testing.T) {
	a := New()
	a.pulse1.timer = 5 // below the minimum period of 8
	a.pulse1.lengthCounter = 10
	a.pulse1.sequencerPos = 1 // duty table 0 has a 1 bit at position 1
	if out := a.getPulseOutput(&a.pulse1); out != 0 {
		t.Errorf("pulse output with timer < 8 = %d, want 0 (muted)", out)
	}
}

func TestPulse1SweepNegationSubtractsExtraOne(t *testing.T) {
	a := New()
	a.pulse1.timer = 0x100
	a.pulse1.sweepNegate = true
	a.pulse1.sweepShift = 1

	got := sweepTarget(&a.pulse1, true)
	want := 0x100 - (0x100 >> 1) - 1
	if got != want {
		t.Errorf("pulse1 sweep target = %d, want %d", got, want)
	}

	a.pulse2.timer = 0x100
	a.pulse2.sweepNegate = true
	a.pulse2.sweepShift = 1
	got2 := sweepTarget(&a.pulse2, false)
	want2 := 0x100 - (0x100 >> 1)
	if got2 != want2 {
		t.Errorf("pulse2 sweep target = %d, want %d", got2, want2)
	}
}

func TestSilentFrameProducesApproximatelyExpectedSampleCount(t *testing.T) {
	a := New()
	const cpuCyclesPerFrame = 29780
	for i := 0; i < cpuCyclesPerFrame; i++ {
		a.Step()
	}

	if len(a.sampleBuffer) < 700 || len(a.sampleBuffer) > 760 {
		t.Errorf("samples generated per frame = %d, want ~735", len(a.sampleBuffer))
	}
	for i, s := range a.sampleBuffer {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 with all channels silent", i, s)
			break
		}
	}
}

func TestDrainSamplesConsumesFIFOInOrder(t *testing.T) {
	a := New()
	a.sampleBuffer = append(a.sampleBuffer, 0.1, 0.2, 0.3, 0.4)

	dst := make([]float32, 2)
	n := a.DrainSamples(dst)
	if n != 2 || dst[0] != 0.1 || dst[1] != 0.2 {
		t.Fatalf("first drain = %v (n=%d), want [0.1 0.2] (n=2)", dst, n)
	}

	dst2 := make([]float32, 4)
	n2 := a.DrainSamples(dst2)
	if n2 != 2 || dst2[0] != 0.3 || dst2[1] != 0.4 {
		t.Fatalf("second drain = %v (n=%d), want [0.3 0.4 ...] (n=2)", dst2, n2)
	}
}

func TestFIFODropsSamplesWhenFull(t *testing.T) {
	a := New()
	for len(a.sampleBuffer) < sampleFIFOCap {
		a.sampleBuffer = append(a.sampleBuffer, 0)
	}
	// 100 CPU cycles span at least two sample periods (~40.6 cycles each).
	for i := 0; i < 100; i++ {
		a.Step()
	}
	if len(a.sampleBuffer) != sampleFIFOCap {
		t.Errorf("sampleBuffer length = %d, want capped at %d", len(a.sampleBuffer), sampleFIFOCap)
	}
}
