// Package app provides emulator integration for the main application.
package app

import (
	"time"

	"nescore/internal/console"
)

// Emulator runs Console frames for the front end. Update advances exactly
// one frame and does no timing of its own: the caller's loop sets the
// cadence. The teacher's Emulator carried adaptive jitter-correction,
// frame-buffer pooling, and a whole performance-statistics subsystem on top
// of this; none of that is exercised by anything downstream here (nothing
// reads GetPerformanceStats), so it is dropped rather than adapted verbatim.
type Emulator struct {
	console *console.Console
	config  *Config

	targetFrameTime time.Duration
	lastResetTime   time.Time
	isRunning       bool

	frameCount uint64
	cycleCount uint64
}

// NewEmulator creates a new emulator instance driving c.
func NewEmulator(c *console.Console, config *Config) *Emulator {
	e := &Emulator{
		console:         c,
		config:          config,
		targetFrameTime: time.Second / 60,
		lastResetTime:   time.Now(),
	}
	return e
}

// Start starts the emulator.
func (e *Emulator) Start() {
	e.isRunning = true
}

// Stop stops the emulator.
func (e *Emulator) Stop() {
	e.isRunning = false
}

// IsRunning returns whether the emulator is running.
func (e *Emulator) IsRunning() bool {
	return e.isRunning
}

// Update runs exactly one frame of emulation, matching Ebitengine's 60Hz
// callback cadence.
func (e *Emulator) Update() error {
	if !e.isRunning {
		return nil
	}
	e.console.NextFrame()
	e.frameCount++
	return nil
}

// GetFrameBuffer returns the current frame buffer.
func (e *Emulator) GetFrameBuffer() *[256 * 240]uint32 {
	return e.console.FrameBuffer()
}

// DrainAudioSamples copies pending audio samples into dst, returning the
// count copied.
func (e *Emulator) DrainAudioSamples(dst []float32) int {
	return e.console.DrainAPUSamples(dst)
}

// GetFrameCount returns the number of frames run since construction.
func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

// GetUptime returns the time elapsed since the emulator was constructed.
func (e *Emulator) GetUptime() time.Duration {
	return time.Since(e.lastResetTime)
}

// SetCyclesPerFrame overrides the console's per-frame CPU cycle budget.
func (e *Emulator) SetCyclesPerFrame(cycles uint32) {
	e.console.SetCPUCyclesPerFrame(cycles)
}

// Cleanup releases emulator resources.
func (e *Emulator) Cleanup() error {
	e.Stop()
	return nil
}
