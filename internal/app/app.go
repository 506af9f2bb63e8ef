// Package app implements the main NES emulator application with GUI support.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	"nescore/internal/console"
	"nescore/internal/graphics"
	"nescore/internal/input"
)

// Application wires a Console to a graphics.Backend: it polls input events,
// drives the emulator one frame per callback, and blits the resulting frame
// buffer to a window. This is the reference front end, not part of the
// emulation core itself — internal/console is usable standalone by any host.
type Application struct {
	console *console.Console

	graphicsBackend graphics.Backend
	window          graphics.Window
	videoProcessor  *graphics.VideoProcessor

	config   *Config
	emulator *Emulator

	running     bool
	paused      bool
	initialized bool
	headless    bool

	startTime time.Time

	romPath     string
	romLoaded   bool
	lastESCTime time.Time
}

// ApplicationError reports a failure in a named Application subsystem.
type ApplicationError struct {
	Component string
	Operation string
	Err       error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application %s error during %s: %v", e.Component, e.Operation, e.Err)
}

// NewApplication creates a new NES emulator application.
func NewApplication(configPath string) (*Application, error) {
	return NewApplicationWithMode(configPath, false)
}

// NewApplicationWithMode creates a new NES emulator application, optionally
// forcing headless mode regardless of the configured backend.
func NewApplicationWithMode(configPath string, headless bool) (*Application, error) {
	app := &Application{
		config:    NewConfig(),
		headless:  headless,
		startTime: time.Now(),
	}

	if configPath != "" {
		if err := app.config.LoadFromFile(configPath); err != nil {
			glog.Infof("could not load config from %s, using defaults: %v", configPath, err)
		}
	}

	if err := app.initializeComponents(headless); err != nil {
		return nil, &ApplicationError{Component: "initialization", Operation: "component setup", Err: err}
	}
	return app, nil
}

func (app *Application) initializeComponents(headless bool) error {
	app.console = console.New()

	if err := app.initializeGraphicsBackend(headless); err != nil {
		return fmt.Errorf("failed to initialize graphics backend: %v", err)
	}

	app.emulator = NewEmulator(app.console, app.config)
	app.initialized = true
	return nil
}

func (app *Application) initializeGraphicsBackend(headless bool) error {
	var backendType graphics.BackendType
	if headless {
		backendType = graphics.BackendHeadless
	} else {
		switch app.config.Video.Backend {
		case "headless":
			backendType = graphics.BackendHeadless
		case "terminal":
			backendType = graphics.BackendTerminal
		default:
			backendType = graphics.BackendEbitengine
		}
	}

	var err error
	app.graphicsBackend, err = graphics.CreateBackend(backendType)
	if err != nil {
		return fmt.Errorf("failed to create graphics backend: %v", err)
	}

	graphicsConfig := graphics.Config{
		WindowTitle:  "nescore",
		WindowWidth:  app.config.Window.Width,
		WindowHeight: app.config.Window.Height,
		Fullscreen:   app.config.Window.Fullscreen,
		VSync:        app.config.Video.VSync,
		Filter:       app.config.Video.Filter,
		AspectRatio:  app.config.Video.AspectRatio,
		Headless:     headless,
		Debug:        app.config.Debug.EnableLogging,
	}

	if err := app.graphicsBackend.Initialize(graphicsConfig); err != nil {
		if backendType != graphics.BackendEbitengine {
			return fmt.Errorf("failed to initialize graphics backend: %v", err)
		}
		glog.Infof("ebitengine backend failed (%v), falling back to headless mode", err)
		app.graphicsBackend, err = graphics.CreateBackend(graphics.BackendHeadless)
		if err != nil {
			return fmt.Errorf("failed to create fallback headless backend: %v", err)
		}
		graphicsConfig.Headless = true
		if err := app.graphicsBackend.Initialize(graphicsConfig); err != nil {
			return fmt.Errorf("failed to initialize fallback headless backend: %v", err)
		}
	}

	if !headless && !app.graphicsBackend.IsHeadless() {
		app.window, err = app.graphicsBackend.CreateWindow(
			graphicsConfig.WindowTitle, graphicsConfig.WindowWidth, graphicsConfig.WindowHeight)
		if err != nil {
			return fmt.Errorf("failed to create window: %v", err)
		}
	}

	app.videoProcessor = graphics.NewVideoProcessor(
		app.config.Video.Brightness, app.config.Video.Contrast, app.config.Video.Saturation)
	return nil
}

// LoadROM loads a ROM file into the emulator.
func (app *Application) LoadROM(romPath string) error {
	if !app.initialized {
		return errors.New("application not initialized")
	}

	data, err := os.ReadFile(romPath)
	if err != nil {
		return &ApplicationError{Component: "cartridge", Operation: "read ROM file", Err: err}
	}
	if err := app.console.InsertCartridge(data); err != nil {
		return &ApplicationError{Component: "cartridge", Operation: "load ROM", Err: err}
	}

	app.romPath = romPath
	app.romLoaded = true

	if app.window != nil {
		app.window.SetTitle(fmt.Sprintf("nescore - %s", filepath.Base(romPath)))
	}

	app.emulator.Start()
	return nil
}

// Run starts the main application loop.
func (app *Application) Run() error {
	if !app.initialized {
		return errors.New("application not initialized")
	}
	app.running = true
	app.startTime = time.Now()

	glog.Infof("starting emulator with %s backend", app.graphicsBackend.GetName())

	if app.graphicsBackend.GetName() == "Ebitengine" && app.window != nil {
		if ebitengineWindow, ok := graphics.AsEbitengineWindow(app.window); ok {
			ebitengineWindow.SetEmulatorUpdateFunc(app.runOneFrame)
			return ebitengineWindow.Run()
		}
	}

	for app.running {
		if err := app.runOneFrame(); err != nil {
			glog.Infof("frame error: %v", err)
		}
		if app.window != nil && app.window.ShouldClose() {
			app.Stop()
		}
		time.Sleep(16 * time.Millisecond)
	}
	return nil
}

func (app *Application) runOneFrame() error {
	if err := app.processInput(); err != nil {
		glog.Infof("input processing error: %v", err)
	}
	if !app.paused && app.romLoaded {
		if err := app.emulator.Update(); err != nil {
			return err
		}
	}
	if err := app.render(); err != nil {
		glog.Infof("render error: %v", err)
	}
	if app.window != nil && app.window.ShouldClose() {
		app.Stop()
	}
	return nil
}

func (app *Application) processInput() error {
	if app.window == nil {
		return nil
	}
	for _, event := range app.window.PollEvents() {
		switch event.Type {
		case graphics.InputEventTypeQuit:
			app.Stop()
			return nil
		case graphics.InputEventTypeButton:
			if app.handleSpecialInput(event) {
				continue
			}
			app.applyButtonEvent(event)
		case graphics.InputEventTypeKey:
			app.handleSpecialInput(event)
		}
	}
	return nil
}

func (app *Application) applyButtonEvent(event graphics.InputEvent) {
	if !app.romLoaded {
		return
	}
	port := 1
	gButton := event.Button
	if is2PButton(gButton) {
		port = 2
		gButton = to1PButton(gButton)
	}
	button := graphicsButtonToInputButton(gButton)
	if event.Pressed {
		app.console.PressButton(port, button)
	} else {
		app.console.ReleaseButton(port, button)
	}
}

// handleSpecialInput handles non-gameplay key combinations (quit
// confirmation). Save-state hotkeys are not offered: save-state
// serialization is out of scope for this emulator.
func (app *Application) handleSpecialInput(event graphics.InputEvent) bool {
	if !event.Pressed || event.Type != graphics.InputEventTypeKey {
		return false
	}
	if event.Key == graphics.KeyEscape {
		now := time.Now()
		if !app.lastESCTime.IsZero() && now.Sub(app.lastESCTime) < 3*time.Second {
			glog.Info("ESC double-tap confirmed, shutting down")
			app.Stop()
		} else {
			glog.Info("ESC pressed, press again within 3 seconds to quit")
			app.lastESCTime = now
		}
		return true
	}
	app.lastESCTime = time.Time{}
	return false
}

func graphicsButtonToInputButton(gButton graphics.Button) input.Button {
	switch gButton {
	case graphics.ButtonA:
		return input.ButtonA
	case graphics.ButtonB:
		return input.ButtonB
	case graphics.ButtonSelect:
		return input.ButtonSelect
	case graphics.ButtonStart:
		return input.ButtonStart
	case graphics.ButtonUp:
		return input.ButtonUp
	case graphics.ButtonDown:
		return input.ButtonDown
	case graphics.ButtonLeft:
		return input.ButtonLeft
	case graphics.ButtonRight:
		return input.ButtonRight
	default:
		return input.ButtonA
	}
}

func is2PButton(gButton graphics.Button) bool {
	switch gButton {
	case graphics.Button2A, graphics.Button2B, graphics.Button2Select, graphics.Button2Start,
		graphics.Button2Up, graphics.Button2Down, graphics.Button2Left, graphics.Button2Right:
		return true
	default:
		return false
	}
}

func to1PButton(gButton graphics.Button) graphics.Button {
	switch gButton {
	case graphics.Button2A:
		return graphics.ButtonA
	case graphics.Button2B:
		return graphics.ButtonB
	case graphics.Button2Select:
		return graphics.ButtonSelect
	case graphics.Button2Start:
		return graphics.ButtonStart
	case graphics.Button2Up:
		return graphics.ButtonUp
	case graphics.Button2Down:
		return graphics.ButtonDown
	case graphics.Button2Left:
		return graphics.ButtonLeft
	case graphics.Button2Right:
		return graphics.ButtonRight
	default:
		return gButton
	}
}

func (app *Application) render() error {
	if app.window == nil {
		return nil
	}
	if !app.romLoaded {
		return nil
	}

	fb := app.emulator.GetFrameBuffer()
	processed := app.videoProcessor.ProcessFrame(fb[:])

	var frameBuffer [256 * 240]uint32
	copy(frameBuffer[:], processed)
	if err := app.window.RenderFrame(frameBuffer); err != nil {
		return fmt.Errorf("render frame: %v", err)
	}
	app.window.SwapBuffers()
	return nil
}

// GetConsole returns the console for direct access (testing, self-tests).
func (app *Application) GetConsole() *console.Console {
	return app.console
}

// GetConfig returns the application configuration.
func (app *Application) GetConfig() *Config {
	return app.config
}

// GetFrameCount returns the number of frames rendered this session.
func (app *Application) GetFrameCount() uint64 {
	return app.emulator.GetFrameCount()
}

// GetUptime returns time elapsed since Run started.
func (app *Application) GetUptime() time.Duration {
	return time.Since(app.startTime)
}

// GetFPS returns the average frames-per-second since Run started.
func (app *Application) GetFPS() float64 {
	uptime := app.GetUptime()
	if uptime <= 0 {
		return 0
	}
	return float64(app.emulator.GetFrameCount()) / uptime.Seconds()
}

// TogglePause pauses/resumes emulation.
func (app *Application) TogglePause() {
	app.paused = !app.paused
}

// Stop stops the main application loop.
func (app *Application) Stop() {
	app.running = false
}

// Cleanup releases application resources.
func (app *Application) Cleanup() error {
	if app.emulator != nil {
		if err := app.emulator.Cleanup(); err != nil {
			return err
		}
	}
	if app.window != nil {
		if err := app.window.Cleanup(); err != nil {
			return err
		}
	}
	if app.graphicsBackend != nil {
		return app.graphicsBackend.Cleanup()
	}
	return nil
}
