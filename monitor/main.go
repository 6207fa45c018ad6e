package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/embeddedlinuxer/razor/pkg/analyzer"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
	"github.com/embeddedlinuxer/razor/pkg/meter"
	"github.com/embeddedlinuxer/razor/pkg/sample"
	"github.com/embeddedlinuxer/razor/pkg/scope"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked counter instead of serial port")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	// The store outlives connections so settings persist while disconnected.
	ctx, cancel := context.WithCancel(context.Background())
	store := config.NewStore(cfg, *configFlag)
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		store.Run(ctx)
	}()

	application := app.NewWithID("com.embeddedlinuxer.razor")

	window := application.NewWindow("Razor Watercut Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		store:   store,
		window:  window,
		useMock: *mockFlag,
		trend:   scope.New(cfg.Display.Window, 0),
	}
	state.averages = widget.NewLabel(averagesText(sample.Averages{}))

	toolbar := createToolbar(state)

	content := container.NewBorder(
		toolbar,
		state.averages,
		nil,
		nil,
		state.trend,
	)

	window.SetContent(content)
	window.ShowAndRun()

	closeMeasurementChain(state.chain)
	cancel()
	<-storeDone
}

// measurementChain tracks one running analyzer for graceful shutdown.
type measurementChain struct {
	analyzer *analyzer.Analyzer
	cancel   context.CancelFunc
	done     chan struct{} // closed when Run returns
}

// appState holds the application state.
type appState struct {
	store    *config.Store
	window   fyne.Window
	trend    *scope.TrendWidget
	averages *widget.Label

	connectBtn   *widget.Button
	captureBtn   *widget.Button
	resetTempBtn *widget.Button

	useMock   bool
	capturing bool
	chain     *measurementChain // nil if not connected

	mu sync.Mutex
}

// current returns the running analyzer, or nil.
func (s *appState) current() *analyzer.Analyzer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain == nil {
		return nil
	}
	return s.chain.analyzer
}

// createToolbar creates the toolbar with Connect, Settings, Capture and
// Reset Temperature buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	captureBtn := widget.NewButtonWithIcon("Capture", theme.MediaRecordIcon(), func() {
		handleCaptureToggle(state)
	})
	captureBtn.Disable()
	state.captureBtn = captureBtn

	resetTempBtn := widget.NewButtonWithIcon("Reset Temperature", theme.ViewRefreshIcon(), func() {
		handleResetTemperature(state)
	})
	resetTempBtn.Disable()
	state.resetTempBtn = resetTempBtn

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn),
		container.NewHBox(captureBtn, resetTempBtn),
		nil,
	)
}

// closeMeasurementChain stops the analyzer and waits for Run to return,
// which also closes the counter.
func closeMeasurementChain(chain *measurementChain) {
	if chain == nil {
		return
	}
	chain.cancel()
	<-chain.done
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.current() != nil {
		disconnect(state)
		return
	}
	if err := connect(state); err != nil {
		dialog.ShowError(err, state.window)
	}
}

func disconnect(state *appState) {
	state.mu.Lock()
	chain := state.chain
	state.chain = nil
	state.mu.Unlock()

	closeMeasurementChain(chain)

	state.capturing = false
	updateCaptureButton(state.captureBtn, false)
	state.captureBtn.Disable()
	state.resetTempBtn.Disable()
	log.Printf("Disconnected")
}

func connect(state *appState) error {
	cfg := state.store.Config()

	var device counter.Device
	if state.useMock {
		device = counter.NewMock(&cfg.Mock, cfg.Counter.Multiplier)
	} else {
		device = counter.New(cfg.Serial.Port, cfg.Serial.BaudRate)
	}

	if err := device.Connect(); err != nil {
		if state.useMock {
			return fmt.Errorf("failed to connect to mocked counter: %w", err)
		}
		return fmt.Errorf("failed to connect to %s: %w", cfg.Serial.Port, err)
	}

	a, err := analyzer.New(state.store, device)
	if err != nil {
		device.Close()
		return err
	}

	a.Meter().OnUpdate(func(m meter.Measurement) {
		UpdateWidgetOnMainThread(func() {
			state.trend.Update(m)
		})
	})
	a.OnAverages(func(avg sample.Averages) {
		text := averagesText(avg)
		UpdateWidgetOnMainThread(func() {
			state.averages.SetText(text)
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	chain := &measurementChain{analyzer: a, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(chain.done)
		if err := a.Run(ctx); err != nil {
			log.Printf("Analyzer stopped: %v", err)
		}
	}()

	state.mu.Lock()
	state.chain = chain
	state.mu.Unlock()

	state.captureBtn.Enable()
	state.resetTempBtn.Enable()
	if state.useMock {
		log.Printf("Connected to mocked counter, instance %s", a.ID())
	} else {
		log.Printf("Connected to %s, instance %s", cfg.Serial.Port, a.ID())
	}
	return nil
}
