package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/embeddedlinuxer/razor/pkg/analyzer"
	"github.com/embeddedlinuxer/razor/pkg/command"
	"github.com/embeddedlinuxer/razor/pkg/config"
	"github.com/embeddedlinuxer/razor/pkg/counter"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createAveragingTab(state),
		createDensityTab(state),
		createOutputTab(state),
		createRelayTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// applySettings changes the configuration through the running analyzer,
// or directly in the store while disconnected.
func applySettings(state *appState, fn func(*config.Config) error) {
	var err error
	if a := state.current(); a != nil {
		err = a.Apply(fn)
	} else if err = state.store.Update(fn); err == nil {
		state.store.Persist()
	}
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to apply settings: %w", err), state.window)
	}
}

func parseFloat(entry *widget.Entry, dst *float64) {
	if v, err := strconv.ParseFloat(entry.Text, 64); err == nil {
		*dst = v
	}
}

func floatEntry(v float64, format string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(fmt.Sprintf(format, v))
	return e
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := counter.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name to port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.store.Config().Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected == "" {
				return
			}
			selectedPort := portMap[portSelect.Selected]
			if selectedPort == "" {
				selectedPort = portSelect.Selected
			}

			portChanged := state.store.Config().Serial.Port != selectedPort
			applySettings(state, func(cfg *config.Config) error {
				cfg.Serial.Port = selectedPort
				return nil
			})

			// A running analyzer owns the old port, so restart the chain.
			if portChanged && state.current() != nil && !state.useMock {
				disconnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createAveragingTab creates the Averaging configuration tab.
func createAveragingTab(state *appState) *container.TabItem {
	cfg := state.store.Config()

	windowEntry := widget.NewEntry()
	windowEntry.SetText(strconv.Itoa(cfg.Averaging.Window))

	periodEntry := widget.NewEntry()
	periodEntry.SetText(cfg.Averaging.Period.String())

	resetSelect := widget.NewSelect([]string{config.ResetDaily, config.ResetOnDemand}, nil)
	resetSelect.SetSelected(cfg.Averaging.Temperature.Mode)

	resetTimeEntry := widget.NewEntry()
	resetTimeEntry.SetText(fmt.Sprintf("%02d:%02d", cfg.Averaging.Temperature.Hour, cfg.Averaging.Temperature.Minute))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Watercut Window (samples)", Widget: windowEntry},
			{Text: "Aggregation Period", Widget: periodEntry},
			{Text: "Temperature Reset", Widget: resetSelect},
			{Text: "Daily Reset At (HH:MM)", Widget: resetTimeEntry},
		},
		OnSubmit: func() {
			window, err := strconv.Atoi(windowEntry.Text)
			if err == nil && window != cfg.Averaging.Window {
				if state.current() != nil {
					execute(state, command.Command{Kind: command.SetAveragingWindow, Window: window})
				} else {
					applySettings(state, func(cfg *config.Config) error {
						cfg.Averaging.Window = window
						return nil
					})
				}
			}

			applySettings(state, func(cfg *config.Config) error {
				// The aggregation period applies on the next connect.
				if p, err := time.ParseDuration(periodEntry.Text); err == nil {
					cfg.Averaging.Period = p
				}
				if resetSelect.Selected != "" {
					cfg.Averaging.Temperature.Mode = resetSelect.Selected
				}
				if at, err := time.Parse("15:04", resetTimeEntry.Text); err == nil {
					cfg.Averaging.Temperature.Hour = at.Hour()
					cfg.Averaging.Temperature.Minute = at.Minute()
				}
				return nil
			})
		},
	}

	return container.NewTabItem("Averaging", form)
}

// createDensityTab creates the Density correction tab.
func createDensityTab(state *appState) *container.TabItem {
	cfg := state.store.Config()

	modeSelect := widget.NewSelect([]string{
		config.DensityOff, config.DensityAnalog, config.DensityComms, config.DensityManual,
	}, nil)
	modeSelect.SetSelected(cfg.Density.Mode)

	unitSelect := widget.NewSelect([]string{config.UnitKgM3, config.UnitAPI}, nil)
	unitSelect.SetSelected(cfg.Density.Unit)

	manualEntry := floatEntry(cfg.Density.Manual, "%.2f")
	adjustEntry := floatEntry(cfg.Density.Adjust, "%.2f")
	commsEntry := widget.NewEntry()
	commsEntry.SetPlaceHolder("Host density (comms mode)")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Mode", Widget: modeSelect},
			{Text: "Unit", Widget: unitSelect},
			{Text: "Manual Density", Widget: manualEntry},
			{Text: "Density Adjust", Widget: adjustEntry},
			{Text: "Comms Density", Widget: commsEntry},
		},
		OnSubmit: func() {
			if state.current() != nil {
				execute(state, command.Command{Kind: command.SetDensityMode, Mode: modeSelect.Selected, Unit: unitSelect.Selected})
			} else {
				applySettings(state, analyzer.DensityMode(modeSelect.Selected, unitSelect.Selected))
			}

			applySettings(state, func(cfg *config.Config) error {
				parseFloat(manualEntry, &cfg.Density.Manual)
				parseFloat(adjustEntry, &cfg.Density.Adjust)
				return nil
			})

			if commsEntry.Text == "" || !requireConnection(state, state.window) {
				return
			}
			if v, err := strconv.ParseFloat(commsEntry.Text, 64); err == nil {
				execute(state, command.Command{Kind: command.SetCommsDensity, Value: v})
			}
		},
	}

	return container.NewTabItem("Density", form)
}

// createOutputTab creates the analog output tab.
func createOutputTab(state *appState) *container.TabItem {
	cfg := state.store.Config()

	alarmSelect := widget.NewSelect([]string{config.AlarmHigh, config.AlarmLow, config.AlarmHold}, nil)
	alarmSelect.SetSelected(cfg.Output.AlarmMode)

	manualCheck := widget.NewCheck("", nil)
	manualCheck.SetChecked(cfg.Output.Manual)

	manualEntry := floatEntry(cfg.Output.ManualValue, "%.2f")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Alarm Mode", Widget: alarmSelect},
			{Text: "Manual Output", Widget: manualCheck},
			{Text: "Manual Value (mA)", Widget: manualEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) error {
				if alarmSelect.Selected != "" {
					cfg.Output.AlarmMode = alarmSelect.Selected
				}
				cfg.Output.Manual = manualCheck.Checked
				parseFloat(manualEntry, &cfg.Output.ManualValue)
				return nil
			})
		},
	}

	return container.NewTabItem("Output", form)
}

// createRelayTab creates the relay tab.
func createRelayTab(state *appState) *container.TabItem {
	cfg := state.store.Config()

	modeSelect := widget.NewSelect([]string{
		config.RelayWatercut, config.RelayPhase, config.RelayError, config.RelayManual,
	}, nil)
	modeSelect.SetSelected(cfg.Relay.Mode)

	setpointEntry := floatEntry(cfg.Relay.Setpoint, "%.2f")

	delayEntry := widget.NewEntry()
	delayEntry.SetText(strconv.Itoa(cfg.Relay.Delay))

	actOnOilCheck := widget.NewCheck("", nil)
	actOnOilCheck.SetChecked(cfg.Relay.ActOnOil)

	manualCheck := widget.NewCheck("", nil)
	manualCheck.SetChecked(cfg.Relay.Manual)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Mode", Widget: modeSelect},
			{Text: "Setpoint (%)", Widget: setpointEntry},
			{Text: "Delay (ticks)", Widget: delayEntry},
			{Text: "Act On Oil", Widget: actOnOilCheck},
			{Text: "Manual On", Widget: manualCheck},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) error {
				if modeSelect.Selected != "" {
					cfg.Relay.Mode = modeSelect.Selected
				}
				parseFloat(setpointEntry, &cfg.Relay.Setpoint)
				if d, err := strconv.Atoi(delayEntry.Text); err == nil {
					cfg.Relay.Delay = d
				}
				cfg.Relay.ActOnOil = actOnOilCheck.Checked
				cfg.Relay.Manual = manualCheck.Checked
				return nil
			})
		},
	}

	return container.NewTabItem("Relay", form)
}

// createMockTab creates the Mock counter tab. Changes apply on the next connect.
func createMockTab(state *appState) *container.TabItem {
	cfg := state.store.Config()

	frequencyEntry := floatEntry(cfg.Mock.FrequencyMHz, "%.3f")
	rippleEntry := floatEntry(cfg.Mock.RippleMHz, "%.3f")
	periodEntry := widget.NewEntry()
	periodEntry.SetText(cfg.Mock.Period.String())
	temperatureEntry := floatEntry(cfg.Mock.Temperature, "%.1f")
	reflectedEntry := floatEntry(cfg.Mock.Reflected, "%.3f")
	densityEntry := floatEntry(cfg.Mock.Density, "%.2f")

	faultSelect := widget.NewSelect([]string{counter.FaultNone, counter.FaultOverflow, counter.FaultStall}, nil)
	faultSelect.SetSelected(cfg.Mock.Fault)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Frequency (MHz)", Widget: frequencyEntry},
			{Text: "Ripple (MHz)", Widget: rippleEntry},
			{Text: "Ripple Period", Widget: periodEntry},
			{Text: "Temperature (C)", Widget: temperatureEntry},
			{Text: "Reflected Power", Widget: reflectedEntry},
			{Text: "Analog Density", Widget: densityEntry},
			{Text: "Fault", Widget: faultSelect},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) error {
				parseFloat(frequencyEntry, &cfg.Mock.FrequencyMHz)
				parseFloat(rippleEntry, &cfg.Mock.RippleMHz)
				if p, err := time.ParseDuration(periodEntry.Text); err == nil {
					cfg.Mock.Period = p
				}
				parseFloat(temperatureEntry, &cfg.Mock.Temperature)
				parseFloat(reflectedEntry, &cfg.Mock.Reflected)
				parseFloat(densityEntry, &cfg.Mock.Density)
				if faultSelect.Selected != "" {
					cfg.Mock.Fault = faultSelect.Selected
				}
				return nil
			})
		},
	}

	return container.NewTabItem("Mock", form)
}
