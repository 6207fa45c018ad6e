package main

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/embeddedlinuxer/razor/pkg/analyzer"
	"github.com/embeddedlinuxer/razor/pkg/command"
)

// execute runs a command on the connected analyzer and reports failures.
func execute(state *appState, cmd command.Command) (analyzer.Reply, bool) {
	a := state.current()
	if a == nil {
		return analyzer.Reply{}, false
	}
	reply := a.Execute(cmd)
	if !reply.OK {
		dialog.ShowError(fmt.Errorf("%s failed: %s", cmd.Kind, reply.Error), state.window)
		return reply, false
	}
	return reply, true
}

// handleCaptureToggle starts a stream capture, or ends it by asking for
// the lab watercut and calibrating.
func handleCaptureToggle(state *appState) {
	if !state.capturing {
		if _, ok := execute(state, command.Command{Kind: command.BeginCapture}); !ok {
			return
		}
		state.capturing = true
		updateCaptureButton(state.captureBtn, true)
		return
	}

	showCalibrateDialog(state)
}

// showCalibrateDialog collects the lab sample and applies the calibration.
// Cancelling leaves the capture running.
func showCalibrateDialog(state *appState) {
	cfg := state.store.Config()

	labEntry := widget.NewEntry()
	labEntry.SetPlaceHolder("Lab watercut (%)")
	streamEntry := widget.NewEntry()
	streamEntry.SetText(strconv.Itoa(cfg.Calibration.Stream))

	items := []*widget.FormItem{
		widget.NewFormItem("Lab Watercut (%)", labEntry),
		widget.NewFormItem("Stream", streamEntry),
	}

	dialog.ShowForm("Calibrate", "Apply", "Cancel", items, func(submit bool) {
		if !submit {
			return
		}
		lab, err := strconv.ParseFloat(labEntry.Text, 64)
		if err != nil {
			dialog.ShowError(fmt.Errorf("invalid lab watercut: %w", err), state.window)
			return
		}
		stream, err := strconv.Atoi(streamEntry.Text)
		if err != nil {
			dialog.ShowError(fmt.Errorf("invalid stream: %w", err), state.window)
			return
		}

		reply, ok := execute(state, command.Command{Kind: command.EndCapture, Lab: lab, Stream: stream})
		// The capture ends even when the calibration is rejected.
		state.capturing = false
		updateCaptureButton(state.captureBtn, false)
		if !ok || reply.Calibration == nil {
			return
		}

		res := reply.Calibration
		msg := fmt.Sprintf("Stream %d bias set to %.2f %%", res.Stream, res.Bias)
		if res.Averaged {
			msg += " (averaged)"
		}
		dialog.ShowInformation("Calibration", msg, state.window)
	}, state.window)
}

// handleResetTemperature restarts the temperature average.
func handleResetTemperature(state *appState) {
	execute(state, command.Command{Kind: command.ResetTemperatureAverage})
}

// updateCaptureButton shows whether a capture is running.
func updateCaptureButton(btn *widget.Button, capturing bool) {
	if capturing {
		btn.Importance = widget.HighImportance
		btn.SetText("End Capture")
	} else {
		btn.Importance = widget.MediumImportance
		btn.SetText("Capture")
	}
	btn.Refresh()
}

var errNotConnected = errors.New("analyzer not connected")

// requireConnection shows an error unless an analyzer is running.
func requireConnection(state *appState, w fyne.Window) bool {
	if state.current() == nil {
		dialog.ShowError(errNotConnected, w)
		return false
	}
	return true
}
