package main

import (
	"fmt"
	"math"

	"fyne.io/fyne/v2"

	"github.com/embeddedlinuxer/razor/pkg/sample"
)

// UpdateWidgetOnMainThread schedules a widget update function to run on the main Fyne thread.
// This is required because Fyne widgets cannot be updated directly from goroutines.
// The callback should copy data quickly and return as fast as possible.
func UpdateWidgetOnMainThread(callback func()) {
	if callback == nil {
		return
	}
	fyne.Do(callback)
}

// averagesText formats the aggregated averages for the status bar.
func averagesText(avg sample.Averages) string {
	text := fmt.Sprintf("Avg watercut %s (%d samples)   Avg temperature %s   Avg frequency %s   Avg reflected %s",
		formatValue(avg.Watercut, "%.2f %%"),
		avg.Samples,
		formatValue(avg.Temperature, "%.1f C"),
		formatValue(avg.Frequency, "%.3f MHz"),
		formatValue(avg.ReflectedPower, "%.3f"),
	)
	if avg.Capturing {
		text += "   CAPTURING"
	}
	return text
}

func formatValue(v float64, format string) string {
	if math.IsNaN(v) {
		return "--"
	}
	return fmt.Sprintf(format, v)
}
