package sample

// RunningAverage is an incremental mean that restarts once it has absorbed
// window values. It keeps no history, so it is a block average rather than
// the sliding mean of Ring.WindowedMean.
type RunningAverage struct {
	value float64
	k     int
}

// Update folds x into the average and returns the new value.
func (a *RunningAverage) Update(x float64, window int) float64 {
	if a.k == 0 || a.k > window {
		a.k = 1
		a.value = 0
	}

	a.value = (a.value*float64(a.k-1) + x) / float64(a.k)
	a.k++

	return a.value
}

// Value returns the current average.
func (a *RunningAverage) Value() float64 {
	return a.value
}

// Count returns how many values the current block holds.
func (a *RunningAverage) Count() int {
	if a.k == 0 {
		return 0
	}
	return a.k - 1
}

// Reset clears the average.
func (a *RunningAverage) Reset() {
	a.value = 0
	a.k = 0
}
