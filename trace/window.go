package trace

import "gonum.org/v1/gonum/stat"

// windowCapacity is the sliding window size used by the Predictive policy
// (§4.5): the last 10 response times per VM.
const windowCapacity = 10

// Window is a fixed-capacity ring buffer of response-time samples with the
// first-half/second-half slope statistic the Predictive policy needs to
// decide whether to raise or lower a VM's size.
type Window struct {
	samples []float64 // oldest first, len <= windowCapacity
}

// NewWindow returns an empty response-time window.
func NewWindow() *Window { return &Window{samples: make([]float64, 0, windowCapacity)} }

// Add records a new response-time sample, evicting the oldest sample once
// the window is at capacity.
func (w *Window) Add(sample float64) {
	if len(w.samples) < windowCapacity {
		w.samples = append(w.samples, sample)
		return
	}
	copy(w.samples, w.samples[1:])
	w.samples[windowCapacity-1] = sample
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return len(w.samples) }

// Full reports whether the window has accumulated a full 10 samples.
func (w *Window) Full() bool { return len(w.samples) == windowCapacity }

// Mean returns the mean of all samples currently held, or 0 for an empty
// window.
func (w *Window) Mean() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	return stat.Mean(w.samples, nil)
}

// Slope returns the fractional change between the mean of the first half
// and the mean of the second half of the window: (secondHalf - firstHalf)
// / firstHalf. Used by the Predictive policy's every-10-completions DVFS
// check (§4.5: slope > +10% raises size, slope < -10% lowers it). Returns
// 0 if the window isn't full or the first half's mean is 0.
func (w *Window) Slope() float64 {
	if !w.Full() {
		return 0
	}
	half := windowCapacity / 2
	first := stat.Mean(w.samples[:half], nil)
	second := stat.Mean(w.samples[half:], nil)
	if first == 0 {
		return 0
	}
	return (second - first) / first
}
