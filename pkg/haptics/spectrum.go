// Package haptics detects oscillatory structure in the audio helper's
// feature stream so the feedback mixer can drive the trigger-rumble
// channels on ABS/slip-like content.
package haptics

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// oscillationFloorHz is the minimum dominant frequency that counts as
// ABS/slip-like chatter rather than a slow engine swell.
const oscillationFloorHz = 6.0

// noiseFloor is the minimum FFT bin magnitude (of a unit-amplitude
// input) treated as signal rather than residual windowing leakage.
const noiseFloor = 0.05

// DetectOscillation reports the dominant frequency of samples, a
// uniformly-spaced time series sampled at sampleRate Hz, and whether
// it qualifies as ABS/slip-like oscillation. An FFT peak estimate
// measures the same thing a zero-crossing count would, but survives a
// few dropped or noisy samples that would throw off a crossing count.
func DetectOscillation(samples []float64, sampleRate float64) (hz float64, ok bool) {
	n := nextPow2(len(samples))
	if n < 8 {
		return 0, false
	}

	buf := make([]complex128, n)
	win := hannWindow(len(samples))
	for i, s := range samples {
		buf[i] = complex(s*win[i], 0)
	}

	spectrum := fft.FFT(buf)

	peakBin := 0
	peakMag := 0.0
	// Bin 0 is DC; only the positive-frequency half is meaningful.
	for i := 1; i < n/2; i++ {
		mag := cmplxAbs(spectrum[i])
		if mag > peakMag {
			peakMag = mag
			peakBin = i
		}
	}

	if peakBin == 0 || peakMag < noiseFloor*float64(n) {
		return 0, false
	}

	hz = float64(peakBin) * sampleRate / float64(n)
	return hz, hz >= oscillationFloorHz
}

func cmplxAbs(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// windowSize is how many recent samples Analyzer keeps for FFT input;
// at a 60 Hz feed rate this spans just over half a second, enough to
// resolve the 6 Hz floor.
const windowSize = 32

// Analyzer is a streaming wrapper around DetectOscillation for
// FeedbackMixer, which feeds one audio-feature sample per tick rather
// than handing over a full window at once.
type Analyzer struct {
	sampleRate float64
	buf        []float64
	pos        int
	filled     bool
}

// NewAnalyzer returns an Analyzer fed at sampleRate Hz (the session
// loop's tick rate).
func NewAnalyzer(sampleRate float64) *Analyzer {
	return &Analyzer{
		sampleRate: sampleRate,
		buf:        make([]float64, windowSize),
	}
}

// Feed appends one new sample, evicting the oldest once the window is
// full.
func (a *Analyzer) Feed(sample float64) {
	a.buf[a.pos] = sample
	a.pos = (a.pos + 1) % windowSize
	if a.pos == 0 {
		a.filled = true
	}
}

// Detect runs DetectOscillation over the current window. It reports
// ok=false until the window has filled at least once.
func (a *Analyzer) Detect() (hz float64, ok bool) {
	if !a.filled {
		return 0, false
	}
	ordered := make([]float64, windowSize)
	for i := 0; i < windowSize; i++ {
		ordered[i] = a.buf[(a.pos+i)%windowSize]
	}
	return DetectOscillation(ordered, a.sampleRate)
}
