// spectral.go - Windowed FFT magnitude features on a gamma-morphed frequency axis

package main

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// SpectralTransform computes fixed-size magnitude features. It is built once
// per configuration and is safe for concurrent use.
type SpectralTransform struct {
	sampleRate int
	windowSize int
	gamma      float64

	window    []float64
	windowSum float64
	freqs     []float64 // feature axis in Hz
	binPos    []float64 // feature axis as fractional FFT bin index
	weights   []float64
}

// NewSpectralTransform builds the window and feature axis for a sample
// rate, a power-of-two window size and a gamma in [0, 1].
func NewSpectralTransform(sampleRate, windowSize int, gamma float64) *SpectralTransform {
	s := &SpectralTransform{
		sampleRate: sampleRate,
		windowSize: windowSize,
		gamma:      gamma,
		window:     window.Hann(windowSize),
	}
	for _, w := range s.window {
		s.windowSum += w
	}

	n := windowSize / 2
	fmin := float64(sampleRate) / float64(windowSize)
	fmax := float64(sampleRate) / 2
	s.freqs = make([]float64, n)
	s.binPos = make([]float64, n)
	for k := 0; k < n; k++ {
		t := 0.0
		if n > 1 {
			t = float64(k) / float64(n-1)
		}
		lin := fmin + (fmax-fmin)*t
		exp := fmin * math.Pow(fmax/fmin, t)
		f := (1-gamma)*lin + gamma*exp
		s.freqs[k] = f
		s.binPos[k] = f / fmin
	}
	s.weights = PerceptualWeights(s.freqs)
	return s
}

// Size is the feature length, windowSize/2.
func (s *SpectralTransform) Size() int { return len(s.freqs) }

// WindowSize is the number of samples a feature is computed over.
func (s *SpectralTransform) WindowSize() int { return s.windowSize }

// Frequencies returns the feature axis in Hz.
func (s *SpectralTransform) Frequencies() []float64 { return s.freqs }

// Weights returns the perceptual weight of every feature bin.
func (s *SpectralTransform) Weights() []float64 { return s.weights }

// Feature returns the magnitude spectrum of samples resampled onto the
// feature axis. Input shorter than the window is zero padded; longer input
// is truncated.
func (s *SpectralTransform) Feature(samples []float64) []float64 {
	buf := make([]float64, s.windowSize)
	n := copy(buf, samples)
	for i := 0; i < n; i++ {
		buf[i] *= s.window[i]
	}
	spectrum := fft.FFTReal(buf)

	half := s.windowSize/2 + 1
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(spectrum[i]) / s.windowSum
	}

	out := make([]float64, len(s.binPos))
	for k, pos := range s.binPos {
		lo := int(math.Floor(pos))
		if lo >= half-1 {
			out[k] = mags[half-1]
			continue
		}
		frac := pos - float64(lo)
		out[k] = mags[lo]*(1-frac) + mags[lo+1]*frac
	}
	return out
}

// FeatureFloat32 is Feature for library-stored float32 samples.
func (s *SpectralTransform) FeatureFloat32(samples []float32) []float64 {
	buf := make([]float64, len(samples))
	for i, v := range samples {
		buf[i] = float64(v)
	}
	return s.Feature(buf)
}

// aWeighting is the IEC 61672 A-weighting magnitude, 1.0 at 1 kHz.
func aWeighting(f float64) float64 {
	f2 := f * f
	const (
		c1 = 20.6 * 20.6
		c2 = 107.7 * 107.7
		c3 = 737.9 * 737.9
		c4 = 12194.0 * 12194.0
	)
	ra := c4 * f2 * f2 / ((f2 + c1) * math.Sqrt((f2+c2)*(f2+c3)) * (f2 + c4))
	return ra * 1.2589254117941673 // +2.0 dB
}

// PerceptualWeights combines A-weighting with the inverse frequency density
// of the axis (bin spacing over frequency) and normalizes the result so it
// sums to len(freqs).
func PerceptualWeights(freqs []float64) []float64 {
	n := len(freqs)
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	if n == 1 {
		w[0] = 1
		return w
	}
	sum := 0.0
	for k, f := range freqs {
		var df float64
		switch k {
		case 0:
			df = freqs[1] - freqs[0]
		case n - 1:
			df = freqs[n-1] - freqs[n-2]
		default:
			df = (freqs[k+1] - freqs[k-1]) / 2
		}
		if f <= 0 {
			continue
		}
		w[k] = aWeighting(f) * df / f
		sum += w[k]
	}
	if sum <= 0 {
		for k := range w {
			w[k] = 1
		}
		return w
	}
	scale := float64(n) / sum
	for k := range w {
		w[k] *= scale
	}
	return w
}
