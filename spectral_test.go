package main

import (
	"math"
	"testing"
)

func TestSpectralTransform_Axis(t *testing.T) {
	const sr, w = 44100, 2048
	for _, gamma := range []float64{0, 0.5, 1} {
		st := NewSpectralTransform(sr, w, gamma)
		if st.Size() != w/2 {
			t.Fatalf("gamma %v: size %d, want %d", gamma, st.Size(), w/2)
		}
		freqs := st.Frequencies()
		if math.Abs(freqs[0]-float64(sr)/w) > 1e-9 {
			t.Fatalf("gamma %v: first frequency %v, want %v", gamma, freqs[0], float64(sr)/w)
		}
		if math.Abs(freqs[len(freqs)-1]-sr/2) > 1e-6 {
			t.Fatalf("gamma %v: last frequency %v, want %v", gamma, freqs[len(freqs)-1], sr/2)
		}
		for k := 1; k < len(freqs); k++ {
			if freqs[k] <= freqs[k-1] {
				t.Fatalf("gamma %v: axis not increasing at %d", gamma, k)
			}
		}
	}
}

func TestSpectralTransform_GammaDensity(t *testing.T) {
	lin := NewSpectralTransform(44100, 2048, 0).Frequencies()
	exp := NewSpectralTransform(44100, 2048, 1).Frequencies()
	// The exponential axis spends more bins below 1 kHz.
	count := func(freqs []float64) int {
		n := 0
		for _, f := range freqs {
			if f < 1000 {
				n++
			}
		}
		return n
	}
	if count(exp) <= count(lin) {
		t.Fatalf("exponential axis has %d bins under 1kHz, linear has %d", count(exp), count(lin))
	}
}

func TestPerceptualWeights_Normalized(t *testing.T) {
	st := NewSpectralTransform(22050, 1024, 0.5)
	sum := 0.0
	for _, w := range st.Weights() {
		if w < 0 {
			t.Fatalf("negative weight %v", w)
		}
		sum += w
	}
	if math.Abs(sum-float64(st.Size())) > 1e-6 {
		t.Fatalf("weights sum to %v, want %d", sum, st.Size())
	}
	if w := PerceptualWeights(nil); len(w) != 0 {
		t.Fatalf("empty axis gave %d weights", len(w))
	}
}

func TestAWeighting_UnityAt1k(t *testing.T) {
	if a := aWeighting(1000); math.Abs(a-1) > 0.01 {
		t.Fatalf("A-weighting at 1 kHz = %v, want ~1", a)
	}
	if aWeighting(50) >= aWeighting(1000) {
		t.Fatalf("low frequencies should be attenuated")
	}
}

func TestSpectralTransform_SinePeak(t *testing.T) {
	const sr, w = 16000, 1024
	st := NewSpectralTransform(sr, w, 0)
	for _, freq := range []float64{500, 1250, 3000} {
		samples := make([]float64, w)
		for i := range samples {
			samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
		}
		feature := st.Feature(samples)
		peak := 0
		for k := range feature {
			if feature[k] > feature[peak] {
				peak = k
			}
		}
		if got := st.Frequencies()[peak]; math.Abs(got-freq) > 2*float64(sr)/w {
			t.Fatalf("sine at %v Hz peaks at %v Hz", freq, got)
		}
		// A unit sine under a normalized Hann window peaks near 0.5.
		if feature[peak] < 0.3 || feature[peak] > 0.6 {
			t.Fatalf("sine at %v Hz peak magnitude %v", freq, feature[peak])
		}
	}
}

func TestSpectralTransform_ZeroAndShortInput(t *testing.T) {
	st := NewSpectralTransform(8000, 1024, 0.5)
	for _, v := range st.Feature(make([]float64, 1024)) {
		if v != 0 {
			t.Fatalf("silence produced %v", v)
		}
	}
	short := st.Feature([]float64{1, -1, 1})
	if len(short) != st.Size() {
		t.Fatalf("short input gave %d bins", len(short))
	}
	long := st.Feature(make([]float64, 5000))
	if len(long) != st.Size() {
		t.Fatalf("long input gave %d bins", len(long))
	}
}

func TestFragment_SliceAndSub(t *testing.T) {
	st := NewSpectralTransform(8000, 1024, 0.5)
	audio := make([]float64, 1000)
	for i := range audio {
		audio[i] = math.Sin(float64(i) / 5)
	}
	frags := SliceFragments(audio, 133, st)
	if len(frags) != 1000/133 {
		t.Fatalf("got %d fragments, want %d", len(frags), 1000/133)
	}
	for n, f := range frags {
		if len(f.Audio) != 133 || len(f.Windowed) != 1024 || len(f.Feature) != st.Size() {
			t.Fatalf("fragment %d has lengths %d/%d/%d", n, len(f.Audio), len(f.Windowed), len(f.Feature))
		}
		if f.Audio[0] != audio[n*133] {
			t.Fatalf("fragment %d starts at the wrong sample", n)
		}
	}
	// The last window runs past the buffer and is zero padded.
	last := frags[len(frags)-1]
	if last.Windowed[1023] != 0 {
		t.Fatalf("tail not zero padded")
	}

	diff := frags[0].Sub(frags[0])
	diff.Refresh(st)
	for _, v := range diff.Feature {
		if v != 0 {
			t.Fatalf("self difference has feature %v", v)
		}
	}
	clone := frags[1].Clone()
	clone.Audio[0] = 99
	if frags[1].Audio[0] == 99 {
		t.Fatalf("Clone shares storage")
	}
	if n := len(SliceFragments(audio[:100], 133, st)); n != 0 {
		t.Fatalf("audio shorter than a frame should give no fragments")
	}
}
