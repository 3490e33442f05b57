// fragment.go - Fixed-length audio frames with their analysis window and feature

package main

// Fragment is one frame of audio being matched. Audio holds FrameLength
// samples; Windowed holds WindowSize samples starting at the same point,
// zero padded past the end of the buffer; Feature is the spectrum of Windowed.
type Fragment struct {
	Audio    []float64
	Windowed []float64
	Feature  []float64
}

// NewFragment builds a fragment from a window and computes its feature.
func NewFragment(windowed []float64, frameLength int, st *SpectralTransform) *Fragment {
	w := make([]float64, st.WindowSize())
	copy(w, windowed)
	return &Fragment{
		Audio:    w[:frameLength:frameLength],
		Windowed: w,
		Feature:  st.Feature(w),
	}
}

// SliceFragments cuts audio into len(audio)/frameLength consecutive
// fragments; a trailing partial frame is dropped.
func SliceFragments(audio []float64, frameLength int, st *SpectralTransform) []*Fragment {
	count := len(audio) / frameLength
	out := make([]*Fragment, count)
	for i := 0; i < count; i++ {
		start := i * frameLength
		end := min(start+st.WindowSize(), len(audio))
		out[i] = NewFragment(audio[start:end], frameLength, st)
	}
	return out
}

// Sub returns f - o element-wise in every domain.
func (f *Fragment) Sub(o *Fragment) *Fragment {
	return &Fragment{
		Audio:    subSlices(f.Audio, o.Audio),
		Windowed: subSlices(f.Windowed, o.Windowed),
		Feature:  subSlices(f.Feature, o.Feature),
	}
}

// Scale returns f multiplied by k in every domain.
func (f *Fragment) Scale(k float64) *Fragment {
	return &Fragment{
		Audio:    scaleSlice(f.Audio, k),
		Windowed: scaleSlice(f.Windowed, k),
		Feature:  scaleSlice(f.Feature, k),
	}
}

// Clone returns a deep copy.
func (f *Fragment) Clone() *Fragment {
	return f.Scale(1)
}

// Refresh recomputes Feature from Windowed. Subtracting magnitudes is only
// an approximation of the residual spectrum.
func (f *Fragment) Refresh(st *SpectralTransform) {
	f.Feature = st.Feature(f.Windowed)
}

func subSlices(a, b []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	for i := range out {
		if i < len(b) {
			out[i] -= b[i]
		}
	}
	return out
}

func scaleSlice(a []float64, k float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v * k
	}
	return out
}
