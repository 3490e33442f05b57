package main

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig is a small configuration that keeps library generation fast:
// low sample rate, triangle only, narrow pitch range.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.Channels = ChannelSwitches{Triangle: true}
	cfg.MinPitch = 40
	cfg.MaxPitch = 90
	cfg.Workers = 2
	return cfg
}

var (
	testLibraryOnce sync.Once
	testLibraryData *LibraryData
	testLibraryErr  error
)

// testLibrary generates the triangle and noise fragments for testConfig once
// per test binary.
func testLibrary(t *testing.T) *LibraryData {
	t.Helper()
	testLibraryOnce.Do(func() {
		cfg := testConfig()
		testLibraryData, testLibraryErr = generateLibraryData(context.Background(), cfg.LibraryConfig(),
			[]ChannelType{TriangleType, NoiseType}, 2, nil)
	})
	require.NoError(t, testLibraryErr)
	return testLibraryData
}

var (
	fullLibraryOnce sync.Once
	fullLibraryData *LibraryData
	fullLibraryErr  error
)

// fullLibrary generates every channel type at the default 44.1 kHz
// configuration once per test binary.
func fullLibrary(t *testing.T) *LibraryData {
	t.Helper()
	if testing.Short() {
		t.Skip("full library generation skipped in -short mode")
	}
	fullLibraryOnce.Do(func() {
		fullLibraryData, fullLibraryErr = generateLibraryData(context.Background(), DefaultConfig().LibraryConfig(),
			ChannelTypes, 0, nil)
	})
	require.NoError(t, fullLibraryErr)
	return fullLibraryData
}

func newTestReconstructor(t *testing.T, cfg Config, loader AudioLoader) *Reconstructor {
	t.Helper()
	r, err := newReconstructorWithData(cfg, testLibrary(t), loader)
	require.NoError(t, err)
	return r
}

// triangleTone renders a continuous triangle voice from phase 0.
func triangleTone(t *testing.T, cfg Config, pitch uint8, frames int) []float64 {
	t.Helper()
	gen := NewGenerator(TriangleType, cfg.LibraryConfig(), false)
	out, err := gen.Generate(TriangleInstruction{On: true, Pitch: pitch}, frames)
	require.NoError(t, err)
	return out
}

// fakeLoader serves in-memory buffers by path.
type fakeLoader struct {
	mu    sync.Mutex
	files map[string][]float64
	loads int
}

func newFakeLoader(files map[string][]float64) *fakeLoader {
	return &fakeLoader{files: files}
}

func (l *fakeLoader) Load(path string, sampleRate int, normalize, quantize bool) ([]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	samples, ok := l.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: no such file", path)
	}
	return append([]float64(nil), samples...), nil
}

func rmsDiff(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
