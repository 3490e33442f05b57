// library_generator.go - Parallel synthesis of every instruction's library fragment

package main

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// LibraryGeneration is a cancellable task that builds, and optionally saves,
// the library for one fingerprint.
type LibraryGeneration struct {
	*Task[[]Instruction, []*LibraryFragment]

	Key LibraryKey

	mu   sync.Mutex
	data *LibraryData
}

// Data returns the generated library once the task has completed.
func (g *LibraryGeneration) Data() *LibraryData {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.data
}

// NewLibraryGenerationTask prepares generation of cfg's library for every
// channel type. When lib is non-nil the result is saved there before the
// task completes.
func NewLibraryGenerationTask(cfg Config, lib *Library, progress ProgressFunc) (*LibraryGeneration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newLibraryGeneration(cfg.LibraryConfig(), ChannelTypes, cfg.WorkerCount(), lib, progress), nil
}

func newLibraryGeneration(lc LibraryConfig, types []ChannelType, workers int, lib *Library, progress ProgressFunc) *LibraryGeneration {
	key := CreateKey(lc)
	st := NewSpectralTransform(lc.SampleRate, lc.WindowSize(), lc.Gamma)
	gen := &LibraryGeneration{Key: key}

	gen.Task = NewTask(TaskSpec[[]Instruction, []*LibraryFragment]{
		Name:    "library",
		Workers: workers,
		Build: func(ctx context.Context) ([][]Instruction, error) {
			var all []Instruction
			for _, t := range types {
				all = append(all, PossibleInstructions(t)...)
			}
			return batchInstructions(all, LIBRARY_BATCH_SIZE), nil
		},
		Run: func(ctx context.Context, batch []Instruction) ([]*LibraryFragment, error) {
			out := make([]*LibraryFragment, 0, len(batch))
			for _, instr := range batch {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				frag, err := GenerateFragment(lc, st, instr)
				if err != nil {
					return nil, err
				}
				out = append(out, frag)
			}
			return out, nil
		},
		Reduce: func(ctx context.Context, results [][]*LibraryFragment) error {
			frags := make(map[Instruction]*LibraryFragment)
			for _, batch := range results {
				for _, f := range batch {
					frags[f.Instruction] = f
				}
			}
			data := NewLibraryData(key, lc, frags)
			if lib != nil {
				if err := lib.Save(key, data); err != nil {
					return err
				}
			}
			gen.mu.Lock()
			gen.data = data
			gen.mu.Unlock()
			return nil
		},
		Describe: func(batch []Instruction) string {
			if len(batch) == 0 {
				return ""
			}
			return fmt.Sprintf("%s..%s", batch[0], batch[len(batch)-1])
		},
		Progress: progress,
	})
	return gen
}

// GenerateLibrary builds cfg's library on the worker pool and blocks until
// it is done or ctx is cancelled. Nothing is written to disk.
func GenerateLibrary(ctx context.Context, cfg Config, progress ProgressFunc) (*LibraryData, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return generateLibraryData(ctx, cfg.LibraryConfig(), ChannelTypes, cfg.WorkerCount(), progress)
}

// generateLibraryData builds the fragments of selected channel types only.
// The fingerprint is unchanged; callers must not save a partial library.
func generateLibraryData(ctx context.Context, lc LibraryConfig, types []ChannelType, workers int, progress ProgressFunc) (*LibraryData, error) {
	gen := newLibraryGeneration(lc, types, workers, nil, progress)
	if err := gen.Start(ctx); err != nil {
		return nil, err
	}
	if err := gen.Wait(); err != nil {
		return nil, err
	}
	return gen.Data(), nil
}

func batchInstructions(all []Instruction, size int) [][]Instruction {
	var out [][]Instruction
	for start := 0; start < len(all); start += size {
		end := min(start+size, len(all))
		out = append(out, all[start:end])
	}
	return out
}

// GenerateFragment synthesizes one instruction from a fresh oscillator.
// Tonal samples hold one cycle plus a window from phase 0; noise samples
// hold two windows from the register seed. The feature is the mean over
// LIBRARY_PHASE_OFFSETS evenly spaced starting points.
func GenerateFragment(lc LibraryConfig, st *SpectralTransform, instr Instruction) (*LibraryFragment, error) {
	if err := instr.Validate(); err != nil {
		return nil, err
	}
	w := st.WindowSize()
	frag := &LibraryFragment{Instruction: instr, Frequency: InstructionFrequency(lc, instr)}

	if !instr.IsOn() {
		frag.Sample = make([]float32, w)
		frag.Feature = make([]float32, st.Size())
		return frag, nil
	}

	var span float64
	if instr.Type() == NoiseType {
		span = float64(w)
	} else {
		span = float64(lc.SampleRate) / frag.Frequency
	}
	length := int(math.Ceil(span)) + w

	gen := NewGenerator(instr.Type(), lc, false)
	samples, err := gen.Generate(instr, length)
	if err != nil {
		return nil, err
	}

	feature := make([]float64, st.Size())
	for k := 0; k < LIBRARY_PHASE_OFFSETS; k++ {
		off := int(math.Round(float64(k) * span / LIBRARY_PHASE_OFFSETS))
		f := st.Feature(samples[off : off+w])
		for i, v := range f {
			feature[i] += v / LIBRARY_PHASE_OFFSETS
		}
	}

	frag.Sample = make([]float32, length)
	for i, v := range samples {
		frag.Sample[i] = float32(v)
	}
	frag.Feature = make([]float32, len(feature))
	for i, v := range feature {
		frag.Feature[i] = float32(v)
	}
	return frag, nil
}
