// batch_reconstruction.go - Many-file reconstruction on the task scaffold

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// BatchCallbacks are the file-level notifications of a batch. None fire
// after the batch has been cancelled, except OnCancelled itself.
type BatchCallbacks struct {
	OnStart     func(path string)
	OnCompleted func(rec *Reconstruction)
	OnError     func(path string, err error)
	OnCancelled func()
}

// BatchReconstruction reconstructs one file per unit. A file error is
// reported through OnError and does not stop the other files.
type BatchReconstruction struct {
	*Task[string, *Reconstruction]

	callbacks BatchCallbacks
	outDir    string

	// unsaved marks units whose result could not be written to outDir.
	// Only the monitor touches it while the batch runs.
	unsaved map[int]bool
}

// NewBatchReconstruction binds files to a reconstructor. When outDir is not
// empty every result is also saved there as <name>.apur.
func NewBatchReconstruction(r *Reconstructor, files []string, outDir string, callbacks BatchCallbacks, progress ProgressFunc) *BatchReconstruction {
	b := &BatchReconstruction{callbacks: callbacks, outDir: outDir}
	b.Task = NewTask(TaskSpec[string, *Reconstruction]{
		Name:            "batch",
		Workers:         r.cfg.WorkerCount(),
		ContinueOnError: true,
		Build: func(ctx context.Context) ([]string, error) {
			b.unsaved = make(map[int]bool)
			return append([]string(nil), files...), nil
		},
		Run: func(ctx context.Context, path string) (*Reconstruction, error) {
			if b.callbacks.OnStart != nil && !b.cancelled.Load() {
				b.callbacks.OnStart(path)
			}
			return r.ReconstructFile(ctx, path)
		},
		// Saving happens here so that a unit finishing after cancel leaves
		// no file behind.
		OnUnit: func(index int, path string, rec *Reconstruction, err error) {
			if err == nil && b.outDir != "" {
				if b.cancelled.Load() {
					return
				}
				if err = SaveReconstruction(rec, ReconstructionPath(b.outDir, path)); err != nil {
					b.unsaved[index] = true
				}
			}
			if err != nil {
				if b.callbacks.OnError != nil {
					b.callbacks.OnError(path, err)
				}
				return
			}
			if b.callbacks.OnCompleted != nil {
				b.callbacks.OnCompleted(rec)
			}
		},
		Describe: filepath.Base,
		Progress: func(ev ProgressEvent) {
			if ev.Status == TaskCancelled && b.callbacks.OnCancelled != nil {
				b.callbacks.OnCancelled()
			}
			if progress != nil {
				progress(ev)
			}
		},
	})
	return b
}

// Completed returns the successful reconstructions in input order once the
// batch has completed.
func (b *BatchReconstruction) Completed() []*Reconstruction {
	var out []*Reconstruction
	for i, rec := range b.Results() {
		if rec != nil && !b.unsaved[i] {
			out = append(out, rec)
		}
	}
	return out
}

// ReconstructionPath maps an input audio file to its .apur path in dir.
func ReconstructionPath(dir, input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "reconstruction"
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s", base, RECONSTRUCTION_FILE_EXT))
}
