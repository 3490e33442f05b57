package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	cancelled int
}

func (b *batchRecorder) callbacks(onCompleted func()) BatchCallbacks {
	return BatchCallbacks{
		OnStart: func(path string) {
			b.mu.Lock()
			b.started = append(b.started, path)
			b.mu.Unlock()
		},
		OnCompleted: func(rec *Reconstruction) {
			b.mu.Lock()
			b.completed = append(b.completed, rec.Path)
			b.mu.Unlock()
			if onCompleted != nil {
				onCompleted()
			}
		},
		OnError: func(path string, err error) {
			b.mu.Lock()
			b.failed = append(b.failed, path)
			b.mu.Unlock()
		},
		OnCancelled: func() {
			b.mu.Lock()
			b.cancelled++
			b.mu.Unlock()
		},
	}
}

func batchFiles(t *testing.T, cfg Config, n int) ([]string, *fakeLoader) {
	t.Helper()
	files := map[string][]float64{}
	var names []string
	for i := 0; i < n; i++ {
		name := filepath.Join("in", string(rune('a'+i))+".wav")
		files[name] = triangleTone(t, cfg, uint8(55+i), framesOf(cfg, 4))
		names = append(names, name)
	}
	return names, newFakeLoader(files)
}

func TestBatchReconstruction_Completes(t *testing.T) {
	cfg := testConfig()
	names, loader := batchFiles(t, cfg, 3)
	names = append(names, "in/missing.wav")
	r := newTestReconstructor(t, cfg, loader)
	outDir := t.TempDir()

	rec := &batchRecorder{}
	log := &eventLog{}
	batch := NewBatchReconstruction(r, names, outDir, rec.callbacks(nil), log.record)
	require.NoError(t, batch.Start(context.Background()))
	require.NoError(t, batch.Wait())

	assert.Equal(t, TaskCompleted, batch.Status())
	assert.ElementsMatch(t, names[:3], rec.completed)
	assert.Equal(t, []string{"in/missing.wav"}, rec.failed)
	assert.Zero(t, rec.cancelled)
	assert.Len(t, rec.started, 4)

	done := batch.Completed()
	require.Len(t, done, 3)
	for i, res := range done {
		assert.Equal(t, names[i], res.Path, "completed results keep input order")
		_, err := os.Stat(ReconstructionPath(outDir, names[i]))
		require.NoError(t, err)
	}

	events := log.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, TaskCompleted, last.Status)
	assert.Equal(t, 4, last.Completed)
}

func TestBatchReconstruction_CancelInsideCallback(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	names, loader := batchFiles(t, cfg, 5)
	r := newTestReconstructor(t, cfg, loader)

	rec := &batchRecorder{}
	var batch *BatchReconstruction
	batch = NewBatchReconstruction(r, names, "", rec.callbacks(func() {
		batch.Cancel()
	}), nil)

	require.NoError(t, batch.Start(context.Background()))
	assert.ErrorIs(t, batch.Wait(), ErrTaskCancelled)

	assert.Equal(t, TaskCancelled, batch.Status())
	assert.Len(t, rec.completed, 1, "no completion may be reported after cancel")
	assert.Empty(t, rec.failed)
	assert.Equal(t, 1, rec.cancelled)
	assert.Nil(t, batch.Completed())
}

func TestBatchReconstruction_CancelLeavesOnlyReportedFiles(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	names, loader := batchFiles(t, cfg, 4)
	r := newTestReconstructor(t, cfg, loader)
	outDir := t.TempDir()

	rec := &batchRecorder{}
	var batch *BatchReconstruction
	batch = NewBatchReconstruction(r, names, outDir, rec.callbacks(func() {
		batch.Cancel()
	}), nil)
	require.NoError(t, batch.Start(context.Background()))
	assert.ErrorIs(t, batch.Wait(), ErrTaskCancelled)

	require.Len(t, rec.completed, 1)
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(ReconstructionPath(outDir, rec.completed[0])), entries[0].Name())
}

func TestBatchReconstruction_SaveFailure(t *testing.T) {
	cfg := testConfig()
	names, loader := batchFiles(t, cfg, 2)
	r := newTestReconstructor(t, cfg, loader)

	// A regular file where the output directory should be.
	outDir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(outDir, nil, 0o644))

	rec := &batchRecorder{}
	batch := NewBatchReconstruction(r, names, outDir, rec.callbacks(nil), nil)
	require.NoError(t, batch.Start(context.Background()))
	require.NoError(t, batch.Wait())

	assert.Empty(t, rec.completed)
	assert.ElementsMatch(t, names, rec.failed)
	assert.Empty(t, batch.Completed())
}

func TestBatchReconstruction_Restart(t *testing.T) {
	cfg := testConfig()
	names, loader := batchFiles(t, cfg, 2)
	r := newTestReconstructor(t, cfg, loader)

	batch := NewBatchReconstruction(r, names, "", BatchCallbacks{}, nil)
	require.NoError(t, batch.Start(context.Background()))
	require.NoError(t, batch.Wait())
	first := batch.ID()
	require.NoError(t, batch.Start(context.Background()))
	require.NoError(t, batch.Wait())
	assert.NotEqual(t, first, batch.ID())
	assert.Len(t, batch.Completed(), 2)
}

func TestReconstructionPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "song"+RECONSTRUCTION_FILE_EXT), ReconstructionPath("out", "/music/song.mp3"))
	assert.Equal(t, filepath.Join("out", "a.b"+RECONSTRUCTION_FILE_EXT), ReconstructionPath("out", "a.b.wav"))
}
