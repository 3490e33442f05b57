package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePlayer struct {
	mu      sync.Mutex
	loaded  []float64
	started bool
	polls   int
	doneAt  int
}

func (p *fakePlayer) Load(samples []float64) {
	p.mu.Lock()
	p.loaded = samples
	p.mu.Unlock()
}

func (p *fakePlayer) Start() { p.setStarted(true) }
func (p *fakePlayer) Stop()  { p.setStarted(false) }
func (p *fakePlayer) Close() {}

func (p *fakePlayer) setStarted(v bool) {
	p.mu.Lock()
	p.started = v
	p.mu.Unlock()
}

func (p *fakePlayer) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *fakePlayer) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return p.doneAt >= 0 && p.polls > p.doneAt
}

func TestPlayBuffer_Finishes(t *testing.T) {
	p := &fakePlayer{doneAt: 2}
	err := playBuffer(context.Background(), p, []float64{0.1, 0.2}, 8000)
	assert.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, p.loaded)
	assert.False(t, p.IsStarted())
	assert.Equal(t, 3, p.polls)
}

func TestPlayBuffer_Cancelled(t *testing.T) {
	p := &fakePlayer{doneAt: -1}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := playBuffer(ctx, p, make([]float64, 8000), 8000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.IsStarted())
}
