//go:build headless

package main

type OtoPlayer struct {
	started bool
	samples []float64
}

func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return &OtoPlayer{}, nil
}

func (op *OtoPlayer) Load(samples []float64) {
	op.samples = samples
}

func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	return len(p), nil
}

// Nothing is ever pending without a device.
func (op *OtoPlayer) Done() bool {
	return true
}

func (op *OtoPlayer) Start() {
	op.started = true
}

func (op *OtoPlayer) Stop() {
	op.started = false
}

func (op *OtoPlayer) Close() {
	op.started = false
}

func (op *OtoPlayer) IsStarted() bool {
	return op.started
}
