// apu_generators.go - Instruction-driven pulse, triangle and noise voices

package main

import (
	"fmt"
	"math"
)

// GeneratorState carries a voice's oscillator state across fragment boundaries.
// Tonal voices use Phase, the noise voice uses LFSR.
type GeneratorState struct {
	Phase PhaseTimerState
	LFSR  LFSRTimerState
}

// Generator synthesizes one voice. Output is unit level: [-1, 1] scaled by
// the instruction volume, before any mixing level is applied.
type Generator interface {
	Type() ChannelType
	// Generate renders frames samples of instr and advances the oscillator.
	// A silent instruction renders zeros and leaves the oscillator untouched.
	Generate(instr Instruction, frames int) ([]float64, error)
	// LibraryOffset returns where a candidate's library sample lines up with
	// the oscillator's current state if instr were applied next.
	LibraryOffset(instr Instruction, frag *LibraryFragment) int
	// Align moves the oscillator to the state matching offset samples into
	// instr's library sample.
	Align(instr Instruction, offset int) error
	State() GeneratorState
	SetState(GeneratorState) error
	Reset()
}

// NewGenerator builds the voice for a channel type at cfg's sample rate.
func NewGenerator(t ChannelType, cfg LibraryConfig, resetPhase bool) Generator {
	switch t {
	case PulseType:
		return &pulseGenerator{tonalGenerator{timer: NewPhaseTimer(APU_CLOCK_NTSC, cfg.SampleRate, resetPhase), cfg: cfg}}
	case TriangleType:
		return &triangleGenerator{tonalGenerator{timer: NewPhaseTimer(APU_TRIANGLE_CLOCK, cfg.SampleRate, resetPhase), cfg: cfg}}
	default:
		return &noiseGenerator{timer: NewLFSRTimer(APU_CLOCK_NTSC, cfg.SampleRate, resetPhase)}
	}
}

// InstructionFrequency is the frequency the hardware really produces for instr.
// Noise reports its register step rate. Silence is 0.
func InstructionFrequency(cfg LibraryConfig, instr Instruction) float64 {
	switch i := instr.(type) {
	case PulseInstruction:
		if i.On {
			return QuantizeFrequency(APU_CLOCK_NTSC, PitchFrequency(cfg.A4Frequency, cfg.A4Pitch, int(i.Pitch)))
		}
	case TriangleInstruction:
		if i.On {
			return QuantizeFrequency(APU_TRIANGLE_CLOCK, PitchFrequency(cfg.A4Frequency, cfg.A4Pitch, int(i.Pitch)))
		}
	case NoiseInstruction:
		if i.On {
			return APU_CLOCK_NTSC / float64(noisePeriodTable[i.Period])
		}
	}
	return 0
}

type tonalGenerator struct {
	timer *PhaseTimer
	cfg   LibraryConfig
}

func (g *tonalGenerator) tune(pitch uint8) {
	g.timer.SetFrequency(PitchFrequency(g.cfg.A4Frequency, g.cfg.A4Pitch, int(pitch)))
}

// offsetFor predicts the phase the timer would have after tuning to pitch
// and converts it to a sample offset within one cycle.
func (g *tonalGenerator) offsetFor(pitch uint8, frag *LibraryFragment) int {
	if frag == nil || frag.Frequency <= 0 {
		return 0
	}
	phase := g.timer.Phase()
	timer := FrequencyToTimer(g.timer.clock, PitchFrequency(g.cfg.A4Frequency, g.cfg.A4Pitch, int(pitch)))
	if g.timer.resetPhase && timer != g.timer.Timer() {
		phase = 0
	}
	cycle := float64(g.cfg.SampleRate) / frag.Frequency
	offset := int(math.Round(phase * cycle))
	if offset >= int(math.Ceil(cycle)) {
		offset = 0
	}
	return offset
}

func (g *tonalGenerator) align(pitch uint8, offset int) error {
	g.tune(pitch)
	phase := float64(offset) * g.timer.Frequency() / float64(g.cfg.SampleRate)
	phase -= math.Floor(phase)
	return g.timer.SetPhase(phase)
}

func (g *tonalGenerator) State() GeneratorState {
	return GeneratorState{Phase: g.timer.State()}
}

func (g *tonalGenerator) SetState(s GeneratorState) error {
	return g.timer.SetState(s.Phase)
}

func (g *tonalGenerator) Reset() {
	g.timer.Reset()
}

type pulseGenerator struct {
	tonalGenerator
}

func (g *pulseGenerator) Type() ChannelType { return PulseType }

func (g *pulseGenerator) Generate(instr Instruction, frames int) ([]float64, error) {
	i, ok := instr.(PulseInstruction)
	if !ok {
		return nil, fmt.Errorf("pulse generator given %s", instr)
	}
	if !i.On {
		return make([]float64, frames), nil
	}
	g.tune(i.Pitch)
	out := g.timer.Generate(frames)
	gain := volumeLUT[i.Volume]
	for n, phase := range out {
		out[n] = pulseSample(int(i.Duty), phase) * gain
	}
	return out, nil
}

func (g *pulseGenerator) LibraryOffset(instr Instruction, frag *LibraryFragment) int {
	i, ok := instr.(PulseInstruction)
	if !ok || !i.On {
		return 0
	}
	return g.offsetFor(i.Pitch, frag)
}

func (g *pulseGenerator) Align(instr Instruction, offset int) error {
	i, ok := instr.(PulseInstruction)
	if !ok || !i.On {
		return nil
	}
	return g.align(i.Pitch, offset)
}

type triangleGenerator struct {
	tonalGenerator
}

func (g *triangleGenerator) Type() ChannelType { return TriangleType }

func (g *triangleGenerator) Generate(instr Instruction, frames int) ([]float64, error) {
	i, ok := instr.(TriangleInstruction)
	if !ok {
		return nil, fmt.Errorf("triangle generator given %s", instr)
	}
	if !i.On {
		return make([]float64, frames), nil
	}
	g.tune(i.Pitch)
	out := g.timer.Generate(frames)
	for n, phase := range out {
		out[n] = triangleSample(phase)
	}
	return out, nil
}

func (g *triangleGenerator) LibraryOffset(instr Instruction, frag *LibraryFragment) int {
	i, ok := instr.(TriangleInstruction)
	if !ok || !i.On {
		return 0
	}
	return g.offsetFor(i.Pitch, frag)
}

func (g *triangleGenerator) Align(instr Instruction, offset int) error {
	i, ok := instr.(TriangleInstruction)
	if !ok || !i.On {
		return nil
	}
	return g.align(i.Pitch, offset)
}

type noiseGenerator struct {
	timer *LFSRTimer
}

func (g *noiseGenerator) Type() ChannelType { return NoiseType }

func (g *noiseGenerator) Generate(instr Instruction, frames int) ([]float64, error) {
	i, ok := instr.(NoiseInstruction)
	if !ok {
		return nil, fmt.Errorf("noise generator given %s", instr)
	}
	if !i.On {
		return make([]float64, frames), nil
	}
	if err := g.timer.SetPeriod(int(i.Period), i.Short); err != nil {
		return nil, err
	}
	out := g.timer.Generate(frames)
	gain := volumeLUT[i.Volume]
	for n, bit := range out {
		out[n] = (bit*2 - 1) * gain
	}
	return out, nil
}

// Noise has no phase to line up; candidates always start at the head of the sample.
func (g *noiseGenerator) LibraryOffset(Instruction, *LibraryFragment) int { return 0 }

func (g *noiseGenerator) Align(Instruction, int) error { return nil }

func (g *noiseGenerator) State() GeneratorState {
	return GeneratorState{LFSR: g.timer.State()}
}

func (g *noiseGenerator) SetState(s GeneratorState) error {
	return g.timer.SetState(s.LFSR)
}

func (g *noiseGenerator) Reset() {
	g.timer.Reset()
}
