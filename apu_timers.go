// apu_timers.go - Discrete APU timers running at an arbitrary output sample rate

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"math"
)

// FrequencyToTimer quantizes a frequency to the 11-bit timer register the
// hardware would need: round(clock / (16 * f)) - 1, clamped to [0, 0x7FF].
func FrequencyToTimer(clock, frequency float64) int {
	if frequency <= 0 {
		return APU_TIMER_MAX
	}
	timer := int(math.Round(clock/(APU_TIMER_DIVIDER*frequency))) - 1
	if timer < 0 {
		return 0
	}
	if timer > APU_TIMER_MAX {
		return APU_TIMER_MAX
	}
	return timer
}

// TimerToFrequency is the frequency the hardware actually produces for a timer value.
func TimerToFrequency(clock float64, timer int) float64 {
	return clock / (APU_TIMER_DIVIDER * float64(timer+1))
}

// QuantizeFrequency rounds a frequency to the nearest achievable one.
func QuantizeFrequency(clock, frequency float64) float64 {
	return TimerToFrequency(clock, FrequencyToTimer(clock, frequency))
}

// PhaseTimerState is the restorable state of a PhaseTimer.
type PhaseTimerState struct {
	Timer     int
	Frequency float64
	Phase     float64
}

// PhaseTimer drives the pulse and triangle sequencers. The phase is a
// continuous position in [0, 1) within one sequencer cycle.
type PhaseTimer struct {
	clock      float64
	sampleRate int
	resetPhase bool

	timer     int
	frequency float64
	phase     float64
}

// NewPhaseTimer creates a timer ticking at clock. Triangle timers pass half
// the CPU clock because their sequencer has 32 steps instead of 16.
func NewPhaseTimer(clock float64, sampleRate int, resetPhase bool) *PhaseTimer {
	return &PhaseTimer{
		clock:      clock,
		sampleRate: sampleRate,
		resetPhase: resetPhase,
		timer:      APU_TIMER_MAX,
		frequency:  TimerToFrequency(clock, APU_TIMER_MAX),
	}
}

// SetFrequency stores the quantized timer and the frequency it really produces.
func (t *PhaseTimer) SetFrequency(frequency float64) {
	timer := FrequencyToTimer(t.clock, frequency)
	if t.resetPhase && timer != t.timer {
		t.phase = 0
	}
	t.timer = timer
	t.frequency = TimerToFrequency(t.clock, timer)
}

// Frequency returns the achieved (quantized) frequency.
func (t *PhaseTimer) Frequency() float64 {
	return t.frequency
}

// Timer returns the timer register value.
func (t *PhaseTimer) Timer() int {
	return t.timer
}

// Phase returns the current sequencer phase.
func (t *PhaseTimer) Phase() float64 {
	return t.phase
}

// CycleSamples is the length of one sequencer cycle in output samples.
func (t *PhaseTimer) CycleSamples() float64 {
	return float64(t.sampleRate) / t.frequency
}

// Generate produces a phase ramp of frames samples and advances the timer.
func (t *PhaseTimer) Generate(frames int) []float64 {
	out, phase := t.ramp(frames, t.phase)
	t.phase = phase
	return out
}

// GenerateFrom produces a phase ramp seeded from an external phase and
// returns the terminal phase. Internal state is left untouched.
func (t *PhaseTimer) GenerateFrom(frames int, phase float64) ([]float64, float64, error) {
	if err := validatePhase(phase); err != nil {
		return nil, 0, err
	}
	out, end := t.ramp(frames, phase)
	return out, end, nil
}

func (t *PhaseTimer) ramp(frames int, phase float64) ([]float64, float64) {
	out := make([]float64, frames)
	inc := t.frequency / float64(t.sampleRate)
	for i := range out {
		out[i] = phase
		phase += inc
		if phase >= 1 {
			phase -= math.Floor(phase)
		}
	}
	return out, phase
}

// State returns the full timer state.
func (t *PhaseTimer) State() PhaseTimerState {
	return PhaseTimerState{Timer: t.timer, Frequency: t.frequency, Phase: t.phase}
}

// SetState restores a state captured with State.
func (t *PhaseTimer) SetState(s PhaseTimerState) error {
	if err := validatePhase(s.Phase); err != nil {
		return err
	}
	if s.Timer < 0 || s.Timer > APU_TIMER_MAX {
		return fmt.Errorf("%w: timer %d outside [0, %d]", ErrInvalidTimerState, s.Timer, APU_TIMER_MAX)
	}
	t.timer = s.Timer
	t.frequency = TimerToFrequency(t.clock, s.Timer)
	t.phase = s.Phase
	return nil
}

// SetPhase moves the sequencer to phase without touching the timer.
func (t *PhaseTimer) SetPhase(phase float64) error {
	if err := validatePhase(phase); err != nil {
		return err
	}
	t.phase = phase
	return nil
}

// Reset returns the timer to its power-up state.
func (t *PhaseTimer) Reset() {
	t.timer = APU_TIMER_MAX
	t.frequency = TimerToFrequency(t.clock, APU_TIMER_MAX)
	t.phase = 0
}

func validatePhase(phase float64) error {
	if math.IsNaN(phase) || phase < 0 || phase >= 1 {
		return fmt.Errorf("%w: phase %v outside [0, 1)", ErrInvalidTimerState, phase)
	}
	return nil
}

// LFSRTimerState is the restorable state of an LFSRTimer.
type LFSRTimerState struct {
	Period   int
	Short    bool
	Register uint16
	Clock    float64
}

// LFSRTimer drives the noise channel's 15-bit shift register.
type LFSRTimer struct {
	clock      float64
	sampleRate int
	resetPhase bool

	period   int
	short    bool
	register uint16
	sub      float64 // progress towards the next register step, in [0, 1)
}

// NewLFSRTimer creates a noise timer with the register at its power-up seed.
func NewLFSRTimer(clock float64, sampleRate int, resetPhase bool) *LFSRTimer {
	return &LFSRTimer{
		clock:      clock,
		sampleRate: sampleRate,
		resetPhase: resetPhase,
		register:   APU_LFSR_SEED,
	}
}

// SetPeriod selects one of the 16 hardware periods and the feedback mode.
func (t *LFSRTimer) SetPeriod(period int, short bool) error {
	if period < 0 || period >= APU_PERIOD_SIZE {
		return fmt.Errorf("%w: noise period %d outside [0, %d]", ErrInvalidConfig, period, APU_NOISE_MAX)
	}
	if t.resetPhase && (period != t.period || short != t.short) {
		t.register = APU_LFSR_SEED
		t.sub = 0
	}
	t.period = period
	t.short = short
	return nil
}

// StepRate is the number of register steps per output sample.
func (t *LFSRTimer) StepRate() float64 {
	return t.clock / float64(noisePeriodTable[t.period]) / float64(t.sampleRate)
}

// Frequency is the register step rate in Hz.
func (t *LFSRTimer) Frequency() float64 {
	return t.clock / float64(noisePeriodTable[t.period])
}

// Generate produces frames samples of the register output bit in [0, 1],
// box-filtered over every step inside a sample, and advances the register.
func (t *LFSRTimer) Generate(frames int) []float64 {
	out, reg, sub := t.run(frames, t.register, t.sub)
	t.register = reg
	t.sub = sub
	return out
}

// GenerateFrom runs from an explicit register and clock fraction and returns
// the terminal pair. Internal state is left untouched.
func (t *LFSRTimer) GenerateFrom(frames int, register uint16, clock float64) ([]float64, uint16, float64, error) {
	if err := validateLFSR(register, clock); err != nil {
		return nil, 0, 0, err
	}
	out, reg, sub := t.run(frames, register, clock)
	return out, reg, sub, nil
}

func (t *LFSRTimer) run(frames int, reg uint16, sub float64) ([]float64, uint16, float64) {
	out := make([]float64, frames)
	rate := t.StepRate()
	tap := uint(APU_LFSR_TAP)
	if t.short {
		tap = APU_LFSR_SHORT
	}
	for i := range out {
		remaining := 1.0
		acc := 0.0
		for {
			// Time left until the next step, in fractions of this sample.
			dt := (1 - sub) / rate
			if dt >= remaining {
				acc += lfsrOutput(reg) * remaining
				sub += remaining * rate
				break
			}
			acc += lfsrOutput(reg) * dt
			remaining -= dt
			reg = lfsrStep(reg, tap)
			sub = 0
		}
		if sub >= 1 {
			// The step lands exactly on the sample boundary.
			reg = lfsrStep(reg, tap)
			sub = 0
		}
		out[i] = acc
	}
	return out, reg, sub
}

// lfsrStep shifts the register once; feedback is bit 0 XOR the tap bit.
//
//go:nosplit
func lfsrStep(reg uint16, tap uint) uint16 {
	feedback := (reg ^ (reg >> tap)) & 1
	return ((reg >> 1) | (feedback << (APU_LFSR_BITS - 1))) & APU_LFSR_MASK
}

// lfsrOutput is 1 while bit 0 is clear; the hardware mutes the channel when it is set.
//
//go:nosplit
func lfsrOutput(reg uint16) float64 {
	return float64(^reg & 1)
}

// State returns the full noise timer state.
func (t *LFSRTimer) State() LFSRTimerState {
	return LFSRTimerState{Period: t.period, Short: t.short, Register: t.register, Clock: t.sub}
}

// SetState restores a state captured with State.
func (t *LFSRTimer) SetState(s LFSRTimerState) error {
	if err := validateLFSR(s.Register, s.Clock); err != nil {
		return err
	}
	if s.Period < 0 || s.Period >= APU_PERIOD_SIZE {
		return fmt.Errorf("%w: noise period %d outside [0, %d]", ErrInvalidTimerState, s.Period, APU_NOISE_MAX)
	}
	t.period = s.Period
	t.short = s.Short
	t.register = s.Register
	t.sub = s.Clock
	return nil
}

// Reset returns the register to its seed.
func (t *LFSRTimer) Reset() {
	t.period = 0
	t.short = false
	t.register = APU_LFSR_SEED
	t.sub = 0
}

func validateLFSR(register uint16, clock float64) error {
	if register < 1 || register > APU_LFSR_MASK {
		return fmt.Errorf("%w: LFSR register 0x%04X outside [0x0001, 0x7FFF]", ErrInvalidTimerState, register)
	}
	if math.IsNaN(clock) || clock < 0 || clock >= 1 {
		return fmt.Errorf("%w: LFSR clock %v outside [0, 1)", ErrInvalidTimerState, clock)
	}
	return nil
}
