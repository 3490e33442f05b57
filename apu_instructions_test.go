package main

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPossibleInstructions_Counts(t *testing.T) {
	tests := []struct {
		typ  ChannelType
		want int
	}{
		{PulseType, 1 + 128*15*4},
		{TriangleType, 1 + 128},
		{NoiseType, 1 + 16*15*2},
	}
	for _, tc := range tests {
		t.Run(tc.typ.String(), func(t *testing.T) {
			instrs := PossibleInstructions(tc.typ)
			require.Len(t, instrs, tc.want)
			assert.False(t, instrs[0].IsOn(), "silence must sort first")

			seen := make(map[Instruction]bool, len(instrs))
			for _, instr := range instrs {
				require.NoError(t, instr.Validate())
				require.Equal(t, tc.typ, instr.Type())
				require.False(t, seen[instr], "duplicate %s", instr)
				seen[instr] = true
			}
		})
	}
}

func TestSortInstructions_MatchesEnumeration(t *testing.T) {
	for _, typ := range ChannelTypes {
		want := PossibleInstructions(typ)
		got := append([]Instruction(nil), want...)
		rng := rand.New(rand.NewSource(1))
		rng.Shuffle(len(got), func(i, j int) { got[i], got[j] = got[j], got[i] })
		SortInstructions(got)
		require.Equal(t, want, got, "%s order", typ)
	}
}

func TestInstruction_Validate(t *testing.T) {
	bad := []Instruction{
		PulseInstruction{On: true, Pitch: 128, Volume: 5},
		PulseInstruction{On: true, Pitch: 60, Duty: 4, Volume: 5},
		PulseInstruction{On: true, Pitch: 60, Volume: 0},
		PulseInstruction{On: false, Pitch: 60},
		TriangleInstruction{On: true, Pitch: 200},
		TriangleInstruction{Pitch: 3},
		NoiseInstruction{On: true, Period: 16, Volume: 3},
		NoiseInstruction{On: true, Period: 2, Volume: 16},
		NoiseInstruction{Short: true},
	}
	for _, instr := range bad {
		err := instr.Validate()
		assert.True(t, errors.Is(err, ErrInvalidConfig), "%#v accepted", instr)
	}
}

func TestInstruction_Distance(t *testing.T) {
	a := PulseInstruction{On: true, Pitch: 60, Duty: 2, Volume: 15}
	b := PulseInstruction{On: true, Pitch: 72, Duty: 1, Volume: 8}
	off := PulseInstruction{}

	assert.Zero(t, a.Distance(a))
	assert.Zero(t, off.Distance(off))
	assert.Equal(t, 0.5, a.Distance(off))
	assert.Equal(t, a.Distance(b), b.Distance(a))
	assert.InDelta(t, 0.5*12/127.0+0.3*7/14.0+0.2, a.Distance(b), 1e-12)
	assert.Equal(t, 1.0, a.Distance(TriangleInstruction{On: true, Pitch: 60}))

	for _, typ := range ChannelTypes {
		instrs := PossibleInstructions(typ)
		for i := 0; i < len(instrs); i += 37 {
			for j := 0; j < len(instrs); j += 41 {
				d := instrs[i].Distance(instrs[j])
				require.GreaterOrEqual(t, d, 0.0)
				require.LessOrEqual(t, d, 1.0)
				require.Equal(t, d, instrs[j].Distance(instrs[i]))
			}
		}
	}
}

func TestParseChannel(t *testing.T) {
	for _, ch := range AllChannels {
		got, err := ParseChannel(ch.String())
		require.NoError(t, err)
		assert.Equal(t, ch, got)
	}
	_, err := ParseChannel("dmc")
	assert.Error(t, err)
	assert.Equal(t, PulseType, Pulse2.Type())
	assert.Equal(t, NoiseType, Noise.Type())
}

func TestPitchFrequency(t *testing.T) {
	assert.InDelta(t, 440.0, PitchFrequency(440, 69, 69), 1e-9)
	assert.InDelta(t, 880.0, PitchFrequency(440, 69, 81), 1e-9)
	assert.InDelta(t, 261.6256, PitchFrequency(440, 69, 60), 1e-3)
	assert.InDelta(t, 432.0, PitchFrequency(432, 69, 69), 1e-9)
}

func TestInstructionEncoding(t *testing.T) {
	for _, typ := range []ChannelType{TriangleType, NoiseType} {
		for _, instr := range PossibleInstructions(typ) {
			got, err := decodeInstruction(encodeInstruction(instr))
			require.NoError(t, err)
			require.Equal(t, instr, got)
		}
	}
	p := PulseInstruction{On: true, Pitch: 33, Duty: 3, Volume: 9}
	got, err := decodeInstruction(encodeInstruction(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = decodeInstruction([instructionEncodedSize]byte{9, 1})
	assert.Error(t, err)
}

func TestInstructionFrequency(t *testing.T) {
	lc := DefaultConfig().LibraryConfig()
	f := InstructionFrequency(lc, PulseInstruction{On: true, Pitch: 69, Volume: 15})
	assert.InDelta(t, 440, f, 1.0)
	assert.Equal(t, QuantizeFrequency(APU_CLOCK_NTSC, 440), f)

	tri := InstructionFrequency(lc, TriangleInstruction{On: true, Pitch: 69})
	assert.InDelta(t, 440, tri, 1.0)

	noise := InstructionFrequency(lc, NoiseInstruction{On: true, Period: 0, Volume: 1})
	assert.Equal(t, APU_CLOCK_NTSC/4, noise)

	assert.Zero(t, InstructionFrequency(lc, PulseInstruction{}))
}

func TestGenerator_SilenceLeavesState(t *testing.T) {
	lc := DefaultConfig().LibraryConfig()
	for _, typ := range ChannelTypes {
		gen := NewGenerator(typ, lc, false)
		on := PossibleInstructions(typ)[len(PossibleInstructions(typ))/2]
		_, err := gen.Generate(on, 100)
		require.NoError(t, err)
		before := gen.State()

		out, err := gen.Generate(SilentInstruction(typ), 64)
		require.NoError(t, err)
		require.Len(t, out, 64)
		for _, v := range out {
			require.Zero(t, v)
		}
		assert.Equal(t, before, gen.State(), "%s state moved during silence", typ)
	}
}

func TestGenerator_OutputRange(t *testing.T) {
	lc := DefaultConfig().LibraryConfig()
	tests := []Instruction{
		PulseInstruction{On: true, Pitch: 57, Duty: 2, Volume: 15},
		PulseInstruction{On: true, Pitch: 80, Duty: 0, Volume: 6},
		TriangleInstruction{On: true, Pitch: 45},
		NoiseInstruction{On: true, Period: 4, Volume: 10},
		NoiseInstruction{On: true, Period: 9, Volume: 15, Short: true},
	}
	for _, instr := range tests {
		gen := NewGenerator(instr.Type(), lc, false)
		out, err := gen.Generate(instr, 2048)
		require.NoError(t, err)
		limit := float64(instructionVolume(instr)) / APU_VOLUME_MAX
		peak := 0.0
		for _, v := range out {
			peak = math.Max(peak, math.Abs(v))
		}
		assert.LessOrEqual(t, peak, limit+1e-9, "%s", instr)
		assert.Greater(t, peak, 0.0, "%s", instr)
	}
}

func TestGenerator_WrongType(t *testing.T) {
	lc := DefaultConfig().LibraryConfig()
	gen := NewGenerator(PulseType, lc, false)
	_, err := gen.Generate(TriangleInstruction{On: true, Pitch: 60}, 10)
	assert.Error(t, err)
}

func TestGenerator_AlignMatchesLibraryOffset(t *testing.T) {
	lc := DefaultConfig().LibraryConfig()
	st := NewSpectralTransform(lc.SampleRate, lc.WindowSize(), lc.Gamma)
	instr := PulseInstruction{On: true, Pitch: 69, Duty: 2, Volume: 15}
	frag, err := GenerateFragment(lc, st, instr)
	require.NoError(t, err)

	gen := NewGenerator(PulseType, lc, false)
	require.NoError(t, gen.Align(instr, 30))
	assert.Equal(t, 30, gen.LibraryOffset(instr, frag))

	// After alignment the oscillator continues the library sample.
	out, err := gen.Generate(instr, 200)
	require.NoError(t, err)
	window := frag.Window(30, 200)
	mismatches := 0
	for i := range out {
		if math.Abs(out[i]-float64(window[i])) > 1e-6 {
			mismatches++
		}
	}
	assert.LessOrEqual(t, mismatches, 10)
}
