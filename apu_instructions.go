// apu_instructions.go - Per-channel APU parameter sets and their ordering/continuity rules

package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ChannelType is the generator family an instruction drives.
type ChannelType uint8

const (
	PulseType ChannelType = iota
	TriangleType
	NoiseType
)

// ChannelTypes lists every generator family in declaration order.
var ChannelTypes = []ChannelType{PulseType, TriangleType, NoiseType}

func (t ChannelType) String() string {
	switch t {
	case PulseType:
		return "pulse"
	case TriangleType:
		return "triangle"
	case NoiseType:
		return "noise"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Channel is one of the four APU voices.
type Channel uint8

const (
	Pulse1 Channel = iota
	Pulse2
	Triangle
	Noise
)

// AllChannels is the declared channel order; search ties resolve in this order.
var AllChannels = []Channel{Pulse1, Pulse2, Triangle, Noise}

// Type returns the generator family of the voice.
func (c Channel) Type() ChannelType {
	switch c {
	case Pulse1, Pulse2:
		return PulseType
	case Triangle:
		return TriangleType
	default:
		return NoiseType
	}
}

func (c Channel) String() string {
	switch c {
	case Pulse1:
		return "pulse1"
	case Pulse2:
		return "pulse2"
	case Triangle:
		return "triangle"
	case Noise:
		return "noise"
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// ParseChannel maps a channel name back to its Channel.
func ParseChannel(name string) (Channel, error) {
	for _, c := range AllChannels {
		if strings.EqualFold(c.String(), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Instruction is one channel's setting for one frame. The set of
// implementations is closed: PulseInstruction, TriangleInstruction and
// NoiseInstruction. All are comparable values and can key maps.
type Instruction interface {
	Type() ChannelType
	IsOn() bool
	Validate() error
	// Distance is a symmetric continuity cost in [0, 1].
	Distance(other Instruction) float64
	// Less is the total enumeration order within one channel type.
	Less(other Instruction) bool
	String() string

	sortKey() [4]int
	isInstruction()
}

// PulseInstruction sets a pulse voice.
type PulseInstruction struct {
	On     bool
	Pitch  uint8
	Duty   uint8
	Volume uint8
}

// TriangleInstruction sets the triangle voice; the hardware has no volume control.
type TriangleInstruction struct {
	On    bool
	Pitch uint8
}

// NoiseInstruction sets the noise voice.
type NoiseInstruction struct {
	On     bool
	Period uint8
	Volume uint8
	Short  bool
}

func (PulseInstruction) isInstruction()    {}
func (TriangleInstruction) isInstruction() {}
func (NoiseInstruction) isInstruction()    {}

func (PulseInstruction) Type() ChannelType    { return PulseType }
func (TriangleInstruction) Type() ChannelType { return TriangleType }
func (NoiseInstruction) Type() ChannelType    { return NoiseType }

func (i PulseInstruction) IsOn() bool    { return i.On }
func (i TriangleInstruction) IsOn() bool { return i.On }
func (i NoiseInstruction) IsOn() bool    { return i.On }

func (i PulseInstruction) Validate() error {
	if !i.On {
		if i != (PulseInstruction{}) {
			return fmt.Errorf("%w: silent pulse instruction carries parameters", ErrInvalidConfig)
		}
		return nil
	}
	if i.Pitch > APU_PITCH_MAX || i.Duty >= APU_DUTY_COUNT || i.Volume < APU_VOLUME_MIN || i.Volume > APU_VOLUME_MAX {
		return fmt.Errorf("%w: pulse instruction %s out of range", ErrInvalidConfig, i)
	}
	return nil
}

func (i TriangleInstruction) Validate() error {
	if !i.On {
		if i != (TriangleInstruction{}) {
			return fmt.Errorf("%w: silent triangle instruction carries parameters", ErrInvalidConfig)
		}
		return nil
	}
	if i.Pitch > APU_PITCH_MAX {
		return fmt.Errorf("%w: triangle instruction %s out of range", ErrInvalidConfig, i)
	}
	return nil
}

func (i NoiseInstruction) Validate() error {
	if !i.On {
		if i != (NoiseInstruction{}) {
			return fmt.Errorf("%w: silent noise instruction carries parameters", ErrInvalidConfig)
		}
		return nil
	}
	if i.Period > APU_NOISE_MAX || i.Volume < APU_VOLUME_MIN || i.Volume > APU_VOLUME_MAX {
		return fmt.Errorf("%w: noise instruction %s out of range", ErrInvalidConfig, i)
	}
	return nil
}

func (i PulseInstruction) String() string {
	if !i.On {
		return "pulse(off)"
	}
	return fmt.Sprintf("pulse(pitch=%d duty=%d vol=%d)", i.Pitch, i.Duty, i.Volume)
}

func (i TriangleInstruction) String() string {
	if !i.On {
		return "triangle(off)"
	}
	return fmt.Sprintf("triangle(pitch=%d)", i.Pitch)
}

func (i NoiseInstruction) String() string {
	if !i.On {
		return "noise(off)"
	}
	mode := "long"
	if i.Short {
		mode = "short"
	}
	return fmt.Sprintf("noise(period=%d vol=%d %s)", i.Period, i.Volume, mode)
}

// Sort keys are (on, primary, -volume, secondary); silence sorts first.
func (i PulseInstruction) sortKey() [4]int {
	if !i.On {
		return [4]int{}
	}
	return [4]int{1, int(i.Pitch), -int(i.Volume), int(i.Duty)}
}

func (i TriangleInstruction) sortKey() [4]int {
	if !i.On {
		return [4]int{}
	}
	return [4]int{1, int(i.Pitch), 0, 0}
}

func (i NoiseInstruction) sortKey() [4]int {
	if !i.On {
		return [4]int{}
	}
	short := 0
	if i.Short {
		short = 1
	}
	return [4]int{1, int(i.Period), -int(i.Volume), short}
}

func (i PulseInstruction) Less(other Instruction) bool    { return lessInstruction(i, other) }
func (i TriangleInstruction) Less(other Instruction) bool { return lessInstruction(i, other) }
func (i NoiseInstruction) Less(other Instruction) bool    { return lessInstruction(i, other) }

func lessInstruction(a, b Instruction) bool {
	if a.Type() != b.Type() {
		return a.Type() < b.Type()
	}
	ka, kb := a.sortKey(), b.sortKey()
	for n := range ka {
		if ka[n] != kb[n] {
			return ka[n] < kb[n]
		}
	}
	return false
}

func (i PulseInstruction) Distance(other Instruction) float64 {
	o, ok := other.(PulseInstruction)
	if !ok {
		return 1
	}
	if d, done := silenceDistance(i.On, o.On); done {
		return d
	}
	duty := 0.0
	if i.Duty != o.Duty {
		duty = 1
	}
	return 0.5*pitchDelta(i.Pitch, o.Pitch) + 0.3*volumeDelta(i.Volume, o.Volume) + 0.2*duty
}

func (i TriangleInstruction) Distance(other Instruction) float64 {
	o, ok := other.(TriangleInstruction)
	if !ok {
		return 1
	}
	if d, done := silenceDistance(i.On, o.On); done {
		return d
	}
	return pitchDelta(i.Pitch, o.Pitch)
}

func (i NoiseInstruction) Distance(other Instruction) float64 {
	o, ok := other.(NoiseInstruction)
	if !ok {
		return 1
	}
	if d, done := silenceDistance(i.On, o.On); done {
		return d
	}
	mode := 0.0
	if i.Short != o.Short {
		mode = 1
	}
	period := math.Abs(float64(i.Period)-float64(o.Period)) / APU_NOISE_MAX
	return 0.5*period + 0.3*volumeDelta(i.Volume, o.Volume) + 0.2*mode
}

func silenceDistance(a, b bool) (float64, bool) {
	switch {
	case !a && !b:
		return 0, true
	case a != b:
		return 0.5, true
	}
	return 0, false
}

func pitchDelta(a, b uint8) float64 {
	return math.Abs(float64(a)-float64(b)) / APU_PITCH_MAX
}

func volumeDelta(a, b uint8) float64 {
	return math.Abs(float64(a)-float64(b)) / (APU_VOLUME_MAX - APU_VOLUME_MIN)
}

// SilentInstruction returns the canonical "off" instruction for a type.
func SilentInstruction(t ChannelType) Instruction {
	switch t {
	case PulseType:
		return PulseInstruction{}
	case TriangleType:
		return TriangleInstruction{}
	default:
		return NoiseInstruction{}
	}
}

// PossibleInstructions enumerates silence plus every on-state parameter
// combination for a channel type, in Instruction order.
func PossibleInstructions(t ChannelType) []Instruction {
	out := []Instruction{SilentInstruction(t)}
	switch t {
	case PulseType:
		for p := APU_PITCH_MIN; p <= APU_PITCH_MAX; p++ {
			for v := APU_VOLUME_MAX; v >= APU_VOLUME_MIN; v-- {
				for d := 0; d < APU_DUTY_COUNT; d++ {
					out = append(out, PulseInstruction{On: true, Pitch: uint8(p), Duty: uint8(d), Volume: uint8(v)})
				}
			}
		}
	case TriangleType:
		for p := APU_PITCH_MIN; p <= APU_PITCH_MAX; p++ {
			out = append(out, TriangleInstruction{On: true, Pitch: uint8(p)})
		}
	case NoiseType:
		for n := 0; n <= APU_NOISE_MAX; n++ {
			for v := APU_VOLUME_MAX; v >= APU_VOLUME_MIN; v-- {
				out = append(out, NoiseInstruction{On: true, Period: uint8(n), Volume: uint8(v)})
				out = append(out, NoiseInstruction{On: true, Period: uint8(n), Volume: uint8(v), Short: true})
			}
		}
	}
	return out
}

// SortInstructions sorts in place by the Instruction total order.
func SortInstructions(instrs []Instruction) {
	sort.SliceStable(instrs, func(a, b int) bool { return instrs[a].Less(instrs[b]) })
}

// PitchFrequency converts a MIDI-style pitch to Hz relative to the A4 reference.
func PitchFrequency(a4Frequency float64, a4Pitch int, pitch int) float64 {
	return a4Frequency * math.Pow(2, float64(pitch-a4Pitch)/12)
}

// instructionPitch returns the pitch of tonal instructions.
func instructionPitch(instr Instruction) (int, bool) {
	switch i := instr.(type) {
	case PulseInstruction:
		return int(i.Pitch), i.On
	case TriangleInstruction:
		return int(i.Pitch), i.On
	}
	return 0, false
}

// instructionVolume returns the 4-bit output level; the triangle is full scale when on.
func instructionVolume(instr Instruction) int {
	switch i := instr.(type) {
	case PulseInstruction:
		return int(i.Volume)
	case TriangleInstruction:
		if i.On {
			return APU_VOLUME_MAX
		}
	case NoiseInstruction:
		return int(i.Volume)
	}
	return 0
}

const instructionEncodedSize = 5

// encodeInstruction packs an instruction as [type, on, a, b, c].
func encodeInstruction(instr Instruction) [instructionEncodedSize]byte {
	var b [instructionEncodedSize]byte
	b[0] = byte(instr.Type())
	if instr.IsOn() {
		b[1] = 1
	}
	switch i := instr.(type) {
	case PulseInstruction:
		b[2], b[3], b[4] = i.Pitch, i.Duty, i.Volume
	case TriangleInstruction:
		b[2] = i.Pitch
	case NoiseInstruction:
		b[2], b[3] = i.Period, i.Volume
		if i.Short {
			b[4] = 1
		}
	}
	return b
}

func decodeInstruction(b [instructionEncodedSize]byte) (Instruction, error) {
	on := b[1] == 1
	var instr Instruction
	switch ChannelType(b[0]) {
	case PulseType:
		instr = PulseInstruction{On: on, Pitch: b[2], Duty: b[3], Volume: b[4]}
	case TriangleType:
		instr = TriangleInstruction{On: on, Pitch: b[2]}
	case NoiseType:
		instr = NoiseInstruction{On: on, Period: b[2], Volume: b[3], Short: b[4] == 1}
	default:
		return nil, fmt.Errorf("unknown instruction type %d", b[0])
	}
	if err := instr.Validate(); err != nil {
		return nil, err
	}
	return instr, nil
}
