// feature_export.go - Tracker-style macro features from instruction sequences

package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.design/x/clipboard"
)

// ChannelFeatures maps a feature name to one integer per frame.
type ChannelFeatures map[string][]int

// Feature names produced by MacroExporter.
const (
	FEATURE_VOLUME       = "volume"
	FEATURE_PITCH        = "pitch"
	FEATURE_PITCH_DELTAS = "pitch_deltas"
	FEATURE_ARPEGGIO     = "arpeggio"
	FEATURE_DUTY         = "duty"
	FEATURE_PERIOD       = "period"
	FEATURE_MODE         = "mode"
)

// MacroExporter derives volume envelope, pitch deltas, arpeggio and duty
// sequences. Silent frames hold the previous pitch so deltas stay small.
type MacroExporter struct{}

func (MacroExporter) Export(ch Channel, instrs []Instruction) (ChannelFeatures, error) {
	n := len(instrs)
	out := ChannelFeatures{FEATURE_VOLUME: make([]int, n)}
	for i, instr := range instrs {
		if instr.Type() != ch.Type() {
			return nil, fmt.Errorf("%s: frame %d holds %s", ch, i, instr)
		}
		if instr.IsOn() {
			out[FEATURE_VOLUME][i] = instructionVolume(instr)
		}
	}

	switch ch.Type() {
	case PulseType, TriangleType:
		pitch := make([]int, n)
		base, last := -1, 0
		for i, instr := range instrs {
			if p, on := instructionPitch(instr); on {
				last = p
				if base < 0 {
					base = p
				}
			}
			pitch[i] = last
		}
		if base < 0 {
			base = 0
		}
		deltas := make([]int, n)
		arp := make([]int, n)
		for i := range pitch {
			if i > 0 {
				deltas[i] = pitch[i] - pitch[i-1]
			}
			arp[i] = pitch[i] - base
		}
		out[FEATURE_PITCH] = pitch
		out[FEATURE_PITCH_DELTAS] = deltas
		out[FEATURE_ARPEGGIO] = arp
		if ch.Type() == PulseType {
			duty := make([]int, n)
			for i, instr := range instrs {
				duty[i] = int(instr.(PulseInstruction).Duty)
			}
			out[FEATURE_DUTY] = duty
		}
	case NoiseType:
		period := make([]int, n)
		mode := make([]int, n)
		for i, instr := range instrs {
			ni := instr.(NoiseInstruction)
			period[i] = int(ni.Period)
			if ni.Short {
				mode[i] = 1
			}
		}
		out[FEATURE_PERIOD] = period
		out[FEATURE_MODE] = mode
	}
	return out, nil
}

// FormatFeatures renders every channel's features as macro lines:
//
//	pulse1 volume: 15 15 14 12
func FormatFeatures(rec *Reconstruction, exp FeatureExporter) (string, error) {
	var sb strings.Builder
	for _, ch := range rec.Channels {
		feats, err := exp.Export(ch, rec.Instructions[ch])
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(feats))
		for name := range feats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "%s %s:", ch, name)
			for _, v := range feats[name] {
				fmt.Fprintf(&sb, " %d", v)
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

var (
	clipboardOnce sync.Once
	clipboardOK   bool
)

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	clipboardOnce.Do(func() {
		clipboardOK = clipboard.Init() == nil
	})
	if !clipboardOK {
		return fmt.Errorf("system clipboard unavailable")
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
