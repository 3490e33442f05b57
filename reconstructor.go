// reconstructor.go - Greedy per-fragment, per-channel instruction search

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
	"context"
	"fmt"
	"log/slog"
	"math"
)

// Reconstructor decomposes audio into per-channel instruction sequences.
// It owns its Config, library view and spectral transform; oscillators are
// created per call so one Reconstructor can serve concurrent files.
type Reconstructor struct {
	cfg       Config
	lib       *LibraryData
	loader    AudioLoader
	spectral  *SpectralTransform
	criterion *Criterion
	channels  []Channel
	entries   map[Channel][]*LibraryFragment
	frame     int
	log       *slog.Logger
}

// NewReconstructor validates cfg and resolves its library. A missing
// library fails here, before any audio is touched.
func NewReconstructor(cfg Config, library *Library, loader AudioLoader) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := library.Get(cfg)
	if err != nil {
		return nil, err
	}
	return newReconstructorWithData(cfg, data, loader)
}

func newReconstructorWithData(cfg Config, data *LibraryData, loader AudioLoader) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := CreateKey(cfg.LibraryConfig())
	if data.Key.Hash != key.Hash {
		return nil, fmt.Errorf("library fingerprint %s does not match configuration %s", data.Key.Hash, key.Hash)
	}
	data = data.Filter(cfg.EnabledTypes()...)

	st := NewSpectralTransform(cfg.SampleRate, cfg.WindowSize(), cfg.Gamma)
	crit, err := NewCriterion(cfg, st)
	if err != nil {
		return nil, err
	}

	r := &Reconstructor{
		cfg:       cfg,
		lib:       data,
		loader:    loader,
		spectral:  st,
		criterion: crit,
		channels:  cfg.EnabledChannels(),
		entries:   make(map[Channel][]*LibraryFragment),
		frame:     cfg.FrameLength(),
		log:       slog.Default().With("component", "reconstructor"),
	}
	for _, ch := range r.channels {
		var frags []*LibraryFragment
		for _, f := range data.Entries(ch.Type()) {
			if p, on := instructionPitch(f.Instruction); on && !cfg.PitchAllowed(p) {
				continue
			}
			frags = append(frags, f)
		}
		if len(frags) == 0 {
			return nil, fmt.Errorf("library %s has no %s fragments", data.Key.Hash, ch.Type())
		}
		r.entries[ch] = frags
	}
	return r, nil
}

// Config returns the configuration the reconstructor was built with.
func (r *Reconstructor) Config() Config { return r.cfg }

// ReconstructFile loads path at the configured rate and reconstructs it.
func (r *Reconstructor) ReconstructFile(ctx context.Context, path string) (*Reconstruction, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("no audio loader configured")
	}
	audio, err := r.loader.Load(path, r.cfg.SampleRate, false, false)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return r.ReconstructAudio(ctx, path, audio)
}

// ReconstructAudio decomposes mono samples at the configured sample rate.
// Fragments are processed strictly in order; ctx is checked before each.
func (r *Reconstructor) ReconstructAudio(ctx context.Context, path string, audio []float64) (*Reconstruction, error) {
	coefficient := peakLevel(audio) / r.cfg.LevelSum()
	if coefficient == 0 {
		coefficient = 1
	}
	normalized := scaleSlice(audio, 1/coefficient)

	fragments := SliceFragments(normalized, r.frame, r.spectral)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFragments)
	}

	state := NewReconstructionState(r.channels)
	gens := make(map[Channel]Generator, len(r.channels))
	prev := make(map[Channel]Instruction, len(r.channels))
	libCfg := r.cfg.LibraryConfig()
	for _, ch := range r.channels {
		gens[ch] = NewGenerator(ch.Type(), libCfg, r.cfg.ResetPhase)
		prev[ch] = SilentInstruction(ch.Type())
	}

	for n, frag := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.reconstructFragment(frag, state, gens, prev); err != nil {
			return nil, fmt.Errorf("%s fragment %d: %w", path, n, err)
		}
	}

	rec := state.Build(path, r.cfg, coefficient)
	r.log.Debug("reconstructed", "path", path, "fragments", len(fragments), "error", rec.TotalError())
	return rec, nil
}

type searchResult struct {
	channel Channel
	frag    *LibraryFragment
	offset  int
	loss    float64
}

func (r *Reconstructor) reconstructFragment(target *Fragment, state *ReconstructionState, gens map[Channel]Generator, prev map[Channel]Instruction) error {
	residual := target.Clone()
	remaining := append([]Channel(nil), r.channels...)

	for len(remaining) > 0 {
		best, ok := r.search(residual, remaining, gens, prev)
		if !ok {
			return fmt.Errorf("no candidate scored below infinity")
		}
		level := r.cfg.Level(best.channel)
		gen := gens[best.channel]

		if r.cfg.FindBestPhase {
			best.offset = r.alignPhase(residual, best, level)
		}

		windowed, err := r.render(gen, best, level)
		if err != nil {
			return fmt.Errorf("%s: %w", best.channel, err)
		}
		audio := windowed[:r.frame]

		state.Append(best.channel, best.frag.Instruction, audio, best.loss)
		prev[best.channel] = best.frag.Instruction

		residual = residual.Sub(&Fragment{Audio: audio, Windowed: windowed})
		residual.Refresh(r.spectral)
		remaining = removeChannel(remaining, best.channel)
	}
	return nil
}

// search scores every candidate of every remaining channel against the
// residual. Only a strictly smaller loss replaces the incumbent, so ties go
// to the first channel in declared order and the first instruction in
// instruction order.
func (r *Reconstructor) search(residual *Fragment, remaining []Channel, gens map[Channel]Generator, prev map[Channel]Instruction) (searchResult, bool) {
	best := searchResult{loss: math.Inf(1)}
	found := false
	for _, ch := range remaining {
		frags := r.entries[ch]
		gen := gens[ch]
		level := r.cfg.Level(ch)
		offsets := make([]int, len(frags))
		cands := make([]Candidate, len(frags))
		for i, f := range frags {
			offsets[i] = gen.LibraryOffset(f.Instruction, f)
			cands[i] = Candidate{Audio: f.Window(offsets[i], r.frame), Feature: f.Feature, Scale: level}
		}
		losses := r.criterion.LossBatch(residual, cands)
		for i, loss := range losses {
			if r.cfg.ContinuityWeight > 0 {
				loss += r.cfg.ContinuityWeight * prev[ch].Distance(frags[i].Instruction)
			}
			if loss < best.loss {
				best = searchResult{channel: ch, frag: frags[i], offset: offsets[i], loss: loss}
				found = true
			}
		}
	}
	return best, found
}

// alignPhase slides the winning candidate across one cycle of its library
// sample and returns the offset with the smallest raw RMSE.
func (r *Reconstructor) alignPhase(residual *Fragment, best searchResult, level float64) int {
	cycle := best.frag.CycleSamples(r.cfg.SampleRate)
	if cycle <= 1 {
		return best.offset
	}
	bestOffset := best.offset
	bestErr := rmse(residual.Audio, best.frag.Window(best.offset, r.frame), level)
	for off := 0; off < cycle; off++ {
		if e := rmse(residual.Audio, best.frag.Window(off, r.frame), level); e < bestErr {
			bestErr = e
			bestOffset = off
		}
	}
	return bestOffset
}

// render produces one window of the winner's waveform at mixing level and
// advances the channel oscillator by one frame. With FinalRegeneration the
// waveform comes from the live oscillator, otherwise from the library.
func (r *Reconstructor) render(gen Generator, best searchResult, level float64) ([]float64, error) {
	instr := best.frag.Instruction
	w := r.spectral.WindowSize()
	if r.cfg.FindBestPhase {
		if err := gen.Align(instr, best.offset); err != nil {
			return nil, err
		}
	}

	var windowed []float64
	if r.cfg.FinalRegeneration {
		saved := gen.State()
		out, err := gen.Generate(instr, w)
		if err != nil {
			return nil, err
		}
		windowed = scaleSlice(out, level)
		if err := gen.SetState(saved); err != nil {
			return nil, err
		}
	} else {
		src := best.frag.Window(best.offset, w)
		windowed = make([]float64, w)
		for i, v := range src {
			windowed[i] = float64(v) * level
		}
	}

	// Both paths leave the oscillator one frame further on.
	if _, err := gen.Generate(instr, r.frame); err != nil {
		return nil, err
	}
	return windowed, nil
}

func removeChannel(chs []Channel, ch Channel) []Channel {
	out := chs[:0]
	for _, c := range chs {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}

func peakLevel(audio []float64) float64 {
	peak := 0.0
	for _, v := range audio {
		peak = math.Max(peak, math.Abs(v))
	}
	return peak
}
