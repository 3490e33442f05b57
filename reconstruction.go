// reconstruction.go - Reconstruction results, their file format and WAV rendering

package main

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gopkg.in/yaml.v3"
)

// ReconstructionState accumulates per-channel results fragment by fragment.
// It belongs to one ReconstructAudio call.
type ReconstructionState struct {
	channels     []Channel
	instructions map[Channel][]Instruction
	audio        map[Channel][][]float64
	errors       map[Channel][]float64
}

// NewReconstructionState prepares empty lists for every channel.
func NewReconstructionState(channels []Channel) *ReconstructionState {
	s := &ReconstructionState{
		channels:     channels,
		instructions: make(map[Channel][]Instruction),
		audio:        make(map[Channel][][]float64),
		errors:       make(map[Channel][]float64),
	}
	for _, ch := range channels {
		s.instructions[ch] = nil
		s.audio[ch] = nil
		s.errors[ch] = nil
	}
	return s
}

// Append records one channel's choice for the current fragment.
func (s *ReconstructionState) Append(ch Channel, instr Instruction, audio []float64, loss float64) {
	s.instructions[ch] = append(s.instructions[ch], instr)
	s.audio[ch] = append(s.audio[ch], audio)
	s.errors[ch] = append(s.errors[ch], loss)
}

// Build concatenates the per-fragment audio and scales it back by coefficient.
func (s *ReconstructionState) Build(path string, cfg Config, coefficient float64) *Reconstruction {
	rec := &Reconstruction{
		Path:         path,
		Config:       cfg,
		Coefficient:  coefficient,
		Channels:     append([]Channel(nil), s.channels...),
		Partials:     make(map[Channel][]float64),
		Instructions: make(map[Channel][]Instruction),
		Errors:       make(map[Channel][]float64),
	}
	total := 0
	for _, ch := range s.channels {
		var partial []float64
		for _, frame := range s.audio[ch] {
			for _, v := range frame {
				partial = append(partial, v*coefficient)
			}
		}
		rec.Partials[ch] = partial
		rec.Instructions[ch] = s.instructions[ch]
		rec.Errors[ch] = s.errors[ch]
		total = max(total, len(partial))
	}
	rec.Approximation = make([]float64, total)
	for _, ch := range s.channels {
		for i, v := range rec.Partials[ch] {
			rec.Approximation[i] += v
		}
	}
	return rec
}

// Reconstruction is the result for one input file. Treat it as read-only.
type Reconstruction struct {
	Path          string
	Config        Config
	Channels      []Channel
	Approximation []float64
	Partials      map[Channel][]float64
	Instructions  map[Channel][]Instruction
	Errors        map[Channel][]float64
	Coefficient   float64
}

// TotalError sums the search loss of every channel and fragment.
func (r *Reconstruction) TotalError() float64 {
	sum := 0.0
	for _, ch := range r.Channels {
		for _, e := range r.Errors[ch] {
			sum += e
		}
	}
	return sum
}

// Frames is the number of reconstructed fragments.
func (r *Reconstruction) Frames() int {
	if len(r.Channels) == 0 {
		return 0
	}
	return len(r.Instructions[r.Channels[0]])
}

// Duration is the approximation length in seconds.
func (r *Reconstruction) Duration() float64 {
	if r.Config.SampleRate == 0 {
		return 0
	}
	return float64(len(r.Approximation)) / float64(r.Config.SampleRate)
}

// SaveReconstruction writes rec with a {application, version} header and a
// gzip body.
func SaveReconstruction(rec *Reconstruction, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := writeReconstruction(w, rec); err != nil {
		return fmt.Errorf("writing reconstruction %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeReconstruction(w io.Writer, rec *Reconstruction) error {
	le := binary.LittleEndian

	// Metadata block
	if _, err := io.WriteString(w, RECONSTRUCTION_MAGIC); err != nil {
		return err
	}
	if err := binary.Write(w, le, uint32(RECONSTRUCTION_FORMAT_VERSION)); err != nil {
		return err
	}
	if err := writeString(w, APPLICATION_NAME); err != nil {
		return err
	}

	gz := gzip.NewWriter(w)

	cfgYAML, err := yaml.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := writeString(gz, string(cfgYAML)); err != nil {
		return err
	}
	if err := writeString(gz, rec.Path); err != nil {
		return err
	}
	if err := binary.Write(gz, le, rec.Coefficient); err != nil {
		return err
	}

	// Channels
	if err := binary.Write(gz, le, uint32(len(rec.Channels))); err != nil {
		return err
	}
	for _, ch := range rec.Channels {
		if err := binary.Write(gz, le, uint8(ch)); err != nil {
			return err
		}
		instrs := rec.Instructions[ch]
		if err := binary.Write(gz, le, uint32(len(instrs))); err != nil {
			return err
		}
		for _, instr := range instrs {
			enc := encodeInstruction(instr)
			if _, err := gz.Write(enc[:]); err != nil {
				return err
			}
		}
		if err := writeFloat64s(gz, rec.Errors[ch]); err != nil {
			return err
		}
		if err := writeFloat64s(gz, rec.Partials[ch]); err != nil {
			return err
		}
	}
	if err := writeFloat64s(gz, rec.Approximation); err != nil {
		return err
	}
	return gz.Close()
}

// LoadReconstruction reads a file written by SaveReconstruction. Files from
// another application or another format version are rejected.
func LoadReconstruction(path string) (*Reconstruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := readReconstruction(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading reconstruction %s: %w", path, err)
	}
	return rec, nil
}

func readReconstruction(r io.Reader) (*Reconstruction, error) {
	le := binary.LittleEndian

	magic := make([]byte, len(RECONSTRUCTION_MAGIC))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != RECONSTRUCTION_MAGIC {
		return nil, fmt.Errorf("invalid reconstruction magic: %q", string(magic))
	}
	var version uint32
	if err := binary.Read(r, le, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	// The rest of the header may differ between versions.
	if version != RECONSTRUCTION_FORMAT_VERSION {
		return nil, &VersionError{Kind: "reconstruction", Expected: RECONSTRUCTION_FORMAT_VERSION, Actual: version}
	}
	app, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("reading application name: %w", err)
	}
	if app != APPLICATION_NAME {
		return nil, fmt.Errorf("reconstruction written by %q, not %s", app, APPLICATION_NAME)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gz.Close()

	rec := &Reconstruction{
		Partials:     make(map[Channel][]float64),
		Instructions: make(map[Channel][]Instruction),
		Errors:       make(map[Channel][]float64),
	}
	cfgYAML, err := readString(gz)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := decodeConfig([]byte(cfgYAML), &rec.Config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if rec.Path, err = readString(gz); err != nil {
		return nil, fmt.Errorf("reading path: %w", err)
	}
	if err := binary.Read(gz, le, &rec.Coefficient); err != nil {
		return nil, fmt.Errorf("reading coefficient: %w", err)
	}

	var count uint32
	if err := binary.Read(gz, le, &count); err != nil {
		return nil, fmt.Errorf("reading channel count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var raw uint8
		if err := binary.Read(gz, le, &raw); err != nil {
			return nil, err
		}
		ch := Channel(raw)
		if int(ch) >= len(AllChannels) {
			return nil, fmt.Errorf("unknown channel %d", raw)
		}
		var n uint32
		if err := binary.Read(gz, le, &n); err != nil {
			return nil, err
		}
		instrs := make([]Instruction, n)
		for i := range instrs {
			var enc [instructionEncodedSize]byte
			if _, err := io.ReadFull(gz, enc[:]); err != nil {
				return nil, fmt.Errorf("reading %s instruction: %w", ch, err)
			}
			if instrs[i], err = decodeInstruction(enc); err != nil {
				return nil, err
			}
		}
		rec.Channels = append(rec.Channels, ch)
		rec.Instructions[ch] = instrs
		if rec.Errors[ch], err = readFloat64s(gz); err != nil {
			return nil, fmt.Errorf("reading %s errors: %w", ch, err)
		}
		if rec.Partials[ch], err = readFloat64s(gz); err != nil {
			return nil, fmt.Errorf("reading %s partial: %w", ch, err)
		}
	}
	if rec.Approximation, err = readFloat64s(gz); err != nil {
		return nil, fmt.Errorf("reading approximation: %w", err)
	}
	return rec, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<24 {
		return "", fmt.Errorf("string length %d too large", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteWAV renders mono samples in [-1, 1] as a 16-bit WAV file.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, v := range samples {
		v = math.Max(-1, math.Min(1, v))
		data[i] = int(math.Round(v * 32767))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return f.Close()
}
