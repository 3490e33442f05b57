// library.go - Fingerprinted cache of per-instruction waveforms and features

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
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// LibraryKey identifies one library by the configuration fields that shape
// its waveforms. Hash is the only identity; the other fields name the file.
type LibraryKey struct {
	SampleRate  int
	ChangeRate  float64
	A4Frequency float64
	A4Pitch     int
	Gamma       float64
	WindowSize  int
	Hash        string
}

// CreateKey fingerprints the waveform-shaping subset of cfg. Fields such as
// loss weights, levels or enabled channels do not change the key.
func CreateKey(cfg LibraryConfig) LibraryKey {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.SampleRate))
	binary.Write(&buf, binary.LittleEndian, math.Float64bits(cfg.ChangeRate))
	binary.Write(&buf, binary.LittleEndian, math.Float64bits(cfg.A4Frequency))
	binary.Write(&buf, binary.LittleEndian, int32(cfg.A4Pitch))
	binary.Write(&buf, binary.LittleEndian, math.Float64bits(cfg.Gamma))
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.WindowSize()))
	sum := sha256.Sum256(buf.Bytes())
	return LibraryKey{
		SampleRate:  cfg.SampleRate,
		ChangeRate:  cfg.ChangeRate,
		A4Frequency: cfg.A4Frequency,
		A4Pitch:     cfg.A4Pitch,
		Gamma:       cfg.Gamma,
		WindowSize:  cfg.WindowSize(),
		Hash:        hex.EncodeToString(sum[:])[:16],
	}
}

// FileName is apu_<rate>_<change>_<a4f>_<a4p>_<gamma>_<hash>.apul.
func (k LibraryKey) FileName() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return fmt.Sprintf("apu_%d_%s_%s_%d_%s_%s%s",
		k.SampleRate, f(k.ChangeRate), f(k.A4Frequency), k.A4Pitch, f(k.Gamma), k.Hash, LIBRARY_FILE_EXT)
}

func (k LibraryKey) String() string {
	return k.Hash
}

// LibraryFragment is the precomputed waveform of one instruction. Sample
// starts at phase 0 and covers one full cycle plus a window, so any phase
// offset within the first cycle can be sliced without wrapping.
type LibraryFragment struct {
	Instruction Instruction
	Frequency   float64
	Sample      []float32
	Feature     []float32
}

// Window returns n samples starting at offset, clamped to the sample length.
func (f *LibraryFragment) Window(offset, n int) []float32 {
	if offset < 0 {
		offset = 0
	}
	if offset+n > len(f.Sample) {
		offset = max(len(f.Sample)-n, 0)
	}
	end := min(offset+n, len(f.Sample))
	return f.Sample[offset:end]
}

// CycleSamples is the number of distinct offsets worth trying when aligning phase.
func (f *LibraryFragment) CycleSamples(sampleRate int) int {
	if f.Frequency <= 0 || !f.Instruction.IsOn() || f.Instruction.Type() == NoiseType {
		return 1
	}
	return int(math.Ceil(float64(sampleRate) / f.Frequency))
}

// LibraryData maps every instruction of one fingerprint to its fragment.
// Read-only once built.
type LibraryData struct {
	Key       LibraryKey
	Config    LibraryConfig
	Fragments map[Instruction]*LibraryFragment

	byType map[ChannelType][]*LibraryFragment
}

// NewLibraryData indexes fragments by channel type in instruction order.
func NewLibraryData(key LibraryKey, cfg LibraryConfig, fragments map[Instruction]*LibraryFragment) *LibraryData {
	d := &LibraryData{Key: key, Config: cfg, Fragments: fragments}
	d.index()
	return d
}

func (d *LibraryData) index() {
	instrs := make([]Instruction, 0, len(d.Fragments))
	for instr := range d.Fragments {
		instrs = append(instrs, instr)
	}
	SortInstructions(instrs)
	d.byType = make(map[ChannelType][]*LibraryFragment)
	for _, instr := range instrs {
		t := instr.Type()
		d.byType[t] = append(d.byType[t], d.Fragments[instr])
	}
}

// Entries lists the fragments of one channel type in instruction order.
func (d *LibraryData) Entries(t ChannelType) []*LibraryFragment {
	return d.byType[t]
}

// Get returns the fragment of one instruction.
func (d *LibraryData) Get(instr Instruction) (*LibraryFragment, bool) {
	f, ok := d.Fragments[instr]
	return f, ok
}

// Types lists the channel types present.
func (d *LibraryData) Types() []ChannelType {
	var out []ChannelType
	for _, t := range ChannelTypes {
		if len(d.byType[t]) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Filter returns a view restricted to types. Fragments are shared, not copied.
func (d *LibraryData) Filter(types ...ChannelType) *LibraryData {
	keep := make(map[ChannelType]bool, len(types))
	for _, t := range types {
		keep[t] = true
	}
	out := &LibraryData{
		Key:       d.Key,
		Config:    d.Config,
		Fragments: make(map[Instruction]*LibraryFragment),
		byType:    make(map[ChannelType][]*LibraryFragment),
	}
	for instr, f := range d.Fragments {
		if keep[instr.Type()] {
			out.Fragments[instr] = f
		}
	}
	for t, frags := range d.byType {
		if keep[t] {
			out.byType[t] = frags
		}
	}
	return out
}

// Library is a handle on a directory of library files.
type Library struct {
	dir string
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]*LibraryData
}

// NewLibrary opens a library directory; it is created on first Save.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:   dir,
		log:   slog.Default().With("component", "library"),
		cache: make(map[string]*LibraryData),
	}
}

// Dir returns the library directory.
func (l *Library) Dir() string { return l.dir }

// Path is where the library for key lives.
func (l *Library) Path(key LibraryKey) string {
	return filepath.Join(l.dir, key.FileName())
}

// Exists reports whether data for key is cached or on disk.
func (l *Library) Exists(key LibraryKey) bool {
	l.mu.RLock()
	_, ok := l.cache[key.Hash]
	l.mu.RUnlock()
	if ok {
		return true
	}
	_, err := os.Stat(l.Path(key))
	return err == nil
}

// Load reads the library for key from disk, or returns the cached copy.
func (l *Library) Load(key LibraryKey) (*LibraryData, error) {
	l.mu.RLock()
	data, ok := l.cache[key.Hash]
	l.mu.RUnlock()
	if ok {
		return data, nil
	}

	path := l.Path(key)
	data, err := LoadLibraryFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LibraryMissingError{Key: key, Path: path}
		}
		return nil, err
	}
	if data.Key.Hash != key.Hash {
		return nil, fmt.Errorf("library %s holds fingerprint %s, expected %s", path, data.Key.Hash, key.Hash)
	}
	l.log.Debug("library loaded", "path", path, "fragments", len(data.Fragments))

	l.mu.Lock()
	if cached, ok := l.cache[key.Hash]; ok {
		data = cached
	} else {
		l.cache[key.Hash] = data
	}
	l.mu.Unlock()
	return data, nil
}

// Save writes data under key and caches it.
func (l *Library) Save(key LibraryKey, data *LibraryData) error {
	if data.Key.Hash != key.Hash {
		return fmt.Errorf("library data fingerprint %s does not match key %s", data.Key.Hash, key.Hash)
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("creating library dir: %w", err)
	}
	path := l.Path(key)
	tmp := path + ".tmp"
	if err := SaveLibraryFile(data, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing library file: %w", err)
	}
	l.mu.Lock()
	l.cache[key.Hash] = data
	l.mu.Unlock()
	l.log.Info("library saved", "path", path, "fragments", len(data.Fragments))
	return nil
}

// Get returns the library for cfg's fingerprint. It never generates: a
// missing library is a *LibraryMissingError naming the expected path.
func (l *Library) Get(cfg Config) (*LibraryData, error) {
	return l.Load(CreateKey(cfg.LibraryConfig()))
}
