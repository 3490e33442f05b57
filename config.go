// config.go - Reconstruction parameters, validation and YAML persistence

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// ChannelSwitches selects which voices take part in reconstruction.
type ChannelSwitches struct {
	Pulse1   bool `yaml:"pulse1"`
	Pulse2   bool `yaml:"pulse2"`
	Triangle bool `yaml:"triangle"`
	Noise    bool `yaml:"noise"`
}

// MixerLevels are per-voice output gains relative to full scale.
type MixerLevels struct {
	Pulse1   float64 `yaml:"pulse1"`
	Pulse2   float64 `yaml:"pulse2"`
	Triangle float64 `yaml:"triangle"`
	Noise    float64 `yaml:"noise"`
}

// Config is the full parameter bundle of one reconstruction session.
// Validate it once; components refuse to construct from an invalid one.
type Config struct {
	SampleRate  int     `yaml:"sample_rate"`
	ChangeRate  float64 `yaml:"change_rate"`
	A4Frequency float64 `yaml:"a4_frequency"`
	A4Pitch     int     `yaml:"a4_pitch"`
	MinPitch    int     `yaml:"min_pitch"`
	MaxPitch    int     `yaml:"max_pitch"`

	Channels ChannelSwitches `yaml:"channels"`
	Levels   MixerLevels     `yaml:"levels"`

	SpectralWeight   float64 `yaml:"spectral_weight"`
	TemporalWeight   float64 `yaml:"temporal_weight"`
	ContinuityWeight float64 `yaml:"continuity_weight"`
	Gamma            float64 `yaml:"gamma"`

	ResetPhase        bool `yaml:"reset_phase"`
	FindBestPhase     bool `yaml:"find_best_phase"`
	FinalRegeneration bool `yaml:"final_regeneration"`

	Workers    int    `yaml:"workers"`
	LibraryDir string `yaml:"library_dir"`
}

// DefaultConfig returns NTSC-style defaults with every voice enabled.
func DefaultConfig() Config {
	return Config{
		SampleRate:  DEFAULT_SAMPLE_RATE,
		ChangeRate:  DEFAULT_CHANGE_RATE,
		A4Frequency: DEFAULT_A4_FREQUENCY,
		A4Pitch:     DEFAULT_A4_PITCH,
		MinPitch:    DEFAULT_MIN_PITCH,
		MaxPitch:    DEFAULT_MAX_PITCH,
		Channels:    ChannelSwitches{Pulse1: true, Pulse2: true, Triangle: true, Noise: true},
		Levels: MixerLevels{
			Pulse1:   DEFAULT_PULSE_LEVEL,
			Pulse2:   DEFAULT_PULSE_LEVEL,
			Triangle: DEFAULT_TRIANGLE_LEVEL,
			Noise:    DEFAULT_NOISE_LEVEL,
		},
		SpectralWeight:    DEFAULT_SPECTRAL_WEIGHT,
		TemporalWeight:    DEFAULT_TEMPORAL_WEIGHT,
		Gamma:             DEFAULT_GAMMA,
		FinalRegeneration: true,
		LibraryDir:        DEFAULT_LIBRARY_DIR,
	}
}

// Validate checks every numeric range.
func (c Config) Validate() error {
	if c.SampleRate < MIN_SAMPLE_RATE || c.SampleRate > MAX_SAMPLE_RATE {
		return configError("sample rate %d outside [%d, %d]", c.SampleRate, MIN_SAMPLE_RATE, MAX_SAMPLE_RATE)
	}
	if !(c.ChangeRate > 0) || c.ChangeRate > MAX_CHANGE_RATE {
		return configError("change rate %v outside (0, %v]", c.ChangeRate, MAX_CHANGE_RATE)
	}
	if c.FrameLength() < 1 {
		return configError("change rate %v leaves no samples per frame", c.ChangeRate)
	}
	if !(c.A4Frequency > 0) || math.IsInf(c.A4Frequency, 0) {
		return configError("A4 frequency %v must be positive", c.A4Frequency)
	}
	if c.A4Pitch < APU_PITCH_MIN || c.A4Pitch > APU_PITCH_MAX {
		return configError("A4 pitch %d outside [%d, %d]", c.A4Pitch, APU_PITCH_MIN, APU_PITCH_MAX)
	}
	if c.MinPitch < APU_PITCH_MIN || c.MaxPitch > APU_PITCH_MAX || c.MinPitch > c.MaxPitch {
		return configError("pitch range [%d, %d] invalid", c.MinPitch, c.MaxPitch)
	}
	if c.Gamma < 0 || c.Gamma > 1 || math.IsNaN(c.Gamma) {
		return configError("gamma %v outside [0, 1]", c.Gamma)
	}
	if _, _, err := NormalizeLossWeights(c.SpectralWeight, c.TemporalWeight); err != nil {
		return err
	}
	if c.ContinuityWeight < 0 || math.IsNaN(c.ContinuityWeight) {
		return configError("continuity weight %v must be non-negative", c.ContinuityWeight)
	}
	for _, ch := range AllChannels {
		if l := c.Level(ch); l < 0 || math.IsNaN(l) {
			return configError("%s level %v must be non-negative", ch, l)
		}
	}
	if len(c.EnabledChannels()) == 0 {
		return configError("no channel enabled")
	}
	if !(c.LevelSum() > 0) {
		return configError("enabled channel levels sum to zero")
	}
	if c.Workers < 0 {
		return configError("workers %d must be non-negative", c.Workers)
	}
	return nil
}

// FrameLength is the number of samples each instruction lasts.
func (c Config) FrameLength() int {
	return int(math.Round(float64(c.SampleRate) / c.ChangeRate))
}

// WindowSize is the analysis window: the next power of two holding a frame,
// never smaller than MIN_WINDOW_SIZE.
func (c Config) WindowSize() int {
	n := c.FrameLength()
	if n < MIN_WINDOW_SIZE {
		return MIN_WINDOW_SIZE
	}
	return 1 << bits.Len(uint(n-1))
}

// Enabled reports whether a voice takes part.
func (c Config) Enabled(ch Channel) bool {
	switch ch {
	case Pulse1:
		return c.Channels.Pulse1
	case Pulse2:
		return c.Channels.Pulse2
	case Triangle:
		return c.Channels.Triangle
	case Noise:
		return c.Channels.Noise
	}
	return false
}

// EnabledChannels lists enabled voices in declared order.
func (c Config) EnabledChannels() []Channel {
	var out []Channel
	for _, ch := range AllChannels {
		if c.Enabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// EnabledTypes lists the generator families of the enabled voices.
func (c Config) EnabledTypes() []ChannelType {
	var out []ChannelType
	seen := map[ChannelType]bool{}
	for _, ch := range c.EnabledChannels() {
		if !seen[ch.Type()] {
			seen[ch.Type()] = true
			out = append(out, ch.Type())
		}
	}
	return out
}

// Level returns the mixing level of a voice.
func (c Config) Level(ch Channel) float64 {
	switch ch {
	case Pulse1:
		return c.Levels.Pulse1
	case Pulse2:
		return c.Levels.Pulse2
	case Triangle:
		return c.Levels.Triangle
	case Noise:
		return c.Levels.Noise
	}
	return 0
}

// LevelSum is the sum of mixing levels over enabled voices.
func (c Config) LevelSum() float64 {
	sum := 0.0
	for _, ch := range c.EnabledChannels() {
		sum += c.Level(ch)
	}
	return sum
}

// WorkerCount resolves Workers, where 0 means one per CPU.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// PitchAllowed reports whether a tonal pitch lies in the search range.
func (c Config) PitchAllowed(pitch int) bool {
	return pitch >= c.MinPitch && pitch <= c.MaxPitch
}

// ResolveLibraryDir expands ~ and environment variables in LibraryDir.
func (c Config) ResolveLibraryDir() (string, error) {
	dir := c.LibraryDir
	if dir == "" {
		dir = DEFAULT_LIBRARY_DIR
	}
	p, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expanding library dir %q: %w", dir, err)
	}
	return os.ExpandEnv(p), nil
}

// LibraryConfig is the waveform-shaping subset of Config stored with a library.
type LibraryConfig struct {
	SampleRate  int     `yaml:"sample_rate"`
	ChangeRate  float64 `yaml:"change_rate"`
	A4Frequency float64 `yaml:"a4_frequency"`
	A4Pitch     int     `yaml:"a4_pitch"`
	Gamma       float64 `yaml:"gamma"`
}

// LibraryConfig extracts the fields that determine library contents.
func (c Config) LibraryConfig() LibraryConfig {
	return LibraryConfig{
		SampleRate:  c.SampleRate,
		ChangeRate:  c.ChangeRate,
		A4Frequency: c.A4Frequency,
		A4Pitch:     c.A4Pitch,
		Gamma:       c.Gamma,
	}
}

// FrameLength mirrors Config.FrameLength for the stored subset.
func (lc LibraryConfig) FrameLength() int {
	return int(math.Round(float64(lc.SampleRate) / lc.ChangeRate))
}

// WindowSize mirrors Config.WindowSize for the stored subset.
func (lc LibraryConfig) WindowSize() int {
	c := Config{SampleRate: lc.SampleRate, ChangeRate: lc.ChangeRate}
	return c.WindowSize()
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := decodeConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
