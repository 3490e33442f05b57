package main

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 735, cfg.FrameLength())
	assert.Equal(t, 1024, cfg.WindowSize())
	assert.Equal(t, AllChannels, cfg.EnabledChannels())
	assert.Equal(t, ChannelTypes, cfg.EnabledTypes())
	assert.InDelta(t, 3.5, cfg.LevelSum(), 1e-12)
	assert.True(t, cfg.FinalRegeneration)
}

func TestConfig_ValueMethods(t *testing.T) {
	// Read-only accessors work on the value returned by DefaultConfig.
	assert.Equal(t, runtime.NumCPU(), DefaultConfig().WorkerCount())
	assert.Equal(t, 44100, DefaultConfig().LibraryConfig().SampleRate)
	assert.Equal(t, 735, DefaultConfig().FrameLength())
	assert.True(t, DefaultConfig().Enabled(Pulse2))
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_WindowSize(t *testing.T) {
	tests := []struct {
		rate   int
		change float64
		frame  int
		window int
	}{
		{44100, 60, 735, 1024},
		{44100, 10, 4410, 8192},
		{8000, 60, 133, 1024},
		{48000, 23.4375, 2048, 2048},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		cfg.SampleRate, cfg.ChangeRate = tc.rate, tc.change
		assert.Equal(t, tc.frame, cfg.FrameLength(), "%d/%v", tc.rate, tc.change)
		assert.Equal(t, tc.window, cfg.WindowSize(), "%d/%v", tc.rate, tc.change)
		assert.Equal(t, tc.window, cfg.LibraryConfig().WindowSize())
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate low", func(c *Config) { c.SampleRate = 100 }},
		{"change rate zero", func(c *Config) { c.ChangeRate = 0 }},
		{"change rate too high", func(c *Config) { c.ChangeRate = 5000 }},
		{"a4 frequency", func(c *Config) { c.A4Frequency = -440 }},
		{"a4 pitch", func(c *Config) { c.A4Pitch = 200 }},
		{"pitch range inverted", func(c *Config) { c.MinPitch, c.MaxPitch = 90, 20 }},
		{"gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"loss weights zero", func(c *Config) { c.SpectralWeight, c.TemporalWeight = 0, 0 }},
		{"loss weight negative", func(c *Config) { c.TemporalWeight = -1 }},
		{"continuity negative", func(c *Config) { c.ContinuityWeight = -0.1 }},
		{"level negative", func(c *Config) { c.Levels.Noise = -1 }},
		{"no channels", func(c *Config) { c.Channels = ChannelSwitches{} }},
		{"silent mix", func(c *Config) {
			c.Channels = ChannelSwitches{Noise: true}
			c.Levels.Noise = 0
		}},
		{"workers", func(c *Config) { c.Workers = -2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "%v", err)
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apu.yaml")
	cfg := testConfig()
	cfg.ContinuityWeight = 0.25
	cfg.FindBestPhase = true
	cfg.LibraryDir = "/tmp/apu-lib"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfig_PartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_rate: 22050\nchannels:\n  noise: false\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.False(t, cfg.Channels.Noise)
	assert.Equal(t, DEFAULT_CHANGE_RATE, cfg.ChangeRate)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("sample_rte: 22050\n"), 0644))
	_, err := LoadConfig(unknown)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("gamma: 3\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	cfg, err := LoadConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_ResolveLibraryDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APU_TEST_LIBRARY", dir)
	cfg := DefaultConfig()
	cfg.LibraryDir = "$APU_TEST_LIBRARY/lib"
	got, err := cfg.ResolveLibraryDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lib"), got)

	cfg.LibraryDir = "~/apu"
	got, err = cfg.ResolveLibraryDir()
	require.NoError(t, err)
	assert.NotContains(t, got, "~")
}

func TestConfig_PitchAndLevels(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.PitchAllowed(40))
	assert.True(t, cfg.PitchAllowed(90))
	assert.False(t, cfg.PitchAllowed(91))
	assert.Equal(t, []Channel{Triangle}, cfg.EnabledChannels())
	assert.Equal(t, []ChannelType{TriangleType}, cfg.EnabledTypes())
	assert.Equal(t, 1.0, cfg.LevelSum())
	assert.Equal(t, 2, cfg.WorkerCount())
}
