// apu_constants.go - 2A03 APU clocks, timer limits, file formats and search tuning

package main

// Hardware clocks and timer limits
const (
	APU_CLOCK_NTSC = 1789773.0 // CPU clock; pulse timers tick every other cycle
	APU_CLOCK_PAL  = 1662607.0

	APU_TIMER_MAX      = 0x7FF // 11-bit timer register
	APU_TIMER_DIVIDER  = 16    // clock / (16 * (t + 1)) for pulse
	APU_TRIANGLE_CLOCK = APU_CLOCK_NTSC / 2

	APU_LFSR_BITS  = 15
	APU_LFSR_SEED  = 0x0001
	APU_LFSR_MASK  = 0x7FFF
	APU_LFSR_TAP   = 1 // long mode feedback bit
	APU_LFSR_SHORT = 6 // short (metallic) mode feedback bit

	APU_PULSE_STEPS    = 8
	APU_TRIANGLE_STEPS = 32
)

// Instruction parameter ranges
const (
	APU_PITCH_MIN   = 0
	APU_PITCH_MAX   = 127
	APU_VOLUME_MIN  = 1 // on-state volumes; 0 is expressed as an "off" instruction
	APU_VOLUME_MAX  = 15
	APU_DUTY_COUNT  = 4
	APU_NOISE_MAX   = 15
	APU_PERIOD_SIZE = 16
)

// Configuration defaults
const (
	DEFAULT_SAMPLE_RATE     = 44100
	DEFAULT_CHANGE_RATE     = 60.0
	DEFAULT_A4_FREQUENCY    = 440.0
	DEFAULT_A4_PITCH        = 69
	DEFAULT_MIN_PITCH       = 24
	DEFAULT_MAX_PITCH       = 108
	DEFAULT_SPECTRAL_WEIGHT = 1.0
	DEFAULT_TEMPORAL_WEIGHT = 1.0
	DEFAULT_GAMMA           = 0.5
	DEFAULT_PULSE_LEVEL     = 1.0
	DEFAULT_TRIANGLE_LEVEL  = 1.0
	DEFAULT_NOISE_LEVEL     = 0.5
	DEFAULT_LIBRARY_DIR     = "~/.intuition_apu/library"

	MIN_WINDOW_SIZE = 1024 // FFT size floor; actual size is the next power of two above frame length
	MIN_SAMPLE_RATE = 8000
	MAX_SAMPLE_RATE = 192000
	MAX_CHANGE_RATE = 1000.0
)

// Library generation
const (
	LIBRARY_PHASE_OFFSETS = 4   // phase offsets averaged into each feature
	LIBRARY_BATCH_SIZE    = 256 // instructions per generation unit
)

// Search tuning
const (
	SEARCH_PARALLEL_THRESHOLD = 512 // candidates per channel before scoring fans out
	SEARCH_CHUNK_SIZE         = 256
)

// File formats
const (
	APPLICATION_NAME = "IntuitionAPU"

	LIBRARY_MAGIC          = "APUL"
	LIBRARY_FORMAT_VERSION = 2
	LIBRARY_FILE_EXT       = ".apul"

	RECONSTRUCTION_MAGIC          = "APUR"
	RECONSTRUCTION_FORMAT_VERSION = 3
	RECONSTRUCTION_FILE_EXT       = ".apur"

	FILE_MAX_ARRAY_LEN    = 1 << 28 // samples per stored array, about 100 minutes at 44.1kHz
	FILE_MAX_FRAGMENT_LEN = 1 << 20 // library fragments per file
)
