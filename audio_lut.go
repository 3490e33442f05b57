// audio_lut.go - APU sequencer lookup tables

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

// Duty sequences as the 2A03 sequencer plays them, one row per duty index
// (12.5%, 25%, 50%, 25% negated).
var pulseDutySequences = [APU_DUTY_COUNT][APU_PULSE_STEPS]uint8{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

// Noise timer periods in CPU cycles (NTSC), indexed by the 4-bit period register.
var noisePeriodTable = [APU_PERIOD_SIZE]int{
	4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068,
}

// pulseLUT holds the duty sequences mapped to bipolar levels.
var pulseLUT [APU_DUTY_COUNT][APU_PULSE_STEPS]float64

// triangleLUT holds the 32-step triangle sequence (15..0, 0..15) mapped to [-1, 1].
var triangleLUT [APU_TRIANGLE_STEPS]float64

// volumeLUT maps the 4-bit volume register to linear gain.
var volumeLUT [APU_VOLUME_MAX + 1]float64

func init() {
	for d := 0; d < APU_DUTY_COUNT; d++ {
		for s := 0; s < APU_PULSE_STEPS; s++ {
			pulseLUT[d][s] = float64(pulseDutySequences[d][s])*2 - 1
		}
	}

	for s := 0; s < APU_TRIANGLE_STEPS; s++ {
		level := 15 - s
		if s >= 16 {
			level = s - 16
		}
		triangleLUT[s] = float64(level)/7.5 - 1
	}

	for v := 0; v <= APU_VOLUME_MAX; v++ {
		volumeLUT[v] = float64(v) / APU_VOLUME_MAX
	}
}

// pulseSample returns the bipolar duty level for a phase in [0, 1).
//
//go:nosplit
func pulseSample(duty int, phase float64) float64 {
	step := int(phase * APU_PULSE_STEPS)
	if step >= APU_PULSE_STEPS {
		step = APU_PULSE_STEPS - 1
	}
	return pulseLUT[duty][step]
}

// triangleSample returns the quantized triangle level for a phase in [0, 1).
//
//go:nosplit
func triangleSample(phase float64) float64 {
	step := int(phase * APU_TRIANGLE_STEPS)
	if step >= APU_TRIANGLE_STEPS {
		step = APU_TRIANGLE_STEPS - 1
	}
	return triangleLUT[step]
}
