package main

// Audio file types recognised by the loader.
const (
	AUDIO_TYPE_NONE = iota
	AUDIO_TYPE_WAV
	AUDIO_TYPE_MP3
)

// Preview load status values.
const (
	PREVIEW_STATUS_IDLE = iota
	PREVIEW_STATUS_LOADING
	PREVIEW_STATUS_READY
	PREVIEW_STATUS_ERROR
)

// Decoder limits.
const (
	AUDIO_MP3_CHANNELS    = 2       // go-mp3 always decodes to 16-bit stereo
	AUDIO_MAX_FILE_SIZE   = 1 << 30 // refuse anything larger than 1GB of PCM
	AUDIO_QUANTIZE_LEVELS = 32767   // 16-bit quantization
	PREVIEW_SILENCE_SECS  = 1       // fallback length when a preview cannot be loaded
)
