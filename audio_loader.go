// audio_loader.go - WAV/MP3 decoding, downmix, resampling and preview loading

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dh1tw/gosamplerate"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// AudioLoader supplies mono samples in [-1, 1] at a requested rate.
type AudioLoader interface {
	Load(path string, sampleRate int, normalize, quantize bool) ([]float64, error)
}

// FileAudioLoader decodes WAV and MP3 files from disk.
type FileAudioLoader struct {
	log *slog.Logger
}

func NewFileAudioLoader() *FileAudioLoader {
	return &FileAudioLoader{log: slog.Default().With("component", "audio")}
}

// Load decodes path, downmixes to mono, resamples to sampleRate, then
// optionally peak-normalizes and quantizes to 16 bits.
func (l *FileAudioLoader) Load(path string, sampleRate int, normalize, quantize bool) ([]float64, error) {
	typ := detectAudioType(path)
	if typ == AUDIO_TYPE_NONE {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedAudio)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		frames    []float32
		channels  int
		fileRate  int
		decodeErr error
	)
	switch typ {
	case AUDIO_TYPE_WAV:
		frames, channels, fileRate, decodeErr = decodeWAV(f)
	case AUDIO_TYPE_MP3:
		frames, channels, fileRate, decodeErr = decodeMP3(f)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, decodeErr)
	}
	l.log.Debug("decoded audio", "path", path, "sampleRate", fileRate, "nchannels", channels, "nsamples", len(frames))

	mono := downmix(frames, channels)
	if fileRate != sampleRate && len(mono) > 0 {
		resampled, err := gosamplerate.Simple(mono, float64(sampleRate)/float64(fileRate), 1, gosamplerate.SRC_SINC_BEST_QUALITY)
		if err != nil {
			return nil, fmt.Errorf("resampling %s: %w", path, err)
		}
		l.log.Debug("resampled audio", "path", path, "from", fileRate, "to", sampleRate)
		mono = resampled
	}

	out := make([]float64, len(mono))
	for i, v := range mono {
		out[i] = math.Max(-1, math.Min(1, float64(v)))
	}
	if normalize {
		if peak := peakLevel(out); peak > 0 {
			for i := range out {
				out[i] /= peak
			}
		}
	}
	if quantize {
		for i, v := range out {
			out[i] = math.Round(v*AUDIO_QUANTIZE_LEVELS) / AUDIO_QUANTIZE_LEVELS
		}
	}
	return out, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, 0, errors.New("invalid WAV file")
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, 0, 0, err
	}
	format := decoder.Format()
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 || format == nil || format.NumChannels == 0 {
		return nil, 0, 0, errors.New("unknown WAV sample format")
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	nbytes := int(decoder.PCMLen())
	if nbytes > AUDIO_MAX_FILE_SIZE {
		return nil, 0, 0, fmt.Errorf("WAV data too large (%d bytes)", nbytes)
	}
	nsamples := nbytes / bytesPerSample

	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	n, err := decoder.PCMBuffer(buf)
	if err != nil {
		return nil, 0, 0, err
	}
	floatBuf := buf.AsFloatBuffer()
	factor := math.Pow(2, float64(bitDepth-1))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(floatBuf.Data[i] / factor)
	}
	return out, format.NumChannels, format.SampleRate, nil
}

func decodeMP3(r io.Reader) ([]float32, int, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	nbytes := decoder.Length()
	if nbytes <= 0 {
		return nil, 0, 0, errors.New("cannot determine MP3 length")
	}
	if nbytes > AUDIO_MAX_FILE_SIZE {
		return nil, 0, 0, fmt.Errorf("MP3 data too large (%d bytes)", nbytes)
	}
	nsamples := int(nbytes / 2)
	out := make([]float32, 0, nsamples)
	var sample int16
	for i := 0; i < nsamples; i++ {
		err := binary.Read(decoder, binary.LittleEndian, &sample)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		out = append(out, float32(sample)/32768)
	}
	return out, AUDIO_MP3_CHANNELS, decoder.SampleRate(), nil
}

// downmix averages interleaved channels into one.
func downmix(frames []float32, channels int) []float32 {
	if channels <= 1 {
		return frames
	}
	n := len(frames) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += frames[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func detectAudioType(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return AUDIO_TYPE_WAV
	case ".mp3":
		return AUDIO_TYPE_MP3
	default:
		return AUDIO_TYPE_NONE
	}
}

// LoadPreviewAudio loads audio for listening only. Any failure degrades to
// one second of silence; reconstruction never goes through this path.
func LoadPreviewAudio(loader AudioLoader, path string, sampleRate int) []float64 {
	samples, err := loader.Load(path, sampleRate, true, false)
	if err != nil || len(samples) == 0 {
		slog.Default().With("component", "audio").Warn("preview audio unavailable, using silence", "path", path, "err", err)
		return make([]float64, sampleRate*PREVIEW_SILENCE_SECS)
	}
	return samples
}

// PreviewLoader loads preview audio in the background. Starting a new load
// or stopping supersedes any load still in flight.
type PreviewLoader struct {
	loader     AudioLoader
	sampleRate int

	mu      sync.Mutex
	status  int
	path    string
	samples []float64
	reqGen  uint64
	ready   chan struct{}
}

func NewPreviewLoader(loader AudioLoader, sampleRate int) *PreviewLoader {
	return &PreviewLoader{loader: loader, sampleRate: sampleRate, status: PREVIEW_STATUS_IDLE}
}

// Start begins loading path and returns a channel closed when that load
// settles. A superseded load never publishes its samples.
func (p *PreviewLoader) Start(path string) <-chan struct{} {
	p.mu.Lock()
	p.reqGen++
	reqGen := p.reqGen
	p.status = PREVIEW_STATUS_LOADING
	p.path = path
	p.samples = nil
	ready := make(chan struct{})
	p.ready = ready
	p.mu.Unlock()

	go p.load(reqGen, path, ready)
	return ready
}

func (p *PreviewLoader) load(reqGen uint64, path string, ready chan struct{}) {
	defer close(ready)
	samples, err := p.loader.Load(path, p.sampleRate, true, false)

	p.mu.Lock()
	defer p.mu.Unlock()
	if reqGen != p.reqGen {
		return
	}
	if err != nil || len(samples) == 0 {
		slog.Default().With("component", "audio").Warn("preview audio unavailable, using silence", "path", path, "err", err)
		p.status = PREVIEW_STATUS_ERROR
		p.samples = make([]float64, p.sampleRate*PREVIEW_SILENCE_SECS)
		return
	}
	p.status = PREVIEW_STATUS_READY
	p.samples = samples
}

// Stop abandons any load in flight.
func (p *PreviewLoader) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqGen++
	p.status = PREVIEW_STATUS_IDLE
	p.samples = nil
}

// Status returns the load status and, once settled, the samples.
func (p *PreviewLoader) Status() (int, []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.samples
}
