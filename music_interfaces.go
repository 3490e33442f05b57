// music_interfaces.go - Interfaces of the collaborators around the reconstruction engine

package main

// PreviewPlayer is implemented by the playback backends
// Plays one mono buffer at the sample rate it was opened with
type PreviewPlayer interface {
	// Load queues samples in [-1, 1], replacing anything queued before
	Load(samples []float64)
	// Start begins or resumes playback
	Start()
	// Stop pauses playback
	Stop()
	// Close releases the device
	Close()
	// IsStarted returns true while playback is running
	IsStarted() bool
	// Done returns true once every queued sample has been played
	Done() bool
}

// FeatureExporter maps one channel's instruction sequence to named integer
// sequences for third-party tracker formats
type FeatureExporter interface {
	Export(ch Channel, instrs []Instruction) (ChannelFeatures, error)
}

var (
	_ PreviewPlayer   = (*OtoPlayer)(nil)
	_ FeatureExporter = MacroExporter{}
	_ FeatureExporter = (*LuaExporter)(nil)
	_ AudioLoader     = (*FileAudioLoader)(nil)
)
