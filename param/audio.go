package param

import "time"

// Audio Hardware Settings
const (
	AudioSampleRate    = 44100
	AudioChannels      = 2
	AudioBitDepth      = 16
	AudioBytesPerFrame = AudioChannels * (AudioBitDepth / 8) // 4 bytes
)

// Audio Engine Timing
const (
	// AudioBufferDuration determines speaker latency
	AudioBufferDuration = 50 * time.Millisecond

	// SchedulerTick is the playback clock resolution
	SchedulerTick = 5 * time.Millisecond
)

// Voice Pool
const (
	// DefaultPoolCapacity is the system-wide voice slot count
	DefaultPoolCapacity = 32

	// MaxPoolCapacity caps configured pool sizes
	MaxPoolCapacity = 64

	// ReleaseTail keeps a voice slot occupied after its note duration
	// so the release phase is not cut off
	ReleaseTail = 200 * time.Millisecond
)

// Adaptive Quality
// Sustained allocation pressure shrinks effective pool capacity through
// tiers before audible stutter sets in.
const (
	PressureWindow = 1 * time.Second

	// Allocations per window that trigger each tier
	PressureReducedThreshold = 48
	PressureMinimumThreshold = 96

	QualityTierFull    = 1.0
	QualityTierReduced = 0.75
	QualityTierMinimum = 0.5
)

// Frequency Diversification
const (
	// DefaultMaxDetuneCents bounds per-voice micro-detune applied to
	// colliding identical-frequency notes
	DefaultMaxDetuneCents = 2.0

	// FreqCollisionEpsilon is the Hz tolerance for treating two note
	// frequencies as colliding
	FreqCollisionEpsilon = 0.001
)

// Sample Loading
const (
	// SampleFetchTimeout bounds a single CDN fetch
	SampleFetchTimeout = 10 * time.Second

	// SampleRootFreq is the pitch samples are assumed recorded at (C4)
	SampleRootFreq = 261.626

	// SampleMaxBytes caps a decoded sample fetch
	SampleMaxBytes = 8 << 20
)

// Mix Levels
const (
	DefaultMasterVolume    = 0.8
	DefaultInstrumentLevel = 0.8
)
