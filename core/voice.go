package core

// VoiceState tracks a pool slot's lifecycle
type VoiceState int

const (
	VoiceFree VoiceState = iota
	VoiceActive
	VoiceReleasing
)

// StealStrategy selects the victim when the pool is saturated
type StealStrategy int

const (
	// StealOldest reclaims the longest-playing voice (slot index breaks ties)
	StealOldest StealStrategy = iota
	// StealQuietest reclaims the voice with the lowest current gain
	StealQuietest
)

func (s StealStrategy) String() string {
	switch s {
	case StealOldest:
		return "oldest"
	case StealQuietest:
		return "quietest"
	default:
		return "unknown"
	}
}

// ParseStealStrategy maps a strategy name to its enum value
func ParseStealStrategy(name string) (StealStrategy, bool) {
	switch name {
	case "oldest":
		return StealOldest, true
	case "quietest":
		return StealQuietest, true
	default:
		return 0, false
	}
}

// InstrumentStatus is the per-instrument initialization outcome
type InstrumentStatus int

const (
	StatusUninitialized InstrumentStatus = iota
	StatusInitializing
	StatusReady
	StatusFallbackSynthesis // sample load failed, procedural source in use
	StatusCorrupted         // enabled but missing chain resources
	StatusFailed
	StatusDisposed // disabled or torn down
)

func (s InstrumentStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusFallbackSynthesis:
		return "fallback-synthesis"
	case StatusCorrupted:
		return "corrupted"
	case StatusFailed:
		return "failed"
	case StatusDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
