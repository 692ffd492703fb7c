package core

// Family groups instruments for family-level enablement
type Family int

const (
	FamilyKeyboard Family = iota
	FamilyStrings
	FamilyBrass
	FamilyWoodwind
	FamilyVocal
	FamilyPercussion
	FamilyElectronic
	FamilyExperimental
	FamilyCount
)

var familyNames = [FamilyCount]string{
	FamilyKeyboard:     "keyboard",
	FamilyStrings:      "strings",
	FamilyBrass:        "brass",
	FamilyWoodwind:     "woodwind",
	FamilyVocal:        "vocal",
	FamilyPercussion:   "percussion",
	FamilyElectronic:   "electronic",
	FamilyExperimental: "experimental",
}

func (f Family) String() string {
	if f < 0 || f >= FamilyCount {
		return "unknown"
	}
	return familyNames[f]
}

// ParseFamily maps a family name to its enum value
func ParseFamily(name string) (Family, bool) {
	for f, n := range familyNames {
		if n == name {
			return Family(f), true
		}
	}
	return 0, false
}

// SynthesisMode selects how enabled instruments produce sound
type SynthesisMode int

const (
	ModeSample SynthesisMode = iota // CDN sample playback
	ModeProcedural                  // generated waveforms
)

func (m SynthesisMode) String() string {
	switch m {
	case ModeSample:
		return "sample"
	case ModeProcedural:
		return "procedural"
	default:
		return "unknown"
	}
}

// ParseSynthesisMode maps a mode name to its enum value
func ParseSynthesisMode(name string) (SynthesisMode, bool) {
	switch name {
	case "sample":
		return ModeSample, true
	case "procedural":
		return ModeProcedural, true
	default:
		return 0, false
	}
}

// Waveform defines oscillator wave shapes
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSaw
	WaveTriangle
	WaveNoise
)

// ParseWaveform maps a waveform name to its enum value
func ParseWaveform(name string) (Waveform, bool) {
	switch name {
	case "sine":
		return WaveSine, true
	case "square":
		return WaveSquare, true
	case "saw":
		return WaveSaw, true
	case "triangle":
		return WaveTriangle, true
	case "noise":
		return WaveNoise, true
	default:
		return 0, false
	}
}
