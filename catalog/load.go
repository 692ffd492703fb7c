package catalog

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/sonigraph/engine/core"
)

//go:embed catalog.toml
var embedded []byte

// tomlInstrument mirrors one [[instrument]] table
type tomlInstrument struct {
	Name        string    `toml:"name"`
	Family      string    `toml:"family"`
	Enabled     bool      `toml:"enabled"`
	HighQuality bool      `toml:"high-quality"`
	Samples     string    `toml:"samples"`
	Level       float64   `toml:"level"`
	MaxVoices   int       `toml:"max-voices"`
	Synth       tomlSynth `toml:"synth"`
}

type tomlSynth struct {
	Wave         string  `toml:"wave"`
	Attack       float64 `toml:"attack"`
	Decay        float64 `toml:"decay"`
	Sustain      float64 `toml:"sustain"`
	Release      float64 `toml:"release"`
	FMRatio      float64 `toml:"fm-ratio"`
	FMIndex      float64 `toml:"fm-index"`
	DetuneSpread float64 `toml:"detune-spread"`
	OneShot      bool    `toml:"one-shot"`
	Noise        float64 `toml:"noise"`
	PitchDrop    float64 `toml:"pitch-drop"`
}

type tomlCatalog struct {
	Instruments []tomlInstrument `toml:"instrument"`
}

// Load parses the embedded catalog
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse builds a catalog from TOML data
func Parse(data []byte) (*Catalog, error) {
	var raw tomlCatalog
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(raw.Instruments) == 0 {
		return nil, fmt.Errorf("catalog: no instruments defined")
	}

	c := &Catalog{
		defs:   make([]Definition, 0, len(raw.Instruments)),
		byName: make(map[string]ID, len(raw.Instruments)),
	}

	for _, in := range raw.Instruments {
		if in.Name == "" {
			return nil, fmt.Errorf("catalog: instrument with empty name")
		}
		if _, dup := c.byName[in.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate instrument %q", in.Name)
		}
		fam, ok := core.ParseFamily(in.Family)
		if !ok {
			return nil, fmt.Errorf("catalog: instrument %q: unknown family %q", in.Name, in.Family)
		}
		wave := core.WaveSine
		if in.Synth.Wave != "" {
			wave, ok = core.ParseWaveform(in.Synth.Wave)
			if !ok {
				return nil, fmt.Errorf("catalog: instrument %q: unknown waveform %q", in.Name, in.Synth.Wave)
			}
		}

		id := ID(len(c.defs))
		def := Definition{
			ID:     id,
			Name:   in.Name,
			Family: fam,
			Synth: SynthParams{
				Wave:         wave,
				Attack:       in.Synth.Attack,
				Decay:        in.Synth.Decay,
				Sustain:      in.Synth.Sustain,
				Release:      in.Synth.Release,
				FMRatio:      in.Synth.FMRatio,
				FMIndex:      in.Synth.FMIndex,
				DetuneSpread: in.Synth.DetuneSpread,
				OneShot:      in.Synth.OneShot,
				Noise:        in.Synth.Noise,
				PitchDrop:    in.Synth.PitchDrop,
			},
			SampleSet:           in.Samples,
			DefaultEnabled:      in.Enabled,
			RequiresHighQuality: in.HighQuality,
			MaxVoices:           in.MaxVoices,
			Level:               in.Level,
		}
		c.defs = append(c.defs, def)
		c.byName[in.Name] = id
		c.byFamily[fam] = append(c.byFamily[fam], id)
	}

	return c, nil
}
