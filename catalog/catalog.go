// Package catalog holds the declarative instrument catalog: immutable
// per-instrument metadata loaded once and shared for the process lifetime.
package catalog

import (
	"errors"
	"fmt"

	"github.com/sonigraph/engine/core"
)

// ID is a dense index into the loaded catalog. All runtime tables are
// slices indexed by ID, so a valid ID can never miss a lookup.
type ID int

// None marks the absence of an instrument
const None ID = -1

// ErrNotFound reports a name that is not in the catalog. Callers must
// treat this as a configuration error, not a runtime fallback case.
var ErrNotFound = errors.New("catalog: instrument not found")

// SynthParams drives procedural synthesis for an instrument
type SynthParams struct {
	Wave    core.Waveform
	Attack  float64 // seconds
	Decay   float64 // seconds
	Sustain float64 // level 0-1
	Release float64 // seconds

	// FM pair for bell/key tones (0 = plain oscillator)
	FMRatio float64
	FMIndex float64

	// DetuneSpread thickens pads with fixed-ratio side oscillators
	DetuneSpread float64

	// One-shot percussion: envelope ignores note duration
	OneShot   bool
	Noise     float64 // noise mix 0-1
	PitchDrop float64 // exponential pitch drop factor (timpani, toms)
}

// Definition is one catalog entry, immutable after load
type Definition struct {
	ID                  ID
	Name                string
	Family              core.Family
	Synth               SynthParams
	SampleSet           string // URI template, empty = procedural only
	DefaultEnabled      bool
	RequiresHighQuality bool
	MaxVoices           int     // per-instrument polyphony cap, 0 = pool-wide only
	Level               float64 // default volume node level, 0 = unset
}

// Catalog is the loaded instrument set
type Catalog struct {
	defs     []Definition
	byName   map[string]ID
	byFamily [core.FamilyCount][]ID
}

// Len returns the number of instruments
func (c *Catalog) Len() int {
	return len(c.defs)
}

// List returns all definitions in catalog order
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get returns the definition for a valid ID. IDs only come from this
// catalog, so an out-of-range ID is a programming error.
func (c *Catalog) Get(id ID) Definition {
	if id < 0 || int(id) >= len(c.defs) {
		panic(fmt.Sprintf("catalog: invalid instrument id %d", id))
	}
	return c.defs[id]
}

// Lookup resolves an instrument name to its ID
func (c *Catalog) Lookup(name string) (ID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// Find resolves a name or returns ErrNotFound
func (c *Catalog) Find(name string) (Definition, error) {
	id, ok := c.byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c.defs[id], nil
}

// Family returns the IDs belonging to a family
func (c *Catalog) Family(f core.Family) []ID {
	if f < 0 || f >= core.FamilyCount {
		return nil
	}
	return c.byFamily[f]
}
