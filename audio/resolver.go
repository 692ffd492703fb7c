package audio

import (
	"fmt"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
)

// EnablementSnapshot is the read-only enablement view supplied by the
// settings collaborator. Missing instrument entries fall back to the
// catalog's default; missing family entries default to enabled.
type EnablementSnapshot struct {
	Instruments map[string]bool
	Families    map[string]bool
}

// Clone returns an independent copy
func (s EnablementSnapshot) Clone() EnablementSnapshot {
	out := EnablementSnapshot{
		Instruments: make(map[string]bool, len(s.Instruments)),
		Families:    make(map[string]bool, len(s.Families)),
	}
	for k, v := range s.Instruments {
		out.Instruments[k] = v
	}
	for k, v := range s.Families {
		out.Families[k] = v
	}
	return out
}

// resolveEnabled computes the effective-enabled set: an instrument is
// enabled iff its family flag AND its own flag are both true. The one
// returned slice feeds both the sample-loading and procedural paths, so
// the two can never disagree.
func resolveEnabled(cat *catalog.Catalog, snap EnablementSnapshot) ([]bool, error) {
	for name := range snap.Instruments {
		if _, ok := cat.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %w: instrument %q", ErrInvalidConfiguration, ErrUnknownInstrument, name)
		}
	}
	for name := range snap.Families {
		if _, ok := core.ParseFamily(name); !ok {
			return nil, fmt.Errorf("%w: unknown family %q", ErrInvalidConfiguration, name)
		}
	}

	famEnabled := [core.FamilyCount]bool{}
	for f := core.Family(0); f < core.FamilyCount; f++ {
		famEnabled[f] = true
		if v, ok := snap.Families[f.String()]; ok {
			famEnabled[f] = v
		}
	}

	enabled := make([]bool, cat.Len())
	for _, def := range cat.List() {
		instr := def.DefaultEnabled
		if v, ok := snap.Instruments[def.Name]; ok {
			instr = v
		}
		enabled[def.ID] = famEnabled[def.Family] && instr
	}
	return enabled, nil
}
