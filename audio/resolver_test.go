package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/sonigraph/engine/core"
)

// TestResolverAppliesBothFlags verifies effective-enabled is the AND of
// the family flag and the instrument flag for all four combinations
func TestResolverAppliesBothFlags(t *testing.T) {
	cat := testCatalog(t)

	cases := []struct {
		family     bool
		instrument bool
		want       bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}

	for _, tc := range cases {
		snap := EnablementSnapshot{
			Instruments: map[string]bool{"violin": tc.instrument},
			Families:    map[string]bool{"strings": tc.family},
		}
		enabled, err := resolveEnabled(cat, snap)
		if err != nil {
			t.Fatalf("resolveEnabled failed: %v", err)
		}
		id, _ := cat.Lookup("violin")
		if enabled[id] != tc.want {
			t.Errorf("family=%v instrument=%v: got %v, want %v",
				tc.family, tc.instrument, enabled[id], tc.want)
		}
	}
}

// TestResolverDefaults verifies missing entries fall back to the
// catalog default (instrument) and enabled (family)
func TestResolverDefaults(t *testing.T) {
	cat := testCatalog(t)

	enabled, err := resolveEnabled(cat, EnablementSnapshot{})
	if err != nil {
		t.Fatalf("resolveEnabled failed: %v", err)
	}

	for _, def := range cat.List() {
		if enabled[def.ID] != def.DefaultEnabled {
			t.Errorf("Instrument %q: got %v, want catalog default %v",
				def.Name, enabled[def.ID], def.DefaultEnabled)
		}
	}
}

// TestResolverRejectsUnknownNames verifies malformed snapshots are
// fatal, not silently ignored
func TestResolverRejectsUnknownNames(t *testing.T) {
	cat := testCatalog(t)

	_, err := resolveEnabled(cat, EnablementSnapshot{
		Instruments: map[string]bool{"theremin": true},
	})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Unknown instrument: expected ErrInvalidConfiguration, got %v", err)
	}

	_, err = resolveEnabled(cat, EnablementSnapshot{
		Families: map[string]bool{"winds": true},
	})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Unknown family: expected ErrInvalidConfiguration, got %v", err)
	}
}

// TestResolverAgreementAcrossModes verifies the sample-loading path and
// the procedural path compute identical effective-enabled sets for
// every flag combination. The historical defect was the resolver being
// consulted by only one of the two paths.
func TestResolverAgreementAcrossModes(t *testing.T) {
	cat := testCatalog(t)

	flagCombos := []struct {
		family     bool
		instrument bool
	}{
		{true, true}, {true, false}, {false, true}, {false, false},
	}

	for _, tc := range flagCombos {
		snap := EnablementSnapshot{
			Instruments: map[string]bool{"piano": tc.instrument},
			Families:    map[string]bool{"keyboard": tc.family},
		}

		enabledSets := make([]map[string]bool, 0, 2)
		for _, mode := range []core.SynthesisMode{core.ModeSample, core.ModeProcedural} {
			st := newEngineState(cat, DefaultEngineConfig(), newFakeFetcher(), quietLogger())
			report, err := st.Initialize(context.Background(), snap, mode)
			if err != nil {
				t.Fatalf("Initialize(%s) failed: %v", mode, err)
			}

			set := make(map[string]bool)
			for _, res := range report.Results {
				set[res.Name] = res.Status != core.StatusDisposed
			}
			enabledSets = append(enabledSets, set)
		}

		for name, sampleEnabled := range enabledSets[0] {
			if enabledSets[1][name] != sampleEnabled {
				t.Errorf("family=%v instrument=%v: paths disagree on %q (sample=%v procedural=%v)",
					tc.family, tc.instrument, name, sampleEnabled, enabledSets[1][name])
			}
		}
	}
}
