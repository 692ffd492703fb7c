package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sonigraph/engine/core"
	"github.com/sonigraph/engine/param"
)

func initTestEngine(t *testing.T) (*Engine, *ManualClock, *fakeFetcher) {
	t.Helper()
	e, clock, fetcher := newTestEngine(t)
	if _, err := e.Initialize(context.Background(), EnablementSnapshot{}, core.ModeProcedural); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return e, clock, fetcher
}

// burst builds n simultaneous same-pitch events on one instrument
func burst(n int, instrument string, dur time.Duration) []NoteEvent {
	events := make([]NoteEvent, n)
	for i := range events {
		events[i] = NoteEvent{
			Instrument: instrument,
			Frequency:  440,
			Velocity:   0.8,
			Duration:   dur,
		}
	}
	return events
}

// TestEngineRequiresInitialize verifies playback before Initialize is
// refused
func TestEngineRequiresInitialize(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := e.PlaySequence([]NoteEvent{{Instrument: "piano", Note: "C4", Duration: time.Second}})
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

// TestEngineBurstStaysWithinPoolBound verifies a 40-voice simultaneous
// burst saturates the pool at capacity with the overflow stolen
func TestEngineBurstStaysWithinPoolBound(t *testing.T) {
	e, clock, _ := initTestEngine(t)

	if err := e.PlaySequence(burst(40, "lead-synth", time.Second)); err != nil {
		t.Fatalf("PlaySequence failed: %v", err)
	}
	clock.Advance(param.SchedulerTick)

	active, steals := e.Stats()
	if active != param.DefaultPoolCapacity {
		t.Errorf("Active voices %d, want pool capacity %d", active, param.DefaultPoolCapacity)
	}
	if want := uint64(40 - param.DefaultPoolCapacity); steals != want {
		t.Errorf("Steals %d, want %d", steals, want)
	}
}

// TestEngineDiversifiesCollidingNotes verifies simultaneous same-pitch
// events are scheduled at pairwise distinct frequencies
func TestEngineDiversifiesCollidingNotes(t *testing.T) {
	e, _, _ := initTestEngine(t)

	if err := e.PlaySequence(burst(40, "lead-synth", time.Second)); err != nil {
		t.Fatalf("PlaySequence failed: %v", err)
	}
	e.Stop()

	e.sched.mu.Lock()
	notes := e.sched.notes
	e.sched.mu.Unlock()

	seen := make(map[int64]bool)
	for i, n := range notes {
		q := quantizeFreq(n.freq)
		if seen[q] {
			t.Errorf("Scheduled note %d collides at %.4f Hz", i, n.freq)
		}
		seen[q] = true
	}
}

// TestEngineStopThenReplay verifies stop is synchronous and a second
// play retriggers the full sequence without re-initializing
func TestEngineStopThenReplay(t *testing.T) {
	e, clock, _ := initTestEngine(t)

	triggers := 0
	orig := e.sched.trigger
	e.sched.trigger = func(n schedNote, now time.Duration) *Voice {
		triggers++
		return orig(n, now)
	}

	events := []NoteEvent{
		{Instrument: "piano", Note: "C4", Duration: 10 * time.Millisecond},
		{DueTime: 20 * time.Millisecond, Instrument: "violin", Note: "E4", Duration: 10 * time.Millisecond},
		{DueTime: 40 * time.Millisecond, Instrument: "flute", Note: "G4", Duration: 10 * time.Millisecond},
	}

	if err := e.PlaySequence(events); err != nil {
		t.Fatalf("First PlaySequence failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(param.SchedulerTick)
	}
	if triggers != 3 {
		t.Fatalf("First pass fired %d notes, want 3", triggers)
	}

	e.Stop()
	if active, _ := e.Stats(); active != 0 {
		t.Errorf("Active voices %d after Stop, want 0", active)
	}
	clock.Advance(time.Second)
	if triggers != 3 {
		t.Errorf("Notes fired after Stop: %d total", triggers)
	}

	if err := e.PlaySequence(events); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(param.SchedulerTick)
	}
	if triggers != 6 {
		t.Errorf("Replay fired %d total notes, want 6", triggers)
	}
}

// TestEnginePlayReplacesRunningSequence verifies PlaySequence on a
// running engine stops the old sequence instead of erroring
func TestEnginePlayReplacesRunningSequence(t *testing.T) {
	e, _, _ := initTestEngine(t)

	long := []NoteEvent{{DueTime: time.Minute, Instrument: "piano", Note: "C4", Duration: time.Second}}
	if err := e.PlaySequence(long); err != nil {
		t.Fatalf("First PlaySequence failed: %v", err)
	}
	if err := e.PlaySequence(long); err != nil {
		t.Fatalf("Replacement PlaySequence failed: %v", err)
	}
	if !e.sched.Running() {
		t.Error("Scheduler not running after replacement")
	}
}

// TestEngineRejectsUnknownInstrument verifies bad events fail before
// anything is scheduled
func TestEngineRejectsUnknownInstrument(t *testing.T) {
	e, _, _ := initTestEngine(t)

	err := e.PlaySequence([]NoteEvent{{Instrument: "theremin", Note: "C4", Duration: time.Second}})
	if !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("Expected ErrUnknownInstrument, got %v", err)
	}
	if e.sched.Running() {
		t.Error("Scheduler started on rejected sequence")
	}
}

// TestEngineRejectsPitchlessEvent verifies events without a note name
// or frequency are refused
func TestEngineRejectsPitchlessEvent(t *testing.T) {
	e, _, _ := initTestEngine(t)

	err := e.PlaySequence([]NoteEvent{{Instrument: "piano", Duration: time.Second}})
	if err == nil {
		t.Error("Expected error for pitchless event")
	}
}

// TestEngineInstrumentToggle verifies SetInstrumentEnabled flows
// through the resolver into chain state
func TestEngineInstrumentToggle(t *testing.T) {
	e, _, _ := initTestEngine(t)
	ctx := context.Background()

	on, err := e.EffectivelyEnabled("violin")
	if err != nil || !on {
		t.Fatalf("violin not enabled at start (err=%v)", err)
	}

	if err := e.SetInstrumentEnabled(ctx, "violin", false); err != nil {
		t.Fatalf("SetInstrumentEnabled failed: %v", err)
	}
	on, _ = e.EffectivelyEnabled("violin")
	if on {
		t.Error("violin still effectively enabled after disable")
	}
	if status, _ := e.StatusOf("violin"); status != core.StatusDisposed {
		t.Errorf("Disabled violin status %s, want %s", status, core.StatusDisposed)
	}

	if err := e.SetInstrumentEnabled(ctx, "violin", true); err != nil {
		t.Fatalf("Re-enable failed: %v", err)
	}
	if status, _ := e.StatusOf("violin"); status != core.StatusReady {
		t.Errorf("Re-enabled violin status %s, want %s", status, core.StatusReady)
	}

	if err := e.SetInstrumentEnabled(ctx, "theremin", true); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("Unknown toggle: expected ErrUnknownInstrument, got %v", err)
	}
}

// TestEngineFamilyToggle verifies the family flag overrides individual
// instrument flags
func TestEngineFamilyToggle(t *testing.T) {
	e, _, _ := initTestEngine(t)
	ctx := context.Background()

	if err := e.SetFamilyEnabled(ctx, "strings", false); err != nil {
		t.Fatalf("SetFamilyEnabled failed: %v", err)
	}
	for _, name := range []string{"violin", "viola", "cello", "harp"} {
		if on, _ := e.EffectivelyEnabled(name); on {
			t.Errorf("%s enabled despite family off", name)
		}
	}

	// Instrument flag alone cannot defeat the family flag
	if err := e.SetInstrumentEnabled(ctx, "violin", true); err != nil {
		t.Fatalf("SetInstrumentEnabled failed: %v", err)
	}
	if on, _ := e.EffectivelyEnabled("violin"); on {
		t.Error("violin enabled while strings family off")
	}

	if err := e.SetFamilyEnabled(ctx, "winds", true); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Unknown family: expected ErrInvalidConfiguration, got %v", err)
	}
}

// TestEngineVolumeControlDiagnostic verifies the completeness probe for
// enabled and disabled instruments
func TestEngineVolumeControlDiagnostic(t *testing.T) {
	e, _, _ := initTestEngine(t)

	vol, err := e.VolumeControlFor("piano")
	if err != nil || vol == nil {
		t.Errorf("Enabled piano has no volume control (err=%v)", err)
	}

	if err := e.SetInstrumentEnabled(context.Background(), "piano", false); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if _, err := e.VolumeControlFor("piano"); err == nil {
		t.Error("Disabled piano still exposes a volume control")
	}

	if _, err := e.VolumeControlFor("theremin"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("Unknown lookup: expected ErrUnknownInstrument, got %v", err)
	}
}

// TestEngineVoicesReleaseAfterDuration verifies leases expire and the
// pool drains once notes finish sounding
func TestEngineVoicesReleaseAfterDuration(t *testing.T) {
	e, clock, _ := initTestEngine(t)

	events := burst(4, "lead-synth", 20*time.Millisecond)
	if err := e.PlaySequence(events); err != nil {
		t.Fatalf("PlaySequence failed: %v", err)
	}

	clock.Advance(param.SchedulerTick)
	if active, _ := e.Stats(); active != 4 {
		t.Fatalf("Active voices %d after burst, want 4", active)
	}

	clock.Advance(20*time.Millisecond + param.ReleaseTail + param.SchedulerTick)
	if active, _ := e.Stats(); active != 0 {
		t.Errorf("Active voices %d after notes ended, want 0", active)
	}
}

// TestEngineStealKeepsNewNoteSounding verifies a short note's expiry
// cannot cut off the note that stole its slot: with a 2-voice pool, a
// short note and two long notes, both long notes must still sound after
// the short note's duration and release tail have elapsed.
func TestEngineStealKeepsNewNoteSounding(t *testing.T) {
	cat := testCatalog(t)
	clock := NewManualClock()
	cfg := DefaultEngineConfig()
	cfg.PoolCapacity = 2
	e := New(cat, cfg,
		WithLogger(quietLogger()),
		WithClock(clock),
		WithFetcher(newFakeFetcher()),
	)
	t.Cleanup(e.Close)
	if _, err := e.Initialize(context.Background(), EnablementSnapshot{}, core.ModeProcedural); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	events := []NoteEvent{
		{Instrument: "lead-synth", Frequency: 220, Velocity: 0.8, Duration: 20 * time.Millisecond},
		{Instrument: "lead-synth", Frequency: 330, Velocity: 0.8, Duration: time.Second},
		{DueTime: 10 * time.Millisecond, Instrument: "lead-synth", Frequency: 550, Velocity: 0.8, Duration: time.Second},
	}
	if err := e.PlaySequence(events); err != nil {
		t.Fatalf("PlaySequence failed: %v", err)
	}

	// Both t=0 notes fire, then the staggered note steals the short
	// note's slot
	clock.Advance(param.SchedulerTick)
	clock.Advance(10 * time.Millisecond)
	if _, steals := e.Stats(); steals != 1 {
		t.Fatalf("Expected 1 steal after third note, got %d", steals)
	}

	// Past the short note's duration + release tail; its lease expiry
	// must not touch the stolen slot's new occupant
	clock.Advance(250 * time.Millisecond)
	if active, _ := e.Stats(); active != 2 {
		t.Errorf("Long notes should both still sound, got %d active", active)
	}
}

// TestEngineTogglesRequireInitialize verifies enablement toggles on an
// uninitialized engine fail instead of running a phantom initialization
func TestEngineTogglesRequireInitialize(t *testing.T) {
	e, _, fetcher := newTestEngine(t)
	ctx := context.Background()

	if err := e.SetInstrumentEnabled(ctx, "violin", false); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SetInstrumentEnabled: expected ErrNotInitialized, got %v", err)
	}
	if err := e.SetFamilyEnabled(ctx, "strings", false); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SetFamilyEnabled: expected ErrNotInitialized, got %v", err)
	}
	if n := fetcher.callCount(); n != 0 {
		t.Errorf("Uninitialized toggle fetched %d sample sets, want 0", n)
	}
}

// TestEngineSampleModeUsesFetcher verifies end-to-end sample
// initialization through the injected fetcher
func TestEngineSampleModeUsesFetcher(t *testing.T) {
	e, _, fetcher := newTestEngine(t)

	if _, err := e.Initialize(context.Background(), EnablementSnapshot{}, core.ModeSample); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if fetcher.callCount() == 0 {
		t.Error("Sample mode made no fetches")
	}
	if status, _ := e.StatusOf("piano"); status != core.StatusReady {
		t.Errorf("piano status %s in sample mode, want %s", status, core.StatusReady)
	}
}
