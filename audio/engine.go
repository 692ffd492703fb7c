package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
	"github.com/sonigraph/engine/param"
)

// speakerGate guards signal-graph mutation with the speaker lock once a
// speaker is attached; before that, mutation is already serialized by
// the state lock and the gate is a no-op.
type speakerGate struct {
	active atomic.Bool
}

func (g *speakerGate) Lock() {
	if g.active.Load() {
		speaker.Lock()
	}
}

func (g *speakerGate) Unlock() {
	if g.active.Load() {
		speaker.Unlock()
	}
}

// Engine is the playback facade: it owns the engine state, the voice
// pool and the scheduler, and exposes the operations the plugin shell
// calls.
type Engine struct {
	cat    *catalog.Catalog
	cfg    *EngineConfig
	state  *EngineState
	pool   *VoicePool
	sched  *Scheduler
	gate   *speakerGate
	logger *slog.Logger

	mu          sync.Mutex
	snap        EnablementSnapshot
	mode        core.SynthesisMode
	initialized bool

	wantSpeaker  bool
	speakerReady bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger injects the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFetcher replaces the CDN sample fetcher
func WithFetcher(f SampleFetcher) Option {
	return func(e *Engine) { e.state.fetcher = f }
}

// WithClock replaces the playback clock
func WithClock(c Clock) Option {
	return func(e *Engine) { e.sched.clock = c }
}

// WithSpeaker attaches real audio output on first Initialize
func WithSpeaker() Option {
	return func(e *Engine) { e.wantSpeaker = true }
}

// New creates an engine over a loaded catalog. The config may be nil
// for defaults.
func New(cat *catalog.Catalog, cfg *EngineConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	cfg.normalize()

	logger := slog.Default()
	gate := &speakerGate{}

	e := &Engine{
		cat:    cat,
		cfg:    cfg,
		gate:   gate,
		logger: logger,
	}
	e.state = newEngineState(cat, cfg, newHTTPFetcher(cfg.SampleTimeout), logger)
	e.state.out = gate
	e.pool = newVoicePool(cat, cfg, logger)
	e.pool.silence = func(c *beep.Ctrl) {
		gate.Lock()
		detachCtrl(c)
		gate.Unlock()
	}
	e.sched = newScheduler(SystemClock(), logger)

	for _, opt := range opts {
		opt(e)
	}

	// Re-apply a custom logger to the owned components
	e.state.logger = e.logger
	e.pool.logger = e.logger
	e.sched.logger = e.logger

	e.sched.trigger = func(n schedNote, now time.Duration) *Voice {
		return e.state.Trigger(n, e.pool, now)
	}
	e.sched.release = e.pool.ReleaseIf
	e.sched.releaseAll = e.pool.ReleaseAll
	e.sched.generation = e.pool.Generation

	return e
}

// Initialize resolves the enablement snapshot and brings every
// instrument chain to its target state for the given synthesis mode.
// Safe to call repeatedly across play sessions.
func (e *Engine) Initialize(ctx context.Context, snap EnablementSnapshot, mode core.SynthesisMode) (*InitReport, error) {
	report, err := e.state.Initialize(ctx, snap, mode)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.snap = snap.Clone()
	e.mode = mode
	e.initialized = true
	e.mu.Unlock()

	if e.wantSpeaker {
		if err := e.attachSpeaker(); err != nil {
			// Playback still works headless; the caller decides whether
			// silence is acceptable
			e.logger.Warn("speaker unavailable, running headless", "error", err)
		}
	}
	return report, nil
}

func (e *Engine) attachSpeaker() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speakerReady {
		return nil
	}

	sr := beep.SampleRate(e.cfg.SampleRate)
	if err := speaker.Init(sr, sr.N(param.AudioBufferDuration)); err != nil {
		return err
	}
	e.gate.active.Store(true)
	speaker.Play(e.state.Output())
	e.speakerReady = true
	return nil
}

// Reinitialize re-runs the corruption check and repairs any enabled
// instrument with a partial chain.
func (e *Engine) Reinitialize(ctx context.Context) (*InitReport, error) {
	return e.state.Reinitialize(ctx)
}

// PlaySequence resolves, diversifies and schedules the note events,
// then starts playback. A running sequence is stopped first.
func (e *Engine) PlaySequence(events []NoteEvent) error {
	e.mu.Lock()
	ready := e.initialized
	maxCents := e.cfg.MaxDetuneCents
	e.mu.Unlock()

	if !ready {
		return ErrNotInitialized
	}

	notes := make([]schedNote, 0, len(events))
	for i, ev := range events {
		id, ok := e.cat.Lookup(ev.Instrument)
		if !ok {
			return fmt.Errorf("%w: %q (event %d)", ErrUnknownInstrument, ev.Instrument, i)
		}
		freq, err := eventFrequency(ev)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		vel := ev.Velocity
		if vel <= 0 {
			vel = param.DefaultInstrumentLevel
		}
		if vel > 1 {
			vel = 1
		}
		notes = append(notes, schedNote{
			due:        ev.DueTime,
			instrument: id,
			name:       ev.Instrument,
			freq:       freq,
			velocity:   vel,
			duration:   ev.Duration,
		})
	}

	// Diversification happens before scheduling so colliding voices
	// never reach the pool at identical frequencies
	diversifyFrequencies(notes, maxCents)

	if e.sched.Running() {
		e.sched.Stop()
	}
	e.sched.Schedule(notes)
	return e.sched.Start()
}

// Stop synchronously silences all voices and clears pending events.
// PlaySequence may be called again without re-initializing.
func (e *Engine) Stop() {
	e.sched.Stop()
}

// SetInstrumentEnabled flips one instrument's flag and re-runs the
// resolver and initializer.
func (e *Engine) SetInstrumentEnabled(ctx context.Context, name string, enabled bool) error {
	if _, ok := e.cat.Lookup(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if e.snap.Instruments == nil {
		e.snap.Instruments = make(map[string]bool)
	}
	e.snap.Instruments[name] = enabled
	snap := e.snap.Clone()
	mode := e.mode
	e.mu.Unlock()

	_, err := e.state.Initialize(ctx, snap, mode)
	return err
}

// SetFamilyEnabled flips a family flag and re-runs the resolver and
// initializer.
func (e *Engine) SetFamilyEnabled(ctx context.Context, family string, enabled bool) error {
	if _, ok := core.ParseFamily(family); !ok {
		return fmt.Errorf("%w: unknown family %q", ErrInvalidConfiguration, family)
	}

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if e.snap.Families == nil {
		e.snap.Families = make(map[string]bool)
	}
	e.snap.Families[family] = enabled
	snap := e.snap.Clone()
	mode := e.mode
	e.mu.Unlock()

	_, err := e.state.Initialize(ctx, snap, mode)
	return err
}

// EffectivelyEnabled reports the resolver's decision for one instrument
func (e *Engine) EffectivelyEnabled(name string) (bool, error) {
	id, ok := e.cat.Lookup(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return e.state.EffectivelyEnabled(id), nil
}

// VolumeControlFor returns the named instrument's volume node, used by
// diagnostic tooling to assert the completeness invariant.
func (e *Engine) VolumeControlFor(name string) (*effects.Volume, error) {
	id, ok := e.cat.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	vol, ok := e.state.VolumeControlFor(id)
	if !ok {
		return nil, fmt.Errorf("instrument %q has no volume control", name)
	}
	return vol, nil
}

// StatusOf returns the named instrument's chain status
func (e *Engine) StatusOf(name string) (core.InstrumentStatus, error) {
	id, ok := e.cat.Lookup(name)
	if !ok {
		return core.StatusUninitialized, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return e.state.StatusOf(id), nil
}

// Output exposes the master bus for headless rendering
func (e *Engine) Output() beep.Streamer {
	return e.state.Output()
}

// Stats reports active voices and cumulative steals
func (e *Engine) Stats() (active int, steals uint64) {
	return e.pool.ActiveCount(), e.pool.Steals()
}

// Close stops playback and tears the engine state down
func (e *Engine) Close() {
	e.sched.Stop()
	e.state.Teardown()

	e.mu.Lock()
	if e.speakerReady {
		speaker.Clear()
	}
	e.initialized = false
	e.mu.Unlock()
}
