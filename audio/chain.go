package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
	"github.com/sonigraph/engine/param"
)

// instrumentChain is one instrument's runtime state. The completeness
// invariant: bus, fx and volume are all present together or all absent;
// anything else is the defined corruption state and gets repaired.
type instrumentChain struct {
	def    catalog.Definition
	status core.InstrumentStatus

	wantMode core.SynthesisMode // mode requested at build time
	mode     core.SynthesisMode // mode actually in use (fallback may differ)

	bus    *beep.Mixer     // per-voice attachment point
	fx     beep.Streamer   // gain -> pan over the bus
	volume *effects.Volume // per-instrument volume node
	top    *beep.Ctrl      // attachment on the master bus

	sample  *beep.Buffer
	lastErr error
}

func (ch *instrumentChain) complete() bool {
	return ch != nil && ch.bus != nil && ch.fx != nil && ch.volume != nil &&
		(ch.status == core.StatusReady || ch.status == core.StatusFallbackSynthesis)
}

// noopLocker stands in for the speaker lock when no output is attached
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// EngineState owns the master bus and every per-instrument chain. All
// topology changes (create, dispose, reconnect) go through its
// initialization routines; the pool and scheduler only reference the
// chains.
type EngineState struct {
	mu  sync.Mutex
	cat *catalog.Catalog
	cfg *EngineConfig

	master    *beep.Mixer
	masterVol *effects.Volume
	chains    []*instrumentChain
	enabled   []bool
	mode      core.SynthesisMode

	fetcher SampleFetcher
	cache   *sampleCache

	// out serializes signal-graph mutation against the audio callback;
	// the speaker lock when a speaker is attached
	out sync.Locker

	logger      *slog.Logger
	initialized bool
}

func newEngineState(cat *catalog.Catalog, cfg *EngineConfig, fetcher SampleFetcher, logger *slog.Logger) *EngineState {
	return &EngineState{
		cat:     cat,
		cfg:     cfg,
		chains:  make([]*instrumentChain, cat.Len()),
		enabled: make([]bool, cat.Len()),
		fetcher: fetcher,
		cache:   newSampleCache(),
		out:     noopLocker{},
		logger:  logger,
	}
}

// setOutputLock installs the speaker lock once output is attached
func (st *EngineState) setOutputLock(l sync.Locker) {
	st.mu.Lock()
	st.out = l
	st.mu.Unlock()
}

// Output returns the master bus behind the master volume node. Streaming
// it renders the whole engine; tests drain it headlessly.
func (st *EngineState) Output() beep.Streamer {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ensureMasterLocked()
	return st.masterVol
}

// ensureMasterLocked creates the master bus. It must exist before any
// per-instrument chain so every chain has somewhere to connect.
func (st *EngineState) ensureMasterLocked() {
	if st.master != nil {
		return
	}
	st.master = &beep.Mixer{}
	st.masterVol = newVolume(st.master, st.cfg.MasterVolume)
}

// newVolume builds a volume node; log-scaled, silent at zero
func newVolume(s beep.Streamer, vol float64) *effects.Volume {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

// Initialize brings every instrument to the state the enablement
// snapshot and synthesis mode call for. Idempotent: repeating with the
// same inputs changes nothing and leaks nothing. Per-instrument
// failures never abort the remaining instruments.
func (st *EngineState) Initialize(ctx context.Context, snap EnablementSnapshot, mode core.SynthesisMode) (*InitReport, error) {
	enabled, err := resolveEnabled(st.cat, snap)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.ensureMasterLocked()
	st.mode = mode
	st.enabled = enabled

	report := &InitReport{Mode: mode}
	for _, def := range st.cat.List() {
		report.Results = append(report.Results, st.syncInstrumentLocked(ctx, def, mode))
	}
	st.initialized = true
	return report, nil
}

// syncInstrumentLocked reconciles one instrument with its target state
func (st *EngineState) syncInstrumentLocked(ctx context.Context, def catalog.Definition, mode core.SynthesisMode) InstrumentResult {
	ch := st.chains[def.ID]

	if !st.enabled[def.ID] {
		// Disabled instruments get no chain and no fetch attempt; a
		// leftover chain from a prior session is detached. The Disposed
		// stub keeps StatusOf in agreement with the report.
		switch {
		case ch == nil:
			st.chains[def.ID] = &instrumentChain{def: def, status: core.StatusDisposed}
		case ch.status != core.StatusDisposed:
			st.disposeLocked(def.ID)
		}
		return InstrumentResult{Name: def.Name, Status: core.StatusDisposed}
	}

	if ch.complete() && ch.wantMode == mode {
		// Steady state, nothing to rebuild
		res := InstrumentResult{Name: def.Name, Status: ch.status}
		if ch.lastErr != nil {
			res.Reason = ch.lastErr.Error()
		}
		return res
	}

	if ch != nil && ch.status != core.StatusDisposed && !ch.complete() {
		st.logger.Warn("instrument chain corrupted, rebuilding",
			"instrument", def.Name, "status", ch.status.String())
	}

	return st.buildChainLocked(ctx, def, mode)
}

// buildChainLocked constructs a complete signal chain:
// voice bus -> gain -> pan -> volume node -> master bus.
// All resource fields are assigned together only once every piece
// exists, so a failed build never leaves a partial chain behind.
func (st *EngineState) buildChainLocked(ctx context.Context, def catalog.Definition, mode core.SynthesisMode) InstrumentResult {
	if old := st.chains[def.ID]; old != nil && old.top != nil {
		st.disposeLocked(def.ID)
	}

	ch := &instrumentChain{def: def, status: core.StatusInitializing, wantMode: mode}
	st.chains[def.ID] = ch

	level := def.Level
	if level <= 0 {
		// ConfigurationGap: recover with the documented default, debug
		// severity only
		level = param.DefaultInstrumentLevel
		st.logger.Debug("instrument missing volume config, applying default",
			"instrument", def.Name, "level", level)
	}

	bus := &beep.Mixer{}
	gain := &effects.Gain{Streamer: bus, Gain: 0}
	pan := &effects.Pan{Streamer: gain, Pan: 0}
	vol := newVolume(pan, level)

	ch.mode = core.ModeProcedural
	ch.status = core.StatusReady
	ch.lastErr = nil

	if mode == core.ModeSample && def.SampleSet != "" {
		buf, cached := st.cache.get(def.ID)
		if !cached {
			var err error
			buf, err = loadSampleSet(ctx, st.fetcher, def, beep.SampleRate(st.cfg.SampleRate))
			if err != nil {
				if !errors.Is(err, ErrSampleUnavailable) {
					err = errors.Join(ErrSampleUnavailable, err)
				}
				// Expected, recoverable: fall back to procedural
				// synthesis rather than leaving the instrument silent
				st.logger.Debug("sample load failed, using procedural fallback",
					"instrument", def.Name, "error", err)
				ch.status = core.StatusFallbackSynthesis
				ch.lastErr = err
				buf = nil
			} else {
				st.cache.put(def.ID, buf)
			}
		}
		if buf != nil {
			ch.sample = buf
			ch.mode = core.ModeSample
		}
	}

	top := &beep.Ctrl{Streamer: vol}

	st.out.Lock()
	st.master.Add(top)
	st.out.Unlock()

	ch.bus = bus
	ch.fx = pan
	ch.volume = vol
	ch.top = top

	res := InstrumentResult{Name: def.Name, Status: ch.status}
	if ch.lastErr != nil {
		res.Reason = ch.lastErr.Error()
	}
	return res
}

// disposeLocked detaches a chain from the master bus and drops it
func (st *EngineState) disposeLocked(id catalog.ID) {
	ch := st.chains[id]
	if ch == nil {
		return
	}
	if ch.top != nil {
		st.out.Lock()
		ch.top.Streamer = nil
		st.out.Unlock()
	}
	st.chains[id] = &instrumentChain{def: ch.def, status: core.StatusDisposed}
}

// Reinitialize detects and repairs resource corruption: any enabled
// instrument missing part of its chain is rebuilt from scratch. The
// state lock is held for the whole repair pass so a scheduler tick can
// never read a half-rebuilt chain.
func (st *EngineState) Reinitialize(ctx context.Context) (*InitReport, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.initialized {
		return nil, ErrNotInitialized
	}
	st.ensureMasterLocked()

	report := &InitReport{Mode: st.mode}
	for _, def := range st.cat.List() {
		report.Results = append(report.Results, st.syncInstrumentLocked(ctx, def, st.mode))
	}
	return report, nil
}

// EffectivelyEnabled reports the resolved enablement for one instrument
func (st *EngineState) EffectivelyEnabled(id catalog.ID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if int(id) >= len(st.enabled) || id < 0 {
		return false
	}
	return st.enabled[id]
}

// VolumeControlFor returns an instrument's volume node, the diagnostic
// handle for asserting the resource-completeness invariant.
func (st *EngineState) VolumeControlFor(id catalog.ID) (*effects.Volume, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := st.chains[id]
	if !ch.complete() {
		return nil, false
	}
	return ch.volume, true
}

// Trigger fires one resolved note through its instrument chain. A
// missing chain for an enabled instrument is the corruption signal: it
// is repaired in place, not swallowed.
func (st *EngineState) Trigger(n schedNote, pool *VoicePool, now time.Duration) *Voice {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.initialized || !st.enabled[n.instrument] {
		return nil
	}

	ch := st.chains[n.instrument]
	if !ch.complete() {
		st.logger.Warn("chain missing at trigger time, repairing",
			"instrument", n.name)
		st.buildChainLocked(context.Background(), st.cat.Get(n.instrument), st.mode)
		ch = st.chains[n.instrument]
		if !ch.complete() {
			return nil
		}
	}

	v := pool.Allocate(n.instrument, n.freq, n.velocity, now)

	sr := beep.SampleRate(st.cfg.SampleRate)
	var src beep.Streamer
	if ch.mode == core.ModeSample && ch.sample != nil {
		src = newSampleVoice(ch.sample, n.freq, n.velocity, n.duration, sr)
	} else {
		src = newProceduralVoice(ch.def, n.freq, n.velocity, n.duration, sr)
	}

	ctrl := &beep.Ctrl{Streamer: src}
	st.out.Lock()
	ch.bus.Add(ctrl)
	st.out.Unlock()

	pool.Bind(v, ctrl)
	return v
}

// Teardown disposes every chain and the master bus
func (st *EngineState) Teardown() {
	st.mu.Lock()
	defer st.mu.Unlock()

	for id := range st.chains {
		if st.chains[id] != nil {
			st.disposeLocked(catalog.ID(id))
		}
	}
	if st.master != nil {
		st.out.Lock()
		st.master.Clear()
		st.out.Unlock()
	}
	st.master = nil
	st.masterVol = nil
	st.cache.clear()
	st.initialized = false
}

// StatusOf returns an instrument's current status
func (st *EngineState) StatusOf(id catalog.ID) core.InstrumentStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := st.chains[id]
	if ch == nil {
		return core.StatusUninitialized
	}
	return ch.status
}
