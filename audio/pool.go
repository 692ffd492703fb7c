package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
	"github.com/sonigraph/engine/param"
)

// Voice is one pool slot: at most one concurrently-sounding note.
// Exactly one Voice value owns each slot index for the pool's lifetime.
type Voice struct {
	Slot       int
	Instrument catalog.ID
	Frequency  float64
	StartTime  time.Duration // timeline position at trigger
	State      core.VoiceState

	gain float64    // velocity, the quietest-steal criterion
	ctrl *beep.Ctrl // live synthesis trigger, detached on release/steal
	gen  uint64     // bumped on every reassignment; stale handles must not release
}

// VoicePool owns a fixed set of voice slots and enforces the global and
// per-instrument polyphony ceilings. Allocation never fails: under
// pressure the least-useful active voice is stolen.
type VoicePool struct {
	mu       sync.Mutex
	slots    []*Voice
	capacity int
	strategy core.StealStrategy
	adaptive bool

	perCap      []int // per-instrument ceilings, 0 = none
	activeCount []int // active voices per instrument

	allocTimes []time.Duration // rolling window for pressure tracking
	steals     uint64

	// silence synchronously detaches a live trigger before its slot is
	// reassigned; the engine wraps it in the speaker lock when needed
	silence func(*beep.Ctrl)

	logger *slog.Logger
}

func newVoicePool(cat *catalog.Catalog, cfg *EngineConfig, logger *slog.Logger) *VoicePool {
	p := &VoicePool{
		slots:       make([]*Voice, cfg.PoolCapacity),
		capacity:    cfg.PoolCapacity,
		strategy:    cfg.Steal,
		adaptive:    cfg.AdaptiveQuality,
		perCap:      make([]int, cat.Len()),
		activeCount: make([]int, cat.Len()),
		silence:     detachCtrl,
		logger:      logger,
	}
	for _, def := range cat.List() {
		p.perCap[def.ID] = def.MaxVoices
	}
	for i := range p.slots {
		p.slots[i] = &Voice{Slot: i, Instrument: catalog.None, State: core.VoiceFree}
	}
	return p
}

func detachCtrl(c *beep.Ctrl) {
	if c != nil {
		c.Streamer = nil
	}
}

// Allocate returns a voice slot for the requested note. A free slot is
// used when one exists within the effective capacity; otherwise the
// steal policy picks a deterministic victim.
func (p *VoicePool) Allocate(id catalog.ID, freq, velocity float64, now time.Duration) *Voice {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recordAllocation(now)

	// Per-instrument ceiling: steal within the instrument first
	if cap := p.perCap[id]; cap > 0 && p.activeCount[id] >= cap {
		if v := p.selectVictim(id); v != nil {
			p.stealLocked(v)
			return p.takeLocked(v, id, freq, velocity, now)
		}
	}

	effective := p.effectiveCapacityLocked(now)
	if p.totalActiveLocked() < effective {
		for _, v := range p.slots {
			if v.State == core.VoiceFree {
				return p.takeLocked(v, id, freq, velocity, now)
			}
		}
	}

	victim := p.selectVictim(catalog.None)
	if victim == nil {
		// Capacity shrank below the active count with nothing stealable;
		// reuse slot 0 deterministically rather than dropping the note
		victim = p.slots[0]
	}
	p.stealLocked(victim)
	return p.takeLocked(victim, id, freq, velocity, now)
}

// selectVictim picks the steal target among active voices, restricted
// to one instrument when within != catalog.None. Ascending slot order
// makes the tie-break deterministic.
func (p *VoicePool) selectVictim(within catalog.ID) *Voice {
	var victim *Voice
	for _, v := range p.slots {
		if v.State == core.VoiceFree {
			continue
		}
		if within != catalog.None && v.Instrument != within {
			continue
		}
		if victim == nil {
			victim = v
			continue
		}
		switch p.strategy {
		case core.StealQuietest:
			if v.gain < victim.gain {
				victim = v
			}
		default: // StealOldest: longest elapsed playing time
			if v.StartTime < victim.StartTime {
				victim = v
			}
		}
	}
	return victim
}

func (p *VoicePool) stealLocked(v *Voice) {
	p.silence(v.ctrl)
	p.releaseLocked(v)
	p.steals++
	p.logger.Debug("voice stolen", "slot", v.Slot)
}

func (p *VoicePool) takeLocked(v *Voice, id catalog.ID, freq, velocity float64, now time.Duration) *Voice {
	v.Instrument = id
	v.Frequency = freq
	v.StartTime = now
	v.State = core.VoiceActive
	v.gain = velocity
	v.ctrl = nil
	v.gen++
	p.activeCount[id]++
	return v
}

// Generation returns the voice's current assignment counter, captured
// alongside the Voice to make a release handle that survives stealing.
func (p *VoicePool) Generation(v *Voice) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return v.gen
}

// Bind attaches the live trigger to an allocated voice
func (p *VoicePool) Bind(v *Voice, ctrl *beep.Ctrl) {
	p.mu.Lock()
	v.ctrl = ctrl
	p.mu.Unlock()
}

// Release silences a voice and returns its slot to the free list
func (p *VoicePool) Release(v *Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.State == core.VoiceFree {
		return
	}
	p.silence(v.ctrl)
	p.releaseLocked(v)
}

// ReleaseIf releases a voice only while it still holds the note the
// caller allocated. A slot stolen and reassigned since then carries a
// newer generation and is left alone.
func (p *VoicePool) ReleaseIf(v *Voice, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.State == core.VoiceFree || v.gen != gen {
		return
	}
	p.silence(v.ctrl)
	p.releaseLocked(v)
}

func (p *VoicePool) releaseLocked(v *Voice) {
	if v.Instrument != catalog.None {
		p.activeCount[v.Instrument]--
	}
	v.State = core.VoiceFree
	v.Instrument = catalog.None
	v.ctrl = nil
}

// ReleaseAll silences every active voice; the Stop cancellation path
func (p *VoicePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.slots {
		if v.State != core.VoiceFree {
			p.silence(v.ctrl)
			p.releaseLocked(v)
		}
	}
}

func (p *VoicePool) totalActiveLocked() int {
	n := 0
	for _, v := range p.slots {
		if v.State != core.VoiceFree {
			n++
		}
	}
	return n
}

// recordAllocation tracks allocation rate over the pressure window
func (p *VoicePool) recordAllocation(now time.Duration) {
	cutoff := now - param.PressureWindow
	keep := p.allocTimes[:0]
	for _, t := range p.allocTimes {
		if t > cutoff {
			keep = append(keep, t)
		}
	}
	p.allocTimes = append(keep, now)
}

// effectiveCapacityLocked applies the adaptive-quality tiers: sustained
// allocation pressure sheds load before audible stutter, and is never
// an error.
func (p *VoicePool) effectiveCapacityLocked(now time.Duration) int {
	if !p.adaptive {
		return p.capacity
	}
	rate := len(p.allocTimes)
	tier := param.QualityTierFull
	switch {
	case rate >= param.PressureMinimumThreshold:
		tier = param.QualityTierMinimum
	case rate >= param.PressureReducedThreshold:
		tier = param.QualityTierReduced
	}
	eff := int(float64(p.capacity) * tier)
	if eff < 1 {
		eff = 1
	}
	return eff
}

// ActiveCount returns the number of currently sounding voices
func (p *VoicePool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalActiveLocked()
}

// Steals returns the cumulative steal count
func (p *VoicePool) Steals() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steals
}

// EffectiveCapacity reports the current adaptive capacity
func (p *VoicePool) EffectiveCapacity(now time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectiveCapacityLocked(now)
}

// ActiveVoices returns snapshots of the active voices, for diagnostics
func (p *VoicePool) ActiveVoices() []Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Voice, 0, len(p.slots))
	for _, v := range p.slots {
		if v.State != core.VoiceFree {
			out = append(out, *v)
		}
	}
	return out
}
