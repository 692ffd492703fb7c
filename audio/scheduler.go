package audio

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/param"
)

// schedNote is a note event resolved against the catalog with its
// diversified frequency, ready to fire.
type schedNote struct {
	due         time.Duration
	instrument  catalog.ID
	name        string
	freq        float64
	detuneCents float64
	velocity    float64
	duration    time.Duration
}

// voiceLease tracks when a fired voice's slot is due back. The
// generation pins the lease to the note that created it, so a lease
// outliving a steal cannot release the slot's new occupant.
type voiceLease struct {
	voice *Voice
	gen   uint64
	end   time.Duration
}

// Scheduler fires resolved note events in due-time order on a single
// logical timeline. Voice allocation and triggering happen inline in
// the tick; only initialization may block on I/O, never this path.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock

	notes  []schedNote
	next   int
	leases []voiceLease

	running  bool
	stopTick func()
	t0       time.Time

	// trigger fires one note and returns its voice, or nil if the
	// instrument could not sound
	trigger    func(n schedNote, now time.Duration) *Voice
	release    func(v *Voice, gen uint64)
	releaseAll func()
	// generation snapshots a voice's assignment counter for its lease
	generation func(v *Voice) uint64

	logger *slog.Logger
}

func newScheduler(clock Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{clock: clock, logger: logger}
}

// Schedule replaces the event sequence. Events are stably sorted by due
// time, so equal-time events keep their input order.
func (s *Scheduler) Schedule(notes []schedNote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = make([]schedNote, len(notes))
	copy(s.notes, notes)
	sort.SliceStable(s.notes, func(i, j int) bool {
		return s.notes[i].due < s.notes[j].due
	})
	s.next = 0
}

// Start begins firing from the top of the sequence. After Stop, Start
// replays the same sequence without requiring an engine reload.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.next = 0
	s.t0 = s.clock.Now()
	s.stopTick = s.clock.Schedule(param.SchedulerTick, s.onTick)
	return nil
}

func (s *Scheduler) onTick() {
	now := s.clock.Now().Sub(s.t0)
	s.advanceTo(now)
}

// advanceTo fires all events due at or before the timeline position and
// reaps voices whose leases have expired.
func (s *Scheduler) advanceTo(now time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	for s.next < len(s.notes) && s.notes[s.next].due <= now {
		n := s.notes[s.next]
		s.next++

		v := s.trigger(n, now)
		if v != nil {
			s.leases = append(s.leases, voiceLease{
				voice: v,
				gen:   s.generation(v),
				end:   n.due + n.duration + param.ReleaseTail,
			})
		}
	}

	keep := s.leases[:0]
	for _, l := range s.leases {
		if l.end <= now {
			s.release(l.voice, l.gen)
		} else {
			keep = append(keep, l)
		}
	}
	s.leases = keep
}

// Stop synchronously silences all active voices and clears pending
// fires. The sequence is retained; Start replays it from the top.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stopTick
	s.stopTick = nil
	s.leases = nil
	s.next = 0
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.releaseAll()
}

// Running reports whether the scheduler is firing
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns how many events have not fired yet
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes) - s.next
}
