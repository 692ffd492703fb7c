// Package audio implements the Sonigraph playback core: per-instrument
// signal chains on a shared master bus, a bounded voice pool with
// deterministic stealing, a clock-driven note scheduler, and frequency
// diversification against phase-cancellation artifacts.
package audio

import (
	"errors"
	"time"

	"github.com/sonigraph/engine/core"
)

// NoteEvent is one timed note from the graph-mapping collaborator.
// Pitch is either an explicit Frequency in Hz or a Note name ("C#4");
// Frequency wins when both are set.
type NoteEvent struct {
	DueTime    time.Duration
	Instrument string
	Note       string
	Frequency  float64
	Velocity   float64 // 0.0-1.0
	Duration   time.Duration
}

// InstrumentResult is one instrument's initialization outcome
type InstrumentResult struct {
	Name   string
	Status core.InstrumentStatus
	Reason string // set for fallback/failed outcomes
}

// InitReport enumerates per-instrument outcomes of an Initialize or
// Reinitialize pass for UI and logging consumers.
type InitReport struct {
	Mode    core.SynthesisMode
	Results []InstrumentResult
}

// Count returns how many instruments ended in the given status
func (r *InitReport) Count(status core.InstrumentStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Result returns the outcome for a named instrument
func (r *InitReport) Result(name string) (InstrumentResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return InstrumentResult{}, false
}

// Sentinel errors
var (
	// ErrSampleUnavailable marks a failed or timed-out sample fetch;
	// recovered locally by procedural fallback
	ErrSampleUnavailable = errors.New("sample set unavailable")

	// ErrInvalidConfiguration marks a malformed enablement snapshot;
	// fatal to the initialization call
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownInstrument marks a note event or toggle naming an
	// instrument outside the catalog
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrNotInitialized marks playback requested before Initialize
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrAlreadyRunning marks Start on a running scheduler
	ErrAlreadyRunning = errors.New("scheduler already running")
)
