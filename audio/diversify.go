package audio

import (
	"math"
	"sort"
	"time"

	"github.com/sonigraph/engine/param"
)

// Frequency diversification: voices sounding together at identical
// frequencies phase-interfere into audible crackling. Each colliding
// voice gets a small deterministic cent offset, sub-perceptual but
// enough to decorrelate the waveforms.

func quantizeFreq(f float64) int64 {
	return int64(math.Round(f / param.FreqCollisionEpsilon))
}

// soundingEnd is when a note stops contributing audio, release tail
// included
func soundingEnd(n schedNote) time.Duration {
	return n.due + n.duration + param.ReleaseTail
}

// detuneOffsets returns the cent offsets for n colliding voices.
// The spread alternates sign with growing magnitude (+1, -1, +2, -2, …
// scaled into maxCents), so every collider is nonzero, offsets are
// pairwise distinct, and |offset| <= maxCents. Purely positional:
// identical input batches always produce identical offsets.
func detuneOffsets(n int, maxCents float64) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	steps := (n + 1) / 2
	unit := maxCents / float64(steps)
	for k := 0; k < n; k++ {
		mag := unit * float64(k/2+1)
		if k%2 == 0 {
			out[k] = mag
		} else {
			out[k] = -mag
		}
	}
	return out
}

// diversifyFrequencies rewrites the frequency of every note that sounds
// at the same pitch as another while their intervals overlap, applying
// the offset as a frequency ratio. Identical due times are the common
// case, but a staggered note entering while an equal-pitch note still
// rings collides just the same. Non-colliding notes pass unchanged.
func diversifyFrequencies(notes []schedNote, maxCents float64) {
	byFreq := make(map[int64][]int)
	for i, n := range notes {
		q := quantizeFreq(n.freq)
		byFreq[q] = append(byFreq[q], i)
	}

	for _, idx := range byFreq {
		if len(idx) < 2 {
			continue
		}
		// Stable due-time order keeps clustering and offset assignment
		// deterministic for identical input batches
		sort.SliceStable(idx, func(a, b int) bool {
			return notes[idx[a]].due < notes[idx[b]].due
		})

		start := 0
		clusterEnd := soundingEnd(notes[idx[0]])
		for k := 1; k <= len(idx); k++ {
			if k < len(idx) && notes[idx[k]].due < clusterEnd {
				if e := soundingEnd(notes[idx[k]]); e > clusterEnd {
					clusterEnd = e
				}
				continue
			}
			applyOffsets(notes, idx[start:k], maxCents)
			if k < len(idx) {
				start = k
				clusterEnd = soundingEnd(notes[idx[k]])
			}
		}
	}
}

func applyOffsets(notes []schedNote, cluster []int, maxCents float64) {
	if len(cluster) < 2 {
		return
	}
	offsets := detuneOffsets(len(cluster), maxCents)
	for k, i := range cluster {
		notes[i].detuneCents = offsets[k]
		notes[i].freq *= centsRatio(offsets[k])
	}
}
