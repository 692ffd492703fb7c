package audio

import (
	"fmt"
	"math"

	"github.com/sonigraph/engine/param"
)

// NoteFrequencies contains precomputed frequencies for MIDI notes 0-127
// A4 (note 69) = 440Hz, equal temperament
var NoteFrequencies [128]float64

func init() {
	for i := range NoteFrequencies {
		NoteFrequencies[i] = 440.0 * math.Exp2((float64(i)-69.0)/12.0)
	}
}

// NoteFreq returns frequency in Hz for MIDI note number
func NoteFreq(midi int) float64 {
	if midi < 0 || midi >= 128 {
		return 0
	}
	return NoteFrequencies[midi]
}

// centsRatio converts a cent offset to a frequency ratio
func centsRatio(cents float64) float64 {
	return math.Exp2(cents / 1200.0)
}

var noteSemitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// ParseNote converts a note name like "C4", "F#3" or "Eb5" to a MIDI
// note number. Octave -1 through 9, middle C ("C4") = 60.
func ParseNote(name string) (int, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("invalid note %q", name)
	}
	semi, ok := noteSemitones[name[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note %q", name)
	}

	rest := name[1:]
	switch rest[0] {
	case '#':
		semi++
		rest = rest[1:]
	case 'b':
		semi--
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return 0, fmt.Errorf("invalid note %q: missing octave", name)
	}
	neg := false
	if rest[0] == '-' {
		neg = true
		rest = rest[1:]
	}
	if len(rest) != 1 || rest[0] < '0' || rest[0] > '9' {
		return 0, fmt.Errorf("invalid note %q: bad octave", name)
	}
	octave := int(rest[0] - '0')
	if neg {
		octave = -octave
	}

	midi := (octave+1)*12 + semi
	if midi < 0 || midi >= 128 {
		return 0, fmt.Errorf("note %q out of MIDI range", name)
	}
	return midi, nil
}

// eventFrequency resolves a note event's pitch to Hz
func eventFrequency(ev NoteEvent) (float64, error) {
	if ev.Frequency > 0 {
		return ev.Frequency, nil
	}
	if ev.Note == "" {
		return 0, fmt.Errorf("note event has neither frequency nor note name")
	}
	midi, err := ParseNote(ev.Note)
	if err != nil {
		return 0, err
	}
	return NoteFreq(midi), nil
}

// sampleRootFreq is the assumed recording pitch of CDN samples
const sampleRootFreq = param.SampleRootFreq
