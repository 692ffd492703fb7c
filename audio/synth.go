package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
)

// lcgNoise is a deterministic noise source. Seeding from the voice
// frequency keeps repeated renders of the same note identical.
type lcgNoise struct {
	seed int64
}

func newLCGNoise(freq float64) *lcgNoise {
	return &lcgNoise{seed: int64(math.Float64bits(freq)) & 0x7fffffff}
}

func (n *lcgNoise) next() float64 {
	n.seed = (n.seed*1103515245 + 12345) & 0x7fffffff
	return float64(n.seed)/float64(0x7fffffff)*2 - 1
}

// proceduralVoice streams one ADSR-shaped note for a pitched instrument
type proceduralVoice struct {
	params catalog.SynthParams
	sr     beep.SampleRate
	freq   float64
	vel    float64

	phase    float64
	modPhase float64
	noise    *lcgNoise

	pos     int
	attack  int
	decay   int
	gate    int // samples until release begins
	release int
	total   int
}

// newProceduralVoice builds the synthesis source for one triggered note.
// One-shot percussion ignores the note duration and plays out its decay.
func newProceduralVoice(def catalog.Definition, freq, velocity float64, duration time.Duration, sr beep.SampleRate) beep.Streamer {
	if def.Synth.OneShot {
		return newPercussionVoice(def, freq, velocity, sr)
	}

	p := def.Synth
	v := &proceduralVoice{
		params:  p,
		sr:      sr,
		freq:    freq,
		vel:     velocity,
		noise:   newLCGNoise(freq),
		attack:  sr.N(time.Duration(p.Attack * float64(time.Second))),
		decay:   sr.N(time.Duration(p.Decay * float64(time.Second))),
		release: sr.N(time.Duration(p.Release * float64(time.Second))),
	}

	v.gate = sr.N(duration)
	if v.gate < v.attack+v.decay {
		v.gate = v.attack + v.decay
	}
	v.total = v.gate + v.release
	return v
}

func (v *proceduralVoice) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if v.pos >= v.total {
			return i, i > 0
		}

		raw := v.oscillate()
		env := v.envelope()
		s := raw * env * v.vel

		samples[i][0] = s
		samples[i][1] = s
		v.pos++
	}
	return len(samples), true
}

func (v *proceduralVoice) Err() error { return nil }

// oscillate produces the raw waveform sample and advances phase state
func (v *proceduralVoice) oscillate() float64 {
	p := v.params

	var raw float64
	switch {
	case p.FMRatio > 0:
		// FM pair, modulation index decays with the envelope
		v.modPhase += v.freq * p.FMRatio / float64(v.sr)
		v.modPhase -= math.Floor(v.modPhase)
		mod := math.Sin(2 * math.Pi * v.modPhase)
		raw = math.Sin(2*math.Pi*v.phase + p.FMIndex*v.envelope()*mod)

	case p.DetuneSpread > 0:
		// Detuned triple for thick pads and vocal ensembles
		d := p.DetuneSpread
		raw = (math.Sin(2*math.Pi*v.phase) +
			math.Sin(2*math.Pi*v.phase*(1.0+d)) +
			math.Sin(2*math.Pi*v.phase*(1.0-d))) / 3.0

	default:
		raw = waveSample(p.Wave, v.phase, v.noise)
	}

	if p.Noise > 0 {
		raw = raw*(1.0-p.Noise) + v.noise.next()*p.Noise
	}

	v.phase += v.freq / float64(v.sr)
	v.phase -= math.Floor(v.phase)
	return raw
}

func waveSample(w core.Waveform, phase float64, noise *lcgNoise) float64 {
	switch w {
	case core.WaveSquare:
		if phase < 0.5 {
			return 1.0
		}
		return -1.0
	case core.WaveSaw:
		return 2.0*phase - 1.0
	case core.WaveTriangle:
		if phase < 0.5 {
			return 4.0*phase - 1.0
		}
		return 3.0 - 4.0*phase
	case core.WaveNoise:
		return noise.next()
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// envelope returns the ADSR level at the current position
func (v *proceduralVoice) envelope() float64 {
	switch {
	case v.pos < v.attack:
		if v.attack == 0 {
			return 1.0
		}
		return float64(v.pos) / float64(v.attack)

	case v.pos < v.attack+v.decay:
		if v.decay == 0 {
			return v.params.Sustain
		}
		t := float64(v.pos-v.attack) / float64(v.decay)
		return 1.0 - t*(1.0-v.params.Sustain)

	case v.pos < v.gate:
		return v.params.Sustain

	default:
		if v.release == 0 {
			return 0
		}
		t := float64(v.pos-v.gate) / float64(v.release)
		level := v.params.Sustain
		if level == 0 {
			// Zero-sustain instruments (plucks, mallets) release from
			// wherever the decay curve left off
			level = 1.0 - float64(v.gate-v.attack)/float64(max(v.decay, 1))
			if level < 0 {
				level = 0
			}
		}
		return level * (1.0 - t)
	}
}

// percussionVoice plays a pre-rendered one-shot buffer
type percussionVoice struct {
	buf []float64
	pos int
	vel float64
}

func newPercussionVoice(def catalog.Definition, freq, velocity float64, sr beep.SampleRate) beep.Streamer {
	return &percussionVoice{
		buf: renderPercussion(def.Synth, freq, sr),
		vel: velocity,
	}
}

func (v *percussionVoice) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if v.pos >= len(v.buf) {
			return i, i > 0
		}
		s := v.buf[v.pos] * v.vel
		samples[i][0] = s
		samples[i][1] = s
		v.pos++
	}
	return len(samples), true
}

func (v *percussionVoice) Err() error { return nil }

// renderPercussion synthesizes a one-shot strike: an exponentially
// decaying tone with optional pitch drop, FM strike partial and noise.
func renderPercussion(p catalog.SynthParams, freq float64, sr beep.SampleRate) []float64 {
	n := sr.N(time.Duration(p.Decay * float64(time.Second)))
	if n <= 0 {
		n = sr.N(500 * time.Millisecond)
	}
	buf := make([]float64, n)
	noise := newLCGNoise(freq)

	phase := 0.0
	modPhase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		amp := math.Exp(-5 * t)

		f := freq
		if p.PitchDrop > 0 {
			// Exponential drop toward a fraction of the strike pitch
			f = freq * (p.PitchDrop + (1.0-p.PitchDrop)*math.Exp(-8*t))
		}

		var s float64
		if p.FMRatio > 0 {
			modPhase += f * p.FMRatio / float64(sr)
			modPhase -= math.Floor(modPhase)
			mod := math.Sin(2 * math.Pi * modPhase)
			s = math.Sin(2*math.Pi*phase + p.FMIndex*amp*mod)
		} else {
			s = math.Sin(2 * math.Pi * phase)
		}

		if p.Noise > 0 {
			s = s*(1.0-p.Noise) + noise.next()*p.Noise*math.Exp(-10*t)
		}

		buf[i] = math.Tanh(s*amp*1.5) * 0.9
		phase += f / float64(sr)
		phase -= math.Floor(phase)
	}
	return buf
}
