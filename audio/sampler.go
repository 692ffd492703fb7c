package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/param"
)

// SampleFetcher retrieves raw sample data from the CDN collaborator.
// A failed fetch must wrap ErrSampleUnavailable so the initializer can
// fall back instead of failing the instrument.
type SampleFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// httpFetcher is the production fetcher
type httpFetcher struct {
	client *http.Client
}

// newHTTPFetcher builds a fetcher with the configured timeout
func newHTTPFetcher(timeout time.Duration) *httpFetcher {
	return &httpFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSampleUnavailable, url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSampleUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrSampleUnavailable, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, param.SampleMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSampleUnavailable, url, err)
	}
	return data, nil
}

// expandSampleURI fills the {instrument} placeholder in a catalog
// sample-set template
func expandSampleURI(template, instrument string) string {
	return strings.ReplaceAll(template, "{instrument}", instrument)
}

// sampleCache holds decoded sample buffers so repeated initializations
// hit memory, not the network
type sampleCache struct {
	mu   sync.RWMutex
	bufs map[catalog.ID]*beep.Buffer
}

func newSampleCache() *sampleCache {
	return &sampleCache{bufs: make(map[catalog.ID]*beep.Buffer)}
}

func (c *sampleCache) get(id catalog.ID) (*beep.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf, ok := c.bufs[id]
	return buf, ok
}

func (c *sampleCache) put(id catalog.ID, buf *beep.Buffer) {
	c.mu.Lock()
	c.bufs[id] = buf
	c.mu.Unlock()
}

func (c *sampleCache) clear() {
	c.mu.Lock()
	c.bufs = make(map[catalog.ID]*beep.Buffer)
	c.mu.Unlock()
}

// loadSampleSet fetches and decodes an instrument's sample set,
// resampled to the engine rate. Errors wrap ErrSampleUnavailable.
func loadSampleSet(ctx context.Context, fetcher SampleFetcher, def catalog.Definition, sr beep.SampleRate) (*beep.Buffer, error) {
	url := expandSampleURI(def.SampleSet, def.Name)

	data, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrSampleUnavailable, url, err)
	}
	defer streamer.Close()

	engineFormat := beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2}
	buf := beep.NewBuffer(engineFormat)
	if format.SampleRate == sr {
		buf.Append(streamer)
	} else {
		buf.Append(beep.Resample(4, format.SampleRate, sr, streamer))
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: empty sample", ErrSampleUnavailable, url)
	}
	return buf, nil
}

// newSampleVoice plays the sample set repitched from its root frequency
// to the requested note, bounded by the note duration plus release tail.
func newSampleVoice(buf *beep.Buffer, freq, velocity float64, duration time.Duration, sr beep.SampleRate) beep.Streamer {
	src := buf.Streamer(0, buf.Len())

	var s beep.Streamer = src
	ratio := freq / sampleRootFreq
	if ratio != 1.0 {
		s = beep.ResampleRatio(4, ratio, src)
	}

	limit := sr.N(duration + param.ReleaseTail)
	return &gainStreamer{s: beep.Take(limit, s), gain: velocity}
}

// gainStreamer scales a streamer by a fixed factor
type gainStreamer struct {
	s    beep.Streamer
	gain float64
}

func (g *gainStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = g.s.Stream(samples)
	for i := 0; i < n; i++ {
		samples[i][0] *= g.gain
		samples[i][1] *= g.gain
	}
	return n, ok
}

func (g *gainStreamer) Err() error { return g.s.Err() }
