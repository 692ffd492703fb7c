package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/sonigraph/engine/catalog"
)

// makeWAV builds a minimal 16-bit PCM mono WAV with a short sine burst,
// decodable by the sample loader.
func makeWAV(sampleRate, numSamples int) []byte {
	dataLen := numSamples * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")

	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)

	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	for i := 0; i < numSamples; i++ {
		v := math.Sin(2 * math.Pi * 261.626 * float64(i) / float64(sampleRate))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(v*16000)))
	}
	return buf
}

// fakeFetcher serves canned WAV data and records every fetch attempt
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool // instrument name -> force failure
	data  []byte
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		fail: make(map[string]bool),
		data: makeWAV(44100, 512),
	}
}

// urlInstrument extracts the instrument name from an expanded sample URL
func urlInstrument(url string) string {
	base := url[strings.LastIndex(url, "/")+1:]
	return strings.TrimSuffix(base, ".wav")
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.fail[urlInstrument(url)] {
		return nil, fmt.Errorf("%w: %s: connection refused", ErrSampleUnavailable, url)
	}
	return f.data, nil
}

func (f *fakeFetcher) fetchedInstruments() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, url := range f.calls {
		out[urlInstrument(url)]++
	}
	return out
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return cat
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds a headless engine with a manual clock and fake
// fetcher, returning all three for test steering.
func newTestEngine(t *testing.T) (*Engine, *ManualClock, *fakeFetcher) {
	t.Helper()
	cat := testCatalog(t)
	clock := NewManualClock()
	fetcher := newFakeFetcher()
	e := New(cat, nil,
		WithLogger(quietLogger()),
		WithClock(clock),
		WithFetcher(fetcher),
	)
	t.Cleanup(e.Close)
	return e, clock, fetcher
}
