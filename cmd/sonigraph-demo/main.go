package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/sonigraph/engine/audio"
	"github.com/sonigraph/engine/catalog"
	"github.com/sonigraph/engine/core"
)

// demoSequence walks a simple chord progression across several
// families so voice activity is visible in the meter.
func demoSequence() []audio.NoteEvent {
	type step struct {
		at    time.Duration
		inst  string
		notes []string
	}
	steps := []step{
		{0, "piano", []string{"C3", "E3", "G3"}},
		{0, "pad", []string{"C2"}},
		{600 * time.Millisecond, "violin", []string{"E4", "G4"}},
		{1200 * time.Millisecond, "piano", []string{"A2", "C3", "E3"}},
		{1200 * time.Millisecond, "flute", []string{"A4"}},
		{1800 * time.Millisecond, "cello", []string{"A2"}},
		{2400 * time.Millisecond, "piano", []string{"F2", "A2", "C3"}},
		{2400 * time.Millisecond, "timpani", []string{"F1"}},
		{3000 * time.Millisecond, "choir", []string{"F3", "A3", "C4"}},
		{3600 * time.Millisecond, "piano", []string{"G2", "B2", "D3"}},
		{3600 * time.Millisecond, "trumpet", []string{"G4"}},
		{4200 * time.Millisecond, "gongs", []string{"C2"}},
	}

	var events []audio.NoteEvent
	for _, s := range steps {
		for _, n := range s.notes {
			events = append(events, audio.NoteEvent{
				DueTime:    s.at,
				Instrument: s.inst,
				Note:       n,
				Velocity:   0.7,
				Duration:   900 * time.Millisecond,
			})
		}
	}
	return events
}

func main() {
	logFile, err := os.Create("sonigraph-demo.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cat, err := catalog.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "catalog:", err)
		os.Exit(1)
	}

	mode := core.ModeProcedural
	if v := os.Getenv("SONIGRAPH_MODE"); v != "" {
		if m, ok := core.ParseSynthesisMode(v); ok {
			mode = m
		}
	}

	engine := audio.New(cat, audio.LoadEngineConfig(),
		audio.WithLogger(logger),
		audio.WithSpeaker(),
	)
	defer engine.Close()

	report, err := engine.Initialize(context.Background(), audio.EnablementSnapshot{}, mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "initialize:", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	defer screen.Fini()

	events := demoSequence()
	if err := engine.PlaySequence(events); err != nil {
		screen.Fini()
		fmt.Fprintln(os.Stderr, "play:", err)
		os.Exit(1)
	}

	keys := make(chan *tcell.EventKey, 8)
	go func() {
		for {
			ev := screen.PollEvent()
			switch e := ev.(type) {
			case *tcell.EventKey:
				keys <- e
			case *tcell.EventResize:
				screen.Sync()
			case nil:
				return
			}
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case e := <-keys:
			switch {
			case e.Key() == tcell.KeyEscape, e.Key() == tcell.KeyCtrlC,
				e.Rune() == 'q', e.Rune() == 'Q':
				return
			case e.Rune() == ' ':
				if err := engine.PlaySequence(events); err != nil {
					logger.Error("replay failed", "error", err)
				}
			case e.Rune() == 's', e.Rune() == 'S':
				engine.Stop()
			}
		case <-ticker.C:
			draw(screen, engine, report, mode)
		}
	}
}

func draw(screen tcell.Screen, engine *audio.Engine, report *audio.InitReport, mode core.SynthesisMode) {
	screen.Clear()

	title := tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	dim := tcell.StyleDefault.Foreground(tcell.ColorGray)
	ok := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	warn := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	bar := tcell.StyleDefault.Foreground(tcell.ColorAqua)

	putText(screen, 2, 1, title, "SONIGRAPH ENGINE DEMO")
	putText(screen, 2, 2, dim, fmt.Sprintf("mode: %s    SPACE replay  S stop  Q quit", mode))

	active, steals := engine.Stats()
	putText(screen, 2, 4, tcell.StyleDefault,
		fmt.Sprintf("voices %2d  steals %d", active, steals))
	meter := make([]rune, 0, active)
	for i := 0; i < active; i++ {
		meter = append(meter, '|')
	}
	putText(screen, 2, 5, bar, string(meter))

	y := 7
	putText(screen, 2, y, dim, fmt.Sprintf("instruments: %d ready, %d fallback, %d disposed",
		report.Count(core.StatusReady),
		report.Count(core.StatusFallbackSynthesis),
		report.Count(core.StatusDisposed)))
	y += 2

	_, h := screen.Size()
	for _, res := range report.Results {
		if y >= h-1 {
			break
		}
		if res.Status == core.StatusDisposed {
			continue
		}
		style := ok
		if res.Status == core.StatusFallbackSynthesis {
			style = warn
		}
		putText(screen, 4, y, style, fmt.Sprintf("%-16s %s", res.Name, res.Status))
		y++
	}

	screen.Show()
}

func putText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, style)
	}
}
