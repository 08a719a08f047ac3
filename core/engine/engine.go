// Package engine is the dual-deck mixing engine: the real-time Process tick that
// renders both decks through EQ, faders and the crossfader, and the background
// side that feeds it decoded tracks and fans its state out to collaborators.
package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"djmix/core/dsp"
	"djmix/core/recorder"
)

// Config sizes the engine. Everything the tick needs is allocated from it in New.
type Config struct {
	SampleRate    int
	MaxFrames     int
	LowCutoffHz   float64
	HighCutoffHz  float64
	TalkoverDuck  float64
	PeakHoldTau   time.Duration
	CommandQueue  int
	SnapshotQueue int
}

// DefaultConfig returns the engine defaults at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		MaxFrames:     4096,
		LowCutoffHz:   250,
		HighCutoffHz:  5000,
		TalkoverDuck:  0.3,
		PeakHoldTau:   1500 * time.Millisecond,
		CommandQueue:  256,
		SnapshotQueue: 64,
	}
}

// ChunkSink receives copies of the mixed output while recording. Both methods
// must be non-blocking.
type ChunkSink interface {
	Acquire() *recorder.Chunk
	Submit(c *recorder.Chunk) bool
}

// Engine owns the decks and the crossfader. Process is the only method that
// touches them; every other method posts a command.
type Engine struct {
	cfg Config
	tau float64

	decks [numDecks]*deck
	xf    Crossfader

	talkover    bool
	micEnabled  bool
	recording   bool
	micMeter    Meter
	masterMeter Meter
	frameClock  uint64

	scratch [numDecks][]float32
	sink    ChunkSink

	commands  chan command
	snapshots chan Snapshot

	ticks            atomic.Uint64
	faults           atomic.Uint64
	droppedChunks    atomic.Uint64
	droppedSnapshots atomic.Uint64
}

// New allocates an engine. sink may be nil when recording is not needed.
func New(cfg Config, sink ChunkSink) (*Engine, error) {
	if cfg.SampleRate <= 0 || cfg.MaxFrames <= 0 {
		return nil, fmt.Errorf("invalid engine config: rate %d, max frames %d", cfg.SampleRate, cfg.MaxFrames)
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 256
	}
	if cfg.SnapshotQueue <= 0 {
		cfg.SnapshotQueue = 64
	}

	e := &Engine{
		cfg:       cfg,
		tau:       cfg.PeakHoldTau.Seconds(),
		sink:      sink,
		commands:  make(chan command, cfg.CommandQueue),
		snapshots: make(chan Snapshot, cfg.SnapshotQueue),
	}
	for i := range e.decks {
		eq, err := dsp.NewEQ(cfg.SampleRate, cfg.MaxFrames, cfg.LowCutoffHz, cfg.HighCutoffHz)
		if err != nil {
			return nil, fmt.Errorf("failed to create EQ for deck %s: %w", DeckID(i), err)
		}
		e.decks[i] = newDeck(eq)
		e.scratch[i] = make([]float32, cfg.MaxFrames*dsp.Channels)
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Snapshots delivers one state snapshot per Process call. Snapshots are dropped
// when the reader falls behind.
func (e *Engine) Snapshots() <-chan Snapshot { return e.snapshots }

func (e *Engine) Ticks() uint64            { return e.ticks.Load() }
func (e *Engine) Faults() uint64           { return e.faults.Load() }
func (e *Engine) DroppedChunks() uint64    { return e.droppedChunks.Load() }
func (e *Engine) DroppedSnapshots() uint64 { return e.droppedSnapshots.Load() }

// Process renders len(main)/2 frames of interleaved stereo into main. cue, when
// not nil, receives the pre-fader cue bus in the same layout. mic is mono, one
// sample per frame, and may be nil. Process never blocks or allocates; a fault
// inside the tick is recovered and the output is silenced.
func (e *Engine) Process(main, cue, mic []float32) {
	e.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			clear(main)
			clear(cue)
			e.faults.Add(1)
		}
	}()

	e.drain()

	total := len(main) / dsp.Channels
	if len(cue) < len(main) {
		clear(cue)
		cue = nil
	}
	for off := 0; off < total; off += e.cfg.MaxFrames {
		n := total - off
		if n > e.cfg.MaxFrames {
			n = e.cfg.MaxFrames
		}
		lo, hi := off*dsp.Channels, (off+n)*dsp.Channels

		var cueBlock, micBlock []float32
		if cue != nil {
			cueBlock = cue[lo:hi]
		}
		if len(mic) >= off+n {
			micBlock = mic[off : off+n]
		}
		e.mix(main[lo:hi], cueBlock, micBlock, n)
	}
	if len(main)%dsp.Channels != 0 {
		main[len(main)-1] = 0
	}

	e.emit()
}

func (e *Engine) drain() {
	for {
		select {
		case c := <-e.commands:
			e.apply(c)
		default:
			return
		}
	}
}

func (e *Engine) mix(main, cue, mic []float32, frames int) {
	clear(main)
	clear(cue)

	sr := e.cfg.SampleRate
	ga, gb := e.xf.Gains()
	xfGain := [numDecks]float64{ga, gb}

	for i, d := range e.decks {
		if !d.active() {
			d.meter.Update(0, frames, sr, e.tau)
			continue
		}
		buf := e.scratch[i][:frames*dsp.Channels]
		d.render(buf, frames)
		if err := d.eq.Process(buf, frames, d.eqCut); err != nil {
			clear(buf)
		}
		if cue != nil && d.cue {
			for j, s := range buf {
				cue[j] += s
			}
		}

		g := float32(DeckGain(d.gain) * xfGain[i])
		var peak float32
		for j, s := range buf {
			v := s * g
			main[j] += v
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		d.meter.Update(float64(peak), frames, sr, e.tau)
	}

	if e.talkover {
		duck := float32(e.cfg.TalkoverDuck)
		for j := range main {
			main[j] *= duck
		}
	}
	if e.micEnabled {
		micPeak := 0.0
		if mic != nil {
			micPeak = peakAbs(mic)
			if e.talkover {
				for i, s := range mic {
					main[2*i] += s
					main[2*i+1] += s
				}
			}
		}
		e.micMeter.Update(micPeak, frames, sr, e.tau)
	}

	clip(main)
	clip(cue)
	e.masterMeter.Update(peakAbs(main), frames, sr, e.tau)

	e.xf.Advance(frames)
	e.frameClock += uint64(frames)

	if e.recording && e.sink != nil {
		e.record(main)
	}
}

func (e *Engine) record(block []float32) {
	c := e.sink.Acquire()
	if c == nil {
		e.droppedChunks.Add(1)
		return
	}
	c.Len = copy(c.Samples, block)
	if !e.sink.Submit(c) {
		e.droppedChunks.Add(1)
	}
}

func clip(buf []float32) {
	for i, s := range buf {
		switch {
		case s > 1:
			buf[i] = 1
		case s < -1:
			buf[i] = -1
		}
	}
}
