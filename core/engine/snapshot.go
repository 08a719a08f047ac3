package engine

import "djmix/core/dsp"

// DeckSnapshot is a copy of one deck's state taken at the end of a tick.
type DeckSnapshot struct {
	Loaded   bool
	TrackID  string
	Title    string
	Artist   string
	Duration float64
	BPM      float64
	HasBPM   bool

	Playing  bool
	Cue      bool
	Gain     float64
	EQ       dsp.EqCutState
	Position float64 // seconds

	Peak float64
	Hold float64

	// Sequence numbers let a reader notice loads, seeks and track ends even if it
	// missed the snapshot in which they happened.
	LoadSeq uint64
	SeekSeq uint64
	EndSeq  uint64
}

// Snapshot is the engine state after one Process call. It holds no pointers into
// engine memory.
type Snapshot struct {
	Frame             uint64
	Decks             [numDecks]DeckSnapshot
	Crossfader        float64
	AutoCrossfade     bool
	CrossfadeProgress float64
	Talkover          bool
	MicEnabled        bool
	Recording         bool
	Master            Meter
	Mic               Meter
}

func (d *deck) snapshot(sampleRate int) DeckSnapshot {
	s := DeckSnapshot{
		Playing:  d.playing,
		Cue:      d.cue,
		Gain:     d.gain,
		EQ:       d.eqCut,
		Position: d.position(sampleRate),
		Peak:     d.meter.Peak,
		Hold:     d.meter.Hold,
		LoadSeq:  d.loadSeq,
		SeekSeq:  d.seekSeq,
		EndSeq:   d.endSeq,
	}
	if t := d.track; t != nil {
		s.Loaded = true
		s.TrackID = t.ID
		s.Title = t.Title
		s.Artist = t.Artist
		s.Duration = float64(t.Frames()) / float64(sampleRate)
		if t.BPM != nil {
			s.BPM = *t.BPM
			s.HasBPM = true
		}
	}
	return s
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		Frame:             e.frameClock,
		Crossfader:        e.xf.Position(),
		AutoCrossfade:     e.xf.Auto(),
		CrossfadeProgress: e.xf.Progress(),
		Talkover:          e.talkover,
		MicEnabled:        e.micEnabled,
		Recording:         e.recording,
		Master:            e.masterMeter,
		Mic:               e.micMeter,
	}
	for i, d := range e.decks {
		s.Decks[i] = d.snapshot(e.cfg.SampleRate)
	}
	return s
}

func (e *Engine) emit() {
	select {
	case e.snapshots <- e.snapshot():
	default:
		e.droppedSnapshots.Add(1)
	}
}
