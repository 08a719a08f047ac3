package engine

import "djmix/core/dsp"

// Message types sent to collaborators.
const (
	MsgState            = "state"
	MsgLevels           = "levels"
	MsgTrackEnded       = "track_ended"
	MsgDecodeError      = "decode_error"
	MsgRecording        = "recording"
	MsgWaveformChunk    = "waveform_chunk"
	MsgWaveformComplete = "waveform_complete"
)

// TrackInfo identifies the track on a deck. BPM is null when undetected.
type TrackInfo struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Duration float64  `json:"duration"`
	BPM      *float64 `json:"bpm"`
}

// DeckState is one deck's part of an AudioEngineState patch. Loaded false means
// the deck is empty and any previously reported track no longer applies.
type DeckState struct {
	Loaded   *bool           `json:"loaded,omitempty"`
	Track    *TrackInfo      `json:"track,omitempty"`
	Playing  *bool           `json:"playing,omitempty"`
	Position *float64        `json:"position,omitempty"`
	Gain     *float64        `json:"gain,omitempty"`
	Cue      *bool           `json:"cue,omitempty"`
	EQ       *dsp.EqCutState `json:"eq,omitempty"`
}

func (d *DeckState) empty() bool {
	return d.Loaded == nil && d.Track == nil && d.Playing == nil && d.Position == nil &&
		d.Gain == nil && d.Cue == nil && d.EQ == nil
}

// AudioEngineState is a differential update: a nil field means unchanged. The
// first state a collaborator receives has every field set.
type AudioEngineState struct {
	Decks             map[string]*DeckState `json:"decks,omitempty"`
	Crossfader        *float64              `json:"crossfader,omitempty"`
	AutoCrossfade     *bool                 `json:"autoCrossfade,omitempty"`
	CrossfadeProgress *float64              `json:"crossfadeProgress,omitempty"`
	Talkover          *bool                 `json:"talkover,omitempty"`
	MicEnabled        *bool                 `json:"micEnabled,omitempty"`
	Recording         *bool                 `json:"recording,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (s *AudioEngineState) Empty() bool {
	return len(s.Decks) == 0 && s.Crossfader == nil && s.AutoCrossfade == nil &&
		s.CrossfadeProgress == nil && s.Talkover == nil && s.MicEnabled == nil && s.Recording == nil
}

// LevelPair is a peak reading with its decaying hold.
type LevelPair struct {
	Peak float64 `json:"peak"`
	Hold float64 `json:"hold"`
}

// AudioLevelState is the high-rate meter snapshot. Every field is always present.
type AudioLevelState struct {
	DeckA    LevelPair `json:"deckA"`
	DeckB    LevelPair `json:"deckB"`
	Master   LevelPair `json:"master"`
	Mic      LevelPair `json:"mic"`
	Talkover bool      `json:"talkover"`
}

// TrackEnded is sent when a deck plays to the end of its track.
type TrackEnded struct {
	Deck    string `json:"deck"`
	TrackID string `json:"trackId"`
}

func ptr[T any](v T) *T { return &v }

func trackInfo(d DeckSnapshot) *TrackInfo {
	info := &TrackInfo{ID: d.TrackID, Title: d.Title, Artist: d.Artist, Duration: d.Duration}
	if d.HasBPM {
		info.BPM = ptr(d.BPM)
	}
	return info
}

// FullState renders every field of s.
func FullState(s Snapshot) AudioEngineState {
	st := AudioEngineState{
		Decks:             make(map[string]*DeckState, numDecks),
		Crossfader:        ptr(s.Crossfader),
		AutoCrossfade:     ptr(s.AutoCrossfade),
		CrossfadeProgress: ptr(s.CrossfadeProgress),
		Talkover:          ptr(s.Talkover),
		MicEnabled:        ptr(s.MicEnabled),
		Recording:         ptr(s.Recording),
	}
	for i, d := range s.Decks {
		ds := &DeckState{
			Loaded:   ptr(d.Loaded),
			Playing:  ptr(d.Playing),
			Position: ptr(d.Position),
			Gain:     ptr(d.Gain),
			Cue:      ptr(d.Cue),
			EQ:       ptr(d.EQ),
		}
		if d.Loaded {
			ds.Track = trackInfo(d)
		}
		st.Decks[DeckID(i).String()] = ds
	}
	return st
}

// DiffState returns the fields of cur that differ from prev. continuous is true
// when the only changes are in fields that move every tick during a fade.
func DiffState(prev, cur Snapshot) (patch AudioEngineState, continuous bool) {
	for i := range cur.Decks {
		p, c := prev.Decks[i], cur.Decks[i]
		ds := &DeckState{}
		loaded := p.LoadSeq != c.LoadSeq
		if loaded || p.Loaded != c.Loaded {
			ds.Loaded = ptr(c.Loaded)
			if c.Loaded {
				ds.Track = trackInfo(c)
			}
		}
		if p.Playing != c.Playing {
			ds.Playing = ptr(c.Playing)
		}
		if loaded || p.SeekSeq != c.SeekSeq || p.EndSeq != c.EndSeq || p.Playing != c.Playing {
			ds.Position = ptr(c.Position)
		}
		if p.Gain != c.Gain {
			ds.Gain = ptr(c.Gain)
		}
		if p.Cue != c.Cue {
			ds.Cue = ptr(c.Cue)
		}
		if p.EQ != c.EQ {
			ds.EQ = ptr(c.EQ)
		}
		if !ds.empty() {
			if patch.Decks == nil {
				patch.Decks = make(map[string]*DeckState, numDecks)
			}
			patch.Decks[DeckID(i).String()] = ds
		}
	}

	if prev.AutoCrossfade != cur.AutoCrossfade {
		patch.AutoCrossfade = ptr(cur.AutoCrossfade)
	}
	if prev.Talkover != cur.Talkover {
		patch.Talkover = ptr(cur.Talkover)
	}
	if prev.MicEnabled != cur.MicEnabled {
		patch.MicEnabled = ptr(cur.MicEnabled)
	}
	if prev.Recording != cur.Recording {
		patch.Recording = ptr(cur.Recording)
	}
	discrete := !patch.Empty()

	if prev.Crossfader != cur.Crossfader {
		patch.Crossfader = ptr(cur.Crossfader)
	}
	if prev.CrossfadeProgress != cur.CrossfadeProgress {
		patch.CrossfadeProgress = ptr(cur.CrossfadeProgress)
	}
	return patch, !discrete && !patch.Empty()
}

// Levels extracts the meter readings from s.
func Levels(s Snapshot) AudioLevelState {
	return AudioLevelState{
		DeckA:    LevelPair{Peak: s.Decks[DeckA].Peak, Hold: s.Decks[DeckA].Hold},
		DeckB:    LevelPair{Peak: s.Decks[DeckB].Peak, Hold: s.Decks[DeckB].Hold},
		Master:   LevelPair{Peak: s.Master.Peak, Hold: s.Master.Hold},
		Mic:      LevelPair{Peak: s.Mic.Peak, Hold: s.Mic.Hold},
		Talkover: s.Talkover,
	}
}
