package model

// Section is a named span of a track measured in seconds and beats.
type Section struct {
	Name  string  `json:"name"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Beats int     `json:"beats"`
}

// Section names produced by structure analysis.
const (
	SectionIntro = "intro"
	SectionMain  = "main"
	SectionOutro = "outro"
)

// TrackStructure is derived once per decode and never modified afterwards.
type TrackStructure struct {
	BPM      float64   `json:"bpm"`
	Beats    []float64 `json:"beats"`    // beat timestamps in seconds, ascending
	Sections []Section `json:"sections"` // intro, main, outro
	HotCues  []float64 `json:"hotCues"`  // at most four, ascending
}

// Track represents an audio track known to the engine.
//
// Identity fields are set by whoever asks for the load; the remaining fields are
// filled by the decoder. A Track is published to a deck only once complete and is
// read-only from then on.
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	SourcePath string  `json:"-"`
	Duration   float64 `json:"duration"` // seconds

	PCM        []float32       `json:"-"` // interleaved, Channels wide
	Mono       []float32       `json:"-"` // arithmetic mean of the source channels
	SampleRate int             `json:"sampleRate"`
	Channels   int             `json:"channels"`
	BPM        *float64        `json:"bpm,omitempty"`
	Waveform   []float32       `json:"-"` // peak envelope, delivered in chunks
	Structure  *TrackStructure `json:"structure,omitempty"`
}

// Frames returns the number of PCM frames.
func (t *Track) Frames() int {
	if t == nil || t.Channels == 0 {
		return 0
	}
	return len(t.PCM) / t.Channels
}

// TrackAnalysis is the cacheable result of tempo and structure analysis.
type TrackAnalysis struct {
	BPM       *float64        `json:"bpm,omitempty"`
	Structure *TrackStructure `json:"structure,omitempty"`
}
