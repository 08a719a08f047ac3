package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"djmix/core/dsp"
	"djmix/model"
)

// ErrInvalidDeck is returned for a deck index other than A or B.
var ErrInvalidDeck = errors.New("invalid deck")

// DeckID selects one of the two decks.
type DeckID int

const (
	DeckA DeckID = iota
	DeckB
	numDecks
)

func (d DeckID) String() string {
	switch d {
	case DeckA:
		return "A"
	case DeckB:
		return "B"
	}
	return fmt.Sprintf("deck(%d)", int(d))
}

// Valid reports whether d names a deck.
func (d DeckID) Valid() bool {
	return d == DeckA || d == DeckB
}

// ParseDeck accepts "a", "b", "0" or "1" in any case.
func ParseDeck(s string) (DeckID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "0":
		return DeckA, nil
	case "b", "1":
		return DeckB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDeck, s)
}

// DeckGain maps a fader position in [0, 1] to a linear gain on an equal-power
// taper, the same curve the crossfader uses.
func DeckGain(g float64) float64 {
	g = clamp01(g)
	return math.Sin(g * math.Pi / 2)
}

// deck is one playback channel. It is touched only by the audio thread.
type deck struct {
	track   *model.Track
	cursor  int // frames
	playing bool
	cue     bool
	gain    float64
	eqCut   dsp.EqCutState
	eq      *dsp.EQ
	meter   Meter

	loadSeq uint64
	seekSeq uint64
	endSeq  uint64
}

func newDeck(eq *dsp.EQ) *deck {
	return &deck{eq: eq, gain: 1}
}

func (d *deck) frames() int {
	return d.track.Frames()
}

func (d *deck) active() bool {
	return d.playing && d.track != nil
}

func (d *deck) load(t *model.Track) {
	d.track = t
	d.cursor = 0
	d.playing = false
	d.eq.Reset()
	d.loadSeq++
}

func (d *deck) seek(frame int) {
	if frame < 0 {
		frame = 0
	}
	if n := d.frames(); frame > n {
		frame = n
	}
	d.cursor = frame
	d.eq.Reset()
	d.seekSeq++
}

func (d *deck) play() {
	if d.track == nil || d.frames() == 0 {
		return
	}
	if d.cursor >= d.frames() {
		d.cursor = 0
		d.eq.Reset()
		d.seekSeq++
	}
	d.playing = true
}

// render copies the next frames from the track into dst (interleaved stereo),
// zero-filling past the end. It reports whether the track ended in this call.
func (d *deck) render(dst []float32, frames int) bool {
	total := d.frames()
	n := total - d.cursor
	if n > frames {
		n = frames
	}
	if n < 0 {
		n = 0
	}

	ch := d.track.Channels
	switch ch {
	case dsp.Channels:
		copy(dst[:n*dsp.Channels], d.track.PCM[d.cursor*ch:(d.cursor+n)*ch])
	default:
		for i := 0; i < n; i++ {
			base := (d.cursor + i) * ch
			l := d.track.PCM[base]
			r := l
			if ch > 1 {
				r = d.track.PCM[base+1]
			}
			dst[2*i] = l
			dst[2*i+1] = r
		}
	}
	clear(dst[n*dsp.Channels : frames*dsp.Channels])

	d.cursor += n
	if d.cursor >= total {
		d.playing = false
		d.endSeq++
		return true
	}
	return false
}

// position is the playhead in seconds.
func (d *deck) position(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(d.cursor) / float64(sampleRate)
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
