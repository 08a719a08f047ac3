package engine

import (
	"errors"
	"math"
	"time"

	"djmix/core/dsp"
	"djmix/model"
)

// ErrCommandQueueFull is returned when the audio thread has not drained earlier
// commands yet.
var ErrCommandQueueFull = errors.New("engine command queue full")

type commandKind uint8

const (
	cmdLoad commandKind = iota
	cmdPlay
	cmdPause
	cmdSeek
	cmdGain
	cmdCue
	cmdEQ
	cmdCrossfader
	cmdAutoCrossfade
	cmdTalkover
	cmdMic
	cmdRecord
)

// command is a plain value so posting one never allocates on the audio side.
type command struct {
	kind   commandKind
	deck   DeckID
	track  *model.Track
	value  float64
	flag   bool
	cut    dsp.EqCutState
	frames int
}

func (e *Engine) post(c command) error {
	select {
	case e.commands <- c:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (e *Engine) postDeck(d DeckID, c command) error {
	if !d.Valid() {
		return ErrInvalidDeck
	}
	c.deck = d
	return e.post(c)
}

// Load swaps t into deck d. t must be complete; it is read-only from now on.
func (e *Engine) Load(d DeckID, t *model.Track) error {
	if t != nil && t.Channels <= 0 {
		return errors.New("track has no channels")
	}
	return e.postDeck(d, command{kind: cmdLoad, track: t})
}

// Play starts deck d.
func (e *Engine) Play(d DeckID) error {
	return e.postDeck(d, command{kind: cmdPlay})
}

// Pause stops deck d without moving its cursor.
func (e *Engine) Pause(d DeckID) error {
	return e.postDeck(d, command{kind: cmdPause})
}

// Seek moves deck d to seconds, clamped to the track.
func (e *Engine) Seek(d DeckID, seconds float64) error {
	if math.IsNaN(seconds) {
		return errors.New("invalid seek position")
	}
	frame := int(math.Round(seconds * float64(e.cfg.SampleRate)))
	return e.postDeck(d, command{kind: cmdSeek, frames: frame})
}

// SetGain sets deck d's fader position in [0, 1].
func (e *Engine) SetGain(d DeckID, gain float64) error {
	return e.postDeck(d, command{kind: cmdGain, value: clamp01(gain)})
}

// SetCue routes deck d to the cue bus.
func (e *Engine) SetCue(d DeckID, on bool) error {
	return e.postDeck(d, command{kind: cmdCue, flag: on})
}

// SetEQ sets deck d's band kills.
func (e *Engine) SetEQ(d DeckID, cut dsp.EqCutState) error {
	return e.postDeck(d, command{kind: cmdEQ, cut: cut})
}

// SetCrossfader moves the crossfader and cancels any automatic fade.
func (e *Engine) SetCrossfader(position float64) error {
	return e.post(command{kind: cmdCrossfader, value: clamp01(position)})
}

// AutoCrossfade ramps the crossfader to target over duration.
func (e *Engine) AutoCrossfade(target float64, duration time.Duration) error {
	frames := int(duration.Seconds() * float64(e.cfg.SampleRate))
	return e.post(command{kind: cmdAutoCrossfade, value: clamp01(target), frames: frames})
}

// SetTalkover holds or releases talkover.
func (e *Engine) SetTalkover(on bool) error {
	return e.post(command{kind: cmdTalkover, flag: on})
}

// SetMic enables the microphone input.
func (e *Engine) SetMic(on bool) error {
	return e.post(command{kind: cmdMic, flag: on})
}

// SetRecording controls whether mixed output is handed to the recording sink.
func (e *Engine) SetRecording(on bool) error {
	return e.post(command{kind: cmdRecord, flag: on})
}

// apply runs on the audio thread.
func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdLoad:
		e.decks[c.deck].load(c.track)
	case cmdPlay:
		e.decks[c.deck].play()
	case cmdPause:
		e.decks[c.deck].playing = false
	case cmdSeek:
		e.decks[c.deck].seek(c.frames)
	case cmdGain:
		e.decks[c.deck].gain = c.value
	case cmdCue:
		e.decks[c.deck].cue = c.flag
	case cmdEQ:
		e.decks[c.deck].eqCut = c.cut
	case cmdCrossfader:
		e.xf.SetManual(c.value)
	case cmdAutoCrossfade:
		e.xf.StartAuto(c.value, c.frames)
	case cmdTalkover:
		e.talkover = c.flag
	case cmdMic:
		e.micEnabled = c.flag
		if !c.flag {
			e.micMeter.Reset()
		}
	case cmdRecord:
		e.recording = c.flag
	}
}
