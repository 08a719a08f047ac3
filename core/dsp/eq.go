package dsp

import (
	"errors"
	"fmt"
)

// ErrFrameOverflow is returned when a buffer exceeds the size the EQ was built for.
var ErrFrameOverflow = errors.New("frame count exceeds pre-allocated capacity")

// EqCutState holds the three kill switches. The zero value passes audio through.
type EqCutState struct {
	Low  bool `json:"low"`
	Mid  bool `json:"mid"`
	High bool `json:"high"`
}

// None reports whether no band is killed.
func (s EqCutState) None() bool { return !s.Low && !s.Mid && !s.High }

// All reports whether every band is killed.
func (s EqCutState) All() bool { return s.Low && s.Mid && s.High }

// cascade is two identical biquads in series, giving a 24dB/oct slope.
type cascade struct {
	stages [2]Biquad
	coeffs Coefficients
}

func (c *cascade) process(buf []float32, frames int) {
	c.stages[0].Process(buf, frames, c.coeffs)
	c.stages[1].Process(buf, frames, c.coeffs)
}

func (c *cascade) reset() {
	c.stages[0].Reset()
	c.stages[1].Reset()
}

// EQ is a DJ-style three band kill EQ. Bands overlap at the crossovers the way
// analog mixer EQs do rather than forming a perfect reconstruction filter bank.
//
// An EQ owns its filter memory; it must not be shared between decks.
type EQ struct {
	maxFrames int

	low    cascade // LP(lowCutoff)
	midLow cascade // HP(lowCutoff)
	midHi  cascade // LP(highCutoff)
	high   cascade // HP(highCutoff)

	scratch [3][]float32

	// filtering is false while bypassed so stale history is dropped on re-entry.
	filtering bool
}

// NewEQ builds an EQ and its scratch buffers for up to maxFrames frames per call.
func NewEQ(sampleRate, maxFrames int, lowCutoffHz, highCutoffHz float64) (*EQ, error) {
	if maxFrames <= 0 {
		return nil, fmt.Errorf("max frames %d must be positive", maxFrames)
	}
	if lowCutoffHz >= highCutoffHz {
		return nil, fmt.Errorf("low cutoff %.1fHz must be below high cutoff %.1fHz", lowCutoffHz, highCutoffHz)
	}

	lowLP, err := ButterworthLowpass(lowCutoffHz, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("low band: %w", err)
	}
	lowHP, err := ButterworthHighpass(lowCutoffHz, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("mid band: %w", err)
	}
	highLP, err := ButterworthLowpass(highCutoffHz, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("mid band: %w", err)
	}
	highHP, err := ButterworthHighpass(highCutoffHz, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("high band: %w", err)
	}

	eq := &EQ{
		maxFrames: maxFrames,
		low:       cascade{coeffs: lowLP},
		midLow:    cascade{coeffs: lowHP},
		midHi:     cascade{coeffs: highLP},
		high:      cascade{coeffs: highHP},
	}
	for i := range eq.scratch {
		eq.scratch[i] = make([]float32, maxFrames*Channels)
	}
	return eq, nil
}

// MaxFrames is the largest frame count Process accepts.
func (eq *EQ) MaxFrames() int { return eq.maxFrames }

// Process applies the kill state to frames of interleaved stereo in place.
func (eq *EQ) Process(buf []float32, frames int, cut EqCutState) error {
	if frames > eq.maxFrames || frames*Channels > len(buf) {
		return ErrFrameOverflow
	}
	n := frames * Channels

	if cut.None() {
		eq.filtering = false
		return nil
	}
	if cut.All() {
		eq.filtering = false
		clear(buf[:n])
		return nil
	}
	if !eq.filtering {
		eq.Reset()
		eq.filtering = true
	}

	lowBuf := eq.scratch[0][:n]
	midBuf := eq.scratch[1][:n]
	highBuf := eq.scratch[2][:n]
	copy(lowBuf, buf[:n])
	copy(midBuf, buf[:n])
	copy(highBuf, buf[:n])

	eq.low.process(lowBuf, frames)
	eq.midLow.process(midBuf, frames)
	eq.midHi.process(midBuf, frames)
	eq.high.process(highBuf, frames)

	for i := 0; i < n; i++ {
		var s float32
		if !cut.Low {
			s += lowBuf[i]
		}
		if !cut.Mid {
			s += midBuf[i]
		}
		if !cut.High {
			s += highBuf[i]
		}
		buf[i] = s
	}
	return nil
}

// Reset clears all eight filter histories.
func (eq *EQ) Reset() {
	eq.low.reset()
	eq.midLow.reset()
	eq.midHi.reset()
	eq.high.reset()
}
