package engine

import "math"

// Meter tracks the peak of the last block and a decaying peak-hold.
type Meter struct {
	Peak float64
	Hold float64
}

// Update records the peak of a block of frames. The hold decays as
// exp(-frames / (tau * sampleRate)) and never drops below the new peak.
func (m *Meter) Update(peak float64, frames, sampleRate int, tau float64) {
	m.Peak = peak
	decay := 0.0
	if tau > 0 && sampleRate > 0 {
		decay = math.Exp(-float64(frames) / (tau * float64(sampleRate)))
	}
	m.Hold = math.Max(peak, m.Hold*decay)
}

// Reset zeroes both readings.
func (m *Meter) Reset() {
	m.Peak, m.Hold = 0, 0
}

func peakAbs(buf []float32) float64 {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float64(peak)
}
