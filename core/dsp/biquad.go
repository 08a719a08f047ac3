package dsp

// Channels is the interleaved channel count every filter in this package expects.
const Channels = 2

type biquadMemory struct {
	x1, x2 float64
	y1, y2 float64
}

// Biquad is a second-order IIR section with independent memory per channel.
// The zero value is ready to use.
type Biquad struct {
	mem [Channels]biquadMemory
}

// Process filters frames of interleaved stereo in place (Direct Form I).
func (f *Biquad) Process(buf []float32, frames int, c Coefficients) {
	n := frames * Channels
	if n > len(buf) {
		n = len(buf) - len(buf)%Channels
	}
	for ch := 0; ch < Channels; ch++ {
		m := f.mem[ch]
		for i := ch; i < n; i += Channels {
			x := float64(buf[i])
			y := c.B0*x + c.B1*m.x1 + c.B2*m.x2 - c.A1*m.y1 - c.A2*m.y2
			m.x2, m.x1 = m.x1, x
			m.y2, m.y1 = m.y1, y
			buf[i] = float32(y)
		}
		f.mem[ch] = m
	}
}

// Reset clears the filter history. Call after any discontinuity in the input.
func (f *Biquad) Reset() {
	f.mem = [Channels]biquadMemory{}
}
