// Package tempo estimates BPM and phrase structure from mono PCM.
//
// Everything here runs off the real-time path, once per decoded track.
package tempo

import "math"

const (
	DefaultFrameSize     = 512
	DefaultHopSize       = 256
	DefaultMinBPM        = 60.0
	DefaultMaxBPM        = 200.0
	DefaultMinConfidence = 0.1
)

// Detector estimates tempo by autocorrelating an energy-flux onset envelope.
type Detector struct {
	FrameSize     int
	HopSize       int
	MinBPM        float64
	MaxBPM        float64
	MinConfidence float64 // r(peak)/r(0) below this is reported as undetected
}

// Result is a successful tempo estimate.
type Result struct {
	BPM        float64
	Confidence float64
}

// NewDetector returns a detector with the default analysis window and range.
func NewDetector() *Detector {
	return &Detector{
		FrameSize:     DefaultFrameSize,
		HopSize:       DefaultHopSize,
		MinBPM:        DefaultMinBPM,
		MaxBPM:        DefaultMaxBPM,
		MinConfidence: DefaultMinConfidence,
	}
}

// OnsetEnvelope returns the half-wave rectified RMS flux of mono, one value per hop.
func (d *Detector) OnsetEnvelope(mono []float32) []float64 {
	n := len(mono)
	numFrames := (n-d.FrameSize)/d.HopSize + 1
	if numFrames <= 1 {
		return nil
	}

	env := make([]float64, numFrames)
	prev := 0.0
	for i := 0; i < numFrames; i++ {
		start := i * d.HopSize
		sum := 0.0
		for _, s := range mono[start : start+d.FrameSize] {
			v := float64(s)
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(d.FrameSize))
		if flux := rms - prev; flux > 0 {
			env[i] = flux
		}
		prev = rms
	}
	return env
}

// FrameTime converts an envelope index to seconds, at the centre of its frame.
func (d *Detector) FrameTime(frame, sampleRate int) float64 {
	return float64(frame*d.HopSize+d.FrameSize/2) / float64(sampleRate)
}

// Detect estimates the tempo of mono. ok is false when no dominant period emerges.
func (d *Detector) Detect(mono []float32, sampleRate int) (Result, bool) {
	if sampleRate <= 0 {
		return Result{}, false
	}
	env := d.OnsetEnvelope(mono)

	hop := float64(d.HopSize)
	sr := float64(sampleRate)
	minLag := int(math.Floor(60 * sr / (d.MaxBPM * hop)))
	maxLag := int(math.Ceil(60 * sr / (d.MinBPM * hop)))
	if minLag < 2 {
		minLag = 2
	}
	if len(env) <= 2*(maxLag+1) {
		return Result{}, false
	}

	mean := 0.0
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	for i := range env {
		env[i] -= mean
	}

	r0 := autocorr(env, 0)
	if r0 <= 1e-12 {
		return Result{}, false
	}

	// r is indexed from minLag-1 so the best lag always has both neighbours.
	r := make([]float64, maxLag-minLag+3)
	for i := range r {
		r[i] = autocorr(env, minLag-1+i)
	}

	best := 1
	for i := 2; i < len(r)-1; i++ {
		if r[i] > r[best] {
			best = i
		}
	}

	confidence := r[best] / r0
	if confidence < d.MinConfidence {
		return Result{}, false
	}

	lag := float64(minLag - 1 + best)
	if denom := r[best-1] - 2*r[best] + r[best+1]; denom < 0 {
		lag += 0.5 * (r[best-1] - r[best+1]) / denom
	}

	bpm := 60 * sr / (lag * hop)
	bpm = math.Max(d.MinBPM, math.Min(d.MaxBPM, bpm))
	return Result{BPM: math.Round(bpm*100) / 100, Confidence: confidence}, true
}

// Detect runs the default detector.
func Detect(mono []float32, sampleRate int) (Result, bool) {
	return NewDetector().Detect(mono, sampleRate)
}

func autocorr(x []float64, lag int) float64 {
	sum := 0.0
	for i := 0; i+lag < len(x); i++ {
		sum += x[i] * x[i+lag]
	}
	return sum
}
