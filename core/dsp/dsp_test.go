package dsp

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const testRate = 44100

func stereoSine(freq float64, frames int) []float32 {
	buf := make([]float32, frames*Channels)
	for i := 0; i < frames; i++ {
		v := float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
		buf[2*i] = v
		buf[2*i+1] = v
	}
	return buf
}

// steadyPeak ignores the first half of the buffer so the filter transient has died out.
func steadyPeak(buf []float32) float64 {
	peak := 0.0
	for _, s := range buf[len(buf)/2:] {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

func TestButterworthResponse(t *testing.T) {
	lp, err := ButterworthLowpass(1000, testRate)
	if err != nil {
		t.Fatalf("lowpass: %v", err)
	}
	hp, err := ButterworthHighpass(1000, testRate)
	if err != nil {
		t.Fatalf("highpass: %v", err)
	}

	tests := []struct {
		name    string
		coeffs  Coefficients
		freq    float64
		minGain float64
		maxGain float64
	}{
		{"lowpass passes 50Hz", lp, 50, 0.98, 1.02},
		{"lowpass stops 15kHz", lp, 15000, 0, 0.01},
		{"highpass passes 15kHz", hp, 15000, 0.95, 1.05},
		{"highpass stops 50Hz", hp, 50, 0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := stereoSine(tt.freq, testRate)
			var f Biquad
			f.Process(buf, testRate, tt.coeffs)
			gain := steadyPeak(buf) / 0.8
			if gain < tt.minGain || gain > tt.maxGain {
				t.Errorf("gain at %.0fHz = %.4f, want [%.2f, %.2f]", tt.freq, gain, tt.minGain, tt.maxGain)
			}
		})
	}
}

func TestButterworthNearNyquistIsStable(t *testing.T) {
	c, err := ButterworthLowpass(22000, testRate)
	if err != nil {
		t.Fatalf("lowpass: %v", err)
	}
	buf := stereoSine(21000, testRate)
	var f Biquad
	f.Process(buf, testRate, c)
	for i, s := range buf {
		if math.IsNaN(float64(s)) || math.Abs(float64(s)) > 2 {
			t.Fatalf("sample %d = %v, filter unstable", i, s)
		}
	}
}

func TestCutoffValidation(t *testing.T) {
	for _, cutoff := range []float64{0, -10, testRate / 2, testRate} {
		if _, err := ButterworthLowpass(cutoff, testRate); !errors.Is(err, ErrInvalidCutoff) {
			t.Errorf("lowpass cutoff %.0f: got %v, want ErrInvalidCutoff", cutoff, err)
		}
		if _, err := ButterworthHighpass(cutoff, testRate); !errors.Is(err, ErrInvalidCutoff) {
			t.Errorf("highpass cutoff %.0f: got %v, want ErrInvalidCutoff", cutoff, err)
		}
	}
}

func TestBiquadChannelsAreIndependent(t *testing.T) {
	c, _ := ButterworthLowpass(500, testRate)
	buf := make([]float32, 256*Channels)
	for i := 0; i < 256; i++ {
		buf[2*i] = 1 // left only
	}
	var f Biquad
	f.Process(buf, 256, c)
	for i := 0; i < 256; i++ {
		if buf[2*i+1] != 0 {
			t.Fatalf("right channel leaked at frame %d: %v", i, buf[2*i+1])
		}
	}
}

func newTestEQ(t *testing.T) *EQ {
	t.Helper()
	eq, err := NewEQ(testRate, 1024, 250, 5000)
	if err != nil {
		t.Fatalf("NewEQ: %v", err)
	}
	return eq
}

func noise(frames int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	buf := make([]float32, frames*Channels)
	for i := range buf {
		buf[i] = float32(r.Float64()*2 - 1)
	}
	return buf
}

func TestEQAllKilledIsSilence(t *testing.T) {
	eq := newTestEQ(t)
	buf := noise(1024, 1)
	if err := eq.Process(buf, 1024, EqCutState{Low: true, Mid: true, High: true}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(buf) != 1024*Channels {
		t.Fatalf("length changed to %d", len(buf))
	}
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestEQNoKillIsBypass(t *testing.T) {
	eq := newTestEQ(t)
	buf := noise(1024, 2)
	want := append([]float32(nil), buf...)
	if err := eq.Process(buf, 1024, EqCutState{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := range buf {
		if math.Float32bits(buf[i]) != math.Float32bits(want[i]) {
			t.Fatalf("sample %d changed: %v -> %v", i, want[i], buf[i])
		}
	}
}

func TestEQResetLeavesNoRinging(t *testing.T) {
	eq := newTestEQ(t)
	cut := EqCutState{Low: true}
	for i := 0; i < 4; i++ {
		if err := eq.Process(noise(1024, int64(10+i)), 1024, cut); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	eq.Reset()

	silence := make([]float32, 1024*Channels)
	if err := eq.Process(silence, 1024, cut); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, s := range silence {
		if s != 0 {
			t.Fatalf("sample %d = %v after reset, want 0", i, s)
		}
	}
}

func TestEQBandKills(t *testing.T) {
	const frames = 1024
	tests := []struct {
		name    string
		freq    float64
		cut     EqCutState
		minGain float64
		maxGain float64
	}{
		{"low kill removes bass", 60, EqCutState{Low: true}, 0, 0.05},
		{"high kill keeps bass", 60, EqCutState{High: true}, 0.8, 1.1},
		{"high kill removes treble", 15000, EqCutState{High: true}, 0, 0.05},
		{"low kill keeps treble", 15000, EqCutState{Low: true}, 0.8, 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := newTestEQ(t)
			signal := stereoSine(tt.freq, testRate)
			for off := 0; off+frames*Channels <= len(signal); off += frames * Channels {
				if err := eq.Process(signal[off:off+frames*Channels], frames, tt.cut); err != nil {
					t.Fatalf("Process: %v", err)
				}
			}
			gain := steadyPeak(signal[:len(signal)-len(signal)%(frames*Channels)]) / 0.8
			if gain < tt.minGain || gain > tt.maxGain {
				t.Errorf("gain = %.4f, want [%.2f, %.2f]", gain, tt.minGain, tt.maxGain)
			}
		})
	}
}

func TestEQRejectsOversizedBuffers(t *testing.T) {
	eq := newTestEQ(t)
	buf := make([]float32, 2048*Channels)
	if err := eq.Process(buf, 2048, EqCutState{Low: true}); !errors.Is(err, ErrFrameOverflow) {
		t.Fatalf("got %v, want ErrFrameOverflow", err)
	}
}

func TestNewEQValidatesCutoffs(t *testing.T) {
	if _, err := NewEQ(testRate, 512, 5000, 250); err == nil {
		t.Fatal("expected error for inverted cutoffs")
	}
	if _, err := NewEQ(8000, 512, 250, 5000); !errors.Is(err, ErrInvalidCutoff) {
		t.Fatalf("got %v, want ErrInvalidCutoff for cutoff above Nyquist", err)
	}
}
