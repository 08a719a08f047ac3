package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCutoff is returned when a cutoff is not strictly inside (0, Nyquist).
var ErrInvalidCutoff = errors.New("cutoff must be between 0 and half the sample rate")

// butterworthQ gives a maximally flat 2nd-order response.
const butterworthQ = 1 / math.Sqrt2

// Coefficients is a normalized biquad coefficient set (a0 == 1).
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

func validateCutoff(cutoffHz float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate %d: %w", sampleRate, ErrInvalidCutoff)
	}
	nyquist := float64(sampleRate) / 2
	if !(cutoffHz > 0 && cutoffHz < nyquist) {
		return fmt.Errorf("cutoff %.2fHz at %dHz: %w", cutoffHz, sampleRate, ErrInvalidCutoff)
	}
	return nil
}

// ButterworthLowpass returns 2nd-order Butterworth low-pass coefficients.
func ButterworthLowpass(cutoffHz float64, sampleRate int) (Coefficients, error) {
	if err := validateCutoff(cutoffHz, sampleRate); err != nil {
		return Coefficients{}, err
	}
	cosW, alpha := prewarp(cutoffHz, sampleRate)
	a0 := 1 + alpha
	return Coefficients{
		B0: (1 - cosW) / 2 / a0,
		B1: (1 - cosW) / a0,
		B2: (1 - cosW) / 2 / a0,
		A1: -2 * cosW / a0,
		A2: (1 - alpha) / a0,
	}, nil
}

// ButterworthHighpass returns 2nd-order Butterworth high-pass coefficients.
func ButterworthHighpass(cutoffHz float64, sampleRate int) (Coefficients, error) {
	if err := validateCutoff(cutoffHz, sampleRate); err != nil {
		return Coefficients{}, err
	}
	cosW, alpha := prewarp(cutoffHz, sampleRate)
	a0 := 1 + alpha
	return Coefficients{
		B0: (1 + cosW) / 2 / a0,
		B1: -(1 + cosW) / a0,
		B2: (1 + cosW) / 2 / a0,
		A1: -2 * cosW / a0,
		A2: (1 - alpha) / a0,
	}, nil
}

// prewarp maps the analog cutoff through the bilinear transform.
func prewarp(cutoffHz float64, sampleRate int) (cosW, alpha float64) {
	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	return math.Cos(w0), math.Sin(w0) / (2 * butterworthQ)
}
