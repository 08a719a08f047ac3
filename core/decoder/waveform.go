package decoder

import "math"

// Waveform reduces mono to one peak per bucket, pointsPerSecond buckets per
// second of audio.
func Waveform(mono []float32, sampleRate, pointsPerSecond int) []float32 {
	if len(mono) == 0 || sampleRate <= 0 || pointsPerSecond <= 0 {
		return nil
	}
	bucket := sampleRate / pointsPerSecond
	if bucket < 1 {
		bucket = 1
	}

	peaks := make([]float32, 0, len(mono)/bucket+1)
	for start := 0; start < len(mono); start += bucket {
		end := start + bucket
		if end > len(mono) {
			end = len(mono)
		}
		var peak float32
		for _, s := range mono[start:end] {
			if a := float32(math.Abs(float64(s))); a > peak {
				peak = a
			}
		}
		peaks = append(peaks, peak)
	}
	return peaks
}

// WaveformChunks splits peaks into consecutive slices of at most size points.
// The slices share peaks' backing array.
func WaveformChunks(peaks []float32, size int) [][]float32 {
	if len(peaks) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(peaks)
	}
	chunks := make([][]float32, 0, (len(peaks)+size-1)/size)
	for start := 0; start < len(peaks); start += size {
		end := start + size
		if end > len(peaks) {
			end = len(peaks)
		}
		chunks = append(chunks, peaks[start:end:end])
	}
	return chunks
}
