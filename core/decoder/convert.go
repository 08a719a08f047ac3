package decoder

import "errors"

// ErrNoSamples is returned when a source decodes to zero frames.
var ErrNoSamples = errors.New("decoded zero samples")

// convert maps interleaved source PCM onto the target rate and channel count
// and produces the mono downmix alongside it. Rate conversion picks the nearest
// preceding source frame: out frames = max(1, floor(n*dstRate/srcRate)) and
// frame i reads source frame floor(i*srcRate/dstRate). Every sample is clamped.
func convert(pcm []float32, srcRate, srcCh, dstRate, dstCh int) (out, mono []float32, err error) {
	if srcRate <= 0 || srcCh <= 0 || dstRate <= 0 || dstCh <= 0 {
		return nil, nil, errors.New("invalid sample format")
	}
	n := len(pcm) / srcCh
	if n == 0 {
		return nil, nil, ErrNoSamples
	}

	frames := n
	if srcRate != dstRate {
		frames = int(int64(n) * int64(dstRate) / int64(srcRate))
		if frames < 1 {
			frames = 1
		}
	}

	out = make([]float32, frames*dstCh)
	mono = make([]float32, frames)
	inv := 1 / float32(srcCh)

	for i := 0; i < frames; i++ {
		src := i
		if srcRate != dstRate {
			src = int(int64(i) * int64(srcRate) / int64(dstRate))
			if src >= n {
				src = n - 1
			}
		}
		frame := pcm[src*srcCh : src*srcCh+srcCh]

		var sum float32
		for _, s := range frame {
			sum += s
		}
		mono[i] = clamp(sum * inv)

		for c := 0; c < dstCh; c++ {
			switch {
			case dstCh == 1:
				out[i] = mono[i]
			case c < srcCh:
				out[i*dstCh+c] = clamp(frame[c])
			default:
				out[i*dstCh+c] = clamp(frame[srcCh-1])
			}
		}
	}
	return out, mono, nil
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case s != s:
		return 0
	}
	return s
}
