package tempo

import (
	"math"
	"sort"

	"djmix/model"
)

const (
	beatsPerBar    = 4
	phraseBeats    = 16
	maxHotCues     = 4
	sectionThresh  = 0.5 // fraction of the loudest bar that counts as "main"
	maxIntroShare  = 0.4
	minOutroOffset = 0.6
)

// AnalyzeStructure derives the beat grid, intro/main/outro split and hot cues
// for a track whose tempo is already known.
func (d *Detector) AnalyzeStructure(mono []float32, sampleRate int, bpm float64) *model.TrackStructure {
	st := &model.TrackStructure{BPM: bpm}
	if sampleRate <= 0 || bpm <= 0 || len(mono) == 0 {
		return st
	}
	duration := float64(len(mono)) / float64(sampleRate)

	st.Beats = d.beatGrid(mono, sampleRate, bpm, duration)
	if len(st.Beats) < 2*beatsPerBar {
		st.Sections = []model.Section{{Name: model.SectionMain, Start: 0, End: duration, Beats: len(st.Beats)}}
		if len(st.Beats) > 0 {
			st.HotCues = []float64{st.Beats[0]}
		}
		return st
	}

	energy := beatEnergy(mono, sampleRate, st.Beats, duration)
	introEnd, outroStart := splitSections(energy)

	at := func(beat int) float64 {
		if beat >= len(st.Beats) {
			return duration
		}
		return st.Beats[beat]
	}

	st.Sections = []model.Section{
		{Name: model.SectionIntro, Start: 0, End: at(introEnd), Beats: introEnd},
		{Name: model.SectionMain, Start: at(introEnd), End: at(outroStart), Beats: outroStart - introEnd},
		{Name: model.SectionOutro, Start: at(outroStart), End: duration, Beats: len(st.Beats) - outroStart},
	}

	cues := []float64{st.Beats[0], at(introEnd), at(outroStart)}
	if peak, ok := peakPhrase(energy); ok {
		cues = append(cues, st.Beats[peak])
	}
	st.HotCues = uniqueSorted(cues, duration)
	return st
}

// AnalyzeStructure runs the default detector's structure analysis.
func AnalyzeStructure(mono []float32, sampleRate int, bpm float64) *model.TrackStructure {
	return NewDetector().AnalyzeStructure(mono, sampleRate, bpm)
}

// beatGrid places beats every 60/bpm seconds, phase-aligned to the onset envelope.
func (d *Detector) beatGrid(mono []float32, sampleRate int, bpm, duration float64) []float64 {
	period := 60 / bpm
	offset := 0.0

	if env := d.OnsetEnvelope(mono); len(env) > 0 {
		periodFrames := period * float64(sampleRate) / float64(d.HopSize)
		bestScore := -1.0
		for k := 0; k < int(math.Ceil(periodFrames)) && k < len(env); k++ {
			score := 0.0
			for pos := float64(k); int(math.Round(pos)) < len(env); pos += periodFrames {
				score += env[int(math.Round(pos))]
			}
			if score > bestScore {
				bestScore = score
				offset = d.FrameTime(k, sampleRate)
			}
		}
		for offset >= period {
			offset -= period
		}
	}

	beats := make([]float64, 0, int(duration/period)+1)
	for t := offset; t < duration; t += period {
		beats = append(beats, math.Round(t*1000)/1000)
	}
	return beats
}

// beatEnergy is the RMS of each beat interval, normalized to the loudest beat.
func beatEnergy(mono []float32, sampleRate int, beats []float64, duration float64) []float64 {
	energy := make([]float64, len(beats))
	maxE := 0.0
	for i, start := range beats {
		end := duration
		if i+1 < len(beats) {
			end = beats[i+1]
		}
		lo := int(start * float64(sampleRate))
		hi := int(end * float64(sampleRate))
		if hi > len(mono) {
			hi = len(mono)
		}
		if lo >= hi {
			continue
		}
		sum := 0.0
		for _, s := range mono[lo:hi] {
			sum += float64(s) * float64(s)
		}
		energy[i] = math.Sqrt(sum / float64(hi-lo))
		if energy[i] > maxE {
			maxE = energy[i]
		}
	}
	if maxE > 1e-9 {
		for i := range energy {
			energy[i] /= maxE
		}
	}
	return energy
}

func barMean(energy []float64, from int) float64 {
	sum := 0.0
	for i := from; i < from+beatsPerBar; i++ {
		sum += energy[i]
	}
	return sum / beatsPerBar
}

// splitSections returns the first beat of the main section and the first beat of
// the outro, both snapped to the nearest bar line.
func splitSections(energy []float64) (introEnd, outroStart int) {
	n := len(energy)
	lastBar := n - beatsPerBar

	introEnd = 0
	for i := 0; i <= lastBar; i++ {
		if barMean(energy, i) >= sectionThresh {
			introEnd = i + beatsPerBar/2
			break
		}
	}

	outroStart = n
	for i := lastBar; i >= 0; i-- {
		if barMean(energy, i) >= sectionThresh {
			outroStart = i + beatsPerBar/2
			break
		}
	}

	introEnd = snapToBar(introEnd)
	outroStart = snapToBar(outroStart)

	if maxIntro := int(float64(n) * maxIntroShare); introEnd > maxIntro {
		introEnd = maxIntro - maxIntro%beatsPerBar
	}
	if minOutro := int(float64(n) * minOutroOffset); outroStart < minOutro {
		outroStart = minOutro
	}
	if outroStart > n {
		outroStart = n
	}
	if outroStart < introEnd {
		outroStart = introEnd
	}
	return introEnd, outroStart
}

func snapToBar(beat int) int {
	return int(math.Round(float64(beat)/beatsPerBar)) * beatsPerBar
}

// peakPhrase returns the first beat of the loudest bar-aligned 16-beat phrase.
func peakPhrase(energy []float64) (int, bool) {
	if len(energy) < phraseBeats {
		return 0, false
	}
	best, bestSum := 0, -1.0
	for i := 0; i+phraseBeats <= len(energy); i += beatsPerBar {
		sum := 0.0
		for _, e := range energy[i : i+phraseBeats] {
			sum += e
		}
		if sum > bestSum {
			best, bestSum = i, sum
		}
	}
	return best, true
}

func uniqueSorted(values []float64, limit float64) []float64 {
	sort.Float64s(values)
	out := make([]float64, 0, maxHotCues)
	for _, v := range values {
		if v >= limit {
			continue
		}
		if len(out) > 0 && math.Abs(out[len(out)-1]-v) < 0.001 {
			continue
		}
		out = append(out, v)
		if len(out) == maxHotCues {
			break
		}
	}
	return out
}
