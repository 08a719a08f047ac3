package tempo

import (
	"math"
	"math/rand"
	"testing"

	"djmix/model"
)

const testRate = 44100

// clickTrain renders a 1kHz click with a linear decay on every beat.
func clickTrain(bpm, seconds float64, amp func(t float64) float64) []float32 {
	n := int(seconds * testRate)
	out := make([]float32, n)
	period := 60 / bpm
	const clickLen = 441
	for beat := 0; ; beat++ {
		t := float64(beat) * period
		start := int(t * testRate)
		if start >= n {
			break
		}
		a := amp(t)
		for i := 0; i < clickLen && start+i < n; i++ {
			env := 1 - float64(i)/clickLen
			out[start+i] = float32(a * env * math.Sin(2*math.Pi*1000*float64(i)/testRate))
		}
	}
	return out
}

func constant(v float64) func(float64) float64 {
	return func(float64) float64 { return v }
}

func TestDetectClickTrains(t *testing.T) {
	tests := []struct {
		name string
		bpm  float64
	}{
		{"120 bpm", 120},
		{"100 bpm", 100},
		{"128 bpm", 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Detect(clickTrain(tt.bpm, 20, constant(0.8)), testRate)
			if !ok {
				t.Fatal("tempo not detected")
			}
			if math.Abs(res.BPM-tt.bpm) > 2 {
				t.Errorf("bpm = %.2f, want %.0f ± 2", res.BPM, tt.bpm)
			}
			if res.Confidence < DefaultMinConfidence || res.Confidence > 1 {
				t.Errorf("confidence = %.3f out of range", res.Confidence)
			}
		})
	}
}

func TestDetectUndetected(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	noise := make([]float32, 20*testRate)
	for i := range noise {
		noise[i] = float32(r.Float64() - 0.5)
	}

	tests := []struct {
		name string
		pcm  []float32
	}{
		{"silence", make([]float32, 20*testRate)},
		{"too short", clickTrain(120, 1, constant(0.8))},
		{"empty", nil},
		{"white noise", noise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res, ok := Detect(tt.pcm, testRate); ok {
				t.Errorf("detected %.2f bpm (confidence %.3f), want undetected", res.BPM, res.Confidence)
			}
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	pcm := clickTrain(124, 15, constant(0.5))
	first, ok1 := Detect(pcm, testRate)
	second, ok2 := Detect(pcm, testRate)
	if ok1 != ok2 || first != second {
		t.Fatalf("results differ: %+v/%v vs %+v/%v", first, ok1, second, ok2)
	}
}

func TestDetectRejectsBadSampleRate(t *testing.T) {
	if _, ok := Detect(clickTrain(120, 20, constant(0.8)), 0); ok {
		t.Fatal("expected undetected for zero sample rate")
	}
}

func TestAnalyzeStructure(t *testing.T) {
	// quiet intro and outro around a loud middle section
	amp := func(t float64) float64 {
		if t < 16 || t >= 48 {
			return 0.1
		}
		return 0.9
	}
	st := AnalyzeStructure(clickTrain(120, 64, amp), testRate, 120)

	if st.BPM != 120 {
		t.Errorf("bpm = %v, want 120", st.BPM)
	}
	if len(st.Beats) < 120 || len(st.Beats) > 130 {
		t.Fatalf("got %d beats, want about 128", len(st.Beats))
	}
	for i := 1; i < len(st.Beats); i++ {
		if st.Beats[i] <= st.Beats[i-1] {
			t.Fatalf("beats not ascending at %d", i)
		}
	}

	if len(st.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(st.Sections))
	}
	wantNames := []string{model.SectionIntro, model.SectionMain, model.SectionOutro}
	for i, s := range st.Sections {
		if s.Name != wantNames[i] {
			t.Errorf("section %d = %q, want %q", i, s.Name, wantNames[i])
		}
	}
	main := st.Sections[1]
	if math.Abs(main.Start-16) > 2 {
		t.Errorf("main starts at %.2fs, want about 16s", main.Start)
	}
	if math.Abs(main.End-48) > 2 {
		t.Errorf("outro starts at %.2fs, want about 48s", main.End)
	}
	if st.Sections[2].End != 64 {
		t.Errorf("outro ends at %.2f, want 64", st.Sections[2].End)
	}

	if len(st.HotCues) == 0 || len(st.HotCues) > 4 {
		t.Fatalf("got %d hot cues, want 1..4", len(st.HotCues))
	}
	for i := 1; i < len(st.HotCues); i++ {
		if st.HotCues[i] <= st.HotCues[i-1] {
			t.Fatalf("hot cues not ascending: %v", st.HotCues)
		}
	}
}

func TestAnalyzeStructureShortInput(t *testing.T) {
	st := AnalyzeStructure(clickTrain(120, 2, constant(0.8)), testRate, 120)
	if len(st.Sections) != 1 || st.Sections[0].Name != model.SectionMain {
		t.Fatalf("sections = %+v, want a single main section", st.Sections)
	}
}

func TestAnalyzeStructureWithoutTempo(t *testing.T) {
	st := AnalyzeStructure(clickTrain(120, 10, constant(0.8)), testRate, 0)
	if len(st.Beats) != 0 || len(st.Sections) != 0 {
		t.Fatalf("expected empty structure, got %+v", st)
	}
}
