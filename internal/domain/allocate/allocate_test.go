package allocate

import (
	"errors"
	"math"
	"testing"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// grid builds a regular bar grid: bars every beatsPerBar beats at the given
// tempo, anchored at startOffset, spanning enough bars for any test target.
func grid(tempo, startOffset float64, bars int) types.BarGrid {
	barDur := 4 * 60.0 / tempo
	times := make([]float64, bars)
	for i := range times {
		times[i] = startOffset + float64(i)*barDur
	}
	return types.BarGrid{BarTimes: times, BeatsPerBar: 4, TimeSignature: "4/4"}
}

func TestSegments_TwoClipsAtDetectedTempo(t *testing.T) {
	// 20s + 15s of footage, 103.4 BPM (bar ~2.32s), target 30s.
	bars := grid(103.4, 1.3, 8)
	clips := []Clip{
		{Path: "/media/a.mp4", Duration: 20},
		{Path: "/media/b.mp4", Duration: 15},
	}

	res, err := Segments(bars, clips, 30, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if res.Shortfall {
		t.Fatalf("unexpected shortfall with 35s of footage")
	}

	barDur := bars.BarDuration()
	if res.Total > 30 || res.Total < 30-barDur {
		t.Fatalf("total %.3f outside [%.3f, 30]", res.Total, 30-barDur)
	}

	// First clip must be fully exhausted before the second contributes.
	var firstDone bool
	for _, s := range res.Segments {
		switch s.Src {
		case "/media/a.mp4":
			if firstDone {
				t.Fatalf("clip a resumed after clip b started")
			}
		case "/media/b.mp4":
			firstDone = true
		}
	}

	// Segments tile each clip contiguously from 0.
	pos := map[string]float64{}
	for _, s := range res.Segments {
		if math.Abs(float64(s.In)-pos[s.Src]) > 1e-6 {
			t.Fatalf("segment of %s starts at %v, want %v", s.Src, s.In, pos[s.Src])
		}
		pos[s.Src] = float64(s.Out)
	}
}

func TestSegments_InsufficientFootageIsNeverLooped(t *testing.T) {
	// 10s + 12s of footage cannot fill a 30s target; the allocator caps at
	// the available 22s and flags it instead of reusing clips.
	bars := grid(103.4, 1.3, 8)
	clips := []Clip{
		{Path: "/media/a.mp4", Duration: 10},
		{Path: "/media/b.mp4", Duration: 12},
	}

	res, err := Segments(bars, clips, 30, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if !res.Shortfall {
		t.Fatalf("expected shortfall flag")
	}
	if math.Abs(res.Total-22) > 1e-6 {
		t.Fatalf("total %.3f, want the full 22s of footage", res.Total)
	}
	for _, s := range res.Segments {
		if s.Duration() <= 0 {
			t.Fatalf("zero-length segment emitted: %+v", s)
		}
	}
}

func TestSegments_LoopClipsTilesToBudget(t *testing.T) {
	// Same 10s + 12s footage, but with clip reuse enabled the walk restarts
	// at the first clip and fills the bar-snapped budget: 12 bars of ~2.32s
	// each, inside [target - bar, target].
	bars := grid(103.4, 1.3, 8)
	clips := []Clip{
		{Path: "/media/a.mp4", Duration: 10},
		{Path: "/media/b.mp4", Duration: 12},
	}

	res, err := Segments(bars, clips, 30, Options{LoopClips: true})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if res.Shortfall {
		t.Fatalf("shortfall flagged with looping enabled")
	}
	barDur := bars.BarDuration()
	if res.Total > 30 || res.Total < 30-barDur {
		t.Fatalf("total %.3f outside [%.3f, 30]", res.Total, 30-barDur)
	}

	// The tail of the walk is the clip list started over: the first
	// segment of the reused clip begins at its head again.
	var reused, seenB bool
	for _, s := range res.Segments {
		if s.Src == "/media/b.mp4" {
			seenB = true
		}
		if s.Src == "/media/a.mp4" && seenB {
			if float64(s.In) != 0 {
				t.Fatalf("reused clip resumes at %v, want 0", s.In)
			}
			reused = true
			break
		}
	}
	if !reused {
		t.Fatalf("clip list was never restarted")
	}
}

func TestSegments_LoopSingleClip(t *testing.T) {
	bars := grid(120, 0, 4) // bar = 2s, budget = 30
	clips := []Clip{{Path: "/media/only.mp4", Duration: 5}}

	res, err := Segments(bars, clips, 30, Options{LoopClips: true})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if res.Shortfall {
		t.Fatalf("shortfall flagged with looping enabled")
	}
	if math.Abs(res.Total-30) > 1e-6 {
		t.Fatalf("total %.3f, want 30", res.Total)
	}
	for _, s := range res.Segments {
		if s.Duration() <= 0 {
			t.Fatalf("zero-length segment emitted: %+v", s)
		}
	}
}

func TestSegments_ShortfallIsCappedNotLooped(t *testing.T) {
	bars := grid(120, 0, 4)
	clips := []Clip{{Path: "/media/only.mp4", Duration: 5}}

	res, err := Segments(bars, clips, 30, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if !res.Shortfall {
		t.Fatalf("expected shortfall flag")
	}
	if math.Abs(res.Total-5) > 1e-6 {
		t.Fatalf("total %.3f, want capped at 5", res.Total)
	}
}

func TestSegments_NoUsableClips(t *testing.T) {
	bars := grid(120, 0, 4)

	_, err := Segments(bars, nil, 30, Options{})
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("err = %v, want ErrInput", err)
	}

	_, err = Segments(bars, []Clip{{Path: "/media/zero.mp4", Duration: 0}}, 30, Options{})
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("zero-duration clips: err = %v, want ErrInput", err)
	}
}

func TestSegments_ClipShorterThanBarIsIncluded(t *testing.T) {
	bars := grid(120, 0, 8) // bar = 2s
	clips := []Clip{
		{Path: "/media/tiny.mp4", Duration: 0.8},
		{Path: "/media/long.mp4", Duration: 30},
	}

	res, err := Segments(bars, clips, 10, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}

	if res.Segments[0].Src != "/media/tiny.mp4" {
		t.Fatalf("first segment = %s, want the short clip", res.Segments[0].Src)
	}
	if math.Abs(res.Segments[0].Duration()-0.8) > 1e-6 {
		t.Fatalf("short clip contributed %v, want its full 0.8s", res.Segments[0].Duration())
	}
	// The deficit carries into the next clip inside the same bar interval.
	if res.Segments[1].Src != "/media/long.mp4" {
		t.Fatalf("second segment = %s, want the long clip", res.Segments[1].Src)
	}
	if math.Abs(res.Segments[1].Duration()-1.2) > 1e-6 {
		t.Fatalf("carry segment = %v, want 1.2s", res.Segments[1].Duration())
	}
	if math.Abs(res.Total-10) > 1e-6 {
		t.Fatalf("total %.3f, want 10 (5 exact bars)", res.Total)
	}
}

func TestSegments_NeverOvershootsTarget(t *testing.T) {
	for _, tempo := range []float64{60, 103.4, 147.3, 200} {
		bars := grid(tempo, 0.5, 4)
		clips := []Clip{{Path: "/media/a.mp4", Duration: 120}}
		target := 30

		res, err := Segments(bars, clips, target, Options{})
		if err != nil {
			t.Fatalf("tempo %.1f: %v", tempo, err)
		}
		barDur := bars.BarDuration()
		if res.Total > float64(target)+1e-9 {
			t.Fatalf("tempo %.1f: total %.3f overshoots target", tempo, res.Total)
		}
		if res.Total < float64(target)-barDur-1e-9 {
			t.Fatalf("tempo %.1f: total %.3f undershoots by more than one bar", tempo, res.Total)
		}
	}
}

func TestSegments_DedupeClips(t *testing.T) {
	bars := grid(120, 0, 8)
	clips := []Clip{
		{Path: "/media/a.mp4", Duration: 6},
		{Path: "/media/a.mp4", Duration: 6},
		{Path: "/media/b.mp4", Duration: 6},
	}

	res, err := Segments(bars, clips, 10, Options{DedupeClips: true})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	var aSeconds float64
	for _, s := range res.Segments {
		if s.Src == "/media/a.mp4" {
			aSeconds += s.Duration()
		}
	}
	if aSeconds > 6+1e-6 {
		t.Fatalf("deduped clip contributed %.3fs, more than its 6s duration", aSeconds)
	}

	// Without dedup the repeat is honored.
	res, err = Segments(bars, clips, 10, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	aSeconds = 0
	for _, s := range res.Segments {
		if s.Src == "/media/a.mp4" {
			aSeconds += s.Duration()
		}
	}
	if aSeconds < 6 {
		t.Fatalf("repeated clip contributed only %.3fs", aSeconds)
	}
}

func TestSegments_SingleBarGridStillAllocates(t *testing.T) {
	// Degenerate grid from a sub-bar track: no bar spacing to snap to, so
	// the raw target is the budget.
	bars := types.BarGrid{BarTimes: []float64{0}, BeatsPerBar: 4, TimeSignature: "4/4"}
	clips := []Clip{{Path: "/media/a.mp4", Duration: 60}}

	res, err := Segments(bars, clips, 10, Options{})
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if math.Abs(res.Total-10) > 1e-6 {
		t.Fatalf("total %.3f, want 10", res.Total)
	}
}
