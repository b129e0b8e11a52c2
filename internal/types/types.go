package types

import (
	"math"
	"strconv"
)

// Seconds is a timecode in seconds. Its JSON form is fixed to three decimal
// places so serialized timelines are byte-identical across machines.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	v := math.Round(float64(s)*1000) / 1000
	return []byte(strconv.FormatFloat(v, 'f', 3, 64)), nil
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*s = Seconds(v)
	return nil
}

// Waveform is a mono amplitude sequence at a fixed sample rate. Treated as
// immutable once loaded.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// BeatGrid is the regular sequence of inferred beat timestamps.
type BeatGrid struct {
	Tempo      float64   // BPM, constrained to [60,200]
	BeatTimes  []float64 // strictly increasing, seconds
	Confidence float64   // 0..1
	Degraded   bool      // analysis fell back to a fixed grid
}

// BarGrid groups every BeatsPerBar-th beat into bar boundaries. BarTimes[0]
// is the detected music start offset and must survive all later processing.
type BarGrid struct {
	BarTimes      []float64
	BeatsPerBar   int
	TimeSignature string // e.g. "4/4"
}

// StartOffset returns the music start offset (the first bar boundary).
func (g BarGrid) StartOffset() float64 {
	if len(g.BarTimes) == 0 {
		return 0
	}
	return g.BarTimes[0]
}

// BarDuration returns the spacing between bar boundaries, or 0 when the grid
// holds fewer than two bars.
func (g BarGrid) BarDuration() float64 {
	if len(g.BarTimes) < 2 {
		return 0
	}
	return g.BarTimes[1] - g.BarTimes[0]
}

// ClipSegment is one cut: the source file and the in/out timecodes within it.
type ClipSegment struct {
	Src string  `json:"src"`
	In  Seconds `json:"in"`
	Out Seconds `json:"out"`
}

// Duration returns out-in in seconds.
func (c ClipSegment) Duration() float64 { return float64(c.Out - c.In) }

// Timeline is the canonical, content-addressed edit description. It is built
// once per assemble, persisted, and consumed read-only by conform.
type Timeline struct {
	Clips            []ClipSegment     `json:"clips"`
	BarMarkers       []Seconds         `json:"bar_markers"`
	Tempo            float64           `json:"tempo"`
	TimeSignature    string            `json:"time_signature"`
	FPS              int               `json:"fps"`
	TargetSeconds    int               `json:"target_seconds"`
	Music            string            `json:"music"`
	TimelineHash     string            `json:"timeline_hash"`
	SourceHashes     map[string]string `json:"source_hashes"`
	UsedBeatSnapping bool              `json:"used_beat_snapping"`
	UsedSceneDetect  bool              `json:"used_scene_detect"`
	Shortfall        bool              `json:"shortfall,omitempty"`
	CreatedAt        string            `json:"created_at,omitempty"`
	Version          string            `json:"version,omitempty"`
}

// TotalDuration returns the summed clip durations in seconds.
func (t Timeline) TotalDuration() float64 {
	var sum float64
	for _, c := range t.Clips {
		sum += c.Duration()
	}
	return sum
}

// StartOffset returns the music start offset recorded in the bar markers.
func (t Timeline) StartOffset() float64 {
	if len(t.BarMarkers) == 0 {
		return 0
	}
	return float64(t.BarMarkers[0])
}

// JobState is the lifecycle state of a background job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)
