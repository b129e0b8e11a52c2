package beat

import (
	"math"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Analysis parameters. Frame/hop sizes follow the usual short-window energy
// setup for ~22 kHz material.
const (
	frameLength = 2048
	hopLength   = 512

	minStartOffset = 0.1 // seconds; never cut into the very first samples
	maxStartOffset = 5.0 // seconds; an intro longer than this is content

	silenceFloor = 1e-4 // max RMS below this means the track is near-silent

	fallbackTempo = 120.0
)

// Config bounds the analyzer. Zero values fall back to defaults.
type Config struct {
	MinTempo    float64 // BPM, default 60
	MaxTempo    float64 // BPM, default 200
	BeatsPerBar int     // default 4
}

func (c Config) withDefaults() Config {
	if c.MinTempo <= 0 {
		c.MinTempo = 60
	}
	if c.MaxTempo <= 0 {
		c.MaxTempo = 200
	}
	if c.BeatsPerBar <= 0 {
		c.BeatsPerBar = 4
	}
	return c
}

// Analysis is the full result of analyzing one music track.
type Analysis struct {
	Beats       types.BeatGrid
	Bars        types.BarGrid
	StartOffset float64 // == Bars.BarTimes[0]
}

// Analyze infers tempo, a regular beat grid and bar boundaries from a mono
// waveform. It degrades to a flagged fixed grid on ambiguous or near-silent
// input but never fails; decode problems are the caller's to surface.
//
// The beat grid is synthesized at exactly 60/tempo spacing rather than taken
// from raw onsets: irregular detections on noisy material produce cuts that
// drift off the musical grid, and a regular grid anchored at the true music
// start keeps every bar boundary usable.
func Analyze(w types.Waveform, cfg Config, durationHint float64) Analysis {
	cfg = cfg.withDefaults()

	samples := w.Samples
	if durationHint > 0 && w.SampleRate > 0 {
		if n := int(durationHint * float64(w.SampleRate)); n < len(samples) {
			samples = samples[:n]
		}
	}
	duration := float64(len(samples)) / float64(max(w.SampleRate, 1))

	env := rmsEnvelope(samples, frameLength, hopLength)

	maxEnergy := 0.0
	for _, e := range env {
		if e > maxEnergy {
			maxEnergy = e
		}
	}
	if len(env) == 0 || maxEnergy < silenceFloor {
		a := fixedGrid(fallbackTempo, 0, duration, cfg, 0.5)
		a.Beats.Degraded = true
		return a
	}

	start := findMusicStart(env, maxEnergy, w.SampleRate)

	tempo, confidence := estimateTempo(env, float64(w.SampleRate), cfg.MinTempo, cfg.MaxTempo)
	degraded := false
	if tempo <= 0 {
		tempo, confidence, degraded = fallbackTempo, 0.5, true
	}

	barDur := float64(cfg.BeatsPerBar) * 60.0 / tempo
	if duration < barDur {
		// Track shorter than one bar: a single bar spans the whole track.
		a := fixedGrid(tempo, 0, duration, cfg, 0)
		a.Beats.BeatTimes = []float64{0}
		a.Bars.BarTimes = []float64{0}
		a.Beats.Degraded = true
		return a
	}

	a := fixedGrid(tempo, start, duration, cfg, confidence)
	a.Beats.Degraded = degraded || confidence < 0.4
	return a
}

// fixedGrid synthesizes regular beats beat[i] = start + i*60/tempo up to the
// track duration and derives bars as every BeatsPerBar-th beat. bar[0] is the
// start offset by construction and is never re-anchored to zero.
func fixedGrid(tempo, start, duration float64, cfg Config, confidence float64) Analysis {
	interval := 60.0 / tempo

	n := int((duration-start)/interval) + 1
	if n < 1 {
		n = 1
	}
	beats := make([]float64, n)
	for i := range beats {
		beats[i] = start + float64(i)*interval
	}

	var bars []float64
	for i := 0; i < len(beats); i += cfg.BeatsPerBar {
		bars = append(bars, beats[i])
	}

	return Analysis{
		Beats: types.BeatGrid{
			Tempo:      tempo,
			BeatTimes:  beats,
			Confidence: confidence,
		},
		Bars: types.BarGrid{
			BarTimes:      bars,
			BeatsPerBar:   cfg.BeatsPerBar,
			TimeSignature: "4/4",
		},
		StartOffset: start,
	}
}

// rmsEnvelope computes short-window root-mean-square energy with the given
// frame and hop sizes.
func rmsEnvelope(samples []float64, frame, hop int) []float64 {
	if len(samples) < frame {
		if len(samples) == 0 {
			return nil
		}
		frame = len(samples)
	}
	n := (len(samples)-frame)/hop + 1
	env := make([]float64, 0, n)
	for i := 0; i+frame <= len(samples); i += hop {
		var sum float64
		for _, s := range samples[i : i+frame] {
			sum += s * s
		}
		env = append(env, math.Sqrt(sum/float64(frame)))
	}
	return env
}

// findMusicStart locates the first envelope frame crossing 10% of the peak
// energy, clamped to [minStartOffset, maxStartOffset]. No crossing means the
// track has content from the first frame, so the offset is 0.
func findMusicStart(env []float64, maxEnergy float64, sampleRate int) float64 {
	threshold := 0.1 * maxEnergy
	for i, e := range env {
		if e > threshold {
			t := float64(i*hopLength) / float64(sampleRate)
			t = math.Max(minStartOffset, t)
			t = math.Min(maxStartOffset, t)
			return t
		}
	}
	return 0
}

// estimateTempo autocorrelates the onset-strength envelope over the lag range
// corresponding to [minTempo, maxTempo] BPM and converts the best lag to a
// tempo. Confidence reflects how much the winning peak stands out; a result
// saturating at either bound is reported with low confidence.
func estimateTempo(env []float64, sampleRate, minTempo, maxTempo float64) (float64, float64) {
	// Onset strength: half-wave-rectified energy flux.
	if len(env) < 4 {
		return 0, 0
	}
	onset := make([]float64, len(env)-1)
	for i := 1; i < len(env); i++ {
		d := env[i] - env[i-1]
		if d > 0 {
			onset[i-1] = d
		}
	}

	framesPerSec := sampleRate / hopLength
	minLag := int(60.0 / maxTempo * framesPerSec) // fast tempo = short lag
	maxLag := int(60.0 / minTempo * framesPerSec)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if maxLag <= minLag {
		return 0, 0
	}

	var zero float64
	for _, v := range onset {
		zero += v * v
	}
	if zero == 0 {
		return 0, 0
	}

	// A log-tempo prior centered at 120 BPM breaks octave ambiguity: a
	// half-tempo lag often correlates as well as the true one, and without
	// a prior the estimator drifts to the slow octave.
	const priorCenter = 120.0

	bestLag, bestVal, sumVal := 0, 0.0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < len(onset); i++ {
			acc += onset[i] * onset[i+lag]
		}
		v := acc / zero
		sumVal += v

		lagTempo := 60.0 * framesPerSec / float64(lag)
		octaves := math.Log2(lagTempo / priorCenter)
		score := v * math.Exp(-0.5*octaves*octaves)
		if score > bestVal {
			bestVal, bestLag = score, lag
		}
	}
	if bestLag == 0 {
		return 0, 0
	}

	tempo := 60.0 * framesPerSec / float64(bestLag)

	mean := sumVal / float64(maxLag-minLag+1)
	confidence := 0.0
	if bestVal > 0 {
		confidence = math.Min(1, (bestVal-mean)/bestVal*2)
	}
	if confidence < 0 {
		confidence = 0
	}

	// Clamp into bounds; saturation is a sign the estimate is unreliable.
	if tempo < minTempo {
		tempo = minTempo
		confidence = math.Min(confidence, 0.3)
	}
	if tempo > maxTempo {
		tempo = maxTempo
		confidence = math.Min(confidence, 0.3)
	}

	return tempo, confidence
}
