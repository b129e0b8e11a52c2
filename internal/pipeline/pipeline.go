package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/domain/allocate"
	"github.com/AnastasiosMedia/clipsense2/internal/domain/beat"
	"github.com/AnastasiosMedia/clipsense2/internal/domain/timeline"
	"github.com/AnastasiosMedia/clipsense2/internal/ports"
	"github.com/AnastasiosMedia/clipsense2/internal/ports/adapters/ffmpeg"
	"github.com/AnastasiosMedia/clipsense2/internal/render"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Options is the enumerated set of recognized request options. Anything a
// caller sends that has no field here is ignored by construction.
type Options struct {
	BeatsPerBar int // default 4

	// DedupeClips drops repeated clip paths before allocation. Off by
	// default; see allocate.Options.
	DedupeClips bool

	// LoopClips tiles the clip list to fill the target when footage runs
	// short, instead of capping with a shortfall. See allocate.Options.
	LoopClips bool

	// UseSceneDetect is recorded on the timeline for downstream tooling.
	// Scene detection itself is an upstream concern.
	UseSceneDetect bool
}

type Config struct {
	Clips         []string // absolute paths, in play order
	Music         string   // absolute path
	TargetSeconds int
	FPS           int    // default 25
	OutDir        string // timeline.json and the proxy land here
	TempDir       string // base for render temp trees; "" = system temp

	Options Options

	FFmpegPath  string
	FFprobePath string
	Encode      config.Encode

	AnalysisSampleRate int // default 22050

	Logf func(format string, args ...any)

	// Progress receives coarse pipeline progress (0..100) and a step
	// description. May be nil.
	Progress func(percent int, step string)
}

func (c Config) Validate() error {
	if len(c.Clips) == 0 {
		return fmt.Errorf("%w: no clips provided", types.ErrInput)
	}
	for _, clip := range c.Clips {
		if !filepath.IsAbs(clip) {
			return fmt.Errorf("%w: clip path is not absolute: %s", types.ErrInput, clip)
		}
		if _, err := os.Stat(clip); err != nil {
			return fmt.Errorf("%w: clip not found: %s", types.ErrInput, clip)
		}
	}
	if c.Music == "" {
		return fmt.Errorf("%w: music path is required", types.ErrInput)
	}
	if !filepath.IsAbs(c.Music) {
		return fmt.Errorf("%w: music path is not absolute: %s", types.ErrInput, c.Music)
	}
	if _, err := os.Stat(c.Music); err != nil {
		return fmt.Errorf("%w: music not found: %s", types.ErrInput, c.Music)
	}
	if c.TargetSeconds <= 0 {
		return fmt.Errorf("%w: target duration must be > 0", types.ErrInput)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: output directory is required", types.ErrInput)
	}
	return nil
}

// Result is the completed preview: the artifact, where it lives, and timing.
type Result struct {
	Timeline     types.Timeline
	TimelinePath string
	ProxyOutput  string

	Analysis beat.Analysis

	ProxyTime  time.Duration
	RenderTime time.Duration
	TotalTime  time.Duration
}

// Run executes analysis, allocation, timeline build and the assemble render
// as one unit. Analysis degradation is carried forward on the returned grids,
// never surfaced as an error.
func Run(ctx context.Context, cfg Config) (Result, error) {
	start := time.Now()

	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	progress := cfg.Progress
	if progress == nil {
		progress = func(int, string) {}
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = 25
	}
	sampleRate := cfg.AnalysisSampleRate
	if sampleRate <= 0 {
		sampleRate = 22050
	}

	media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.Encode)
	ffmpegVer, _, err := media.Verify(ctx)
	if err != nil {
		return Result{}, err
	}
	logf("using %s", ffmpegVer)

	outDir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return Result{}, fmt.Errorf("%w: resolve output dir: %v", types.ErrInput, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, err
	}

	// Analysis.
	progress(5, "analyzing music")
	logf("analyzing music: %s", filepath.Base(cfg.Music))
	wave, err := media.DecodeWaveform(ctx, cfg.Music, sampleRate)
	if err != nil {
		return Result{}, err
	}
	analysis := beat.Analyze(wave, beat.Config{BeatsPerBar: cfg.Options.BeatsPerBar}, 0)
	logf("tempo %.1f BPM, %d beats, %d bars, start offset %.2fs (confidence %.2f)",
		analysis.Beats.Tempo, len(analysis.Beats.BeatTimes), len(analysis.Bars.BarTimes),
		analysis.StartOffset, analysis.Beats.Confidence)
	if analysis.Beats.Degraded {
		logf("analysis degraded: proceeding with low-confidence grid")
	}

	// Allocation.
	progress(25, "allocating segments")
	clips, err := probeClips(ctx, media, cfg.Clips)
	if err != nil {
		return Result{}, err
	}
	alloc, err := allocate.Segments(analysis.Bars, clips, cfg.TargetSeconds,
		allocate.Options{
			DedupeClips: cfg.Options.DedupeClips,
			LoopClips:   cfg.Options.LoopClips,
		})
	if err != nil {
		return Result{}, err
	}
	logf("allocated %d segments totaling %.2fs", len(alloc.Segments), alloc.Total)
	if alloc.Shortfall {
		logf("clips shorter than target: output capped at %.2fs", alloc.Total)
	}

	// Timeline build.
	progress(35, "building timeline")
	tl, err := timeline.Build(alloc.Segments, analysis.Bars, analysis.Beats.Tempo,
		cfg.Music, fps, cfg.TargetSeconds, timeline.BuildOptions{
			UsedBeatSnapping: true,
			UsedSceneDetect:  cfg.Options.UseSceneDetect,
			Shortfall:        alloc.Shortfall,
		})
	if err != nil {
		return Result{}, err
	}
	timelinePath := filepath.Join(outDir, "timeline.json")
	if err := timeline.Write(tl, timelinePath); err != nil {
		return Result{}, err
	}
	logf("timeline written: %s (hash %.12s)", timelinePath, tl.TimelineHash)

	// Assemble.
	renderer := render.New(media, cfg.TempDir, logf)
	proxyPath := filepath.Join(outDir, "highlight_proxy.mp4")
	res, err := renderer.Assemble(ctx, tl, proxyPath, renderProgress(progress))
	if err != nil {
		return Result{}, err
	}

	progress(100, "completed")
	return Result{
		Timeline:     tl,
		TimelinePath: timelinePath,
		ProxyOutput:  res.Output,
		Analysis:     analysis,
		ProxyTime:    res.ProxyTime,
		RenderTime:   res.RenderTime,
		TotalTime:    time.Since(start),
	}, nil
}

func probeClips(ctx context.Context, media ports.MediaTool, paths []string) ([]allocate.Clip, error) {
	clips := make([]allocate.Clip, 0, len(paths))
	for _, p := range paths {
		dur, err := media.ProbeDuration(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%w: probe %s: %v", types.ErrInput, p, err)
		}
		clips = append(clips, allocate.Clip{Path: p, Duration: dur})
	}
	return clips, nil
}

// renderProgress maps render stages onto the 40..95 band of job progress.
func renderProgress(progress func(int, string)) render.Progress {
	steps := map[render.Stage]int{
		render.StageProxying:      40,
		render.StageTrimming:      65,
		render.StageConcatenating: 80,
		render.StageOverlaying:    90,
		render.StageDone:          95,
	}
	return func(stage render.Stage, msg string) {
		if p, ok := steps[stage]; ok {
			progress(p, msg)
		}
	}
}
