package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnastasiosMedia/clipsense2/internal/domain/timeline"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// ConformOptions tune the master render.
type ConformOptions struct {
	// MusicOverride replaces the timeline's music track.
	MusicOverride string

	// NoAudio skips the music overlay entirely.
	NoAudio bool

	// AllowStale downgrades the fingerprint staleness check from a refusal
	// to a logged warning. Off by default: a silently drifted master would
	// break the reproducibility contract.
	AllowStale bool
}

// ConformResult carries the master output and timing.
type ConformResult struct {
	Output      string
	ConformTime time.Duration
}

// Conform re-renders the persisted edit at master quality. Every cut is
// re-derived from the original full-resolution sources with frame-accurate
// seeking, so the result matches the proxy's cut points within one frame.
// Source fingerprints are verified against the timeline before any work.
func (r *Renderer) Conform(ctx context.Context, t types.Timeline, outPath string, opts ConformOptions, progress Progress) (ConformResult, error) {
	report := func(stage Stage, msg string) {
		if progress != nil {
			progress(stage, msg)
		}
		r.logf("conform: %s", msg)
	}

	if !filepath.IsAbs(outPath) {
		return ConformResult{}, fmt.Errorf("%w: output path must be absolute: %s", types.ErrInput, outPath)
	}

	// Staleness guard first: the timeline is only trustworthy if the files
	// it fingerprinted are the files on disk now.
	if err := timeline.ValidateSources(t); err != nil {
		if !opts.AllowStale {
			return ConformResult{}, err
		}
		r.logf("conform: warning: %v (continuing, stale sources allowed)", err)
	}

	if err := acquireOutput(outPath); err != nil {
		return ConformResult{}, err
	}
	defer releaseOutput(outPath)

	start := time.Now()

	tempDir, err := r.mkTemp("conform_")
	if err != nil {
		return ConformResult{}, err
	}
	defer os.RemoveAll(tempDir)

	report(StageTrimming, fmt.Sprintf("cutting %d segments from original sources", len(t.Clips)))
	listPath := filepath.Join(tempDir, "conform_filelist.txt")
	if err := writeExactConcatList(listPath, t.Clips); err != nil {
		report(StageFailed, err.Error())
		return ConformResult{}, stageError(StageTrimming, err)
	}

	report(StageConcatenating, "conforming video")
	video := filepath.Join(tempDir, "conform_video.mp4")
	if err := r.media.ConcatExact(ctx, listPath, video, t.FPS); err != nil {
		report(StageFailed, err.Error())
		return ConformResult{}, stageError(StageConcatenating, err)
	}

	final := video
	if !opts.NoAudio {
		music := t.Music
		if opts.MusicOverride != "" {
			music = opts.MusicOverride
		}
		report(StageOverlaying, "overlaying music")
		overlaid := filepath.Join(tempDir, "conform_final.mp4")
		if err := r.media.OverlayMusic(ctx, video, music, overlaid, t.StartOffset()); err != nil {
			report(StageFailed, err.Error())
			return ConformResult{}, stageError(StageOverlaying, err)
		}
		final = overlaid
	}

	if err := moveIntoPlace(final, outPath); err != nil {
		report(StageFailed, err.Error())
		return ConformResult{}, stageError(StageOverlaying, err)
	}

	report(StageDone, "master render complete")
	return ConformResult{Output: outPath, ConformTime: time.Since(start)}, nil
}

// writeExactConcatList writes a concat-demuxer list with inpoint/duration
// entries so the demuxer performs frame-accurate cuts from the originals.
func writeExactConcatList(path string, clips []types.ClipSegment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, c := range clips {
		if _, err := fmt.Fprintf(f, "file '%s'\ninpoint %.3f\nduration %.3f\n",
			c.Src, float64(c.In), c.Duration()); err != nil {
			return err
		}
	}
	return f.Close()
}
