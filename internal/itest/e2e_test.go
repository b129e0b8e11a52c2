//go:build integration

package itest

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/AnastasiosMedia/clipsense2/internal/domain/timeline"
	"github.com/AnastasiosMedia/clipsense2/internal/pipeline"
	"github.com/AnastasiosMedia/clipsense2/internal/ports/adapters/ffmpeg"
	"github.com/AnastasiosMedia/clipsense2/internal/render"
)

// makeClip writes a solid-color test clip via lavfi.
func makeClip(t *testing.T, path, color string, seconds int) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c="+color+":s=640x360:d="+strconv.Itoa(seconds)+":r=25",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg clip fixture: %v\n%s", err, string(b))
	}
}

// makeMusic writes a sine track amplitude-modulated at 2 Hz, i.e. a clearly
// periodic envelope the analyzer can lock onto (120 BPM).
func makeMusic(t *testing.T, path string, seconds int) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "sine=frequency=440:duration="+strconv.Itoa(seconds),
		"-af", "tremolo=f=2:d=0.9",
		path,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg music fixture: %v\n%s", err, string(b))
	}
}

func TestE2E_AutocutThenConform(t *testing.T) {
	tmp := t.TempDir()
	clipA := filepath.Join(tmp, "a.mp4")
	clipB := filepath.Join(tmp, "b.mp4")
	music := filepath.Join(tmp, "music.wav")
	makeClip(t, clipA, "red", 8)
	makeClip(t, clipB, "blue", 6)
	makeMusic(t, music, 20)

	outDir := filepath.Join(tmp, "out")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		Clips:         []string{clipA, clipB},
		Music:         music,
		TargetSeconds: 10,
		FPS:           25,
		OutDir:        outDir,
		TempDir:       filepath.Join(tmp, "work"),
		Logf:          t.Logf,
	}

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	// Artifact and proxy land in OutDir.
	tl, err := timeline.Read(res.TimelinePath)
	if err != nil {
		t.Fatalf("read timeline: %v", err)
	}
	if tl.TimelineHash != res.Timeline.TimelineHash {
		t.Fatalf("persisted hash differs from returned hash")
	}
	if _, err := os.Stat(res.ProxyOutput); err != nil {
		t.Fatalf("missing proxy: %v", err)
	}

	// Allocation never overshoots the target and the proxy's real duration
	// tracks the timeline's. Container rounding gets a generous margin.
	total := tl.TotalDuration()
	if total > 10.001 {
		t.Fatalf("timeline duration %.3f overshoots target", total)
	}
	media := ffmpeg.New("ffmpeg", "ffprobe", cfg.Encode)
	proxyDur, err := media.ProbeDuration(ctx, res.ProxyOutput)
	if err != nil {
		t.Fatalf("probe proxy: %v", err)
	}
	if math.Abs(proxyDur-total) > 1.0 {
		t.Fatalf("proxy duration %.2f, timeline %.2f", proxyDur, total)
	}

	// Conform from originals must reproduce the same cut within a frame.
	master := filepath.Join(tmp, "master.mp4")
	renderer := render.New(media, cfg.TempDir, t.Logf)
	if _, err := renderer.Conform(ctx, tl, master, render.ConformOptions{}, nil); err != nil {
		t.Fatalf("conform failed: %v", err)
	}
	masterDur, err := media.ProbeDuration(ctx, master)
	if err != nil {
		t.Fatalf("probe master: %v", err)
	}
	if math.Abs(masterDur-total) > 1.0 {
		t.Fatalf("master duration %.2f, timeline %.2f", masterDur, total)
	}
}

func TestE2E_ConformRefusesModifiedSources(t *testing.T) {
	tmp := t.TempDir()
	clip := filepath.Join(tmp, "a.mp4")
	music := filepath.Join(tmp, "music.wav")
	makeClip(t, clip, "green", 8)
	makeMusic(t, music, 15)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		Clips:         []string{clip},
		Music:         music,
		TargetSeconds: 5,
		OutDir:        filepath.Join(tmp, "out"),
		Logf:          t.Logf,
	}
	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	// Re-encode the clip in place: same path, different fingerprint.
	makeClip(t, clip, "yellow", 8)

	media := ffmpeg.New("ffmpeg", "ffprobe", cfg.Encode)
	renderer := render.New(media, cfg.TempDir, t.Logf)
	master := filepath.Join(tmp, "master.mp4")
	if _, err := renderer.Conform(ctx, res.Timeline, master, render.ConformOptions{}, nil); err == nil {
		t.Fatalf("conform accepted modified sources")
	}
	if _, err := renderer.Conform(ctx, res.Timeline, master, render.ConformOptions{AllowStale: true}, nil); err != nil {
		t.Fatalf("conform with allow-stale failed: %v", err)
	}
}
