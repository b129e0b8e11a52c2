package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// AssembleResult carries the proxy output and timing metrics.
type AssembleResult struct {
	Output     string
	ProxyTime  time.Duration // time spent generating source proxies
	RenderTime time.Duration // trim + concat + overlay time
}

// Assemble renders the fast preview: one reduced-resolution proxy per unique
// source (built in parallel, cached across segments sharing a source),
// keyframe-nearest segment cuts normalized to the timeline fps, concatenation
// in timeline order, and the music overlay starting at the recorded offset.
// The output appears at outPath only on full success.
func (r *Renderer) Assemble(ctx context.Context, t types.Timeline, outPath string, progress Progress) (AssembleResult, error) {
	report := func(stage Stage, msg string) {
		if progress != nil {
			progress(stage, msg)
		}
		r.logf("assemble: %s", msg)
	}

	if !filepath.IsAbs(outPath) {
		return AssembleResult{}, fmt.Errorf("%w: output path must be absolute: %s", types.ErrInput, outPath)
	}
	if err := acquireOutput(outPath); err != nil {
		return AssembleResult{}, err
	}
	defer releaseOutput(outPath)

	tempDir, err := r.mkTemp("assemble_")
	if err != nil {
		return AssembleResult{}, err
	}
	defer os.RemoveAll(tempDir)

	// Proxies: one per unique source, bounded parallelism. The media tool
	// is the real bottleneck, so a small limit keeps it saturated without
	// thrashing disk.
	report(StageProxying, fmt.Sprintf("creating proxies for %d clips", len(t.Clips)))
	proxyStart := time.Now()

	proxies, err := r.buildProxies(ctx, t, tempDir)
	if err != nil {
		report(StageFailed, err.Error())
		return AssembleResult{}, stageError(StageProxying, err)
	}
	proxyTime := time.Since(proxyStart)

	renderStart := time.Now()
	report(StageTrimming, fmt.Sprintf("trimming %d segments", len(t.Clips)))

	segPaths := make([]string, len(t.Clips))
	for i, c := range t.Clips {
		seg := filepath.Join(tempDir, fmt.Sprintf("segment_%03d.mp4", i))
		if err := r.media.TrimFast(ctx, proxies[c.Src], seg, float64(c.In), c.Duration(), t.FPS); err != nil {
			report(StageFailed, err.Error())
			return AssembleResult{}, stageError(StageTrimming, err)
		}
		segPaths[i] = seg
	}

	report(StageConcatenating, "concatenating segments")
	listPath := filepath.Join(tempDir, "filelist.txt")
	if err := writeConcatList(listPath, segPaths); err != nil {
		report(StageFailed, err.Error())
		return AssembleResult{}, stageError(StageConcatenating, err)
	}
	concatenated := filepath.Join(tempDir, "concatenated.mp4")
	if err := r.media.Concat(ctx, listPath, concatenated); err != nil {
		report(StageFailed, err.Error())
		return AssembleResult{}, stageError(StageConcatenating, err)
	}

	report(StageOverlaying, "overlaying music")
	overlaid := filepath.Join(tempDir, "overlaid.mp4")
	if err := r.media.OverlayMusic(ctx, concatenated, t.Music, overlaid, t.StartOffset()); err != nil {
		report(StageFailed, err.Error())
		return AssembleResult{}, stageError(StageOverlaying, err)
	}

	if err := moveIntoPlace(overlaid, outPath); err != nil {
		report(StageFailed, err.Error())
		return AssembleResult{}, stageError(StageOverlaying, err)
	}

	report(StageDone, "proxy render complete")
	return AssembleResult{
		Output:     outPath,
		ProxyTime:  proxyTime,
		RenderTime: time.Since(renderStart),
	}, nil
}

func (r *Renderer) buildProxies(ctx context.Context, t types.Timeline, tempDir string) (map[string]string, error) {
	proxyDir := filepath.Join(tempDir, "proxies")
	if err := os.MkdirAll(proxyDir, 0o755); err != nil {
		return nil, err
	}

	var sources []string
	seen := make(map[string]bool)
	for _, c := range t.Clips {
		if !seen[c.Src] {
			seen[c.Src] = true
			sources = append(sources, c.Src)
		}
	}

	proxies := make(map[string]string, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.NumCPU(), 4))
	for i, src := range sources {
		src := src
		out := filepath.Join(proxyDir, fmt.Sprintf("proxy_%03d.mp4", i))
		proxies[src] = out
		g.Go(func() error {
			r.logf("assemble: proxy %s", filepath.Base(src))
			return r.media.CreateProxy(ctx, src, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proxies, nil
}

func (r *Renderer) mkTemp(prefix string) (string, error) {
	base := r.tempBase
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", err
		}
	}
	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}

// writeConcatList writes a plain concat-demuxer file list.
func writeConcatList(path string, segments []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, seg := range segments {
		if _, err := fmt.Fprintf(f, "file '%s'\n", seg); err != nil {
			return err
		}
	}
	return f.Close()
}

// moveIntoPlace renames the finished render onto its final path. The
// intermediate copy lives in the render's temp tree, so a failure at any
// earlier point never leaves a partial file at outPath.
func moveIntoPlace(src, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	// Rename only works within a filesystem; stage next to the target.
	staged := outPath + ".partial"
	if err := os.Rename(src, staged); err != nil {
		// Temp dir may be on another filesystem; fall back to copy.
		if err := copyFile(src, staged); err != nil {
			return err
		}
	}
	return os.Rename(staged, outPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
