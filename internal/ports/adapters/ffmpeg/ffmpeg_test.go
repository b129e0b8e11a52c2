package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// fakeTool writes an executable shell script that prints the given
// -version banner, standing in for a real ffmpeg/ffprobe binary.
func fakeTool(t *testing.T, dir, name, banner string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script tool stubs are not portable to windows")
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho \"" + banner + "\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestVerify_ReportsVersions(t *testing.T) {
	dir := t.TempDir()
	ff := fakeTool(t, dir, "ffmpeg", "ffmpeg version 6.1.1 Copyright (c) 2000-2023")
	fp := fakeTool(t, dir, "ffprobe", "ffprobe version 6.1.1 Copyright (c) 2007-2023")

	a := New(ff, fp, config.DefaultEncode())
	ffVer, fpVer, err := a.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !strings.HasPrefix(ffVer, "ffmpeg version 6.1.1") {
		t.Fatalf("ffmpeg version = %q", ffVer)
	}
	if !strings.HasPrefix(fpVer, "ffprobe version 6.1.1") {
		t.Fatalf("ffprobe version = %q", fpVer)
	}
}

func TestVerify_MissingFFmpegIsInputError(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "ffprobe", config.DefaultEncode())
	_, _, err := a.Verify(context.Background())
	if err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("error = %v, want ErrInput", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg not available") {
		t.Fatalf("error = %v, want it to name the missing tool", err)
	}
}

func TestVerify_MissingFFprobeIsInputError(t *testing.T) {
	dir := t.TempDir()
	ff := fakeTool(t, dir, "ffmpeg", "ffmpeg version 6.1.1")

	a := New(ff, filepath.Join(dir, "no-such-ffprobe"), config.DefaultEncode())
	_, _, err := a.Verify(context.Background())
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("error = %v, want ErrInput", err)
	}
	if !strings.Contains(err.Error(), "ffprobe not available") {
		t.Fatalf("error = %v, want it to name the missing tool", err)
	}
}
