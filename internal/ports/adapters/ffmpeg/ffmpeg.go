package ffmpeg

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	enc     config.Encode
}

func New(ffmpegPath, ffprobePath string, enc config.Encode) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if enc == (config.Encode{}) {
		enc = config.DefaultEncode()
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, enc: enc}
}

// Verify confirms both binaries are present and runnable before any work
// starts, returning the first line of each tool's -version output. A binary
// that cannot be executed is an input error, not an encoding failure.
func (a *Adapter) Verify(ctx context.Context) (ffmpegVersion, ffprobeVersion string, err error) {
	ffmpegVersion, err = versionLine(ctx, a.ffmpeg)
	if err != nil {
		return "", "", fmt.Errorf("%w: ffmpeg not available at %q: %v", types.ErrInput, a.ffmpeg, err)
	}
	ffprobeVersion, err = versionLine(ctx, a.ffprobe)
	if err != nil {
		return "", "", fmt.Errorf("%w: ffprobe not available at %q: %v", types.ErrInput, a.ffprobe, err)
	}
	return ffmpegVersion, ffprobeVersion, nil
}

func versionLine(ctx context.Context, bin string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// DecodeWaveform streams the file's audio through ffmpeg as raw mono s16le
// PCM and converts it to float64 amplitudes in [-1, 1].
func (a *Adapter) DecodeWaveform(ctx context.Context, path string, sampleRate int) (types.Waveform, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return types.Waveform{}, fmt.Errorf("%w: ffmpeg decode %s: %v\n%s",
			types.ErrInput, path, err, stderr.String())
	}

	// Drop a trailing odd byte so int16 alignment holds.
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]float64, len(out)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		samples[i] = float64(s) / 32768.0
	}

	return types.Waveform{Samples: samples, SampleRate: sampleRate}, nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, &types.EncodingError{Op: "ffprobe duration", Output: string(b), Err: err}
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func (a *Adapter) CreateProxy(ctx context.Context, src, out string) error {
	return a.run(ctx, "ffmpeg proxy",
		"-y",
		"-i", src,
		"-vf", a.enc.ProxyScale,
		"-c:v", "libx264",
		"-preset", a.enc.ProxyPreset,
		"-crf", a.enc.ProxyCRF,
		"-c:a", "aac",
		"-b:a", a.enc.AudioBitrate,
		"-movflags", "+faststart",
		out,
	)
}

func (a *Adapter) TrimFast(ctx context.Context, src, out string, in, dur float64, fps int) error {
	// -ss before -i seeks to the nearest keyframe: fast and good enough
	// for proxies. Every segment is normalized to one fps so concat has
	// uniform streams.
	return a.run(ctx, "ffmpeg trim",
		"-y",
		"-ss", fmtSeconds(in),
		"-i", src,
		"-t", fmtSeconds(dur),
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		out,
	)
}

func (a *Adapter) Concat(ctx context.Context, listPath, out string) error {
	return a.run(ctx, "ffmpeg concat",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		out,
	)
}

func (a *Adapter) ConcatExact(ctx context.Context, listPath, out string, fps int) error {
	// The concat demuxer honors inpoint/duration with frame accuracy when
	// re-encoding, which is exactly what a master conform needs.
	return a.run(ctx, "ffmpeg conform",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", a.enc.MasterPreset,
		"-crf", a.enc.MasterCRF,
		"-r", strconv.Itoa(fps),
		"-pix_fmt", "yuv420p",
		out,
	)
}

func (a *Adapter) OverlayMusic(ctx context.Context, video, music, out string, musicOffset float64) error {
	// Channel layout is left to -ac 2 so mono and stereo tracks both work.
	filter := fmt.Sprintf(
		"[1:a]loudnorm=I=%s:TP=%s:LRA=%s,aresample=48000[a]",
		fmtFloat(a.enc.LoudnessTarget), fmtFloat(a.enc.TruePeak), fmtFloat(a.enc.LoudnessRange),
	)
	args := []string{
		"-y",
		"-i", video,
	}
	if musicOffset > 0 {
		args = append(args, "-ss", fmtSeconds(musicOffset))
	}
	args = append(args,
		"-stream_loop", "-1",
		"-i", music,
		"-filter_complex", filter,
		"-map", "0:v:0",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", "192k",
		"-shortest",
		out,
	)
	return a.run(ctx, "ffmpeg overlay", args...)
}

func (a *Adapter) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return &types.EncodingError{Op: op, Output: truncate(string(b), 2000), Err: err}
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
