package ports

import (
	"context"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// MediaTool is the external decode/encode collaborator. All implementations
// must be safe for concurrent use; every call is owned by a single render or
// job worker.
type MediaTool interface {
	// DecodeWaveform decodes the file's audio to a mono waveform at the
	// given sample rate. Decode failure is a hard error.
	DecodeWaveform(ctx context.Context, path string, sampleRate int) (types.Waveform, error)

	// ProbeDuration returns the container duration in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// CreateProxy writes a reduced-resolution, fast-encoded stand-in for
	// src, used only for preview rendering.
	CreateProxy(ctx context.Context, src, out string) error

	// TrimFast cuts [in, in+dur) from src using approximate keyframe-nearest
	// seeking, normalizing the segment to the given fps.
	TrimFast(ctx context.Context, src, out string, in, dur float64, fps int) error

	// Concat joins the segments listed in the concat-demuxer file listPath.
	Concat(ctx context.Context, listPath, out string) error

	// ConcatExact re-derives every cut listed in listPath (file/inpoint/
	// duration entries) from full-resolution sources with frame-accurate
	// seeking and a master-quality encode at the given fps.
	ConcatExact(ctx context.Context, listPath, out string, fps int) error

	// OverlayMusic replaces the video's audio with the loudness-normalized
	// music track, starting musicOffset seconds into the track.
	OverlayMusic(ctx context.Context, video, music, out string, musicOffset float64) error
}
