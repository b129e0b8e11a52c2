package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Version is written into every artifact; bumped on format changes.
const Version = "1.0"

// BuildOptions carries the flags recorded on the artifact.
type BuildOptions struct {
	UsedBeatSnapping bool
	UsedSceneDetect  bool
	Shortfall        bool
}

// Build assembles the canonical Timeline artifact: absolute paths, bar
// markers, fingerprints for every distinct referenced file, and a content
// hash that is a pure function of the edit (clips, bar markers, tempo, music
// path, fps). The bar markers preserve the analyzer's start offset untouched.
func Build(
	segments []types.ClipSegment,
	bars types.BarGrid,
	tempo float64,
	music string,
	fps, targetSeconds int,
	opts BuildOptions,
) (types.Timeline, error) {
	musicAbs, err := filepath.Abs(music)
	if err != nil {
		return types.Timeline{}, fmt.Errorf("resolve music path: %w", err)
	}

	clips := make([]types.ClipSegment, len(segments))
	for i, s := range segments {
		src, err := filepath.Abs(s.Src)
		if err != nil {
			return types.Timeline{}, fmt.Errorf("resolve clip path: %w", err)
		}
		clips[i] = types.ClipSegment{Src: src, In: s.In, Out: s.Out}
	}

	markers := make([]types.Seconds, len(bars.BarTimes))
	for i, t := range bars.BarTimes {
		markers[i] = types.Seconds(t)
	}

	hashes := make(map[string]string, len(clips)+1)
	for _, c := range clips {
		if _, ok := hashes[c.Src]; ok {
			continue
		}
		fp, err := FileFingerprint(c.Src)
		if err != nil {
			return types.Timeline{}, fmt.Errorf("%w: fingerprint %s: %v", types.ErrInput, c.Src, err)
		}
		hashes[c.Src] = fp
	}
	fp, err := FileFingerprint(musicAbs)
	if err != nil {
		return types.Timeline{}, fmt.Errorf("%w: fingerprint %s: %v", types.ErrInput, musicAbs, err)
	}
	hashes[musicAbs] = fp

	t := types.Timeline{
		Clips:            clips,
		BarMarkers:       markers,
		Tempo:            tempo,
		TimeSignature:    bars.TimeSignature,
		FPS:              fps,
		TargetSeconds:    targetSeconds,
		Music:            musicAbs,
		SourceHashes:     hashes,
		UsedBeatSnapping: opts.UsedBeatSnapping,
		UsedSceneDetect:  opts.UsedSceneDetect,
		Shortfall:        opts.Shortfall,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
		Version:          Version,
	}

	hash, err := ComputeHash(t)
	if err != nil {
		return types.Timeline{}, err
	}
	t.TimelineHash = hash
	return t, nil
}

// hashPayload is the canonical hash input: the edit itself, nothing else.
// Timecodes serialize at fixed 3-decimal precision, so any change larger
// than a millisecond changes the hash, and creation timestamps, fingerprints
// and flags do not.
type hashPayload struct {
	Clips      []types.ClipSegment `json:"clips"`
	BarMarkers []types.Seconds     `json:"bar_markers"`
	Tempo      float64             `json:"tempo"`
	Music      string              `json:"music"`
	FPS        int                 `json:"fps"`
}

// ComputeHash returns the content hash of a timeline's edit.
func ComputeHash(t types.Timeline) (string, error) {
	b, err := json.Marshal(hashPayload{
		Clips:      t.Clips,
		BarMarkers: t.BarMarkers,
		Tempo:      t.Tempo,
		Music:      t.Music,
		FPS:        t.FPS,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize timeline: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Write persists the artifact as indented JSON.
func Write(t types.Timeline, path string) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}

// Read loads and validates a persisted artifact.
func Read(path string) (types.Timeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Timeline{}, fmt.Errorf("%w: read timeline: %v", types.ErrInput, err)
	}
	var t types.Timeline
	if err := json.Unmarshal(b, &t); err != nil {
		return types.Timeline{}, fmt.Errorf("%w: parse timeline: %v", types.ErrInput, err)
	}
	if err := validate(t); err != nil {
		return types.Timeline{}, err
	}
	return t, nil
}

func validate(t types.Timeline) error {
	if len(t.Clips) == 0 {
		return fmt.Errorf("%w: timeline has no clips", types.ErrInput)
	}
	if t.FPS <= 0 {
		return fmt.Errorf("%w: timeline fps must be positive", types.ErrInput)
	}
	if t.Music == "" {
		return fmt.Errorf("%w: timeline missing music path", types.ErrInput)
	}
	if t.TimelineHash == "" {
		return fmt.Errorf("%w: timeline missing hash", types.ErrInput)
	}
	for i, c := range t.Clips {
		if c.Src == "" {
			return fmt.Errorf("%w: clip %d missing src", types.ErrInput, i)
		}
		if !filepath.IsAbs(c.Src) {
			return fmt.Errorf("%w: clip %d src is not absolute: %s", types.ErrInput, i, c.Src)
		}
		if c.Out <= c.In {
			return fmt.Errorf("%w: clip %d has out <= in", types.ErrInput, i)
		}
	}
	return nil
}

// FileFingerprint returns a deterministic digest of a file's identity: its
// absolute path, modification time and size. Cheap enough to run on large
// media files and sufficient as a staleness signal.
func FileFingerprint(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	info := fmt.Sprintf("%s:%d:%d", path, st.ModTime().UnixNano(), st.Size())
	sum := sha256.Sum256([]byte(info))
	return hex.EncodeToString(sum[:]), nil
}

// ValidateSources checks that every fingerprinted file still exists and
// still matches its recorded fingerprint. This is the staleness guard the
// conform stage must pass before trusting a timeline.
func ValidateSources(t types.Timeline) error {
	for path, want := range t.SourceHashes {
		got, err := FileFingerprint(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", types.ErrStaleSources, path, err)
		}
		if got != want {
			return fmt.Errorf("%w: %s", types.ErrStaleSources, path)
		}
	}
	return nil
}

// FormatTimecode renders seconds as HH:MM:SS:FF at the given frame rate.
func FormatTimecode(seconds float64, fps int) string {
	totalFrames := int(seconds * float64(fps))
	hours := totalFrames / (fps * 3600)
	minutes := (totalFrames % (fps * 3600)) / (fps * 60)
	secs := (totalFrames % (fps * 60)) / fps
	frames := totalFrames % fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}
