package render

import (
	"fmt"
	"sync"

	"github.com/AnastasiosMedia/clipsense2/internal/ports"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Stage is a render's position in its state machine. Failed is reachable
// from any stage.
type Stage string

const (
	StagePending       Stage = "pending"
	StageProxying      Stage = "proxying_sources" // assemble only
	StageTrimming      Stage = "trimming"
	StageConcatenating Stage = "concatenating"
	StageOverlaying    Stage = "overlaying"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// Progress receives stage transitions and step descriptions. May be nil.
type Progress func(stage Stage, message string)

// Renderer drives both render stages from a Timeline.
type Renderer struct {
	media    ports.MediaTool
	tempBase string // base dir for per-render temp trees; "" = system temp
	logf     func(format string, args ...any)
}

// New returns a Renderer. logf may be nil.
func New(media ports.MediaTool, tempBase string, logf func(string, ...any)) *Renderer {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Renderer{media: media, tempBase: tempBase, logf: logf}
}

// outputGuard rejects concurrent renders targeting the same output path.
// Serializing them silently would hide a caller bug behind nondeterministic
// results, so the second writer gets a busy error instead.
var outputGuard = struct {
	mu   sync.Mutex
	busy map[string]bool
}{busy: make(map[string]bool)}

func acquireOutput(path string) error {
	outputGuard.mu.Lock()
	defer outputGuard.mu.Unlock()
	if outputGuard.busy[path] {
		return fmt.Errorf("%w: %s", types.ErrBusyOutput, path)
	}
	outputGuard.busy[path] = true
	return nil
}

func releaseOutput(path string) {
	outputGuard.mu.Lock()
	defer outputGuard.mu.Unlock()
	delete(outputGuard.busy, path)
}

// stageError tags a failure with the stage it happened in so job status can
// report the failing stage by name.
func stageError(stage Stage, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
