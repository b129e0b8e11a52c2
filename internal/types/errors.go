package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks missing/unreadable files, empty clip lists and
	// malformed timelines. Aborts the current stage.
	ErrInput = errors.New("invalid input")

	// ErrStaleSources marks a conform fingerprint mismatch: the files a
	// timeline was built from have changed since the assemble stage.
	ErrStaleSources = errors.New("timeline sources have changed")

	// ErrBusyOutput marks a second concurrent render targeting an output
	// path that is already being written.
	ErrBusyOutput = errors.New("output path is busy")

	// ErrUnknownJob is returned for job ids the registry has never seen.
	ErrUnknownJob = errors.New("unknown job id")

	// ErrNotCompleted is returned when a job result is requested before
	// the job reaches the completed state.
	ErrNotCompleted = errors.New("job is not completed")
)

// EncodingError reports a failed external media tool invocation. The tool's
// combined output is preserved so callers can surface the real cause.
type EncodingError struct {
	Op     string // e.g. "ffmpeg concat"
	Output string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v\n%s", e.Op, e.Err, e.Output)
}

func (e *EncodingError) Unwrap() error { return e.Err }
