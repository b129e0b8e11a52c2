package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnastasiosMedia/clipsense2/internal/pipeline"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Manager owns the job registry: a plain map guarded by its own mutex for
// insert/lookup, with each entry carrying its own lock for state mutation.
// No state is shared across jobs beyond the registry itself.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job

	// runner executes the pipeline; swapped out in tests.
	runner func(ctx context.Context, cfg pipeline.Config) (pipeline.Result, error)

	logf func(format string, args ...any)
}

type job struct {
	mu sync.Mutex

	id          string
	state       types.JobState
	progress    int // 0..100
	currentStep string
	result      *Result
	err         error

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID          string
	State       types.JobState
	Progress    int
	CurrentStep string
	Err         error
}

// Result is available once a job completes.
type Result struct {
	Timeline     types.Timeline
	TimelinePath string
	ProxyOutput  string

	ProxyTime  time.Duration
	RenderTime time.Duration
	TotalTime  time.Duration
}

// New returns an empty Manager. logf may be nil.
func New(logf func(string, ...any)) *Manager {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{jobs: make(map[string]*job), runner: pipeline.Run, logf: logf}
}

// Start validates the request, registers a pending job and schedules the
// analysis → allocation → build → assemble unit on its own worker goroutine.
// It returns immediately with the job id.
//
// There is no cancellation once a job starts: callers that stop polling stop
// observing, not the work itself.
func (m *Manager) Start(cfg pipeline.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	j := &job{
		id:          uuid.New().String(),
		state:       types.JobPending,
		currentStep: "queued",
		createdAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[j.id] = j
	m.mu.Unlock()

	m.logf("job %s: created (%d clips, target %ds)", j.id, len(cfg.Clips), cfg.TargetSeconds)
	go m.run(j, cfg)

	return j.id, nil
}

func (m *Manager) run(j *job, cfg pipeline.Config) {
	j.mu.Lock()
	j.state = types.JobRunning
	j.startedAt = time.Now()
	j.currentStep = "starting"
	j.mu.Unlock()

	cfg.Progress = func(percent int, step string) {
		j.mu.Lock()
		j.progress = percent
		j.currentStep = step
		j.mu.Unlock()
	}

	res, err := m.runner(context.Background(), cfg)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.completedAt = time.Now()
	if err != nil {
		j.state = types.JobFailed
		j.err = err
		m.logf("job %s: failed: %v", j.id, err)
		return
	}
	j.state = types.JobCompleted
	j.progress = 100
	j.currentStep = "completed"
	j.result = &Result{
		Timeline:     res.Timeline,
		TimelinePath: res.TimelinePath,
		ProxyOutput:  res.ProxyOutput,
		ProxyTime:    res.ProxyTime,
		RenderTime:   res.RenderTime,
		TotalTime:    res.TotalTime,
	}
	m.logf("job %s: completed in %s", j.id, res.TotalTime.Round(time.Millisecond))
}

// Status returns a snapshot of the job. Unknown ids are an error, never a
// fabricated pending state.
func (m *Manager) Status(id string) (Status, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{
		ID:          j.id,
		State:       j.state,
		Progress:    j.progress,
		CurrentStep: j.currentStep,
		Err:         j.err,
	}, nil
}

// Result returns the completed job's output. Calling before completion is an
// error; it never blocks.
func (m *Manager) Result(id string) (Result, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Result{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != types.JobCompleted {
		return Result{}, types.ErrNotCompleted
	}
	return *j.result, nil
}

// CleanupOldJobs removes terminal jobs older than maxAge and reports how
// many were pruned.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int
	for id, j := range m.jobs {
		j.mu.Lock()
		terminal := j.state == types.JobCompleted || j.state == types.JobFailed
		old := j.createdAt.Before(cutoff)
		j.mu.Unlock()
		if terminal && old {
			delete(m.jobs, id)
			pruned++
		}
	}
	if pruned > 0 {
		m.logf("pruned %d old jobs", pruned)
	}
	return pruned
}

func (m *Manager) lookup(id string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, types.ErrUnknownJob
	}
	return j, nil
}
