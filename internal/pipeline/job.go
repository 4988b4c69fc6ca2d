package pipeline

import (
	"time"

	"github.com/rdpaes/narracast/internal/ffmpeg"
)

// Job tracks one in-flight render: its id, lifecycle state, and the runner
// supervising the external process. All state transitions happen inside the
// manager; callers observe and control through the methods here.
type Job struct {
	ID        string
	CreatedAt time.Time

	runner *ffmpeg.Runner
	done   chan struct{}
	err    error
}

// State reports the job's current lifecycle state.
func (j *Job) State() ffmpeg.JobState {
	return j.runner.State()
}

// Wait blocks until the job reaches a terminal state and returns its
// result: nil, ErrCancelled, a ProcessError, or a pipeline-stage error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Done exposes the completion channel for select loops.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel requests termination of the job's external process. Safe before
// the process has spawned; the job then finishes as cancelled without ever
// starting ffmpeg.
func (j *Job) Cancel() {
	j.runner.Cancel()
}

// Pause suspends the job's process where the platform supports it.
func (j *Job) Pause() error {
	return j.runner.Pause()
}

// Resume continues a paused job.
func (j *Job) Resume() error {
	return j.runner.Resume()
}
