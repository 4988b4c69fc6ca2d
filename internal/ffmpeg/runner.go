package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobState is the lifecycle state of one supervised process run.
type JobState int32

const (
	StatePending JobState = iota
	StateRunning
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Progress is one snapshot of render advancement. Snapshots are immutable;
// a new one supersedes the previous. Elapsed values never decrease across
// the snapshots delivered for one run.
type Progress struct {
	Elapsed time.Duration
	Speed   float64
	Bitrate string
	Percent float64
}

// ProcessError means ffmpeg exited non-zero. Output carries the tail of its
// diagnostic stream for the error report.
type ProcessError struct {
	ExitCode int
	Output   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
}

var (
	// ErrCancelled is returned by Run after Cancel terminated the process.
	ErrCancelled = errors.New("render cancelled")

	// ErrPauseUnsupported is returned by Pause/Resume on platforms without a
	// process suspend primitive.
	ErrPauseUnsupported = errors.New("pause is not supported on this platform")

	errNotRunning = errors.New("process is not running")
)

// Runner supervises a single ffmpeg invocation: it spawns the process,
// parses the -progress stream from stdout into Progress snapshots, captures
// stderr for failure reports, and exposes pause/resume/cancel. A Runner is
// single-use; create a new one per render.
type Runner struct {
	logger zerolog.Logger
	grace  time.Duration

	mu        sync.Mutex
	state     JobState
	cmd       *exec.Cmd
	cancelled bool
	procDone  chan struct{}
}

// NewRunner returns a runner in the pending state. grace bounds how long
// Cancel waits after the termination request before force-killing.
func NewRunner(logger zerolog.Logger, grace time.Duration) *Runner {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Runner{
		logger:   logger.With().Str("component", "runner").Logger(),
		grace:    grace,
		state:    StatePending,
		procDone: make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (r *Runner) State() JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run executes argv (binary at index 0) and blocks until the process
// reaches a terminal state. total is the expected output duration used to
// derive Percent; zero leaves Percent at 0. onProgress, when non-nil, is
// invoked from the reader goroutine with non-decreasing Elapsed values.
//
// Cancelling ctx behaves like Cancel: graceful termination, then a kill
// after the grace period, and an ErrCancelled result.
func (r *Runner) Run(ctx context.Context, argv []string, total time.Duration, onProgress func(Progress)) error {
	if len(argv) == 0 {
		return fmt.Errorf("runner: empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("runner: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("runner: stderr pipe: %w", err)
	}

	r.mu.Lock()
	if r.state != StatePending {
		r.mu.Unlock()
		return fmt.Errorf("runner: already used (state %s)", r.state)
	}
	if r.cancelled {
		r.state = StateCancelled
		r.mu.Unlock()
		return ErrCancelled
	}
	if err := cmd.Start(); err != nil {
		r.state = StateFailed
		r.mu.Unlock()
		return fmt.Errorf("runner: start ffmpeg: %w", err)
	}
	r.cmd = cmd
	r.state = StateRunning
	r.mu.Unlock()

	r.logger.Debug().Str("bin", argv[0]).Int("args", len(argv)-1).Msg("process started")

	tail := newTailBuffer(64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.readProgress(stdout, total, onProgress)
	}()
	go func() {
		defer wg.Done()
		tail.consume(stderr)
	}()

	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-r.procDone:
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	close(r.procDone)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A cancellation request wins over whatever exit code the process died
	// with.
	if r.cancelled {
		r.state = StateCancelled
		r.logger.Info().Msg("process cancelled")
		return ErrCancelled
	}

	if waitErr != nil {
		r.state = StateFailed
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		perr := &ProcessError{ExitCode: code, Output: tail.String()}
		r.logger.Error().Int("exit_code", code).Msg("process failed")
		return perr
	}

	r.state = StateCompleted
	r.logger.Debug().Msg("process completed")
	return nil
}

// Pause suspends the running process. Returns ErrPauseUnsupported where the
// platform has no suspend primitive.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning || r.cmd == nil || r.cmd.Process == nil {
		return errNotRunning
	}
	if err := suspendProcess(r.cmd.Process); err != nil {
		return err
	}
	r.state = StatePaused
	r.logger.Info().Msg("process paused")
	return nil
}

// Resume continues a paused process.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused || r.cmd == nil || r.cmd.Process == nil {
		return errNotRunning
	}
	if err := resumeProcess(r.cmd.Process); err != nil {
		return err
	}
	r.state = StateRunning
	r.logger.Info().Msg("process resumed")
	return nil
}

// Cancel requests termination. The process gets a graceful termination
// signal first; if it has not exited within the grace period it is killed.
// Safe to call at any time, including before Run and more than once.
func (r *Runner) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	cmd := r.cmd
	state := r.state
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil || state == StateCompleted || state == StateFailed {
		return
	}

	// A paused process cannot handle the termination signal until resumed.
	if state == StatePaused {
		_ = resumeProcess(cmd.Process)
	}

	r.logger.Info().Dur("grace", r.grace).Msg("terminating process")
	if err := terminateProcess(cmd.Process); err != nil {
		_ = cmd.Process.Kill()
		return
	}

	go func() {
		select {
		case <-r.procDone:
		case <-time.After(r.grace):
			r.logger.Warn().Msg("grace period elapsed, killing process")
			_ = cmd.Process.Kill()
		}
	}()
}

// readProgress parses the key=value records ffmpeg writes with -progress.
// Each record is a run of key=value lines closed by a progress= terminator.
// Elapsed is clamped monotonically non-decreasing; ffmpeg occasionally
// reports a lower out_time right before the end record.
func (r *Runner) readProgress(src io.Reader, total time.Duration, onProgress func(Progress)) {
	scanner := bufio.NewScanner(src)
	var cur Progress
	var last time.Duration
	haveElapsed := false

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				cur.Elapsed = time.Duration(us) * time.Microsecond
				haveElapsed = true
			}
		case "out_time_ms":
			// Despite the name ffmpeg reports microseconds here. Only used
			// when out_time_us was absent from the record.
			if !haveElapsed {
				if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
					cur.Elapsed = time.Duration(us) * time.Microsecond
					haveElapsed = true
				}
			}
		case "speed":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				cur.Speed = f
			}
		case "bitrate":
			cur.Bitrate = value
		case "progress":
			if cur.Elapsed < last {
				cur.Elapsed = last
			}
			last = cur.Elapsed
			if total > 0 {
				cur.Percent = float64(cur.Elapsed) / float64(total) * 100
				if cur.Percent > 100 {
					cur.Percent = 100
				}
			}
			if value == "end" {
				cur.Percent = 100
			}
			if onProgress != nil {
				onProgress(cur)
			}
			cur = Progress{Elapsed: last, Speed: cur.Speed, Bitrate: cur.Bitrate}
			haveElapsed = false
		}
	}
}

// tailBuffer keeps the last n lines of a stream for failure reports.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.mu.Lock()
		t.lines = append(t.lines, scanner.Text())
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
		t.mu.Unlock()
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
