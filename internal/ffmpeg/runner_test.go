package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func shellPath(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found in PATH")
	}
	return path
}

func newTestRunner(grace time.Duration) *Runner {
	return NewRunner(zerolog.Nop(), grace)
}

func TestReadProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=30",
		"out_time_us=1000000",
		"bitrate=812.4kbits/s",
		"speed=1.25x",
		"progress=continue",
		"out_time_ms=2500000",
		"speed=1.10x",
		"progress=continue",
		"out_time_us=2000000",
		"progress=end",
		"",
	}, "\n")

	var snapshots []Progress
	r := newTestRunner(time.Second)
	r.readProgress(strings.NewReader(input), 5*time.Second, func(p Progress) {
		snapshots = append(snapshots, p)
	})

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}

	if snapshots[0].Elapsed != time.Second {
		t.Errorf("first elapsed: got %v, want 1s", snapshots[0].Elapsed)
	}
	if snapshots[0].Speed != 1.25 {
		t.Errorf("first speed: got %v, want 1.25", snapshots[0].Speed)
	}
	if snapshots[0].Bitrate != "812.4kbits/s" {
		t.Errorf("first bitrate: got %q", snapshots[0].Bitrate)
	}
	if snapshots[0].Percent != 20 {
		t.Errorf("first percent: got %v, want 20", snapshots[0].Percent)
	}

	// out_time_ms carries microseconds despite its name.
	if snapshots[1].Elapsed != 2500*time.Millisecond {
		t.Errorf("second elapsed: got %v, want 2.5s", snapshots[1].Elapsed)
	}

	// The final record reports a lower out_time; elapsed must not go back.
	if snapshots[2].Elapsed != 2500*time.Millisecond {
		t.Errorf("final elapsed: got %v, want clamped 2.5s", snapshots[2].Elapsed)
	}
	if snapshots[2].Percent != 100 {
		t.Errorf("final percent: got %v, want 100", snapshots[2].Percent)
	}

	for i := 1; i < len(snapshots); i++ {
		if snapshots[i].Elapsed < snapshots[i-1].Elapsed {
			t.Errorf("elapsed went backwards at %d: %v -> %v", i, snapshots[i-1].Elapsed, snapshots[i].Elapsed)
		}
	}
}

func TestReadProgressPrefersOutTimeUs(t *testing.T) {
	input := "out_time_ms=9000000\nout_time_us=1000000\nprogress=end\n"

	var got Progress
	r := newTestRunner(time.Second)
	r.readProgress(strings.NewReader(input), 0, func(p Progress) { got = p })

	if got.Elapsed != time.Second {
		t.Errorf("elapsed: got %v, want 1s from out_time_us", got.Elapsed)
	}
}

func TestRunCompleted(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(time.Second)

	if r.State() != StatePending {
		t.Fatalf("initial state: got %v", r.State())
	}

	err := r.Run(context.Background(), []string{sh, "-c", "exit 0"}, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.State() != StateCompleted {
		t.Errorf("state: got %v, want completed", r.State())
	}
}

func TestRunFailedCapturesStderr(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(time.Second)

	err := r.Run(context.Background(), []string{sh, "-c", "echo boom >&2; exit 3"}, 0, nil)

	var perr *ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if perr.ExitCode != 3 {
		t.Errorf("exit code: got %d, want 3", perr.ExitCode)
	}
	if !strings.Contains(perr.Output, "boom") {
		t.Errorf("captured output missing stderr, got %q", perr.Output)
	}
	if r.State() != StateFailed {
		t.Errorf("state: got %v, want failed", r.State())
	}
}

func TestRunCancel(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(2 * time.Second)

	errCh := make(chan error, 1)
	start := time.Now()
	go func() {
		errCh <- r.Run(context.Background(), []string{sh, "-c", "sleep 30"}, 0, nil)
	}()

	time.Sleep(200 * time.Millisecond)
	r.Cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	if r.State() != StateCancelled {
		t.Errorf("state: got %v, want cancelled", r.State())
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Errorf("cancellation took %v, expected well under grace+margin", took)
	}
}

func TestRunContextCancellation(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, []string{sh, "-c", "sleep 30"}, 0, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if r.State() != StateCancelled {
		t.Errorf("state: got %v, want cancelled", r.State())
	}
}

func TestRunnerSingleUse(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(time.Second)

	if err := r.Run(context.Background(), []string{sh, "-c", "exit 0"}, 0, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := r.Run(context.Background(), []string{sh, "-c", "exit 0"}, 0, nil); err == nil {
		t.Error("second Run on the same runner must fail")
	}
}

func TestPauseResume(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no suspend primitive on windows")
	}
	sh := shellPath(t)
	r := newTestRunner(time.Second)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background(), []string{sh, "-c", "sleep 30"}, 0, nil)
	}()
	time.Sleep(200 * time.Millisecond)

	if err := r.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if r.State() != StatePaused {
		t.Errorf("state: got %v, want paused", r.State())
	}

	if err := r.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if r.State() != StateRunning {
		t.Errorf("state: got %v, want running", r.State())
	}

	r.Cancel()
	<-errCh
}

func TestPauseBeforeStart(t *testing.T) {
	r := newTestRunner(time.Second)
	if err := r.Pause(); err == nil {
		t.Error("Pause before Run must fail")
	}
	if err := r.Resume(); err == nil {
		t.Error("Resume before Run must fail")
	}
}

func TestCancelBeforeStart(t *testing.T) {
	sh := shellPath(t)
	r := newTestRunner(time.Second)
	r.Cancel()

	err := r.Run(context.Background(), []string{sh, "-c", "exit 0"}, 0, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if r.State() != StateCancelled {
		t.Errorf("state: got %v, want cancelled", r.State())
	}
}

func TestJobStateString(t *testing.T) {
	cases := map[JobState]string{
		StatePending:   "pending",
		StateRunning:   "running",
		StatePaused:    "paused",
		StateCompleted: "completed",
		StateFailed:    "failed",
		StateCancelled: "cancelled",
	}
	for state, want := range cases {
		if state.String() != want {
			t.Errorf("%d.String(): got %q, want %q", state, state.String(), want)
		}
	}
}
