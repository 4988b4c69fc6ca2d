package ffmpeg

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/rdpaes/narracast/internal/config"
)

// Executor resolves the ffmpeg and ffprobe binaries once and hands out
// command builders and runners bound to them.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	grace       time.Duration
}

// New creates an executor from config. Explicitly configured binary paths
// win; otherwise PATH lookup decides.
func New(logger zerolog.Logger, cfg *config.Config) (*Executor, error) {
	ffmpegPath := cfg.FFmpeg.BinaryPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}

	ffprobePath := cfg.FFmpeg.ProbePath
	if ffprobePath == "" {
		var err error
		ffprobePath, err = exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     cfg.FFmpeg.Threads,
		grace:       cfg.GracePeriod(),
	}, nil
}

// CliBuilder returns a command builder bound to this executor's binary.
func (e *Executor) CliBuilder() CliBuilder {
	return CliBuilder{FFmpegPath: e.ffmpegPath, Threads: e.threads}
}

// Runner returns a fresh process runner. Each render needs its own.
func (e *Executor) Runner() *Runner {
	return NewRunner(e.logger, e.grace)
}
