package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rdpaes/narracast/internal/config"
	"github.com/rdpaes/narracast/internal/ffmpeg"
	"github.com/rdpaes/narracast/internal/graph"
	"github.com/rdpaes/narracast/internal/timeline"
	"github.com/rdpaes/narracast/pkg/util"
)

// Request describes one render: the narration that governs output length,
// the ordered images, and the optional extras. Zero-valued knobs fall back
// to configuration defaults.
type Request struct {
	JobID      string // optional, a fresh id is minted when empty
	Narration  string
	Images     []string
	OutputPath string

	Overlay        string
	OverlayOpacity float64

	Music string

	Logo         string
	LogoPosition string
	LogoScale    float64
	LogoOpacity  float64

	Transition         string
	TransitionDuration time.Duration

	Preset string

	OnProgress func(ffmpeg.Progress)
}

// Manager schedules render jobs over a bounded worker pool. One external
// process runs per job; at most cfg.Concurrency run at once.
type Manager struct {
	logger zerolog.Logger
	cfg    *config.Config
	exec   *ffmpeg.Executor
	slots  chan struct{}

	mu     sync.Mutex
	active map[string]*Job
}

// NewManager creates a manager bound to the configured ffmpeg binaries.
func NewManager(logger zerolog.Logger, cfg *config.Config) (*Manager, error) {
	exec, err := ffmpeg.New(logger, cfg)
	if err != nil {
		return nil, err
	}
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		exec:   exec,
		slots:  make(chan struct{}, workers),
		active: make(map[string]*Job),
	}, nil
}

// Start validates the request, registers the job, and launches the render
// on a background worker. Starting a second render for a job id that is
// still active is rejected.
func (m *Manager) Start(ctx context.Context, req Request) (*Job, error) {
	if req.Narration == "" {
		return nil, fmt.Errorf("pipeline: narration path is required")
	}
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("pipeline: at least one image is required")
	}
	if req.OutputPath == "" {
		return nil, fmt.Errorf("pipeline: output path is required")
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}

	job := &Job{
		ID:        id,
		CreatedAt: time.Now(),
		runner:    m.exec.Runner(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.active[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("pipeline: job %s is already running", id)
	}
	m.active[id] = job
	m.mu.Unlock()

	m.logger.Info().
		Str("job", id).
		Int("images", len(req.Images)).
		Str("output", req.OutputPath).
		Msg("render queued")

	go func() {
		defer close(job.done)
		defer func() {
			m.mu.Lock()
			delete(m.active, id)
			m.mu.Unlock()
		}()

		select {
		case m.slots <- struct{}{}:
		case <-ctx.Done():
			job.err = ctx.Err()
			return
		}
		defer func() { <-m.slots }()

		job.err = m.render(ctx, job, req)
	}()

	return job, nil
}

// Get returns the active job registered under id.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.active[id]
	return job, ok
}

// render runs the full pipeline for one job: probe, allocate, build the
// timeline and filter graph, assemble the command, and supervise ffmpeg.
// The output is written next to its final path and renamed into place only
// on success, so a failed or cancelled render never leaves a partial file
// under the requested name.
func (m *Manager) render(ctx context.Context, job *Job, req Request) (err error) {
	logger := m.logger.With().Str("job", job.ID).Logger()
	start := time.Now()

	tempDir, err := os.MkdirTemp(m.cfg.TempDir, "narracast-")
	if err != nil {
		return fmt.Errorf("pipeline: create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", tempDir).Msg("temp dir cleanup failed")
		}
	}()

	narrationDur, err := m.exec.ProbeDuration(ctx, req.Narration)
	if err != nil {
		return err
	}
	logger.Debug().Str("narration", util.FormatDuration(narrationDur)).Msg("narration probed")

	fps := m.cfg.Render.FPS
	frame := time.Second / time.Duration(fps)
	durations, err := timeline.Allocate(len(req.Images), m.cfg.SegmentDuration(), narrationDur, frame)
	if err != nil {
		return err
	}

	params := timeline.BuildParams{
		Narration: timeline.MediaAsset{Path: req.Narration, Kind: timeline.KindAudio, Duration: narrationDur},
		Durations: durations,

		OverlayOpacity: req.OverlayOpacity,

		MusicVolume:     m.cfg.Audio.MusicVolume,
		NarrationVolume: m.cfg.Audio.NarrationVolume,

		LogoPosition: req.LogoPosition,
		LogoScale:    req.LogoScale,
		LogoOpacity:  req.LogoOpacity,

		Transition:         req.Transition,
		TransitionDuration: req.TransitionDuration,

		Width:  m.cfg.Render.Width,
		Height: m.cfg.Render.Height,
		FPS:    fps,
	}
	for _, path := range req.Images {
		params.Images = append(params.Images, timeline.MediaAsset{Path: path, Kind: timeline.KindImage})
	}
	if req.Overlay != "" {
		overlay := timeline.MediaAsset{Path: req.Overlay, Kind: timeline.KindVideo}
		if dur, probeErr := m.exec.ProbeDuration(ctx, req.Overlay); probeErr == nil {
			overlay.Duration = dur
		}
		params.Overlay = &overlay
	}
	if req.Music != "" {
		params.Music = &timeline.MediaAsset{Path: req.Music, Kind: timeline.KindAudio}
	}
	if req.Logo != "" {
		params.Logo = &timeline.MediaAsset{Path: req.Logo, Kind: timeline.KindImage}
	}

	t, err := timeline.Build(params)
	if err != nil {
		return err
	}

	settings := m.presetSettings(req.Preset)

	g, err := graph.Build(t, settings)
	if err != nil {
		return err
	}

	if err := util.EnsureDir(filepath.Dir(req.OutputPath)); err != nil {
		return fmt.Errorf("pipeline: output dir: %w", err)
	}
	partial := req.OutputPath + ".partial" + filepath.Ext(req.OutputPath)
	defer os.Remove(partial)

	argv := m.exec.CliBuilder().MakeCommand(g, partial, settings)
	logger.Info().Int("inputs", len(g.Inputs)).Int("nodes", len(g.Nodes)).Msg("render started")

	if err := job.runner.Run(ctx, argv, g.Duration, req.OnProgress); err != nil {
		return err
	}

	if err := os.Rename(partial, req.OutputPath); err != nil {
		return fmt.Errorf("pipeline: finalize output: %w", err)
	}

	logger.Info().
		Dur("took", time.Since(start)).
		Str("output", req.OutputPath).
		Msg("render complete")
	return nil
}

// presetSettings maps a preset name to encoder settings, with configuration
// supplying the baseline quality knobs.
func (m *Manager) presetSettings(name string) timeline.RenderSettings {
	s := timeline.RenderSettings{
		Container:    "mp4",
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		CRF:          m.cfg.Render.CRF,
		Preset:       m.cfg.Render.Preset,
		AudioBitrate: m.cfg.Render.AudioBitrate,
		Ducking:      m.cfg.Audio.Ducking,
	}

	switch name {
	case "", "default":
	case "hq":
		s.CRF = 18
		s.Preset = "slow"
	case "fast":
		s.CRF = 28
		s.Preset = "veryfast"
	case "nvenc":
		s.VideoCodec = "h264_nvenc"
		s.HWAccel = "cuda"
	default:
		m.logger.Warn().Str("preset", name).Msg("unknown preset, using defaults")
	}

	return s
}
