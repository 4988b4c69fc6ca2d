package ffmpeg

import (
	"strconv"

	"github.com/rdpaes/narracast/internal/graph"
	"github.com/rdpaes/narracast/internal/timeline"
	"github.com/rdpaes/narracast/pkg/util"
)

// CliBuilder turns a compiled filter graph into a complete ffmpeg argument
// vector. Building is pure: the same graph and settings always produce the
// same argv, byte for byte, so command lines are reproducible and diffable.
type CliBuilder struct {
	FFmpegPath string
	Threads    int
}

// MakeCommand assembles the full argument vector including the binary path
// at index 0. Argument order is fixed: global flags, inputs in graph order,
// filter graph, stream maps, video codec, audio codec, container flags,
// output duration, output path.
func (c CliBuilder) MakeCommand(g *graph.FilterGraph, outputPath string, s timeline.RenderSettings) []string {
	args := []string{c.FFmpegPath, "-hide_banner", "-y"}

	if c.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.Threads))
	}
	if s.HWAccel != "" {
		args = append(args, "-hwaccel", s.HWAccel)
	}

	args = append(args, "-progress", "pipe:1", "-nostats")

	for _, in := range g.Inputs {
		if in.Loop {
			args = append(args, "-loop", "1")
		}
		if in.StreamLoop > 0 {
			args = append(args, "-stream_loop", strconv.Itoa(in.StreamLoop))
		}
		if in.Duration > 0 {
			args = append(args, "-t", util.FormatSeconds(in.Duration))
		}
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-filter_complex", g.String())
	args = append(args, "-map", "["+g.VideoOut+"]", "-map", "["+g.AudioOut+"]")

	codec := s.VideoCodec
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-c:v", codec)
	switch codec {
	case "h264_nvenc", "hevc_nvenc":
		args = append(args, "-preset", "p5", "-rc", "constqp", "-qp", strconv.Itoa(orCRF(s.CRF)))
	default:
		preset := s.Preset
		if preset == "" {
			preset = "medium"
		}
		args = append(args, "-preset", preset, "-crf", strconv.Itoa(orCRF(s.CRF)))
	}

	if g.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(g.FPS))
	}

	audioCodec := s.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args = append(args, "-c:a", audioCodec)
	if s.AudioBitrate != "" {
		args = append(args, "-b:a", s.AudioBitrate)
	}

	args = append(args, "-pix_fmt", "yuv420p", "-movflags", "+faststart")

	// Narration governs output length; everything longer is cut here.
	if g.Duration > 0 {
		args = append(args, "-t", util.FormatSeconds(g.Duration))
	}

	return append(args, outputPath)
}

func orCRF(crf int) int {
	if crf <= 0 {
		return 23
	}
	return crf
}
