package graph

import (
	"strings"
	"time"
)

// Node is one filter invocation in the graph. Inputs are labels produced by
// earlier nodes or raw input stream specifiers ("0:a", "1:v"). Exactly one
// node in a finished graph carries FinalVideo and one FinalAudio.
type Node struct {
	Name       string
	Args       string
	Inputs     []string
	Output     string
	FinalVideo bool
	FinalAudio bool
}

// Input describes one -i entry of the eventual command. The order of the
// Inputs slice is the input index order baked into node stream specifiers:
// narration first, images in placement order, then overlay, music, logo.
type Input struct {
	Path       string
	Loop       bool          // loop a still image
	Duration   time.Duration // per-input read duration, 0 for whole file
	StreamLoop int           // extra loops for overlay video, 0 for none
}

// FilterGraph is the compiled processing plan: ordered filter nodes over a
// fixed input list, with the final video and audio labels marked. FPS and
// Duration carry the output frame rate and narration-governed length so the
// command builder does not re-derive them from the timeline.
type FilterGraph struct {
	Inputs   []Input
	Nodes    []Node
	VideoOut string
	AudioOut string
	FPS      int
	Duration time.Duration
}

// String serializes the graph in ffmpeg filter_complex syntax.
func (g *FilterGraph) String() string {
	var b strings.Builder
	for i, n := range g.Nodes {
		if i > 0 {
			b.WriteByte(';')
		}
		for _, in := range n.Inputs {
			b.WriteByte('[')
			b.WriteString(in)
			b.WriteByte(']')
		}
		b.WriteString(n.Name)
		if n.Args != "" {
			b.WriteByte('=')
			b.WriteString(n.Args)
		}
		b.WriteByte('[')
		b.WriteString(n.Output)
		b.WriteByte(']')
	}
	return b.String()
}
