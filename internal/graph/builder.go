package graph

import (
	"fmt"
	"time"

	"github.com/rdpaes/narracast/internal/effects"
	"github.com/rdpaes/narracast/internal/timeline"
)

// Build compiles a timeline plus render settings into a FilterGraph. It is
// deterministic and side-effect free: the same timeline and settings always
// yield the same node sequence and labels. Any invalid effect reference
// aborts the whole build; no partial graph is ever returned.
//
// Compilation order is fixed: per-clip normalization, per-clip effects,
// transitions (or concatenation when none), track-level overlays and logo,
// then the audio chain.
func Build(t timeline.Timeline, s timeline.RenderSettings) (*FilterGraph, error) {
	if len(t.Video) == 0 || len(t.Video[0].Clips) == 0 {
		return nil, fmt.Errorf("graph: timeline has no video clips")
	}
	if len(t.Audio) == 0 || len(t.Audio[0].Clips) == 0 {
		return nil, fmt.Errorf("graph: timeline has no narration track")
	}
	if err := timeline.Validate(t); err != nil {
		return nil, err
	}

	video := t.Video[0]
	narrTrack := t.Audio[0]

	b := &builder{g: &FilterGraph{
		FPS:      t.FPS,
		Duration: t.NarrationDuration(),
	}}

	// Input plan. Index references in the nodes below depend on this order:
	// narration, images in placement order, then overlay, music, logo, and
	// finally any extra narration clips.
	b.addInput(Input{Path: narrTrack.Clips[0].Asset.Path})

	imageIdx := make([]int, len(video.Clips))
	for i, clip := range video.Clips {
		imageIdx[i] = b.addInput(Input{
			Path:     clip.Asset.Path,
			Loop:     true,
			Duration: clip.Duration(),
		})
	}

	auxIdx := make([]int, len(video.Effects))
	for i := range auxIdx {
		auxIdx[i] = -1
	}
	for i, te := range video.Effects {
		if te.Asset != nil && te.Ref.Name == "overlay" {
			auxIdx[i] = b.addInput(Input{
				Path:       te.Asset.Path,
				StreamLoop: overlayLoops(te.Asset.Duration, b.g.Duration),
			})
		}
	}

	musicIdx := -1
	if len(t.Audio) > 1 && len(t.Audio[1].Clips) > 0 {
		musicIdx = b.addInput(Input{Path: t.Audio[1].Clips[0].Asset.Path})
	}

	for i, te := range video.Effects {
		if te.Asset != nil && auxIdx[i] < 0 {
			auxIdx[i] = b.addInput(Input{Path: te.Asset.Path})
		}
	}

	narrExtraIdx := make([]int, 0)
	for _, clip := range narrTrack.Clips[1:] {
		narrExtraIdx = append(narrExtraIdx, b.addInput(Input{Path: clip.Asset.Path}))
	}

	// Stage 1: normalize every image to the target resolution and a common
	// pixel format.
	norm := make([]string, len(video.Clips))
	for i := range video.Clips {
		src := fmt.Sprintf("%d:v", imageIdx[i])
		sc := b.label("v")
		b.add(Node{Inputs: []string{src}, Name: "scale",
			Args: fmt.Sprintf("%d:%d:force_original_aspect_ratio=decrease", t.Width, t.Height), Output: sc})
		pd := b.label("v")
		b.add(Node{Inputs: []string{sc}, Name: "pad",
			Args: fmt.Sprintf("%d:%d:(ow-iw)/2:(oh-ih)/2", t.Width, t.Height), Output: pd})
		sr := b.label("v")
		b.add(Node{Inputs: []string{pd}, Name: "setsar", Args: "1", Output: sr})
		fm := b.label("v")
		b.add(Node{Inputs: []string{sr}, Name: "format", Args: "yuv420p", Output: fm})
		norm[i] = fm
	}

	// Stage 2: per-clip effects in clip order.
	for i, clip := range video.Clips {
		for _, ref := range clip.Effects {
			out, err := b.applyEffect(ref, norm[i], "")
			if err != nil {
				return nil, err
			}
			norm[i] = out
		}
	}

	// Stage 3: transitions merge adjacent streams left to right. Pairs
	// without a transition stay independent segments for the concat stage.
	type segment struct {
		label  string
		length time.Duration
	}
	segments := []segment{{label: norm[0], length: video.Clips[0].Duration()}}
	for i := 1; i < len(video.Clips); i++ {
		tr := findTransition(video, video.Clips[i-1].ID, video.Clips[i].ID)
		if tr == nil {
			segments = append(segments, segment{label: norm[i], length: video.Clips[i].Duration()})
			continue
		}
		cur := &segments[len(segments)-1]
		offset := cur.length - tr.Duration
		if offset < 0 {
			offset = 0
		}
		out := b.label("x")
		step, err := effects.TransitionStep(tr.Name, tr.Duration, offset, cur.label, norm[i], out)
		if err != nil {
			return nil, err
		}
		b.addSteps([]effects.Step{step})
		cur.label = out
		cur.length = offset + video.Clips[i].Duration()
	}

	// Stage 5 (interleaved when no transitions): concatenate remaining
	// independent segments in placement order.
	running := segments[0].label
	if len(segments) > 1 {
		inputs := make([]string, len(segments))
		for i, seg := range segments {
			inputs[i] = seg.label
		}
		out := b.label("vc")
		b.add(Node{Inputs: inputs, Name: "concat",
			Args: fmt.Sprintf("n=%d:v=1:a=0", len(segments)), Output: out})
		running = out
	}

	// Stage 4: overlays and logo composited onto the running stream in
	// registration order.
	for i, te := range video.Effects {
		aux := ""
		if auxIdx[i] >= 0 {
			aux = fmt.Sprintf("%d:v", auxIdx[i])
		}
		out, err := b.applyEffect(te.Ref, running, aux)
		if err != nil {
			return nil, err
		}
		running = out
	}

	b.g.VideoOut = running
	b.markFinal(running, true)

	// Stage 6: audio chain. Narration first, with an acrossfade per video
	// transition when the narration track itself is split into clips.
	narr, err := b.audioClipChain(narrTrack.Clips[0], "0:a")
	if err != nil {
		return nil, err
	}
	if len(narrTrack.Clips) > 1 {
		td := audioCrossfadeDuration(video)
		for j, clip := range narrTrack.Clips[1:] {
			next, err := b.audioClipChain(clip, fmt.Sprintf("%d:a", narrExtraIdx[j]))
			if err != nil {
				return nil, err
			}
			out := b.label("ax")
			if td > 0 {
				step, err := effects.AudioCrossfadeStep(td, narr, next, out)
				if err != nil {
					return nil, err
				}
				b.addSteps([]effects.Step{step})
			} else {
				b.add(Node{Inputs: []string{narr, next}, Name: "concat", Args: "n=2:v=0:a=1", Output: out})
			}
			narr = out
		}
	}

	audioOut := narr
	if musicIdx >= 0 {
		music, err := b.audioClipChain(t.Audio[1].Clips[0], fmt.Sprintf("%d:a", musicIdx))
		if err != nil {
			return nil, err
		}
		if s.Ducking {
			ducked := b.label("ad")
			b.add(Node{Inputs: []string{music, narr}, Name: "sidechaincompress",
				Args: "threshold=0.03:ratio=8:attack=20:release=300", Output: ducked})
			music = ducked
		}
		mixed := b.label("am")
		b.add(Node{Inputs: []string{narr, music}, Name: "amix",
			Args: "inputs=2:duration=first:dropout_transition=2", Output: mixed})
		audioOut = mixed
	}

	b.g.AudioOut = audioOut
	b.markFinal(audioOut, false)

	return b.g, nil
}

type builder struct {
	g *FilterGraph
	n int
}

// label mints a unique stream label. The counter is never reused within a
// build, so labels are unique across all stages.
func (b *builder) label(prefix string) string {
	l := fmt.Sprintf("%s%d", prefix, b.n)
	b.n++
	return l
}

func (b *builder) add(n Node) {
	b.g.Nodes = append(b.g.Nodes, n)
}

func (b *builder) addInput(in Input) int {
	b.g.Inputs = append(b.g.Inputs, in)
	return len(b.g.Inputs) - 1
}

func (b *builder) addSteps(steps []effects.Step) {
	for _, s := range steps {
		b.add(Node{Inputs: s.Inputs, Name: s.Name, Args: s.Args, Output: s.Output})
	}
}

// applyEffect validates a reference and appends its filter steps, returning
// the new current label.
func (b *builder) applyEffect(ref effects.Ref, in, aux string) (string, error) {
	params, err := effects.Validate(ref)
	if err != nil {
		return "", err
	}
	eff, _ := effects.Get(ref.Name)
	ctx := effects.Context{In: in, Out: b.label("fx"), Aux: aux, Label: b.label}
	b.addSteps(eff.Build(params, ctx))
	return ctx.Out, nil
}

// audioClipChain applies a clip's audio effects to its source stream. A clip
// without effects still gets an anull node so the stream has a label that a
// final-audio mark can attach to.
func (b *builder) audioClipChain(clip timeline.Clip, src string) (string, error) {
	cur := src
	for _, ref := range clip.Effects {
		out, err := b.applyEffect(ref, cur, "")
		if err != nil {
			return "", err
		}
		cur = out
	}
	if cur == src {
		out := b.label("an")
		b.add(Node{Inputs: []string{src}, Name: "anull", Output: out})
		cur = out
	}
	return cur, nil
}

func (b *builder) markFinal(label string, video bool) {
	for i := range b.g.Nodes {
		if b.g.Nodes[i].Output == label {
			if video {
				b.g.Nodes[i].FinalVideo = true
			} else {
				b.g.Nodes[i].FinalAudio = true
			}
			return
		}
	}
}

func findTransition(track timeline.Track, fromID, toID string) *timeline.Transition {
	for i := range track.Transitions {
		tr := &track.Transitions[i]
		if tr.FromClip == fromID && tr.ToClip == toID {
			return tr
		}
	}
	return nil
}

// audioCrossfadeDuration pairs the audio crossfade with the video transition
// overlap; zero when the video side has no transitions.
func audioCrossfadeDuration(video timeline.Track) time.Duration {
	if len(video.Transitions) == 0 {
		return 0
	}
	return video.Transitions[0].Duration
}

// overlayLoops is how many times an overlay video must repeat to cover the
// narration. Falls back to a generous fixed count when the overlay duration
// was not probed.
func overlayLoops(overlay, narration time.Duration) int {
	if overlay <= 0 || narration <= 0 {
		return 8
	}
	loops := int(narration / overlay)
	if narration%overlay != 0 {
		loops++
	}
	return loops + 1
}
