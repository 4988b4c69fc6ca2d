package timeline

import (
	"time"

	"github.com/rdpaes/narracast/internal/effects"
)

// AssetKind classifies a media asset by what stream it contributes.
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindAudio AssetKind = "audio"
	KindVideo AssetKind = "video"
)

// MediaAsset is an input file resolved before timeline construction.
// Duration is zero when unknown (still images, unprobed files).
type MediaAsset struct {
	Path     string
	Kind     AssetKind
	Duration time.Duration
}

// Clip places a trimmed window of an asset on a track. In/Out are offsets
// into the asset, Start is the placement time on the track.
type Clip struct {
	ID      string
	Asset   MediaAsset
	In      time.Duration
	Out     time.Duration
	Start   time.Duration
	Effects []effects.Ref
}

// Duration is the on-track length of the clip.
func (c Clip) Duration() time.Duration {
	return c.Out - c.In
}

// TrackKind is the stream kind a track carries.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Transition bridges two adjacent clips on a video track, overlapping them
// for Duration. FromClip/ToClip reference clip IDs on the same track.
type Transition struct {
	Name     string
	Duration time.Duration
	FromClip string
	ToClip   string
}

// Track is an ordered sequence of clips of one kind. Effects at the track
// level apply to the whole composited stream (logo, overlay video).
type Track struct {
	ID          string
	Kind        TrackKind
	Clips       []Clip
	Effects     []TrackEffect
	Transitions []Transition
}

// Timeline is the immutable structural model for one render. Treat a built
// Timeline as read-only; edits produce a new value.
type Timeline struct {
	FPS    int
	Width  int
	Height int
	Video  []Track
	Audio  []Track
}

// FrameDuration is the length of one frame at the timeline's rate.
func (t Timeline) FrameDuration() time.Duration {
	return time.Second / time.Duration(t.FPS)
}

// NarrationDuration is the length of the governing audio clip: the first
// clip of the first audio track. The rendered output is cut to this length.
func (t Timeline) NarrationDuration() time.Duration {
	if len(t.Audio) == 0 || len(t.Audio[0].Clips) == 0 {
		return 0
	}
	return t.Audio[0].Clips[0].Duration()
}

// RenderSettings selects container, codecs and quality for one render.
// Values are passed through to the encoder verbatim.
type RenderSettings struct {
	Container    string
	VideoCodec   string
	AudioCodec   string
	CRF          int
	Preset       string
	AudioBitrate string
	HWAccel      string
	Ducking      bool
}
