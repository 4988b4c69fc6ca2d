package timeline

import (
	"fmt"
	"time"

	"github.com/rdpaes/narracast/internal/effects"
)

// TrackEffect is a track-level effect plus the auxiliary input asset it
// composites (logo image, overlay video). Asset is nil for effects that
// operate on the track's own stream.
type TrackEffect struct {
	Ref   effects.Ref
	Asset *MediaAsset
}

// BuildParams are the resolved inputs for timeline construction. Durations
// come from Allocate and must match Images one to one.
type BuildParams struct {
	Narration MediaAsset
	Images    []MediaAsset
	Durations []time.Duration

	Overlay        *MediaAsset
	OverlayOpacity float64

	Music           *MediaAsset
	MusicVolume     float64
	NarrationVolume float64

	Logo         *MediaAsset
	LogoPosition string
	LogoScale    float64
	LogoOpacity  float64

	Transition         string
	TransitionDuration time.Duration

	Width  int
	Height int
	FPS    int
}

// Build constructs and validates the timeline for one render: a video track
// with one clip per image placed back to back, transitions bridging each
// adjacent pair, and an audio track with narration plus optional music.
func Build(p BuildParams) (Timeline, error) {
	if len(p.Images) == 0 {
		return Timeline{}, fmt.Errorf("timeline: at least one image required")
	}
	if len(p.Durations) != len(p.Images) {
		return Timeline{}, fmt.Errorf("timeline: %d durations for %d images", len(p.Durations), len(p.Images))
	}
	if p.Narration.Duration <= 0 {
		return Timeline{}, fmt.Errorf("timeline: narration duration unknown for %s", p.Narration.Path)
	}

	video := Track{ID: "video_main", Kind: TrackVideo}
	var cursor time.Duration
	for i, img := range p.Images {
		video.Clips = append(video.Clips, Clip{
			ID:    fmt.Sprintf("img_%d", i),
			Asset: img,
			In:    0,
			Out:   p.Durations[i],
			Start: cursor,
		})
		cursor += p.Durations[i]
	}

	if p.Transition != "" && p.Transition != "none" {
		td := p.TransitionDuration
		if td <= 0 {
			td = defaultTransitionDuration(p.Durations[0])
		}
		for i := 1; i < len(video.Clips); i++ {
			video.Transitions = append(video.Transitions, Transition{
				Name:     p.Transition,
				Duration: td,
				FromClip: video.Clips[i-1].ID,
				ToClip:   video.Clips[i].ID,
			})
		}
	}

	if p.Overlay != nil {
		video.Effects = append(video.Effects, TrackEffect{
			Ref: effects.Ref{
				Name:   "overlay",
				Params: map[string]any{"opacity": orOne(p.OverlayOpacity)},
				Target: effects.TargetVideo,
			},
			Asset: p.Overlay,
		})
	}
	if p.Logo != nil {
		params := map[string]any{
			"scale":   orDefault(p.LogoScale, 0.15),
			"opacity": orOne(p.LogoOpacity),
		}
		if p.LogoPosition != "" {
			params["position"] = p.LogoPosition
		}
		video.Effects = append(video.Effects, TrackEffect{
			Ref:   effects.Ref{Name: "logo", Params: params, Target: effects.TargetVideo},
			Asset: p.Logo,
		})
	}

	audio := []Track{{
		ID:   "audio_narration",
		Kind: TrackAudio,
		Clips: []Clip{{
			ID:    "narration",
			Asset: p.Narration,
			In:    0,
			Out:   p.Narration.Duration,
			Start: 0,
			Effects: []effects.Ref{{
				Name:   "volume",
				Params: map[string]any{"volume": orOne(p.NarrationVolume)},
				Target: effects.TargetAudio,
			}},
		}},
	}}
	if p.Music != nil {
		audio = append(audio, Track{
			ID:   "audio_music",
			Kind: TrackAudio,
			Clips: []Clip{{
				ID:    "music",
				Asset: *p.Music,
				In:    0,
				Out:   p.Narration.Duration,
				Start: 0,
				Effects: []effects.Ref{{
					Name:   "volume",
					Params: map[string]any{"volume": orDefault(p.MusicVolume, 0.2)},
					Target: effects.TargetAudio,
				}},
			}},
		})
	}

	t := Timeline{
		FPS:    p.FPS,
		Width:  p.Width,
		Height: p.Height,
		Video:  []Track{video},
		Audio:  audio,
	}

	if err := Validate(t); err != nil {
		return Timeline{}, err
	}
	return t, nil
}

// Validate checks structural timeline rules: effect targets must match the
// track kind they are attached to, transitions must bridge adjacent clips,
// and clips must not overlap outside a transition window.
func Validate(t Timeline) error {
	for _, track := range append(append([]Track{}, t.Video...), t.Audio...) {
		for _, clip := range track.Clips {
			for _, ref := range clip.Effects {
				if err := checkTarget(ref, track.Kind); err != nil {
					return err
				}
			}
		}
		for _, te := range track.Effects {
			if err := checkTarget(te.Ref, track.Kind); err != nil {
				return err
			}
		}

		index := make(map[string]int, len(track.Clips))
		for i, clip := range track.Clips {
			index[clip.ID] = i
		}
		for _, tr := range track.Transitions {
			from, okFrom := index[tr.FromClip]
			to, okTo := index[tr.ToClip]
			if !okFrom || !okTo {
				return &effects.ValidationError{Effect: tr.Name,
					Reason: fmt.Sprintf("transition references unknown clip %q/%q", tr.FromClip, tr.ToClip)}
			}
			if to != from+1 {
				return &effects.ValidationError{Effect: tr.Name,
					Reason: fmt.Sprintf("transition bridges non-adjacent clips %q and %q", tr.FromClip, tr.ToClip)}
			}
			if tr.Duration <= 0 {
				return &effects.ValidationError{Effect: tr.Name, Param: "duration", Reason: "must be positive"}
			}
		}

		if track.Kind == TrackVideo {
			for i := 1; i < len(track.Clips); i++ {
				prev, cur := track.Clips[i-1], track.Clips[i]
				if cur.Start < prev.Start+prev.Duration() && !bridged(track, prev.ID, cur.ID) {
					return &effects.ValidationError{Effect: "timeline",
						Reason: fmt.Sprintf("clips %q and %q overlap without a transition", prev.ID, cur.ID)}
				}
			}
		}
	}
	return nil
}

func checkTarget(ref effects.Ref, kind TrackKind) error {
	eff, ok := effects.Get(ref.Name)
	if !ok {
		return &effects.ValidationError{Effect: ref.Name, Reason: "unknown effect"}
	}
	if eff.Target == effects.TargetBoth {
		return nil
	}
	if (kind == TrackVideo && eff.Target != effects.TargetVideo) ||
		(kind == TrackAudio && eff.Target != effects.TargetAudio) {
		return &effects.ValidationError{Effect: ref.Name,
			Reason: fmt.Sprintf("%s effect attached to %s track", eff.Target, kind)}
	}
	return nil
}

func bridged(track Track, fromID, toID string) bool {
	for _, tr := range track.Transitions {
		if tr.FromClip == fromID && tr.ToClip == toID {
			return true
		}
	}
	return false
}

// defaultTransitionDuration is the overlap used when none is configured:
// a second, or 30% of the first segment when segments are short.
func defaultTransitionDuration(segment time.Duration) time.Duration {
	d := time.Duration(float64(segment) * 0.3)
	if d > time.Second {
		return time.Second
	}
	return d
}

func orOne(f float64) float64 {
	if f <= 0 {
		return 1.0
	}
	return f
}

func orDefault(f, def float64) float64 {
	if f <= 0 {
		return def
	}
	return f
}
