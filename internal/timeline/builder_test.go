package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdpaes/narracast/internal/effects"
)

func narrationAsset(d time.Duration) MediaAsset {
	return MediaAsset{Path: "narration.wav", Kind: KindAudio, Duration: d}
}

func imageAssets(n int) []MediaAsset {
	assets := make([]MediaAsset, n)
	for i := range assets {
		assets[i] = MediaAsset{Path: "img.png", Kind: KindImage}
	}
	return assets
}

func TestBuildPlacesClipsBackToBack(t *testing.T) {
	tl, err := Build(BuildParams{
		Narration: narrationAsset(5 * time.Second),
		Images:    imageAssets(2),
		Durations: []time.Duration{2 * time.Second, 3 * time.Second},
		Width:     1280, Height: 720, FPS: 30,
	})
	require.NoError(t, err)

	require.Len(t, tl.Video, 1)
	clips := tl.Video[0].Clips
	require.Len(t, clips, 2)
	assert.Equal(t, time.Duration(0), clips[0].Start)
	assert.Equal(t, 2*time.Second, clips[0].Duration())
	assert.Equal(t, 2*time.Second, clips[1].Start)
	assert.Equal(t, 3*time.Second, clips[1].Duration())

	require.Len(t, tl.Audio, 1)
	assert.Equal(t, 5*time.Second, tl.NarrationDuration())
}

func TestBuildMusicTrack(t *testing.T) {
	music := MediaAsset{Path: "music.mp3", Kind: KindAudio}
	tl, err := Build(BuildParams{
		Narration: narrationAsset(6 * time.Second),
		Images:    imageAssets(1),
		Durations: []time.Duration{6 * time.Second},
		Music:     &music,
		Width:     1280, Height: 720, FPS: 30,
	})
	require.NoError(t, err)

	require.Len(t, tl.Audio, 2)
	require.Len(t, tl.Audio[1].Clips, 1)
	require.Len(t, tl.Audio[1].Clips[0].Effects, 1)
	assert.Equal(t, "volume", tl.Audio[1].Clips[0].Effects[0].Name)
	assert.Equal(t, 0.2, tl.Audio[1].Clips[0].Effects[0].Params["volume"])
}

func TestBuildTransitionsBridgeAdjacentClips(t *testing.T) {
	tl, err := Build(BuildParams{
		Narration:  narrationAsset(6 * time.Second),
		Images:     imageAssets(3),
		Durations:  []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second},
		Transition: "fade",
		Width:      1280, Height: 720, FPS: 30,
	})
	require.NoError(t, err)

	trs := tl.Video[0].Transitions
	require.Len(t, trs, 2)
	assert.Equal(t, "img_0", trs[0].FromClip)
	assert.Equal(t, "img_1", trs[0].ToClip)
	assert.Equal(t, "img_1", trs[1].FromClip)
	assert.Equal(t, "img_2", trs[1].ToClip)

	// Default overlap: 30% of the first segment, capped at one second.
	assert.Equal(t, 600*time.Millisecond, trs[0].Duration)
}

func TestBuildTrackEffectsOrder(t *testing.T) {
	overlay := MediaAsset{Path: "rain.mp4", Kind: KindVideo, Duration: 10 * time.Second}
	logo := MediaAsset{Path: "logo.png", Kind: KindImage}
	tl, err := Build(BuildParams{
		Narration: narrationAsset(4 * time.Second),
		Images:    imageAssets(1),
		Durations: []time.Duration{4 * time.Second},
		Overlay:   &overlay,
		Logo:      &logo,
		Width:     1280, Height: 720, FPS: 30,
	})
	require.NoError(t, err)

	require.Len(t, tl.Video[0].Effects, 2)
	assert.Equal(t, "overlay", tl.Video[0].Effects[0].Ref.Name)
	assert.Equal(t, "logo", tl.Video[0].Effects[1].Ref.Name)
}

func TestBuildRejectsMismatchedDurations(t *testing.T) {
	_, err := Build(BuildParams{
		Narration: narrationAsset(5 * time.Second),
		Images:    imageAssets(3),
		Durations: []time.Duration{2 * time.Second},
		Width:     1280, Height: 720, FPS: 30,
	})
	assert.Error(t, err)
}

func TestValidateRejectsTargetMismatch(t *testing.T) {
	tl := Timeline{
		FPS: 30, Width: 1280, Height: 720,
		Video: []Track{{
			ID: "v", Kind: TrackVideo,
			Clips: []Clip{{
				ID: "img_0", Asset: MediaAsset{Path: "a.png", Kind: KindImage}, Out: 2 * time.Second,
				Effects: []effects.Ref{{
					Name:   "volume",
					Params: map[string]any{"volume": 0.5},
					Target: effects.TargetAudio,
				}},
			}},
		}},
		Audio: []Track{{
			ID: "a", Kind: TrackAudio,
			Clips: []Clip{{ID: "narration", Asset: narrationAsset(2 * time.Second), Out: 2 * time.Second}},
		}},
	}

	err := Validate(tl)
	var verr *effects.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "volume", verr.Effect)
}

func TestValidateRejectsNonAdjacentTransition(t *testing.T) {
	clips := []Clip{
		{ID: "img_0", Asset: MediaAsset{Path: "a.png", Kind: KindImage}, Out: 2 * time.Second, Start: 0},
		{ID: "img_1", Asset: MediaAsset{Path: "b.png", Kind: KindImage}, Out: 2 * time.Second, Start: 2 * time.Second},
		{ID: "img_2", Asset: MediaAsset{Path: "c.png", Kind: KindImage}, Out: 2 * time.Second, Start: 4 * time.Second},
	}
	tl := Timeline{
		FPS: 30, Width: 1280, Height: 720,
		Video: []Track{{
			ID: "v", Kind: TrackVideo, Clips: clips,
			Transitions: []Transition{{Name: "fade", Duration: time.Second, FromClip: "img_0", ToClip: "img_2"}},
		}},
		Audio: []Track{{
			ID: "a", Kind: TrackAudio,
			Clips: []Clip{{ID: "narration", Asset: narrationAsset(6 * time.Second), Out: 6 * time.Second}},
		}},
	}

	err := Validate(tl)
	var verr *effects.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "non-adjacent")
}

func TestValidateRejectsUnknownTransitionClip(t *testing.T) {
	tl := Timeline{
		FPS: 30, Width: 1280, Height: 720,
		Video: []Track{{
			ID: "v", Kind: TrackVideo,
			Clips: []Clip{{ID: "img_0", Asset: MediaAsset{Path: "a.png", Kind: KindImage}, Out: 2 * time.Second}},
			Transitions: []Transition{
				{Name: "fade", Duration: time.Second, FromClip: "img_0", ToClip: "ghost"},
			},
		}},
		Audio: []Track{{
			ID: "a", Kind: TrackAudio,
			Clips: []Clip{{ID: "narration", Asset: narrationAsset(2 * time.Second), Out: 2 * time.Second}},
		}},
	}

	var verr *effects.ValidationError
	require.ErrorAs(t, Validate(tl), &verr)
	assert.Contains(t, verr.Reason, "unknown clip")
}
