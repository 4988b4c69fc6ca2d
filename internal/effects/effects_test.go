package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"fade", "logo", "overlay", "volume"}, Names())
}

func TestValidateAppliesDefaults(t *testing.T) {
	params, err := Validate(Ref{Name: "fade", Params: map[string]any{"duration": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, params["duration"])
	assert.Equal(t, "in", params["mode"])
	assert.Equal(t, 0.0, params["start"])
}

func TestValidateCoercesIntegers(t *testing.T) {
	params, err := Validate(Ref{Name: "volume", Params: map[string]any{"volume": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, params["volume"])
}

func TestValidateUnknownEffect(t *testing.T) {
	_, err := Validate(Ref{Name: "glitch"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "glitch", verr.Effect)
}

func TestValidateUnknownParameter(t *testing.T) {
	_, err := Validate(Ref{Name: "fade", Params: map[string]any{"duration": 1.0, "colour": "red"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fade", verr.Effect)
	assert.Equal(t, "colour", verr.Param)
}

func TestValidateMissingRequired(t *testing.T) {
	_, err := Validate(Ref{Name: "fade", Params: map[string]any{"mode": "out"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration", verr.Param)
}

func TestValidateNegativeDuration(t *testing.T) {
	_, err := Validate(Ref{Name: "fade", Params: map[string]any{"duration": -1.0}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fade", verr.Effect)
	assert.Equal(t, "duration", verr.Param)
}

func TestValidateEnum(t *testing.T) {
	_, err := Validate(Ref{Name: "logo", Params: map[string]any{"position": "middle"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "position", verr.Param)

	params, err := Validate(Ref{Name: "logo", Params: map[string]any{"position": "bottom_left"}})
	require.NoError(t, err)
	assert.Equal(t, "bottom_left", params["position"])
}

func TestValidateTypeMismatch(t *testing.T) {
	_, err := Validate(Ref{Name: "fade", Params: map[string]any{"duration": "long"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration", verr.Param)
}

func TestFadeBuild(t *testing.T) {
	eff, ok := Get("fade")
	require.True(t, ok)

	params, err := Validate(Ref{Name: "fade", Params: map[string]any{"duration": 1.5, "mode": "out", "start": 4.0}})
	require.NoError(t, err)

	steps := eff.Build(params, Context{In: "v0", Out: "v1"})
	require.Len(t, steps, 1)
	assert.Equal(t, []string{"v0"}, steps[0].Inputs)
	assert.Equal(t, "fade", steps[0].Name)
	assert.Equal(t, "t=out:st=4:d=1.5", steps[0].Args)
	assert.Equal(t, "v1", steps[0].Output)
}

func TestLogoBuildOpaque(t *testing.T) {
	eff, _ := Get("logo")
	params, err := Validate(Ref{Name: "logo", Params: map[string]any{}})
	require.NoError(t, err)

	n := 0
	ctx := Context{In: "vc0", Out: "fx1", Aux: "3:v", Label: func(prefix string) string {
		n++
		return prefix + "_x"
	}}
	steps := eff.Build(params, ctx)

	// Full opacity skips the alpha steps: scale then overlay.
	require.Len(t, steps, 2)
	assert.Equal(t, "scale", steps[0].Name)
	assert.Equal(t, []string{"3:v"}, steps[0].Inputs)
	assert.Equal(t, "overlay", steps[1].Name)
	assert.Equal(t, "W-w-20:20", steps[1].Args)
	assert.Equal(t, "fx1", steps[1].Output)
}

func TestOverlayBuildWithOpacity(t *testing.T) {
	eff, _ := Get("overlay")
	params, err := Validate(Ref{Name: "overlay", Params: map[string]any{"opacity": 0.3}})
	require.NoError(t, err)

	n := 0
	ctx := Context{In: "vc0", Out: "fx1", Aux: "2:v", Label: func(prefix string) string {
		n++
		return prefix + "_x"
	}}
	steps := eff.Build(params, ctx)

	require.Len(t, steps, 3)
	assert.Equal(t, "format", steps[0].Name)
	assert.Equal(t, "colorchannelmixer", steps[1].Name)
	assert.Equal(t, "aa=0.3", steps[1].Args)
	assert.Equal(t, "overlay", steps[2].Name)
	assert.Equal(t, "(W-w)/2:(H-h)/2:format=auto", steps[2].Args)
}

func TestTransitionStep(t *testing.T) {
	step, err := TransitionStep("fade", time.Second, 5*time.Second, "v3", "v7", "x8")
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v7"}, step.Inputs)
	assert.Equal(t, "xfade", step.Name)
	assert.Equal(t, "transition=fade:duration=1:offset=5", step.Args)
	assert.Equal(t, "x8", step.Output)
}

func TestTransitionStepFractionalSeconds(t *testing.T) {
	step, err := TransitionStep("wipeleft", 600*time.Millisecond, 0, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, "transition=wipeleft:duration=0.6:offset=0", step.Args)
}

func TestTransitionStepUnknown(t *testing.T) {
	_, err := TransitionStep("spiral", time.Second, 0, "a", "b", "c")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "spiral", verr.Effect)
}

func TestTransitionStepBadTiming(t *testing.T) {
	_, err := TransitionStep("fade", 0, 0, "a", "b", "c")
	assert.Error(t, err)

	_, err = TransitionStep("fade", time.Second, -time.Second, "a", "b", "c")
	assert.Error(t, err)
}

func TestAudioCrossfadeStep(t *testing.T) {
	step, err := AudioCrossfadeStep(time.Second, "an0", "an1", "ax2")
	require.NoError(t, err)
	assert.Equal(t, "acrossfade", step.Name)
	assert.Equal(t, "d=1", step.Args)

	_, err = AudioCrossfadeStep(0, "a", "b", "c")
	assert.Error(t, err)
}
